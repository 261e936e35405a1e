package review

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/reviews/internal/auth"
	"github.com/yanizio/reviews/internal/mlstring"
	"github.com/yanizio/reviews/internal/resource"
)

var reviewCols = []string{
	"id", "url", "title", "text", "html", "star_rating", "original_language",
	"creator_id", "creator_name", "created", "rev_id", "rev_date", "rev_user", "rev_deleted",
}

var fixed = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	s := NewStore(sqlx.NewDb(raw, "mysql"))
	s.now = func() time.Time { return fixed }
	return s, mock
}

func reviewRow(id string, deleted bool) *sqlmock.Rows {
	return sqlmock.NewRows(reviewCols).AddRow(
		id, "http://example.com", `{"en":"Nice"}`, `{"en":"**ok**"}`, `{"en":"<p><strong>ok</strong></p>"}`,
		4, "en", "alice", "Alice", fixed, "rev-1", fixed, "alice", deleted,
	)
}

func TestGet(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectQuery(`FROM review r LEFT JOIN user u ON u.id = r.creator_id WHERE r.id = \?`).
		WithArgs("r1").
		WillReturnRows(reviewRow("r1", false))

	r, err := s.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, mlstring.String{"en": "Nice"}, r.Title)
	assert.Equal(t, 4, r.StarRating)
	assert.Equal(t, "Alice", r.CreatorName)
	assert.False(t, r.RevDeleted())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectQuery(`WHERE r.id = \?`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, resource.ErrNotFound)
	assert.True(t, resource.Unavailable(nil, err))
}

func TestGetReturnsCopies(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectQuery(`WHERE r.id = \?`).WithArgs("r1").WillReturnRows(reviewRow("r1", false))
	mock.ExpectQuery(`WHERE r.id = \?`).WithArgs("r1").WillReturnRows(reviewRow("r1", false))

	a, err := s.Get(context.Background(), "r1")
	require.NoError(t, err)
	b, err := s.Get(context.Background(), "r1")
	require.NoError(t, err)

	require.NotSame(t, a, b)
	a.PopulateUserInfo(&auth.User{ID: "alice"})
	assert.True(t, a.UserCanEdit())
	assert.False(t, b.UserCanEdit())
}

func TestGetSurvivesLeaderCancel(t *testing.T) {
	s, mock := newStore(t)
	// A second expectation keeps the follower served even if it misses the
	// shared call.
	for i := 0; i < 2; i++ {
		mock.ExpectQuery(`WHERE r.id = \?`).WithArgs("r1").
			WillDelayFor(200 * time.Millisecond).
			WillReturnRows(reviewRow("r1", false))
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := s.Get(leaderCtx, "r1")
		leaderErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	type result struct {
		r   *Review
		err error
	}
	follower := make(chan result, 1)
	go func() {
		r, err := s.Get(context.Background(), "r1")
		follower <- result{r, err}
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	got := <-follower
	require.NoError(t, got.err)
	assert.Equal(t, "r1", got.r.ID)
	require.NoError(t, <-leaderErr)
}

func TestCreate(t *testing.T) {
	s, mock := newStore(t)
	r := &Review{
		URL:              "http://example.com",
		Title:            mlstring.String{"en": "Nice"},
		Text:             mlstring.String{"en": "ok"},
		HTML:             mlstring.String{"en": "<p>ok</p>"},
		StarRating:       5,
		OriginalLanguage: "en",
		CreatorID:        "alice",
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO review (`)).
		WithArgs(sqlmock.AnyArg(), "http://example.com", `{"en":"Nice"}`, `{"en":"ok"}`, sqlmock.AnyArg(),
			5, "en", "alice", fixed, sqlmock.AnyArg(), fixed, "alice", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Create(context.Background(), r))
	assert.Len(t, r.ID, 36)
	assert.Equal(t, "alice", r.RevUser)
	assert.Equal(t, fixed, r.Created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateArchivesFirst(t *testing.T) {
	s, mock := newStore(t)
	r := &Review{ID: "r1", URL: "http://example.com", Title: mlstring.String{"en": "New"}, StarRating: 3}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO review_revision`)).
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE review SET url = ?`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Update(context.Background(), r, "bob"))
	assert.Equal(t, "bob", r.RevUser)
	assert.Equal(t, fixed, r.RevDate)
	assert.NotEmpty(t, r.RevID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingRollsBack(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO review_revision`)).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.Delete(context.Background(), "gone", "bob")
	require.ErrorIs(t, err, resource.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteFailureRollsBack(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO review_revision`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE review SET rev_deleted = TRUE`)).
		WithArgs(sqlmock.AnyArg(), fixed, "bob", "r1").
		WillReturnError(errors.New("lock wait timeout"))
	mock.ExpectRollback()

	err := s.Delete(context.Background(), "r1", "bob")
	require.ErrorContains(t, err, "lock wait timeout")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecent(t *testing.T) {
	s, mock := newStore(t)
	rows := reviewRow("r1", false)
	rows.AddRow("r2", "http://b.example", `{"de":"Gut"}`, `{}`, `{}`, 2, "de", "bob", "", fixed, "rev", fixed, "bob", false)
	mock.ExpectQuery(`WHERE r.rev_deleted = FALSE ORDER BY r.created DESC LIMIT \?`).
		WithArgs(20).
		WillReturnRows(rows)

	got, err := s.Recent(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, mlstring.String{"de": "Gut"}, got[1].Title)
}

func TestRevisions(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectQuery(`FROM review_revision rr`).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"rev_id", "rev_date", "rev_user", "rev_user_name", "rev_deleted"}).
			AddRow("rev-2", fixed, "bob", "Bob", false))

	got, err := s.Revisions(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, []Revision{{RevID: "rev-2", RevDate: fixed, RevUser: "bob", RevUserName: "Bob"}}, got)
}

func TestPopulateUserInfo(t *testing.T) {
	r := &Review{CreatorID: "alice"}

	cases := []struct {
		name              string
		user              *auth.User
		author, edit, del bool
	}{
		{"anonymous", nil, false, false, false},
		{"author", &auth.User{ID: "alice"}, true, true, true},
		{"stranger", &auth.User{ID: "bob"}, false, false, false},
		{"trusted stranger", &auth.User{ID: "bob", IsTrusted: true}, false, false, false},
		{"moderator", &auth.User{ID: "mod", IsSiteModerator: true}, false, false, true},
		{"superuser", &auth.User{ID: "root", IsSuperUser: true}, false, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r.PopulateUserInfo(tc.user)
			assert.Equal(t, tc.author, r.UserIsAuthor())
			assert.Equal(t, tc.edit, r.UserCanEdit())
			assert.Equal(t, tc.del, r.UserCanDelete())
		})
	}

	var nilReview *Review
	assert.False(t, nilReview.RevDeleted())
}
