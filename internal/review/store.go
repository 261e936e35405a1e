package review

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/reviews/internal/resource"
)

// Migrations creates the review tables.  review holds the current state of
// each review; review_revision holds every state it was edited away from.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS review (
		id                CHAR(36) PRIMARY KEY,
		url               VARCHAR(2048) NOT NULL,
		title             JSON NOT NULL,
		text              JSON NOT NULL,
		html              JSON NOT NULL,
		star_rating       TINYINT NOT NULL,
		original_language VARCHAR(8) NOT NULL,
		creator_id        CHAR(36) NOT NULL,
		created           DATETIME(6) NOT NULL,
		rev_id            CHAR(36) NOT NULL,
		rev_date          DATETIME(6) NOT NULL,
		rev_user          CHAR(36) NOT NULL,
		rev_deleted       BOOLEAN NOT NULL DEFAULT FALSE,
		INDEX review_created (created)
	)`,
	`CREATE TABLE IF NOT EXISTS review_revision (
		rev_id            CHAR(36) PRIMARY KEY,
		id                CHAR(36) NOT NULL,
		url               VARCHAR(2048) NOT NULL,
		title             JSON NOT NULL,
		text              JSON NOT NULL,
		html              JSON NOT NULL,
		star_rating       TINYINT NOT NULL,
		original_language VARCHAR(8) NOT NULL,
		creator_id        CHAR(36) NOT NULL,
		created           DATETIME(6) NOT NULL,
		rev_date          DATETIME(6) NOT NULL,
		rev_user          CHAR(36) NOT NULL,
		rev_deleted       BOOLEAN NOT NULL DEFAULT FALSE,
		INDEX review_revision_id (id)
	)`,
}

const reviewColumns = `id, url, title, text, html, star_rating, original_language,
	creator_id, created, rev_id, rev_date, rev_user, rev_deleted`

const selectReview = `SELECT r.id, r.url, r.title, r.text, r.html, r.star_rating,
	r.original_language, r.creator_id, COALESCE(u.name, '') AS creator_name, r.created,
	r.rev_id, r.rev_date, r.rev_user, r.rev_deleted
	FROM review r LEFT JOIN user u ON u.id = r.creator_id`

// Store persists reviews in MySQL.  Concurrent loads of one id share a
// single query.
type Store struct {
	db    *sqlx.DB
	group singleflight.Group
	now   func() time.Time
}

// NewStore returns a Store over db.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Get loads a review, deleted or not.  A missing row wraps
// resource.ErrNotFound.  Each caller gets its own copy.
//
// The shared query ignores the first caller's cancellation: other requests
// waiting on the same id must not inherit it.
func (s *Store) Get(ctx context.Context, id string) (*Review, error) {
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(id, func() (any, error) {
		var r Review
		err := s.db.GetContext(loadCtx, &r, selectReview+` WHERE r.id = ?`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("review %s: %w", id, resource.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("load review %s: %w", id, err)
		}
		return &r, nil
	})
	if err != nil {
		return nil, err
	}
	cp := *v.(*Review)
	return &cp, nil
}

// Recent lists the newest live reviews.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Review, error) {
	var out []*Review
	err := s.db.SelectContext(ctx, &out,
		selectReview+` WHERE r.rev_deleted = FALSE ORDER BY r.created DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent reviews: %w", err)
	}
	return out, nil
}

// RecentlyDeleted lists the latest soft-deleted reviews for moderators.
func (s *Store) RecentlyDeleted(ctx context.Context, limit int) ([]*Review, error) {
	var out []*Review
	err := s.db.SelectContext(ctx, &out,
		selectReview+` WHERE r.rev_deleted = TRUE ORDER BY r.rev_date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("deleted reviews: %w", err)
	}
	return out, nil
}

// Revisions lists the archived states of a review, newest first.
func (s *Store) Revisions(ctx context.Context, id string) ([]Revision, error) {
	var out []Revision
	err := s.db.SelectContext(ctx, &out,
		`SELECT rr.rev_id, rr.rev_date, rr.rev_user, COALESCE(u.name, '') AS rev_user_name, rr.rev_deleted
		   FROM review_revision rr LEFT JOIN user u ON u.id = rr.rev_user
		  WHERE rr.id = ? ORDER BY rr.rev_date DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("revisions of %s: %w", id, err)
	}
	return out, nil
}

// Create inserts r, assigning its id, creation time, and first revision.
func (s *Store) Create(ctx context.Context, r *Review) error {
	now := s.now().UTC()
	r.ID = uuid.NewString()
	r.Created = now
	r.RevID = uuid.NewString()
	r.RevDate = now
	r.RevUser = r.CreatorID
	r.Deleted = false

	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO review (`+reviewColumns+`) VALUES (:id, :url, :title, :text, :html,
		 :star_rating, :original_language, :creator_id, :created, :rev_id, :rev_date,
		 :rev_user, :rev_deleted)`, r)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// Update archives the stored state of r and writes r as a new revision by
// userID.
func (s *Store) Update(ctx context.Context, r *Review, userID string) error {
	return s.revise(ctx, r.ID, func(tx *sqlx.Tx, revID string, now time.Time) error {
		r.RevID, r.RevDate, r.RevUser = revID, now, userID
		_, err := tx.NamedExecContext(ctx,
			`UPDATE review SET url = :url, title = :title, text = :text, html = :html,
			        star_rating = :star_rating, rev_id = :rev_id, rev_date = :rev_date,
			        rev_user = :rev_user
			  WHERE id = :id`, r)
		return err
	})
}

// Delete archives the stored state of review id and marks it deleted.
func (s *Store) Delete(ctx context.Context, id, userID string) error {
	return s.revise(ctx, id, func(tx *sqlx.Tx, revID string, now time.Time) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE review SET rev_deleted = TRUE, rev_id = ?, rev_date = ?, rev_user = ?
			  WHERE id = ?`, revID, now, userID, id)
		return err
	})
}

// revise copies the current row of id into review_revision and runs apply in
// the same transaction.
func (s *Store) revise(ctx context.Context, id string, apply func(tx *sqlx.Tx, revID string, now time.Time) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`INSERT INTO review_revision (`+reviewColumns+`)
		 SELECT `+reviewColumns+` FROM review WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("archive review %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("review %s: %w", id, resource.ErrNotFound)
	}

	if err := apply(tx, uuid.NewString(), s.now().UTC()); err != nil {
		return fmt.Errorf("revise review %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.group.Forget(id)
	return nil
}
