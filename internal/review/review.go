// Package review models reviews and stores them with their revision history.
package review

import (
	"time"

	"github.com/yanizio/reviews/internal/auth"
	"github.com/yanizio/reviews/internal/mlstring"
)

// Review is one review of the thing at URL.  Title, text, and html carry
// one value per language.
type Review struct {
	ID               string          `db:"id"`
	URL              string          `db:"url"`
	Title            mlstring.String `db:"title"`
	Text             mlstring.String `db:"text"`
	HTML             mlstring.String `db:"html"`
	StarRating       int             `db:"star_rating"`
	OriginalLanguage string          `db:"original_language"`
	CreatorID        string          `db:"creator_id"`
	CreatorName      string          `db:"creator_name"`
	Created          time.Time       `db:"created"`

	RevID   string    `db:"rev_id"`
	RevDate time.Time `db:"rev_date"`
	RevUser string    `db:"rev_user"`
	Deleted bool      `db:"rev_deleted"`

	isAuthor  bool
	canEdit   bool
	canDelete bool
}

// RevDeleted reports whether the review was soft-deleted.
func (r *Review) RevDeleted() bool { return r != nil && r.Deleted }

// PopulateUserInfo computes what u may do with r.  Authors and superusers
// may edit; moderators may also delete.
func (r *Review) PopulateUserInfo(u *auth.User) {
	r.isAuthor, r.canEdit, r.canDelete = false, false, false
	if !u.SignedIn() {
		return
	}
	r.isAuthor = u.ID == r.CreatorID
	r.canEdit = r.isAuthor || u.IsSuperUser
	r.canDelete = r.canEdit || u.IsSiteModerator
}

func (r *Review) UserIsAuthor() bool  { return r.isAuthor }
func (r *Review) UserCanEdit() bool   { return r.canEdit }
func (r *Review) UserCanDelete() bool { return r.canDelete }

// Revision is one archived state of a review.
type Revision struct {
	RevID   string    `db:"rev_id"`
	RevDate time.Time `db:"rev_date"`
	RevUser string    `db:"rev_user"`
	// RevUserName is the editor's display name, empty for deleted accounts.
	RevUserName string `db:"rev_user_name"`
	Deleted     bool   `db:"rev_deleted"`
}
