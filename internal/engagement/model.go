package engagement

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/hubs/internal/content"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidUserID indicates that a voter identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("engagement: invalid user id")
	// ErrTargetNotFound indicates that the engaged item does not exist.
	ErrTargetNotFound = errors.New("engagement: target not found")
	// ErrUnsupportedKind indicates that the kind does not accept the requested action.
	ErrUnsupportedKind = errors.New("engagement: unsupported kind for action")
)

// UserID represents a validated voter identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Community groups collections, images, products and questions.
type Community struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement:false"`
	Name             string `gorm:"column:name;size:100;not null"`
	Description      string `gorm:"column:description;type:text;not null;default:''"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Community) TableName() string {
	return "communities"
}

// Collection is a named set of resources inside a community.
type Collection struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement:false"`
	CommunityID      int64  `gorm:"column:community_id;not null;index"`
	Name             string `gorm:"column:name;size:200;not null"`
	PreviewRef       string `gorm:"column:preview_ref;size:512;not null;default:''"`
	Views            int64  `gorm:"column:views;not null;default:0"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Collection) TableName() string {
	return "collections"
}

// Resource is a link posted into a collection.
type Resource struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement:false"`
	CollectionID     int64  `gorm:"column:collection_id;not null;index:idx_resources_collection_created,priority:1"`
	Title            string `gorm:"column:title;size:200;not null"`
	URL              string `gorm:"column:url;size:2000;not null"`
	Remark           string `gorm:"column:remark;type:text;not null;default:''"`
	Views            int64  `gorm:"column:views;not null;default:0"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index:idx_resources_collection_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Resource) TableName() string {
	return "resources"
}

// Image is a gallery image posted into a community.
type Image struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement:false"`
	CommunityID      int64  `gorm:"column:community_id;not null;index"`
	MediaRef         string `gorm:"column:media_ref;size:512;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Image) TableName() string {
	return "gallery_images"
}

// Product is a recommended product posted into a community.
type Product struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement:false"`
	CommunityID      int64  `gorm:"column:community_id;not null;index"`
	Title            string `gorm:"column:title;size:200;not null"`
	URL              string `gorm:"column:url;size:2000;not null"`
	Catalogue        string `gorm:"column:catalogue;size:100;not null;default:''"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Product) TableName() string {
	return "products"
}

// Answer is a reply to a community question. Votes mirrors the net count of its vote rows.
type Answer struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement:false"`
	CommunityID      int64  `gorm:"column:community_id;not null;index"`
	QuestionID       int64  `gorm:"column:question_id;not null;index"`
	Content          string `gorm:"column:content;type:text;not null"`
	Votes            int64  `gorm:"column:votes;not null;default:0"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Answer) TableName() string {
	return "answers"
}

// Vote is a voter's single opinion on a target. The primary key enforces one row per voter and target.
type Vote struct {
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null"`
	TargetKind       string `gorm:"column:target_kind;primaryKey;size:32;not null;index:idx_votes_target,priority:1"`
	TargetID         int64  `gorm:"column:target_id;primaryKey;not null;index:idx_votes_target,priority:2"`
	Direction        string `gorm:"column:direction;size:4;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Vote) TableName() string {
	return "votes"
}

// Bookmark marks a target as saved by a user. Presence is the whole state.
type Bookmark struct {
	UserID         string `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_bookmarks_user_kind,priority:1"`
	TargetKind     string `gorm:"column:target_kind;primaryKey;size:32;not null;index:idx_bookmarks_user_kind,priority:2"`
	TargetID       int64  `gorm:"column:target_id;primaryKey;not null"`
	SavedAtSeconds int64  `gorm:"column:saved_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Bookmark) TableName() string {
	return "bookmarks"
}

// TargetVersion counts committed vote and bookmark writes on a target. Every write bumps it
// inside its transaction, so a higher version is always the later server state.
type TargetVersion struct {
	TargetKind string `gorm:"column:target_kind;primaryKey;size:32;not null"`
	TargetID   int64  `gorm:"column:target_id;primaryKey;not null"`
	Version    int64  `gorm:"column:version;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (TargetVersion) TableName() string {
	return "target_versions"
}

// Models lists every table owned by the engagement service, in migration order.
func Models() []any {
	return []any{
		&Community{},
		&Collection{},
		&Resource{},
		&Image{},
		&Product{},
		&Answer{},
		&Vote{},
		&Bookmark{},
		&TargetVersion{},
	}
}

// VoteOutcome is the authoritative state after a cast.
type VoteOutcome struct {
	Target    content.Target
	Net       int64
	Direction content.Direction
	Version   int64
}

// BookmarkOutcome is the authoritative state after a toggle.
type BookmarkOutcome struct {
	Target  content.Target
	Status  content.BookmarkStatus
	Version int64
}

// CollectionStats aggregates engagement over a collection and its resources.
type CollectionStats struct {
	CollectionID  int64
	ResourceCount int64
	TotalVotes    int64
	TotalViews    int64
}

// BookmarkEntry is a saved item with denormalized display fields.
type BookmarkEntry struct {
	Target         content.Target
	OwnerID        int64
	Title          string
	URL            string
	MediaRef       string
	SavedAtSeconds int64
	Version        int64
}

// ResourceEntry is a resource with its net votes and the caller's direction.
type ResourceEntry struct {
	Resource Resource
	Votes    int64
	UserVote content.Direction
	Version  int64
}

// AnswerEntry is an answer with its net votes and the caller's direction.
type AnswerEntry struct {
	Answer   Answer
	Votes    int64
	UserVote content.Direction
	Version  int64
}
