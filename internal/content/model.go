package content

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind enumerates the content variants that accept engagement.
type Kind string

const (
	// KindResource is a link posted into a collection.
	KindResource Kind = "resource"
	// KindImage is a gallery image posted into a community.
	KindImage Kind = "image"
	// KindProduct is a recommended product posted into a community.
	KindProduct Kind = "product"
	// KindCollection is a resource collection inside a community.
	KindCollection Kind = "collection"
	// KindAnswer is an answer to a community question.
	KindAnswer Kind = "answer"
)

var (
	// ErrInvalidKind indicates that a kind string does not name a supported variant.
	ErrInvalidKind = errors.New("content: invalid kind")
	// ErrInvalidItemID indicates that an item identifier is not positive.
	ErrInvalidItemID = errors.New("content: invalid item id")
	// ErrMissingFields indicates that an item was built without variant fields.
	ErrMissingFields = errors.New("content: missing item fields")
)

var allKinds = []Kind{KindResource, KindImage, KindProduct, KindCollection, KindAnswer}

// Kinds returns every supported kind in declaration order.
func Kinds() []Kind {
	return append([]Kind(nil), allKinds...)
}

// ParseKind validates raw input and returns a Kind.
func ParseKind(rawInput string) (Kind, error) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(rawInput)))
	for _, kind := range allKinds {
		if kind == normalized {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, rawInput)
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	return string(k)
}

// Votable reports whether the kind accepts up/down votes.
func (k Kind) Votable() bool {
	return k == KindResource || k == KindAnswer
}

// Bookmarkable reports whether the kind can be saved by a user.
func (k Kind) Bookmarkable() bool {
	switch k {
	case KindResource, KindImage, KindProduct, KindCollection:
		return true
	default:
		return false
	}
}

// Viewable reports whether the kind carries a view counter.
func (k Kind) Viewable() bool {
	return k == KindResource || k == KindCollection
}

// ItemID identifies an item within its kind. IDs of different kinds may collide.
type ItemID int64

// NewItemID validates the value and returns an ItemID.
func NewItemID(value int64) (ItemID, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidItemID, value)
	}
	return ItemID(value), nil
}

// ParseItemID parses a decimal identifier.
func ParseItemID(rawInput string) (ItemID, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(rawInput), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidItemID, rawInput)
	}
	return NewItemID(value)
}

// Int64 exposes the raw identifier.
func (id ItemID) Int64() int64 {
	return int64(id)
}

// Target is the logical key of an engageable item: the kind is part of the key.
type Target struct {
	Kind Kind
	ID   ItemID
}

// NewTarget validates both halves of the key.
func NewTarget(rawKind string, id int64) (Target, error) {
	kind, err := ParseKind(rawKind)
	if err != nil {
		return Target{}, err
	}
	itemID, err := NewItemID(id)
	if err != nil {
		return Target{}, err
	}
	return Target{Kind: kind, ID: itemID}, nil
}

// String renders the target as kind:id.
func (t Target) String() string {
	return fmt.Sprintf("%s:%d", t.Kind, t.ID)
}

// Fields is implemented by the kind-specific display payloads of an Item.
type Fields interface {
	Kind() Kind
}

// ResourceFields holds the display data of a resource link.
type ResourceFields struct {
	Title  string
	URL    string
	Remark string
}

// Kind implements Fields.
func (ResourceFields) Kind() Kind { return KindResource }

// ImageFields holds the media reference of a gallery image.
type ImageFields struct {
	MediaRef string
}

// Kind implements Fields.
func (ImageFields) Kind() Kind { return KindImage }

// ProductFields holds the display data of a recommended product.
type ProductFields struct {
	Title     string
	URL       string
	Catalogue string
}

// Kind implements Fields.
func (ProductFields) Kind() Kind { return KindProduct }

// CollectionFields holds the display data of a collection.
type CollectionFields struct {
	Name       string
	PreviewRef string
}

// Kind implements Fields.
func (CollectionFields) Kind() Kind { return KindCollection }

// AnswerFields holds the display data of an answer.
type AnswerFields struct {
	Excerpt string
}

// Kind implements Fields.
func (AnswerFields) Kind() Kind { return KindAnswer }

// Item is the ContentItem union: the variant is selected by Fields and mirrored in Target.Kind.
// OwnerID is the owning collection for resources, the owning question for answers,
// and the owning community for other kinds.
type Item struct {
	Target    Target
	OwnerID   ItemID
	CreatedAt time.Time
	Fields    Fields
}

// NewItem builds an Item whose kind is taken from its fields.
func NewItem(id int64, ownerID int64, createdAt time.Time, fields Fields) (Item, error) {
	if fields == nil {
		return Item{}, ErrMissingFields
	}
	itemID, err := NewItemID(id)
	if err != nil {
		return Item{}, err
	}
	owner, err := NewItemID(ownerID)
	if err != nil {
		return Item{}, fmt.Errorf("owner: %w", err)
	}
	return Item{
		Target:    Target{Kind: fields.Kind(), ID: itemID},
		OwnerID:   owner,
		CreatedAt: createdAt,
		Fields:    fields,
	}, nil
}

// Title returns the human readable label of the item, whatever its kind.
func (i Item) Title() string {
	switch fields := i.Fields.(type) {
	case ResourceFields:
		return fields.Title
	case ProductFields:
		return fields.Title
	case CollectionFields:
		return fields.Name
	case AnswerFields:
		return fields.Excerpt
	case ImageFields:
		return fields.MediaRef
	default:
		return ""
	}
}
