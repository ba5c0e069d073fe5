package sharing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Source tags how a viewer reaches a canonical entity. Higher values take precedence.
type Source int

const (
	// SourceOriginal marks an entity the viewer owns directly.
	SourceOriginal Source = iota + 1
	// SourceShared marks an entity reached through a share edge without a link.
	SourceShared
	// SourceLinked marks a shared entity merged into the viewer's own equivalent.
	SourceLinked
)

var (
	// ErrInvalidSource indicates an unrecognized source discriminator.
	ErrInvalidSource = errors.New("sharing: invalid source")
	// ErrInvalidPermission indicates an unrecognized permission.
	ErrInvalidPermission = errors.New("sharing: invalid permission")
	// ErrInvalidKind indicates an unrecognized entity kind.
	ErrInvalidKind = errors.New("sharing: invalid kind")
	// ErrInvalidRef indicates a malformed canonical reference.
	ErrInvalidRef = errors.New("sharing: invalid ref")
)

// String returns the wire name of the source.
func (source Source) String() string {
	switch source {
	case SourceOriginal:
		return "original"
	case SourceShared:
		return "shared"
	case SourceLinked:
		return "linked"
	default:
		return "unknown"
	}
}

// MarshalText renders the wire name.
func (source Source) MarshalText() ([]byte, error) {
	if source < SourceOriginal || source > SourceLinked {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSource, int(source))
	}
	return []byte(source.String()), nil
}

// UnmarshalText parses the wire name.
func (source *Source) UnmarshalText(text []byte) error {
	parsed, err := ParseSource(string(text))
	if err != nil {
		return err
	}
	*source = parsed
	return nil
}

// ParseSource parses a wire name.
func ParseSource(rawInput string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(rawInput)) {
	case "original":
		return SourceOriginal, nil
	case "shared":
		return SourceShared, nil
	case "linked":
		return SourceLinked, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSource, rawInput)
	}
}

// Permission is the access level a viewer holds on a canonical entity.
type Permission string

const (
	PermissionView Permission = "view"
	PermissionEdit Permission = "edit"
)

// ParsePermission normalizes user supplied input.
func ParsePermission(rawInput string) (Permission, error) {
	switch Permission(strings.ToLower(strings.TrimSpace(rawInput))) {
	case PermissionView:
		return PermissionView, nil
	case PermissionEdit:
		return PermissionEdit, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPermission, rawInput)
	}
}

// CanEdit reports whether the permission grants mutation.
func (permission Permission) CanEdit() bool {
	return permission == PermissionEdit
}

func (permission Permission) rank() int {
	if permission == PermissionEdit {
		return 2
	}
	return 1
}

// Kind is a shareable entity kind.
type Kind string

const (
	KindGame        Kind = "game"
	KindMatch       Kind = "match"
	KindMatchPlayer Kind = "match_player"
	KindPlayer      Kind = "player"
	KindScoresheet  Kind = "scoresheet"
	KindRound       Kind = "round"
	KindLocation    Kind = "location"
	KindRole        Kind = "role"
)

// Kinds lists every shareable kind.
var Kinds = []Kind{KindGame, KindMatch, KindMatchPlayer, KindPlayer, KindScoresheet, KindRound, KindLocation, KindRole}

// ParseKind normalizes user supplied input, accepting plural and hyphenated forms.
func ParseKind(rawInput string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(rawInput))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	for _, kind := range Kinds {
		if normalized == string(kind) || normalized == pluralKind(kind) {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, rawInput)
}

func pluralKind(kind Kind) string {
	if kind == KindMatch {
		return "matches"
	}
	return string(kind) + "s"
}

// Ref identifies a canonical entity for a viewer: an opaque id plus its source discriminator.
type Ref struct {
	Source Source `json:"source"`
	ID     int64  `json:"id"`
}

// Key renders the ref as "source:id".
func (ref Ref) Key() string {
	return ref.Source.String() + ":" + strconv.FormatInt(ref.ID, 10)
}

// ParseRef parses the "source:id" form; a bare id is treated as original.
func ParseRef(rawInput string) (Ref, error) {
	trimmed := strings.TrimSpace(rawInput)
	sourcePart, idPart, found := strings.Cut(trimmed, ":")
	if !found {
		sourcePart, idPart = "original", trimmed
	}
	source, err := ParseSource(sourcePart)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %v", ErrInvalidRef, err)
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, rawInput)
	}
	return Ref{Source: source, ID: id}, nil
}

// OwnedEntity is one row of an entity table as seen by resolution.
type OwnedEntity struct {
	ID        int64
	OwnerID   string
	DeletedAt *time.Time
}

// ShareEdge grants SharedWithID access to EntityID, optionally linked to the recipient's own entity.
type ShareEdge struct {
	ID             int64
	Kind           Kind
	OwnerID        string
	SharedWithID   string
	EntityID       int64
	LinkedEntityID *int64
	Permission     Permission
	DeletedAt      *time.Time
	// EntityDeletedAt is the tombstone of the shared entity itself.
	EntityDeletedAt *time.Time
}

// CanonicalRow is the single resolved version of an entity for a viewer.
type CanonicalRow struct {
	CanonicalID int64      `json:"id"`
	Source      Source     `json:"source"`
	Permission  Permission `json:"permission"`
	// ShareID is the winning share edge, zero for original rows.
	ShareID int64 `json:"share_id,omitempty"`
	// EntityIDs lists every underlying entity id that resolves to this row, ascending.
	EntityIDs []int64 `json:"entity_ids"`
}

// Ref returns the canonical reference of the row.
func (row CanonicalRow) Ref() Ref {
	return Ref{Source: row.Source, ID: row.CanonicalID}
}
