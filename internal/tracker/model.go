package tracker

import (
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/tabletally/internal/sharing"
	"gorm.io/gorm"
)

// Game is a board game title owned by one user.
type Game struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement"`
	OwnerID   string         `gorm:"column:owner_id;size:190;not null;index"`
	Name      string         `gorm:"column:name;size:190;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (Game) TableName() string {
	return "games"
}

// Player is a person a user records matches for.
type Player struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement"`
	OwnerID   string         `gorm:"column:owner_id;size:190;not null;index"`
	Name      string         `gorm:"column:name;size:190;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (Player) TableName() string {
	return "players"
}

// Location is where a match was played.
type Location struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement"`
	OwnerID   string         `gorm:"column:owner_id;size:190;not null;index"`
	Name      string         `gorm:"column:name;size:190;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (Location) TableName() string {
	return "locations"
}

// Scoresheet holds the aggregation rule and win condition of a game variant.
type Scoresheet struct {
	ID           int64          `gorm:"column:id;primaryKey;autoIncrement"`
	OwnerID      string         `gorm:"column:owner_id;size:190;not null;index"`
	GameID       int64          `gorm:"column:game_id;not null;index"`
	Name         string         `gorm:"column:name;size:190;not null"`
	WinCondition string         `gorm:"column:win_condition;size:32;not null"`
	RoundsScore  string         `gorm:"column:rounds_score;size:32;not null"`
	TargetScore  int64          `gorm:"column:target_score;not null;default:0"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt    gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (Scoresheet) TableName() string {
	return "scoresheets"
}

// Round is one scoring round of a scoresheet. ConfigJSON is the kind-specific payload.
type Round struct {
	ID           int64          `gorm:"column:id;primaryKey;autoIncrement"`
	OwnerID      string         `gorm:"column:owner_id;size:190;not null;index"`
	ScoresheetID int64          `gorm:"column:scoresheet_id;not null;index:idx_rounds_sheet_order,priority:1"`
	Name         string         `gorm:"column:name;size:190;not null"`
	Kind         string         `gorm:"column:kind;size:32;not null"`
	ConfigJSON   string         `gorm:"column:config_json;type:text;not null;default:''"`
	Order        int            `gorm:"column:round_order;not null;index:idx_rounds_sheet_order,priority:2"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt    gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (Round) TableName() string {
	return "rounds"
}

// Role is a game-defined role a match player may hold.
type Role struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement"`
	OwnerID   string         `gorm:"column:owner_id;size:190;not null;index"`
	GameID    int64          `gorm:"column:game_id;not null;index"`
	Name      string         `gorm:"column:name;size:190;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (Role) TableName() string {
	return "roles"
}

// Match is one play of a game under a scoresheet.
type Match struct {
	ID           int64          `gorm:"column:id;primaryKey;autoIncrement"`
	OwnerID      string         `gorm:"column:owner_id;size:190;not null;index"`
	GameID       int64          `gorm:"column:game_id;not null;index"`
	ScoresheetID int64          `gorm:"column:scoresheet_id;not null"`
	LocationID   *int64         `gorm:"column:location_id"`
	Date         time.Time      `gorm:"column:date;not null;index"`
	Finished     bool           `gorm:"column:finished;not null;default:false"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt    gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (Match) TableName() string {
	return "matches"
}

// Team groups match players within one match.
type Team struct {
	ID      int64  `gorm:"column:id;primaryKey;autoIncrement"`
	MatchID int64  `gorm:"column:match_id;not null;index"`
	Name    string `gorm:"column:name;size:190;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (Team) TableName() string {
	return "teams"
}

// MatchPlayer is a seat in a match. Score, Placement and Winner are written when the match is finalized,
// or entered directly for manual scoresheets.
type MatchPlayer struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement"`
	OwnerID   string         `gorm:"column:owner_id;size:190;not null;index"`
	MatchID   int64          `gorm:"column:match_id;not null;index"`
	PlayerID  int64          `gorm:"column:player_id;not null;index"`
	TeamID    *int64         `gorm:"column:team_id"`
	Score     *int64         `gorm:"column:score"`
	Placement *int           `gorm:"column:placement"`
	Winner    *bool          `gorm:"column:winner"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (MatchPlayer) TableName() string {
	return "match_players"
}

// RoundScore is the raw value a match player entered for a round.
type RoundScore struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement"`
	MatchPlayerID int64  `gorm:"column:match_player_id;not null;uniqueIndex:idx_round_scores_player_round,priority:1"`
	RoundID       int64  `gorm:"column:round_id;not null;uniqueIndex:idx_round_scores_player_round,priority:2"`
	Value         *int64 `gorm:"column:value"`
}

// TableName provides the explicit table binding for GORM.
func (RoundScore) TableName() string {
	return "round_scores"
}

// MatchPlayerRole records a role held by a match player.
type MatchPlayerRole struct {
	MatchPlayerID int64 `gorm:"column:match_player_id;primaryKey"`
	RoleID        int64 `gorm:"column:role_id;primaryKey;index"`
}

// TableName provides the explicit table binding for GORM.
func (MatchPlayerRole) TableName() string {
	return "match_player_roles"
}

// Share is a share edge from an owner to a recipient. A recipient holds at most one edge per entity;
// revoking tombstones the edge and sharing again restores it.
type Share struct {
	ID             int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Kind           string         `gorm:"column:kind;size:32;not null;uniqueIndex:idx_share_edges_recipient_entity,priority:1"`
	OwnerID        string         `gorm:"column:owner_id;size:190;not null;index"`
	SharedWithID   string         `gorm:"column:shared_with_id;size:190;not null;uniqueIndex:idx_share_edges_recipient_entity,priority:2"`
	EntityID       int64          `gorm:"column:entity_id;not null;uniqueIndex:idx_share_edges_recipient_entity,priority:3"`
	LinkedEntityID *int64         `gorm:"column:linked_entity_id"`
	Permission     string         `gorm:"column:permission;size:16;not null"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt      gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (Share) TableName() string {
	return "share_edges"
}

// ShareEvent is the append-only audit trail of share mutations.
type ShareEvent struct {
	EventID          string `gorm:"column:event_id;primaryKey;size:190;not null"`
	ShareID          int64  `gorm:"column:share_id;not null;index:idx_share_events_share_time,priority:1"`
	Kind             string `gorm:"column:kind;size:32;not null"`
	ActorID          string `gorm:"column:actor_id;size:190;not null"`
	Action           string `gorm:"column:action;size:32;not null"`
	LinkedEntityID   *int64 `gorm:"column:linked_entity_id"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null;index:idx_share_events_share_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (ShareEvent) TableName() string {
	return "share_events"
}

// Models lists every table the tracker persists, for schema migration.
func Models() []interface{} {
	return []interface{}{
		&Game{},
		&Player{},
		&Location{},
		&Scoresheet{},
		&Round{},
		&Role{},
		&Match{},
		&Team{},
		&MatchPlayer{},
		&RoundScore{},
		&MatchPlayerRole{},
		&Share{},
		&ShareEvent{},
	}
}

var kindTables = map[sharing.Kind]string{
	sharing.KindGame:        Game{}.TableName(),
	sharing.KindPlayer:      Player{}.TableName(),
	sharing.KindLocation:    Location{}.TableName(),
	sharing.KindScoresheet:  Scoresheet{}.TableName(),
	sharing.KindRound:       Round{}.TableName(),
	sharing.KindRole:        Role{}.TableName(),
	sharing.KindMatch:       Match{}.TableName(),
	sharing.KindMatchPlayer: MatchPlayer{}.TableName(),
}

func tableFor(kind sharing.Kind) (string, error) {
	table, ok := kindTables[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", sharing.ErrInvalidKind, kind)
	}
	return table, nil
}

// hasName reports whether the kind's table carries a display name.
func hasName(kind sharing.Kind) bool {
	switch kind {
	case sharing.KindMatch, sharing.KindMatchPlayer:
		return false
	default:
		return true
	}
}

func newEntityModel(kind sharing.Kind) (interface{}, error) {
	switch kind {
	case sharing.KindGame:
		return &Game{}, nil
	case sharing.KindPlayer:
		return &Player{}, nil
	case sharing.KindLocation:
		return &Location{}, nil
	case sharing.KindScoresheet:
		return &Scoresheet{}, nil
	case sharing.KindRound:
		return &Round{}, nil
	case sharing.KindRole:
		return &Role{}, nil
	case sharing.KindMatch:
		return &Match{}, nil
	case sharing.KindMatchPlayer:
		return &MatchPlayer{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", sharing.ErrInvalidKind, kind)
	}
}
