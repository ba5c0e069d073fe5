package insights

import (
	"time"

	"github.com/MarcoPoloResearchLab/tabletally/internal/sharing"
)

// Match is one canonically resolved match of a single game.
type Match struct {
	ID       int64
	Date     time.Time
	Finished bool
	Players  []Participant
}

// Participant is a match player after canonical player resolution.
type Participant struct {
	Player   sharing.Ref
	Name     string
	TeamID   *int64
	TeamName string
	// Placement is 1 for the best finish; nil when unknown.
	Placement *int
	Winner    bool
	Score     *int64
	Roles     []Role
}

// Role is a role defined by the game.
type Role struct {
	Ref  sharing.Ref `json:"ref"`
	Name string      `json:"name"`
}

// Confidence labels how much data backs a statistic.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ConfidencePolicy maps sample counts to confidence labels: below Medium is low,
// below High is medium, and High or more is high.
type ConfidencePolicy struct {
	Medium int
	High   int
}

// DefaultConfidencePolicy is low below 5 matches, medium for 5 to 14, high from 15.
var DefaultConfidencePolicy = ConfidencePolicy{Medium: 5, High: 15}

// Label returns the confidence for a sample count.
func (policy ConfidencePolicy) Label(samples int) Confidence {
	normalized := policy.normalized()
	switch {
	case samples >= normalized.High:
		return ConfidenceHigh
	case samples >= normalized.Medium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func (policy ConfidencePolicy) normalized() ConfidencePolicy {
	if policy.Medium <= 0 || policy.High <= policy.Medium {
		return DefaultConfidencePolicy
	}
	return policy
}

const defaultMinTeamCoreMatches = 2

// Options tunes a report.
type Options struct {
	// FocusPlayer enables the per-player distribution, rivals and scopes role effects to that player.
	FocusPlayer *sharing.Ref
	// Roles lists the roles the game defines; role analytics are produced only when non-empty.
	Roles      []Role
	Confidence ConfidencePolicy
	// MinTeamCoreMatches is the match floor for the best team core headline; defaults to 2.
	MinTeamCoreMatches int
}

// PlayerSummary names a canonical player.
type PlayerSummary struct {
	Ref  sharing.Ref `json:"ref"`
	Name string      `json:"name"`
}

// Report is the insights payload for one game.
type Report struct {
	Summary      Summary                 `json:"summary"`
	MatchCount   int                     `json:"match_count"`
	Distribution PlayerCountDistribution `json:"distribution"`
	Cores        Cores                   `json:"cores"`
	Rivals       []Rival                 `json:"rivals"`
	Lineups      []Lineup                `json:"lineups"`
	Teams        *TeamInsights           `json:"teams,omitempty"`
	Roles        *RoleInsights           `json:"roles,omitempty"`
}

// Summary holds the headline values of a report; every field is nil when there is no data.
type Summary struct {
	MostCommonPlayerCount *int      `json:"most_common_player_count"`
	TopRival              *Rival    `json:"top_rival"`
	TopPair               *Core     `json:"top_pair"`
	TopTrio               *Core     `json:"top_trio"`
	TopGroup              *Core     `json:"top_group"`
	BestTeamCore          *TeamCore `json:"best_team_core"`
}

// PlayerCountDistribution is the histogram of matches by participant count.
type PlayerCountDistribution struct {
	TotalMatches int                 `json:"total_matches"`
	Buckets      []PlayerCountBucket `json:"buckets"`
	Player       *PlayerDistribution `json:"player,omitempty"`
}

// PlayerCountBucket is one histogram bucket; Share is a fraction of all matches.
type PlayerCountBucket struct {
	PlayerCount int      `json:"player_count"`
	MatchCount  int      `json:"match_count"`
	Share       *float64 `json:"share"`
}

// PlayerDistribution restricts the histogram to matches containing one player.
type PlayerDistribution struct {
	Player       PlayerSummary  `json:"player"`
	TotalMatches int            `json:"total_matches"`
	Buckets      []PlayerBucket `json:"buckets"`
}

// PlayerBucket is one bucket of a player's histogram with the player's win rate in it.
type PlayerBucket struct {
	PlayerCount int      `json:"player_count"`
	MatchCount  int      `json:"match_count"`
	Wins        int      `json:"wins"`
	WinRate     *float64 `json:"win_rate"`
	Share       *float64 `json:"share"`
}

// Cores groups recurring player sets by size.
type Cores struct {
	Pairs    []Core `json:"pairs"`
	Trios    []Core `json:"trios"`
	Quartets []Core `json:"quartets"`
}

// Core is a player set that co-occurred in at least one finished match.
type Core struct {
	Players    []PlayerSummary `json:"players"`
	MatchCount int             `json:"match_count"`
	// Stability is the fraction of the core's matches without guests.
	Stability  *float64       `json:"stability"`
	LastPlayed time.Time      `json:"last_played"`
	Confidence Confidence     `json:"confidence"`
	Ranking    []CoreMember   `json:"ranking"`
	Pairwise   []PairwiseStat `json:"pairwise"`
}

// CoreMember is one player's record inside a core's matches.
type CoreMember struct {
	Rank             int           `json:"rank"`
	Player           PlayerSummary `json:"player"`
	Wins             int           `json:"wins"`
	Losses           int           `json:"losses"`
	WinRate          *float64      `json:"win_rate"`
	AveragePlacement *float64      `json:"average_placement"`
	// TopFinishes counts matches where the player placed best among the core.
	TopFinishes int `json:"top_finishes"`
}

// PairwiseStat compares two players over the matches where both have a placement.
type PairwiseStat struct {
	First  PlayerSummary `json:"first"`
	Second PlayerSummary `json:"second"`
	// ComparableMatches counts matches where both players were placed.
	ComparableMatches int        `json:"comparable_matches"`
	FirstAboveRate    *float64   `json:"first_above_rate"`
	SecondAboveRate   *float64   `json:"second_above_rate"`
	TieRate           *float64   `json:"tie_rate"`
	Confidence        Confidence `json:"confidence"`
}

// Rival is the focus player's head-to-head record against one opponent.
type Rival struct {
	Opponent          PlayerSummary `json:"opponent"`
	SharedMatches     int           `json:"shared_matches"`
	FocusWins         int           `json:"focus_wins"`
	OpponentWins      int           `json:"opponent_wins"`
	ComparableMatches int           `json:"comparable_matches"`
	FocusAboveRate    *float64      `json:"focus_above_rate"`
	OpponentAboveRate *float64      `json:"opponent_above_rate"`
	Confidence        Confidence    `json:"confidence"`
}

// Lineup is an exact participant set.
type Lineup struct {
	Players     []PlayerSummary `json:"players"`
	MatchCount  int             `json:"match_count"`
	MatchIDs    []int64         `json:"match_ids"`
	Dates       []time.Time     `json:"dates"`
	FirstPlayed time.Time       `json:"first_played"`
	LastPlayed  time.Time       `json:"last_played"`
}

// TeamInsights is produced only for games whose matches use teams.
type TeamInsights struct {
	Teams    []TeamStat `json:"teams"`
	Pairs    []TeamCore `json:"pairs"`
	Trios    []TeamCore `json:"trios"`
	Quartets []TeamCore `json:"quartets"`
}

// TeamStat aggregates teams by name.
type TeamStat struct {
	Name       string   `json:"name"`
	MatchCount int      `json:"match_count"`
	Wins       int      `json:"wins"`
	WinRate    *float64 `json:"win_rate"`
}

// TeamCore is a player set that shared a team.
type TeamCore struct {
	Players    []PlayerSummary `json:"players"`
	MatchCount int             `json:"match_count"`
	Wins       int             `json:"wins"`
	WinRate    *float64        `json:"win_rate"`
	// Stability is the fraction of the core's team appearances where the team was exactly the core.
	Stability  *float64   `json:"stability"`
	Confidence Confidence `json:"confidence"`
}

// RoleInsights is produced only for games that define roles.
type RoleInsights struct {
	Roles        []RoleStat  `json:"roles"`
	Combinations []RoleCombo `json:"combinations"`
}

// RoleStat is one role's record and its presence effects.
type RoleStat struct {
	Role        Role        `json:"role"`
	MatchCount  int         `json:"match_count"`
	Appearances int         `json:"appearances"`
	Wins        int         `json:"wins"`
	WinRate     *float64    `json:"win_rate"`
	Effects     RoleEffects `json:"effects"`
}

// RoleEffects are win rates of the subject player(s) by where the role sits in the match.
type RoleEffects struct {
	Self      *Effect `json:"self"`
	Teammates *Effect `json:"teammates"`
	Opponents *Effect `json:"opponents"`
	Absent    *Effect `json:"absent"`
}

// Effect is a win rate over a number of player appearances.
type Effect struct {
	WinRate    float64 `json:"win_rate"`
	MatchCount int     `json:"match_count"`
}

// RoleCombo is a pair of roles present in the same match.
type RoleCombo struct {
	Roles             [2]Role    `json:"roles"`
	MatchCount        int        `json:"match_count"`
	SameHolderCount   int        `json:"same_holder_count"`
	SameHolderWins    int        `json:"same_holder_wins"`
	SameHolderWinRate *float64   `json:"same_holder_win_rate"`
	Confidence        Confidence `json:"confidence"`
}
