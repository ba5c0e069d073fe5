package scoring

import (
	"errors"
	"fmt"
	"strings"
)

// WinCondition decides which final scores win a match.
type WinCondition string

const (
	// WinConditionHighestScore awards the match to the highest final score.
	WinConditionHighestScore WinCondition = "highest_score"
	// WinConditionLowestScore awards the match to the lowest final score.
	WinConditionLowestScore WinCondition = "lowest_score"
	// WinConditionTargetScore awards the match to every final score equal to the target.
	WinConditionTargetScore WinCondition = "target_score"
	// WinConditionManual leaves the winner flags to the user.
	WinConditionManual WinCondition = "manual"
)

// RoundsScore decides how per-round scores fold into a final score.
type RoundsScore string

const (
	// RoundsScoreAggregate sums every round.
	RoundsScoreAggregate RoundsScore = "aggregate"
	// RoundsScoreBestOf keeps the single best round for the win condition.
	RoundsScoreBestOf RoundsScore = "best_of"
)

var (
	// ErrInvalidWinCondition indicates an unrecognized win condition value.
	ErrInvalidWinCondition = errors.New("scoring: invalid win condition")
	// ErrInvalidRoundsScore indicates an unrecognized rounds score value.
	ErrInvalidRoundsScore = errors.New("scoring: invalid rounds score")
)

// ParseWinCondition normalizes stored or user supplied input.
func ParseWinCondition(rawInput string) (WinCondition, error) {
	switch WinCondition(strings.ToLower(strings.TrimSpace(rawInput))) {
	case WinConditionHighestScore:
		return WinConditionHighestScore, nil
	case WinConditionLowestScore:
		return WinConditionLowestScore, nil
	case WinConditionTargetScore:
		return WinConditionTargetScore, nil
	case WinConditionManual:
		return WinConditionManual, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidWinCondition, rawInput)
	}
}

// ParseRoundsScore normalizes stored or user supplied input.
func ParseRoundsScore(rawInput string) (RoundsScore, error) {
	switch RoundsScore(strings.ToLower(strings.TrimSpace(rawInput))) {
	case RoundsScoreAggregate:
		return RoundsScoreAggregate, nil
	case RoundsScoreBestOf:
		return RoundsScoreBestOf, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRoundsScore, rawInput)
	}
}

// Rule is the scoresheet configuration the engine needs.
type Rule struct {
	WinCondition WinCondition
	RoundsScore  RoundsScore
	// TargetScore is only read under WinConditionTargetScore.
	TargetScore int64
}

// Score is a final score, or NoScore when none can be derived.
type Score struct {
	value int64
	valid bool
}

// NoScore marks a player whose final score could not be derived.
var NoScore = Score{}

// NewScore wraps a derived final score.
func NewScore(value int64) Score {
	return Score{value: value, valid: true}
}

// Valid reports whether the score was derived.
func (score Score) Valid() bool {
	return score.valid
}

// Value returns the score and whether it was derived.
func (score Score) Value() (int64, bool) {
	return score.value, score.valid
}

// Int64 returns the score, or 0 for NoScore.
func (score Score) Int64() int64 {
	if !score.valid {
		return 0
	}
	return score.value
}

// Pointer returns nil for NoScore, for persistence and JSON payloads.
func (score Score) Pointer() *int64 {
	if !score.valid {
		return nil
	}
	value := score.value
	return &value
}

// String renders the score for logs.
func (score Score) String() string {
	if !score.valid {
		return "no_score"
	}
	return fmt.Sprintf("%d", score.value)
}

// RoundValue is one round's transformed score for a player. A nil Value means the round was not scored.
type RoundValue struct {
	Order int
	Value *int64
}

// PlayerScore pairs a match player with a final score.
type PlayerScore struct {
	ID    int64
	Score Score
}

// Outcome bundles the engine results for one match.
type Outcome struct {
	Scores     map[int64]Score
	Winners    []int64
	Placements map[int64]int
	// Manual reports that winners and placements come from stored flags.
	Manual bool
}

// IsWinner reports whether the match player is in the winner set.
func (outcome Outcome) IsWinner(id int64) bool {
	for _, winner := range outcome.Winners {
		if winner == id {
			return true
		}
	}
	return false
}
