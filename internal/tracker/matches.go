package tracker

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/tabletally/internal/scoring"
	"github.com/MarcoPoloResearchLab/tabletally/internal/sharing"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeatResult is one match player's computed or stored outcome.
type SeatResult struct {
	MatchPlayerID int64       `json:"match_player_id"`
	Player        sharing.Ref `json:"player"`
	Name          string      `json:"name"`
	TeamID        *int64      `json:"team_id,omitempty"`
	Score         *int64      `json:"score"`
	Placement     *int        `json:"placement"`
	Winner        bool        `json:"winner"`
}

// MatchResult is the outcome of one canonical match as seen by the viewer.
type MatchResult struct {
	Match        sharing.Ref          `json:"match"`
	Game         sharing.Ref          `json:"game"`
	Permission   sharing.Permission   `json:"permission"`
	WinCondition scoring.WinCondition `json:"win_condition"`
	RoundsScore  scoring.RoundsScore  `json:"rounds_score"`
	TargetScore  *int64               `json:"target_score,omitempty"`
	// Manual reports that winners and placements are the stored flags.
	Manual   bool         `json:"manual"`
	Finished bool         `json:"finished"`
	Seats    []SeatResult `json:"seats"`
}

// MatchOutcome computes final scores, winners and placements for a visible match without persisting them.
func (s *Service) MatchOutcome(ctx context.Context, viewerID string, matchID int64) (MatchResult, error) {
	viewerID = strings.TrimSpace(viewerID)
	if viewerID == "" {
		return MatchResult{}, s.reject(opMatchOutcome, "missing_viewer", errMissingViewer)
	}

	var result MatchResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		view, match, err := s.visibleMatch(tx, opMatchOutcome, viewerID, matchID)
		if err != nil {
			return err
		}
		seats, err := loadSeats(tx, viewerID, []int64{match.Match.ID}, view.players, nil)
		if err != nil {
			return s.fail(opMatchOutcome, reasonQuery, err, zap.Int64("match_id", matchID))
		}
		result, err = s.evaluate(tx, opMatchOutcome, match, seats[match.Match.ID])
		return err
	})
	if err != nil {
		return MatchResult{}, err
	}
	return result, nil
}

// FinalizeMatch computes the outcome, writes score, placement and winner to every seat, and marks the match
// finished. Manual scoresheets keep the stored winner flags. The viewer needs edit on the canonical match.
func (s *Service) FinalizeMatch(ctx context.Context, viewerID string, matchID int64) (MatchResult, error) {
	viewerID = strings.TrimSpace(viewerID)
	if viewerID == "" {
		return MatchResult{}, s.reject(opFinalizeMatch, "missing_viewer", errMissingViewer)
	}

	var result MatchResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		view, match, err := s.visibleMatch(tx, opFinalizeMatch, viewerID, matchID)
		if err != nil {
			return err
		}
		if !match.Row.Permission.CanEdit() {
			return s.reject(opFinalizeMatch, "permission_denied", ErrPermissionDenied, zap.Int64("match_id", matchID))
		}

		var locked Match
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", match.Match.ID).
			Take(&locked).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return s.reject(opFinalizeMatch, reasonNotVisible, ErrNotVisible, zap.Int64("match_id", matchID))
			}
			return s.fail(opFinalizeMatch, "match_lock_failed", err, zap.Int64("match_id", matchID))
		}

		seats, err := loadSeats(tx, viewerID, []int64{locked.ID}, view.players, nil)
		if err != nil {
			return s.fail(opFinalizeMatch, reasonQuery, err, zap.Int64("match_id", matchID))
		}
		result, err = s.evaluate(tx, opFinalizeMatch, match, seats[locked.ID])
		if err != nil {
			return err
		}

		if !result.Manual {
			for _, seatResult := range result.Seats {
				winner := seatResult.Winner
				updates := map[string]interface{}{
					"score":     seatResult.Score,
					"placement": seatResult.Placement,
					"winner":    &winner,
				}
				if err := tx.Model(&MatchPlayer{}).Where("id = ?", seatResult.MatchPlayerID).Updates(updates).Error; err != nil {
					return s.fail(opFinalizeMatch, "seat_update_failed", err,
						zap.Int64("match_id", matchID),
						zap.Int64("match_player_id", seatResult.MatchPlayerID))
				}
			}
		}
		if err := tx.Model(&Match{}).Where("id = ?", locked.ID).Update("finished", true).Error; err != nil {
			return s.fail(opFinalizeMatch, "match_update_failed", err, zap.Int64("match_id", matchID))
		}
		result.Finished = true
		return nil
	})
	if err != nil {
		return MatchResult{}, err
	}
	return result, nil
}

func (s *Service) visibleMatch(tx *gorm.DB, operation, viewerID string, matchID int64) (matchView, sharing.CanonicalMatch, error) {
	view, err := loadMatchView(tx, viewerID)
	if err != nil {
		return matchView{}, sharing.CanonicalMatch{}, s.fail(operation, "match_view_failed", err, zap.String("viewer_id", viewerID))
	}
	match, ok := view.find(matchID)
	if !ok {
		return matchView{}, sharing.CanonicalMatch{}, s.reject(operation, reasonNotVisible, ErrNotVisible,
			zap.String("viewer_id", viewerID),
			zap.Int64("match_id", matchID))
	}
	return view, match, nil
}

// evaluate loads the scoresheet, rounds and round scores of a match and runs the scoring engine.
func (s *Service) evaluate(tx *gorm.DB, operation string, match sharing.CanonicalMatch, seats []seat) (MatchResult, error) {
	result := MatchResult{
		Match:      match.Ref(),
		Game:       match.Game,
		Permission: match.Row.Permission,
		Finished:   match.Match.Finished,
		Seats:      make([]SeatResult, 0, len(seats)),
	}

	// Tombstoned scoresheets still score the matches recorded under them.
	var sheet Scoresheet
	if err := tx.Unscoped().Where("id = ?", match.Match.ScoresheetID).Take(&sheet).Error; err != nil {
		return MatchResult{}, s.fail(operation, "scoresheet_missing", err, zap.Int64("scoresheet_id", match.Match.ScoresheetID))
	}
	rule, err := s.rule(operation, sheet)
	if err != nil {
		return MatchResult{}, err
	}
	result.WinCondition = rule.WinCondition
	result.RoundsScore = rule.RoundsScore
	if rule.WinCondition == scoring.WinConditionTargetScore {
		target := rule.TargetScore
		result.TargetScore = &target
	}

	var rounds []Round
	if err := tx.Where("scoresheet_id = ?", sheet.ID).Order("round_order ASC, id ASC").Find(&rounds).Error; err != nil {
		return MatchResult{}, s.fail(operation, reasonQuery, err, zap.Int64("scoresheet_id", sheet.ID))
	}
	transforms := make([]roundTransform, 0, len(rounds))
	for _, round := range rounds {
		transform, err := s.roundTransform(operation, round)
		if err != nil {
			return MatchResult{}, err
		}
		transforms = append(transforms, transform)
	}

	seatIDs := make([]int64, 0, len(seats))
	for _, current := range seats {
		seatIDs = append(seatIDs, current.ID)
	}
	raw := map[int64]map[int64]*int64{}
	if len(seatIDs) > 0 {
		var scores []RoundScore
		if err := tx.Where("match_player_id IN ?", seatIDs).Find(&scores).Error; err != nil {
			return MatchResult{}, s.fail(operation, reasonQuery, err, zap.Int64("match_id", match.Match.ID))
		}
		for _, score := range scores {
			if raw[score.MatchPlayerID] == nil {
				raw[score.MatchPlayerID] = map[int64]*int64{}
			}
			raw[score.MatchPlayerID][score.RoundID] = score.Value
		}
	}

	values := make(map[int64][]scoring.RoundValue, len(seats))
	for _, current := range seats {
		playerRounds := make([]scoring.RoundValue, 0, len(transforms))
		for _, transform := range transforms {
			playerRounds = append(playerRounds, scoring.RoundValue{
				Order: transform.order,
				Value: scoring.RoundScore(transform.kind, transform.config, raw[current.ID][transform.roundID]),
			})
		}
		values[current.ID] = playerRounds
	}
	outcome := scoring.Evaluate(values, rule)
	result.Manual = outcome.Manual

	for _, current := range seats {
		seatResult := SeatResult{
			MatchPlayerID: current.ID,
			Player:        current.Player,
			Name:          current.Name,
			TeamID:        current.TeamID,
		}
		if outcome.Manual {
			seatResult.Score = current.Score
			seatResult.Placement = current.Placement
			seatResult.Winner = current.Winner != nil && *current.Winner
		} else {
			seatResult.Score = outcome.Scores[current.ID].Pointer()
			if placement, ok := outcome.Placements[current.ID]; ok {
				placed := placement
				seatResult.Placement = &placed
			}
			seatResult.Winner = outcome.IsWinner(current.ID)
		}
		result.Seats = append(result.Seats, seatResult)
	}
	return result, nil
}

// rule reads the scoresheet's scoring rule. An unrecognized value is kept as is so the engine yields
// no score and no winners, unless strict config is on.
func (s *Service) rule(operation string, sheet Scoresheet) (scoring.Rule, error) {
	rule := scoring.Rule{
		WinCondition: scoring.WinCondition(sheet.WinCondition),
		RoundsScore:  scoring.RoundsScore(sheet.RoundsScore),
		TargetScore:  sheet.TargetScore,
	}
	condition, conditionErr := scoring.ParseWinCondition(sheet.WinCondition)
	if conditionErr == nil {
		rule.WinCondition = condition
	}
	roundsScore, roundsErr := scoring.ParseRoundsScore(sheet.RoundsScore)
	if roundsErr == nil {
		rule.RoundsScore = roundsScore
	}
	if err := errors.Join(conditionErr, roundsErr); err != nil {
		if s.strictRoundConfig {
			return scoring.Rule{}, s.fail(operation, "invalid_scoresheet", err, zap.Int64("scoresheet_id", sheet.ID))
		}
		s.loggerOrDefault().Warn("unrecognized scoring rule",
			zap.String("operation", operation),
			zap.Int64("scoresheet_id", sheet.ID),
			zap.Error(err))
	}
	return rule, nil
}

type roundTransform struct {
	roundID int64
	order   int
	kind    scoring.RoundKind
	config  scoring.RoundConfig
}

// roundTransform parses a round's kind and config. Outside strict mode a malformed round falls back
// to a numeric round with the empty config.
func (s *Service) roundTransform(operation string, round Round) (roundTransform, error) {
	transform := roundTransform{roundID: round.ID, order: round.Order, kind: scoring.RoundKindNumeric}
	kind, err := scoring.ParseRoundKind(round.Kind)
	if err == nil {
		transform.kind = kind
		transform.config, err = scoring.ParseRoundConfig(kind, []byte(round.ConfigJSON), true)
	}
	if err == nil {
		return transform, nil
	}
	if s.strictRoundConfig {
		return roundTransform{}, s.fail(operation, "invalid_round_config", err, zap.Int64("round_id", round.ID))
	}
	s.loggerOrDefault().Warn("round config replaced by empty config",
		zap.String("operation", operation),
		zap.Int64("round_id", round.ID),
		zap.Error(err))
	transform.config = scoring.RoundConfig{}
	return transform, nil
}
