package tracker

import (
	"context"
	"strings"

	"github.com/MarcoPoloResearchLab/tabletally/internal/insights"
	"github.com/MarcoPoloResearchLab/tabletally/internal/sharing"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GameInsights builds the insights report over the viewer's canonical matches of one canonical game.
// Matches recorded against any game row that resolves to gameID are included.
func (s *Service) GameInsights(ctx context.Context, viewerID string, gameID int64, focus *sharing.Ref) (insights.Report, error) {
	viewerID = strings.TrimSpace(viewerID)
	if viewerID == "" {
		return insights.Report{}, s.reject(opGameInsights, "missing_viewer", errMissingViewer)
	}

	var report insights.Report
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		view, err := loadMatchView(tx, viewerID)
		if err != nil {
			return s.fail(opGameInsights, "match_view_failed", err, zap.String("viewer_id", viewerID))
		}
		game, ok := view.games.Canonical(gameID)
		if !ok {
			return s.reject(opGameInsights, reasonNotVisible, ErrNotVisible,
				zap.String("viewer_id", viewerID),
				zap.Int64("game_id", gameID))
		}

		roleResolver, err := loadResolver(tx, viewerID, sharing.KindRole)
		if err != nil {
			return s.fail(opGameInsights, "resolve_failed", err, zap.String("kind", string(sharing.KindRole)))
		}
		roles, err := gameRoles(tx, game, roleResolver)
		if err != nil {
			return s.fail(opGameInsights, reasonQuery, err, zap.Int64("game_id", gameID))
		}
		roleNames := make(map[sharing.Ref]string, len(roles))
		for _, role := range roles {
			roleNames[role.Ref] = role.Name
		}

		matches := sharing.MatchesForGame(view.matches, game.Ref())
		seats, err := loadSeats(tx, viewerID, storedMatchIDs(matches), view.players, roleResolver)
		if err != nil {
			return s.fail(opGameInsights, reasonQuery, err, zap.Int64("game_id", gameID))
		}

		history := make([]insights.Match, 0, len(matches))
		for _, match := range matches {
			history = append(history, toInsightsMatch(match, seats[match.Match.ID], roleNames))
		}

		report = insights.Compute(history, insights.Options{
			FocusPlayer: focus,
			Roles:       roles,
			Confidence:  s.confidence,
		})
		return nil
	})
	if err != nil {
		return insights.Report{}, err
	}
	return report, nil
}

// gameRoles returns the live roles defined on any game row behind the canonical game.
// Roles travel with the game like a match's scoresheet does: seeing the game is enough, and a role
// without its own share resolves to a shared placeholder.
func gameRoles(tx *gorm.DB, game sharing.CanonicalRow, resolver *sharing.Resolver) ([]insights.Role, error) {
	var stored []Role
	if err := tx.Where("game_id IN ?", game.EntityIDs).Order("id ASC").Find(&stored).Error; err != nil {
		return nil, err
	}
	canonicalIDs := make([]int64, 0, len(stored))
	refs := make([]sharing.Ref, 0, len(stored))
	seen := make(map[sharing.Ref]struct{}, len(stored))
	for _, role := range stored {
		ref := roleRef(resolver, role.ID)
		if _, duplicate := seen[ref]; duplicate {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
		canonicalIDs = append(canonicalIDs, ref.ID)
	}
	names, err := loadNames(tx, sharing.KindRole, canonicalIDs)
	if err != nil {
		return nil, err
	}
	roles := make([]insights.Role, 0, len(refs))
	for _, ref := range refs {
		roles = append(roles, insights.Role{Ref: ref, Name: names[ref.ID]})
	}
	return roles, nil
}

// roleRef resolves a stored role id, falling back to the unlinked shared placeholder.
func roleRef(resolver *sharing.Resolver, roleID int64) sharing.Ref {
	if row, ok := resolver.Lookup(roleID); ok {
		return row.Ref()
	}
	return sharing.Ref{Source: sharing.SourceShared, ID: roleID}
}

func toInsightsMatch(match sharing.CanonicalMatch, seats []seat, roleNames map[sharing.Ref]string) insights.Match {
	converted := insights.Match{
		ID:       match.Row.CanonicalID,
		Date:     match.Match.Date,
		Finished: match.Match.Finished,
		Players:  make([]insights.Participant, 0, len(seats)),
	}
	for _, current := range seats {
		participant := insights.Participant{
			Player:    current.Player,
			Name:      current.Name,
			TeamID:    current.TeamID,
			TeamName:  current.TeamName,
			Placement: current.Placement,
			Winner:    current.Winner != nil && *current.Winner,
			Score:     current.Score,
		}
		for _, role := range current.Roles {
			name, ok := roleNames[role]
			if !ok {
				continue
			}
			participant.Roles = append(participant.Roles, insights.Role{Ref: role, Name: name})
		}
		converted.Players = append(converted.Players, participant)
	}
	return converted
}
