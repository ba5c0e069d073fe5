package tracker

import (
	"context"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/tabletally/internal/insights"
	"github.com/MarcoPoloResearchLab/tabletally/internal/sharing"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ServiceConfig describes the dependencies of the tracker service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
	// StrictRoundConfig rejects malformed round configs instead of scoring them with the empty config.
	StrictRoundConfig bool
	Confidence        insights.ConfidencePolicy
}

// Service composes store reads with resolution, scoring and insights, and applies share mutations.
type Service struct {
	db                *gorm.DB
	clock             func() time.Time
	idProvider        IDProvider
	logger            *zap.Logger
	strictRoundConfig bool
	confidence        insights.ConfidencePolicy
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:                cfg.Database,
		clock:             clock,
		idProvider:        cfg.IDProvider,
		logger:            logger,
		strictRoundConfig: cfg.StrictRoundConfig,
		confidence:        cfg.Confidence,
	}, nil
}

// EntitySummary is one canonical entity in a viewer's list.
type EntitySummary struct {
	sharing.CanonicalRow
	Name string `json:"name,omitempty"`
	// MatchCount counts distinct canonical matches; set for games, players and locations.
	MatchCount *int `json:"match_count,omitempty"`
}

// ListEntities returns the viewer's canonical rows of one kind in ascending canonical id order.
func (s *Service) ListEntities(ctx context.Context, viewerID string, kind sharing.Kind) ([]EntitySummary, error) {
	viewerID = strings.TrimSpace(viewerID)
	if viewerID == "" {
		return nil, s.reject(opListEntities, "missing_viewer", errMissingViewer)
	}
	if _, err := tableFor(kind); err != nil {
		return nil, s.reject(opListEntities, "invalid_kind", err)
	}

	var summaries []EntitySummary
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resolver, err := loadResolver(tx, viewerID, kind)
		if err != nil {
			return s.fail(opListEntities, "resolve_failed", err, zap.String("viewer_id", viewerID), zap.String("kind", string(kind)))
		}
		rows := resolver.Rows()
		canonicalIDs := make([]int64, 0, len(rows))
		for _, row := range rows {
			canonicalIDs = append(canonicalIDs, row.CanonicalID)
		}
		names, err := loadNames(tx, kind, canonicalIDs)
		if err != nil {
			return s.fail(opListEntities, reasonQuery, err, zap.String("viewer_id", viewerID))
		}

		counts, counted, err := s.matchCounts(tx, viewerID, kind)
		if err != nil {
			return err
		}

		summaries = make([]EntitySummary, 0, len(rows))
		for _, row := range rows {
			summary := EntitySummary{CanonicalRow: row, Name: names[row.CanonicalID]}
			if counted {
				count := counts[row.CanonicalID]
				summary.MatchCount = &count
			}
			summaries = append(summaries, summary)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// matchCounts counts distinct canonical matches per canonical entity id for the countable kinds.
func (s *Service) matchCounts(tx *gorm.DB, viewerID string, kind sharing.Kind) (map[int64]int, bool, error) {
	switch kind {
	case sharing.KindGame, sharing.KindLocation, sharing.KindPlayer:
	default:
		return nil, false, nil
	}

	view, err := loadMatchView(tx, viewerID)
	if err != nil {
		return nil, false, s.fail(opListEntities, "match_view_failed", err, zap.String("viewer_id", viewerID))
	}

	switch kind {
	case sharing.KindGame:
		return sharing.CountDistinctMatches(view.matches, func(match sharing.CanonicalMatch) []int64 {
			return []int64{match.Game.ID}
		}), true, nil
	case sharing.KindLocation:
		return sharing.CountDistinctMatches(view.matches, func(match sharing.CanonicalMatch) []int64 {
			if match.Location == nil {
				return nil
			}
			return []int64{match.Location.ID}
		}), true, nil
	}

	seats, err := loadSeats(tx, viewerID, storedMatchIDs(view.matches), view.players, nil)
	if err != nil {
		return nil, false, s.fail(opListEntities, reasonQuery, err, zap.String("viewer_id", viewerID))
	}
	return sharing.CountDistinctMatches(view.matches, func(match sharing.CanonicalMatch) []int64 {
		ids := make([]int64, 0, len(seats[match.Match.ID]))
		for _, current := range seats[match.Match.ID] {
			ids = append(ids, current.Player.ID)
		}
		return ids
	}), true, nil
}
