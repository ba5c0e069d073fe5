package sharing

import (
	"sort"
	"time"
)

// MatchRow is a stored match with its own foreign keys.
type MatchRow struct {
	ID           int64
	OwnerID      string
	GameID       int64
	ScoresheetID int64
	LocationID   *int64
	Date         time.Time
	Finished     bool
}

// CanonicalMatch is a resolved match with resolved game, scoresheet and location references.
type CanonicalMatch struct {
	Row        CanonicalRow
	Match      MatchRow
	Game       Ref
	Scoresheet Ref
	Location   *Ref
}

// Ref returns the canonical match reference.
func (match CanonicalMatch) Ref() Ref {
	return match.Row.Ref()
}

// ResolveMatches composes canonical match rows with canonical game, scoresheet and location ids.
// A foreign key the viewer cannot resolve falls back to the match's own id, tagged shared unless
// the viewer owns the match. Matches without a stored row are dropped.
func ResolveMatches(matches []MatchRow, matchRows, games, scoresheets, locations *Resolver) []CanonicalMatch {
	stored := make(map[int64]MatchRow, len(matches))
	for _, match := range matches {
		stored[match.ID] = match
	}

	resolved := make([]CanonicalMatch, 0, len(matchRows.Rows()))
	for _, row := range matchRows.Rows() {
		match, ok := pickStoredMatch(row, stored)
		if !ok {
			continue
		}
		fallback := SourceShared
		if row.Source == SourceOriginal {
			fallback = SourceOriginal
		}

		canonical := CanonicalMatch{
			Row:        row,
			Match:      match,
			Game:       resolveForeignKey(games, match.GameID, fallback),
			Scoresheet: resolveForeignKey(scoresheets, match.ScoresheetID, fallback),
		}
		if match.LocationID != nil {
			location := resolveForeignKey(locations, *match.LocationID, fallback)
			canonical.Location = &location
		}
		resolved = append(resolved, canonical)
	}
	return resolved
}

// pickStoredMatch prefers the canonical id's own row, then the lowest underlying id.
func pickStoredMatch(row CanonicalRow, stored map[int64]MatchRow) (MatchRow, bool) {
	if match, ok := stored[row.CanonicalID]; ok {
		return match, true
	}
	for _, entityID := range row.EntityIDs {
		if match, ok := stored[entityID]; ok {
			return match, true
		}
	}
	return MatchRow{}, false
}

func resolveForeignKey(resolver *Resolver, entityID int64, fallback Source) Ref {
	if row, ok := resolver.Lookup(entityID); ok {
		return row.Ref()
	}
	return Ref{Source: fallback, ID: entityID}
}

// CountDistinctMatches counts distinct canonical matches per key. A match reachable through
// several share paths is a single canonical match and counts once per key.
func CountDistinctMatches[K comparable](matches []CanonicalMatch, keysOf func(CanonicalMatch) []K) map[K]int {
	seen := make(map[K]map[int64]struct{})
	for _, match := range matches {
		for _, key := range keysOf(match) {
			ids, ok := seen[key]
			if !ok {
				ids = make(map[int64]struct{})
				seen[key] = ids
			}
			ids[match.Row.CanonicalID] = struct{}{}
		}
	}
	counts := make(map[K]int, len(seen))
	for key, ids := range seen {
		counts[key] = len(ids)
	}
	return counts
}

// MatchesForGame returns the canonical matches whose resolved game is the given ref, newest first.
func MatchesForGame(matches []CanonicalMatch, game Ref) []CanonicalMatch {
	filtered := make([]CanonicalMatch, 0)
	for _, match := range matches {
		if match.Game.ID == game.ID {
			filtered = append(filtered, match)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if !filtered[i].Match.Date.Equal(filtered[j].Match.Date) {
			return filtered[i].Match.Date.After(filtered[j].Match.Date)
		}
		return filtered[i].Row.CanonicalID < filtered[j].Row.CanonicalID
	})
	return filtered
}
