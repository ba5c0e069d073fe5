package insights

import (
	"sort"
	"time"

	"github.com/MarcoPoloResearchLab/tabletally/internal/sharing"
)

type lineupEntry struct {
	members  []sharing.Ref
	matchIDs []int64
	dates    []time.Time
}

// lineupTally groups matches by their exact participant set; subsets never match.
type lineupTally struct {
	entries map[string]*lineupEntry
}

func newLineupTally() *lineupTally {
	return &lineupTally{entries: map[string]*lineupEntry{}}
}

func (tally *lineupTally) observe(current observation) {
	key := setKey(current.refs)
	entry, ok := tally.entries[key]
	if !ok {
		entry = &lineupEntry{members: current.refs}
		tally.entries[key] = entry
	}
	entry.matchIDs = append(entry.matchIDs, current.match.ID)
	entry.dates = append(entry.dates, current.match.Date)
}

// result sorts lineups by match count desc, most recent play desc, then member names.
func (tally *lineupTally) result(names directory) []Lineup {
	type keyed struct {
		sortKey string
		lineup  Lineup
	}
	built := make([]keyed, 0, len(tally.entries))
	for _, entry := range tally.entries {
		// Observations arrive in date order, so the first and last dates bound the lineup.
		lineup := Lineup{
			Players:     names.summaries(entry.members),
			MatchCount:  len(entry.matchIDs),
			MatchIDs:    entry.matchIDs,
			Dates:       entry.dates,
			FirstPlayed: entry.dates[0],
			LastPlayed:  entry.dates[len(entry.dates)-1],
		}
		built = append(built, keyed{sortKey: names.sortKey(entry.members), lineup: lineup})
	}
	sort.Slice(built, func(i, j int) bool {
		left, right := built[i].lineup, built[j].lineup
		if left.MatchCount != right.MatchCount {
			return left.MatchCount > right.MatchCount
		}
		if !left.LastPlayed.Equal(right.LastPlayed) {
			return left.LastPlayed.After(right.LastPlayed)
		}
		return built[i].sortKey < built[j].sortKey
	})

	lineups := make([]Lineup, 0, len(built))
	for _, item := range built {
		lineups = append(lineups, item.lineup)
	}
	return lineups
}
