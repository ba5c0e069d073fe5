package insights

import (
	"math"
	"sort"
	"time"

	"github.com/MarcoPoloResearchLab/tabletally/internal/sharing"
)

type memberTally struct {
	wins         int
	losses       int
	placementSum int
	placed       int
	topFinishes  int
}

type pairTally struct {
	comparable  int
	firstAbove  int
	secondAbove int
	ties        int
}

type coreEntry struct {
	members    []sharing.Ref
	matches    int
	exact      int
	lastPlayed time.Time
	stats      []memberTally
	// pairs is indexed by pairIndex over members.
	pairs []pairTally
}

// coreTally counts every 2, 3 and 4 player subset of each finished match.
type coreTally struct {
	bySize map[int]map[string]*coreEntry
}

func newCoreTally() *coreTally {
	tally := &coreTally{bySize: make(map[int]map[string]*coreEntry, maxCoreSize-minCoreSize+1)}
	for size := minCoreSize; size <= maxCoreSize; size++ {
		tally.bySize[size] = map[string]*coreEntry{}
	}
	return tally
}

func (tally *coreTally) observe(current observation) {
	playerCount := len(current.players)
	for size := minCoreSize; size <= maxCoreSize && size <= playerCount; size++ {
		entries := tally.bySize[size]
		combinations(playerCount, size, func(indices []int) {
			members := make([]sharing.Ref, size)
			for position, index := range indices {
				members[position] = current.refs[index]
			}
			key := setKey(members)
			entry, ok := entries[key]
			if !ok {
				entry = &coreEntry{
					members: members,
					stats:   make([]memberTally, size),
					pairs:   make([]pairTally, size*(size-1)/2),
				}
				entries[key] = entry
			}
			entry.record(current, indices, playerCount == size)
		})
	}
}

func (entry *coreEntry) record(current observation, indices []int, exact bool) {
	entry.matches++
	if exact {
		entry.exact++
	}
	if current.match.Date.After(entry.lastPlayed) {
		entry.lastPlayed = current.match.Date
	}

	best := math.MaxInt
	for _, index := range indices {
		if placement := current.players[index].Placement; placement != nil && *placement < best {
			best = *placement
		}
	}

	for position, index := range indices {
		participant := current.players[index]
		stats := &entry.stats[position]
		if participant.Winner {
			stats.wins++
		} else {
			stats.losses++
		}
		if participant.Placement != nil {
			stats.placementSum += *participant.Placement
			stats.placed++
			if *participant.Placement == best {
				stats.topFinishes++
			}
		}
	}

	size := len(indices)
	for first := 0; first < size; first++ {
		for second := first + 1; second < size; second++ {
			firstPlacement := current.players[indices[first]].Placement
			secondPlacement := current.players[indices[second]].Placement
			if firstPlacement == nil || secondPlacement == nil {
				continue
			}
			pair := &entry.pairs[pairIndex(size, first, second)]
			pair.comparable++
			switch {
			case *firstPlacement < *secondPlacement:
				pair.firstAbove++
			case *secondPlacement < *firstPlacement:
				pair.secondAbove++
			default:
				pair.ties++
			}
		}
	}
}

// pairIndex flattens (first, second) with first < second into the upper triangle of size x size.
func pairIndex(size, first, second int) int {
	return first*(2*size-first-1)/2 + (second - first - 1)
}

func (tally *coreTally) result(names directory, policy ConfidencePolicy) Cores {
	return Cores{
		Pairs:    tally.build(2, names, policy),
		Trios:    tally.build(3, names, policy),
		Quartets: tally.build(4, names, policy),
	}
}

// build sorts cores by match count desc, then alphabetically by member names.
func (tally *coreTally) build(size int, names directory, policy ConfidencePolicy) []Core {
	entries := tally.bySize[size]
	type keyed struct {
		sortKey string
		core    Core
	}
	built := make([]keyed, 0, len(entries))
	for _, entry := range entries {
		built = append(built, keyed{sortKey: names.sortKey(entry.members), core: entry.core(names, policy)})
	}
	sort.Slice(built, func(i, j int) bool {
		if built[i].core.MatchCount != built[j].core.MatchCount {
			return built[i].core.MatchCount > built[j].core.MatchCount
		}
		return built[i].sortKey < built[j].sortKey
	})
	cores := make([]Core, 0, len(built))
	for _, item := range built {
		cores = append(cores, item.core)
	}
	return cores
}

func (entry *coreEntry) core(names directory, policy ConfidencePolicy) Core {
	core := Core{
		Players:    names.summaries(entry.members),
		MatchCount: entry.matches,
		Stability:  ratio(entry.exact, entry.matches),
		LastPlayed: entry.lastPlayed,
		Confidence: policy.Label(entry.matches),
		Ranking:    make([]CoreMember, 0, len(entry.members)),
		Pairwise:   make([]PairwiseStat, 0, len(entry.pairs)),
	}

	for position, ref := range entry.members {
		stats := entry.stats[position]
		member := CoreMember{
			Player:      names.summary(ref),
			Wins:        stats.wins,
			Losses:      stats.losses,
			WinRate:     ratio(stats.wins, entry.matches),
			TopFinishes: stats.topFinishes,
		}
		if stats.placed > 0 {
			average := float64(stats.placementSum) / float64(stats.placed)
			member.AveragePlacement = &average
		}
		core.Ranking = append(core.Ranking, member)
	}
	rankMembers(core.Ranking)

	size := len(entry.members)
	for first := 0; first < size; first++ {
		for second := first + 1; second < size; second++ {
			pair := entry.pairs[pairIndex(size, first, second)]
			core.Pairwise = append(core.Pairwise, PairwiseStat{
				First:             names.summary(entry.members[first]),
				Second:            names.summary(entry.members[second]),
				ComparableMatches: pair.comparable,
				FirstAboveRate:    ratio(pair.firstAbove, pair.comparable),
				SecondAboveRate:   ratio(pair.secondAbove, pair.comparable),
				TieRate:           ratio(pair.ties, pair.comparable),
				Confidence:        policy.Label(pair.comparable),
			})
		}
	}
	return core
}

// rankMembers orders by wins desc, average placement asc (unplaced last), then name.
func rankMembers(members []CoreMember) {
	sort.SliceStable(members, func(i, j int) bool {
		left, right := members[i], members[j]
		if left.Wins != right.Wins {
			return left.Wins > right.Wins
		}
		switch {
		case left.AveragePlacement != nil && right.AveragePlacement == nil:
			return true
		case left.AveragePlacement == nil && right.AveragePlacement != nil:
			return false
		case left.AveragePlacement != nil && *left.AveragePlacement != *right.AveragePlacement:
			return *left.AveragePlacement < *right.AveragePlacement
		}
		if left.Player.Name != right.Player.Name {
			return left.Player.Name < right.Player.Name
		}
		return left.Player.Ref.Key() < right.Player.Ref.Key()
	})
	for index := range members {
		members[index].Rank = index + 1
	}
}

// rivals reads the focus player's head-to-head records out of the pair cores.
// Sorted by shared matches desc, then opponent name.
func (tally *coreTally) rivals(focus sharing.Ref, names directory, policy ConfidencePolicy) []Rival {
	rivals := make([]Rival, 0)
	for _, entry := range tally.bySize[2] {
		focusPosition := -1
		for position, ref := range entry.members {
			if ref == focus {
				focusPosition = position
			}
		}
		if focusPosition < 0 {
			continue
		}
		opponentPosition := 1 - focusPosition
		pair := entry.pairs[0]
		focusAbove, opponentAbove := pair.firstAbove, pair.secondAbove
		if focusPosition == 1 {
			focusAbove, opponentAbove = opponentAbove, focusAbove
		}
		rivals = append(rivals, Rival{
			Opponent:          names.summary(entry.members[opponentPosition]),
			SharedMatches:     entry.matches,
			FocusWins:         entry.stats[focusPosition].wins,
			OpponentWins:      entry.stats[opponentPosition].wins,
			ComparableMatches: pair.comparable,
			FocusAboveRate:    ratio(focusAbove, pair.comparable),
			OpponentAboveRate: ratio(opponentAbove, pair.comparable),
			Confidence:        policy.Label(entry.matches),
		})
	}
	sort.Slice(rivals, func(i, j int) bool {
		if rivals[i].SharedMatches != rivals[j].SharedMatches {
			return rivals[i].SharedMatches > rivals[j].SharedMatches
		}
		if rivals[i].Opponent.Name != rivals[j].Opponent.Name {
			return rivals[i].Opponent.Name < rivals[j].Opponent.Name
		}
		return rivals[i].Opponent.Ref.Key() < rivals[j].Opponent.Ref.Key()
	})
	return rivals
}
