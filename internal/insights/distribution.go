package insights

import (
	"sort"

	"github.com/MarcoPoloResearchLab/tabletally/internal/sharing"
)

type playerBucketTally struct {
	matches int
	wins    int
}

type distributionTally struct {
	focus       *sharing.Ref
	total       int
	byCount     map[int]int
	focusTotal  int
	focusCounts map[int]*playerBucketTally
}

func newDistributionTally(focus *sharing.Ref) *distributionTally {
	return &distributionTally{
		focus:       focus,
		byCount:     map[int]int{},
		focusCounts: map[int]*playerBucketTally{},
	}
}

func (tally *distributionTally) observe(current observation) {
	size := len(current.players)
	tally.total++
	tally.byCount[size]++

	if tally.focus == nil {
		return
	}
	position, ok := current.index[*tally.focus]
	if !ok {
		return
	}
	bucket, ok := tally.focusCounts[size]
	if !ok {
		bucket = &playerBucketTally{}
		tally.focusCounts[size] = bucket
	}
	tally.focusTotal++
	bucket.matches++
	bucket.wins += boolToInt(current.players[position].Winner)
}

func (tally *distributionTally) result(names directory) PlayerCountDistribution {
	distribution := PlayerCountDistribution{
		TotalMatches: tally.total,
		Buckets:      make([]PlayerCountBucket, 0, len(tally.byCount)),
	}
	for _, size := range sortedSizes(tally.byCount) {
		count := tally.byCount[size]
		distribution.Buckets = append(distribution.Buckets, PlayerCountBucket{
			PlayerCount: size,
			MatchCount:  count,
			Share:       ratio(count, tally.total),
		})
	}

	if tally.focus != nil {
		player := &PlayerDistribution{
			Player:       names.summary(*tally.focus),
			TotalMatches: tally.focusTotal,
			Buckets:      make([]PlayerBucket, 0, len(tally.focusCounts)),
		}
		sizes := make([]int, 0, len(tally.focusCounts))
		for size := range tally.focusCounts {
			sizes = append(sizes, size)
		}
		sort.Ints(sizes)
		for _, size := range sizes {
			bucket := tally.focusCounts[size]
			player.Buckets = append(player.Buckets, PlayerBucket{
				PlayerCount: size,
				MatchCount:  bucket.matches,
				Wins:        bucket.wins,
				WinRate:     ratio(bucket.wins, bucket.matches),
				Share:       ratio(bucket.matches, tally.focusTotal),
			})
		}
		distribution.Player = player
	}
	return distribution
}

// mostCommon returns the most frequent player count; ties go to the smaller count.
func (distribution PlayerCountDistribution) mostCommon() *int {
	best := -1
	bestMatches := 0
	for _, bucket := range distribution.Buckets {
		if bucket.MatchCount > bestMatches {
			best = bucket.PlayerCount
			bestMatches = bucket.MatchCount
		}
	}
	if best < 0 {
		return nil
	}
	return &best
}

func sortedSizes(counts map[int]int) []int {
	sizes := make([]int, 0, len(counts))
	for size := range counts {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)
	return sizes
}
