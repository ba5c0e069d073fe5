package insights

import (
	"sort"
	"strings"
)

// summarize extracts the headline values. Lists are already sorted with their tie-breaks,
// so the top entry of each is the headline.
func summarize(report Report, minTeamCoreMatches int) Summary {
	summary := Summary{
		MostCommonPlayerCount: report.Distribution.mostCommon(),
		TopPair:               firstCore(report.Cores.Pairs),
		TopTrio:               firstCore(report.Cores.Trios),
		TopGroup:              firstCore(report.Cores.Quartets),
	}
	if len(report.Rivals) > 0 {
		rival := report.Rivals[0]
		summary.TopRival = &rival
	}
	if report.Teams != nil {
		summary.BestTeamCore = bestTeamCore(report.Teams, minTeamCoreMatches)
	}
	return summary
}

func firstCore(cores []Core) *Core {
	if len(cores) == 0 {
		return nil
	}
	core := cores[0]
	return &core
}

// bestTeamCore picks the highest win rate among team cores of any size with enough matches,
// then more matches, then alphabetical member names.
func bestTeamCore(teams *TeamInsights, minMatches int) *TeamCore {
	var best *TeamCore
	var bestKey string
	for _, group := range [][]TeamCore{teams.Pairs, teams.Trios, teams.Quartets} {
		for index := range group {
			candidate := group[index]
			if candidate.MatchCount < minMatches || candidate.WinRate == nil {
				continue
			}
			key := teamCoreKey(candidate)
			if best == nil || betterTeamCore(candidate, key, *best, bestKey) {
				selected := candidate
				best = &selected
				bestKey = key
			}
		}
	}
	return best
}

func betterTeamCore(candidate TeamCore, candidateKey string, current TeamCore, currentKey string) bool {
	if *candidate.WinRate != *current.WinRate {
		return *candidate.WinRate > *current.WinRate
	}
	if candidate.MatchCount != current.MatchCount {
		return candidate.MatchCount > current.MatchCount
	}
	return candidateKey < currentKey
}

func teamCoreKey(core TeamCore) string {
	names := make([]string, 0, len(core.Players))
	for _, player := range core.Players {
		names = append(names, strings.ToLower(player.Name)+"\x00"+player.Ref.Key())
	}
	sort.Strings(names)
	return strings.Join(names, "\x01")
}
