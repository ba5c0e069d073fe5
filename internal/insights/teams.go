package insights

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MarcoPoloResearchLab/tabletally/internal/sharing"
)

type teamStatTally struct {
	name    string
	matches int
	wins    int
}

type teamCoreEntry struct {
	members []sharing.Ref
	matches int
	wins    int
	exact   int
}

// teamTally aggregates team records by team name, and player cores restricted to teammates.
type teamTally struct {
	used   bool
	teams  map[string]*teamStatTally
	bySize map[int]map[string]*teamCoreEntry
}

func newTeamTally() *teamTally {
	tally := &teamTally{
		teams:  map[string]*teamStatTally{},
		bySize: make(map[int]map[string]*teamCoreEntry, maxCoreSize-minCoreSize+1),
	}
	for size := minCoreSize; size <= maxCoreSize; size++ {
		tally.bySize[size] = map[string]*teamCoreEntry{}
	}
	return tally
}

type matchTeam struct {
	name    string
	members []int
	won     bool
}

func (tally *teamTally) observe(current observation) {
	teams := map[int64]*matchTeam{}
	var teamIDs []int64
	for position, participant := range current.players {
		if participant.TeamID == nil {
			continue
		}
		tally.used = true
		team, ok := teams[*participant.TeamID]
		if !ok {
			name := strings.TrimSpace(participant.TeamName)
			if name == "" {
				name = fmt.Sprintf("Team %d", *participant.TeamID)
			}
			team = &matchTeam{name: name}
			teams[*participant.TeamID] = team
			teamIDs = append(teamIDs, *participant.TeamID)
		}
		team.members = append(team.members, position)
		team.won = team.won || participant.Winner
	}
	sort.Slice(teamIDs, func(i, j int) bool { return teamIDs[i] < teamIDs[j] })

	for _, teamID := range teamIDs {
		team := teams[teamID]
		key := strings.ToLower(team.name)
		stat, ok := tally.teams[key]
		if !ok {
			stat = &teamStatTally{}
			tally.teams[key] = stat
		}
		stat.name = team.name
		stat.matches++
		stat.wins += boolToInt(team.won)

		teamSize := len(team.members)
		for size := minCoreSize; size <= maxCoreSize && size <= teamSize; size++ {
			entries := tally.bySize[size]
			combinations(teamSize, size, func(indices []int) {
				members := make([]sharing.Ref, size)
				for position, index := range indices {
					members[position] = current.refs[team.members[index]]
				}
				coreKey := setKey(members)
				entry, ok := entries[coreKey]
				if !ok {
					entry = &teamCoreEntry{members: members}
					entries[coreKey] = entry
				}
				entry.matches++
				entry.wins += boolToInt(team.won)
				if teamSize == size {
					entry.exact++
				}
			})
		}
	}
}

func (tally *teamTally) result(names directory, policy ConfidencePolicy) *TeamInsights {
	insights := &TeamInsights{
		Teams:    make([]TeamStat, 0, len(tally.teams)),
		Pairs:    tally.build(2, names, policy),
		Trios:    tally.build(3, names, policy),
		Quartets: tally.build(4, names, policy),
	}
	for _, stat := range tally.teams {
		insights.Teams = append(insights.Teams, TeamStat{
			Name:       stat.name,
			MatchCount: stat.matches,
			Wins:       stat.wins,
			WinRate:    ratio(stat.wins, stat.matches),
		})
	}
	sort.Slice(insights.Teams, func(i, j int) bool {
		if insights.Teams[i].MatchCount != insights.Teams[j].MatchCount {
			return insights.Teams[i].MatchCount > insights.Teams[j].MatchCount
		}
		return strings.ToLower(insights.Teams[i].Name) < strings.ToLower(insights.Teams[j].Name)
	})
	return insights
}

func (tally *teamTally) build(size int, names directory, policy ConfidencePolicy) []TeamCore {
	entries := tally.bySize[size]
	type keyed struct {
		sortKey string
		core    TeamCore
	}
	built := make([]keyed, 0, len(entries))
	for _, entry := range entries {
		built = append(built, keyed{
			sortKey: names.sortKey(entry.members),
			core: TeamCore{
				Players:    names.summaries(entry.members),
				MatchCount: entry.matches,
				Wins:       entry.wins,
				WinRate:    ratio(entry.wins, entry.matches),
				Stability:  ratio(entry.exact, entry.matches),
				Confidence: policy.Label(entry.matches),
			},
		})
	}
	sort.Slice(built, func(i, j int) bool {
		if built[i].core.MatchCount != built[j].core.MatchCount {
			return built[i].core.MatchCount > built[j].core.MatchCount
		}
		return built[i].sortKey < built[j].sortKey
	})
	cores := make([]TeamCore, 0, len(built))
	for _, item := range built {
		cores = append(cores, item.core)
	}
	return cores
}
