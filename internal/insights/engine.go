package insights

import (
	"sort"
	"strings"

	"github.com/MarcoPoloResearchLab/tabletally/internal/sharing"
)

const (
	minCoreSize = 2
	maxCoreSize = 4
)

// observation is a finished match reduced to what the tallies read.
type observation struct {
	match   Match
	players []Participant
	refs    []sharing.Ref
	index   map[sharing.Ref]int
}

// tally consumes observations in one pass and contributes to the report.
type tally interface {
	observe(observation)
}

// directory keeps the most recent display name per canonical player.
type directory map[sharing.Ref]string

func (names directory) summary(ref sharing.Ref) PlayerSummary {
	return PlayerSummary{Ref: ref, Name: names[ref]}
}

func (names directory) summaries(refs []sharing.Ref) []PlayerSummary {
	result := make([]PlayerSummary, 0, len(refs))
	for _, ref := range refs {
		result = append(result, names.summary(ref))
	}
	return result
}

// sortKey orders player sets alphabetically by member names, then by refs.
func (names directory) sortKey(refs []sharing.Ref) string {
	labels := make([]string, 0, len(refs))
	for _, ref := range refs {
		labels = append(labels, strings.ToLower(names[ref]))
	}
	sort.Strings(labels)
	return strings.Join(labels, "\x00") + "\x01" + setKey(refs)
}

// Compute builds the insights report over the finished matches of one game.
// Matches that are unfinished or have no players are ignored; the report is never nil-valued
// in its collections and all ratios with a zero denominator are nil.
func Compute(matches []Match, options Options) Report {
	policy := options.Confidence.normalized()
	names := directory{}

	ordered := make([]Match, 0, len(matches))
	for _, match := range matches {
		if match.Finished && len(match.Players) > 0 {
			ordered = append(ordered, match)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.Before(ordered[j].Date)
		}
		return ordered[i].ID < ordered[j].ID
	})

	distribution := newDistributionTally(options.FocusPlayer)
	cores := newCoreTally()
	lineups := newLineupTally()
	teams := newTeamTally()
	var roles *roleTally
	if len(options.Roles) > 0 {
		roles = newRoleTally(options.Roles, options.FocusPlayer)
	}
	tallies := []tally{distribution, cores, lineups, teams}
	if roles != nil {
		tallies = append(tallies, roles)
	}

	for _, match := range ordered {
		current := observe(match)
		for _, participant := range current.players {
			if name := strings.TrimSpace(participant.Name); name != "" {
				names[participant.Player] = name
			}
		}
		for _, consumer := range tallies {
			consumer.observe(current)
		}
	}

	report := Report{
		MatchCount:   len(ordered),
		Distribution: distribution.result(names),
		Cores:        cores.result(names, policy),
		Lineups:      lineups.result(names),
		Rivals:       []Rival{},
	}
	if options.FocusPlayer != nil {
		report.Rivals = cores.rivals(*options.FocusPlayer, names, policy)
	}
	if teams.used {
		report.Teams = teams.result(names, policy)
	}
	if roles != nil {
		report.Roles = roles.result(policy)
	}

	minTeamCoreMatches := options.MinTeamCoreMatches
	if minTeamCoreMatches <= 0 {
		minTeamCoreMatches = defaultMinTeamCoreMatches
	}
	report.Summary = summarize(report, minTeamCoreMatches)
	return report
}

// observe dedupes participants by canonical player and orders them by ref.
// Two match players resolving to the same canonical player merge: either win counts, best placement is kept.
func observe(match Match) observation {
	merged := make(map[sharing.Ref]Participant, len(match.Players))
	for _, participant := range match.Players {
		existing, ok := merged[participant.Player]
		if !ok {
			merged[participant.Player] = participant
			continue
		}
		existing.Winner = existing.Winner || participant.Winner
		if participant.Placement != nil && (existing.Placement == nil || *participant.Placement < *existing.Placement) {
			existing.Placement = participant.Placement
		}
		if existing.TeamID == nil {
			existing.TeamID = participant.TeamID
			existing.TeamName = participant.TeamName
		}
		existing.Roles = append(append([]Role(nil), existing.Roles...), participant.Roles...)
		if existing.Name == "" {
			existing.Name = participant.Name
		}
		merged[participant.Player] = existing
	}

	refs := make([]sharing.Ref, 0, len(merged))
	for ref := range merged {
		refs = append(refs, ref)
	}
	sortRefs(refs)

	current := observation{
		match:   match,
		players: make([]Participant, 0, len(refs)),
		refs:    refs,
		index:   make(map[sharing.Ref]int, len(refs)),
	}
	for position, ref := range refs {
		current.players = append(current.players, merged[ref])
		current.index[ref] = position
	}
	return current
}

func sortRefs(refs []sharing.Ref) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].ID != refs[j].ID {
			return refs[i].ID < refs[j].ID
		}
		return refs[i].Source < refs[j].Source
	})
}

func setKey(refs []sharing.Ref) string {
	parts := make([]string, 0, len(refs))
	for _, ref := range refs {
		parts = append(parts, ref.Key())
	}
	return strings.Join(parts, "|")
}

// combinations calls visit with every ascending index combination of size k out of n.
func combinations(n, k int, visit func([]int)) {
	if k <= 0 || k > n {
		return
	}
	indices := make([]int, k)
	for i := range indices {
		indices[i] = i
	}
	for {
		visit(indices)
		position := k - 1
		for position >= 0 && indices[position] == n-k+position {
			position--
		}
		if position < 0 {
			return
		}
		indices[position]++
		for i := position + 1; i < k; i++ {
			indices[i] = indices[i-1] + 1
		}
	}
}

func ratio(numerator, denominator int) *float64 {
	if denominator == 0 {
		return nil
	}
	value := float64(numerator) / float64(denominator)
	return &value
}

func effect(wins, samples int) *Effect {
	if samples == 0 {
		return nil
	}
	return &Effect{WinRate: float64(wins) / float64(samples), MatchCount: samples}
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
