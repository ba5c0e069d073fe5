package insights

import (
	"sort"
	"strings"

	"github.com/MarcoPoloResearchLab/tabletally/internal/sharing"
)

type effectTally struct {
	wins    int
	samples int
}

func (tally *effectTally) add(won bool) {
	tally.samples++
	tally.wins += boolToInt(won)
}

type roleStatTally struct {
	role        Role
	matches     int
	appearances int
	wins        int
	self        effectTally
	teammates   effectTally
	opponents   effectTally
	absent      effectTally
}

type roleComboTally struct {
	first, second  int
	matches        int
	sameHolder     int
	sameHolderWins int
}

// roleTally covers the roles a game defines. Effects are measured on the focus player when set,
// otherwise on every participant.
type roleTally struct {
	focus  *sharing.Ref
	roles  []*roleStatTally
	byRef  map[sharing.Ref]int
	combos map[[2]int]*roleComboTally
}

func newRoleTally(roles []Role, focus *sharing.Ref) *roleTally {
	tally := &roleTally{
		focus:  focus,
		byRef:  make(map[sharing.Ref]int, len(roles)),
		combos: map[[2]int]*roleComboTally{},
	}
	ordered := append([]Role(nil), roles...)
	sort.SliceStable(ordered, func(i, j int) bool {
		leftName, rightName := strings.ToLower(ordered[i].Name), strings.ToLower(ordered[j].Name)
		if leftName != rightName {
			return leftName < rightName
		}
		return ordered[i].Ref.Key() < ordered[j].Ref.Key()
	})
	for _, role := range ordered {
		if _, duplicate := tally.byRef[role.Ref]; duplicate {
			continue
		}
		tally.byRef[role.Ref] = len(tally.roles)
		tally.roles = append(tally.roles, &roleStatTally{role: role})
	}
	return tally
}

func (tally *roleTally) observe(current observation) {
	// held[position] is the set of role indices that participant holds.
	held := make([]map[int]struct{}, len(current.players))
	holders := make(map[int][]int, len(tally.roles))
	for position, participant := range current.players {
		held[position] = map[int]struct{}{}
		for _, role := range participant.Roles {
			index, ok := tally.byRef[role.Ref]
			if !ok {
				continue
			}
			if _, seen := held[position][index]; seen {
				continue
			}
			held[position][index] = struct{}{}
			holders[index] = append(holders[index], position)
		}
	}

	present := make([]int, 0, len(holders))
	for index, positions := range holders {
		present = append(present, index)
		stat := tally.roles[index]
		stat.matches++
		for _, position := range positions {
			stat.appearances++
			stat.wins += boolToInt(current.players[position].Winner)
		}
	}
	sort.Ints(present)

	for position, participant := range current.players {
		if tally.focus != nil && participant.Player != *tally.focus {
			continue
		}
		for index, stat := range tally.roles {
			if _, ok := held[position][index]; ok {
				stat.self.add(participant.Winner)
				continue
			}
			positions := holders[index]
			if len(positions) == 0 {
				stat.absent.add(participant.Winner)
				continue
			}
			teammate, opponent := false, false
			for _, holder := range positions {
				if sameTeam(participant, current.players[holder]) {
					teammate = true
				} else {
					opponent = true
				}
			}
			if teammate {
				stat.teammates.add(participant.Winner)
			}
			if opponent {
				stat.opponents.add(participant.Winner)
			}
		}
	}

	for first := 0; first < len(present); first++ {
		for second := first + 1; second < len(present); second++ {
			key := [2]int{present[first], present[second]}
			combo, ok := tally.combos[key]
			if !ok {
				combo = &roleComboTally{first: key[0], second: key[1]}
				tally.combos[key] = combo
			}
			combo.matches++
			for position, participant := range current.players {
				_, holdsFirst := held[position][key[0]]
				_, holdsSecond := held[position][key[1]]
				if holdsFirst && holdsSecond {
					combo.sameHolder++
					combo.sameHolderWins += boolToInt(participant.Winner)
				}
			}
		}
	}
}

func sameTeam(left, right Participant) bool {
	return left.TeamID != nil && right.TeamID != nil && *left.TeamID == *right.TeamID
}

func (tally *roleTally) result(policy ConfidencePolicy) *RoleInsights {
	insights := &RoleInsights{
		Roles:        make([]RoleStat, 0, len(tally.roles)),
		Combinations: make([]RoleCombo, 0, len(tally.combos)),
	}
	for _, stat := range tally.roles {
		insights.Roles = append(insights.Roles, RoleStat{
			Role:        stat.role,
			MatchCount:  stat.matches,
			Appearances: stat.appearances,
			Wins:        stat.wins,
			WinRate:     ratio(stat.wins, stat.appearances),
			Effects: RoleEffects{
				Self:      effect(stat.self.wins, stat.self.samples),
				Teammates: effect(stat.teammates.wins, stat.teammates.samples),
				Opponents: effect(stat.opponents.wins, stat.opponents.samples),
				Absent:    effect(stat.absent.wins, stat.absent.samples),
			},
		})
	}

	for _, combo := range tally.combos {
		insights.Combinations = append(insights.Combinations, RoleCombo{
			Roles:             [2]Role{tally.roles[combo.first].role, tally.roles[combo.second].role},
			MatchCount:        combo.matches,
			SameHolderCount:   combo.sameHolder,
			SameHolderWins:    combo.sameHolderWins,
			SameHolderWinRate: ratio(combo.sameHolderWins, combo.sameHolder),
			Confidence:        policy.Label(combo.matches),
		})
	}
	// Role indices follow name order, so index order doubles as the alphabetical tie-break.
	sort.Slice(insights.Combinations, func(i, j int) bool {
		left, right := insights.Combinations[i], insights.Combinations[j]
		if left.MatchCount != right.MatchCount {
			return left.MatchCount > right.MatchCount
		}
		leftKey := [2]int{tally.byRef[left.Roles[0].Ref], tally.byRef[left.Roles[1].Ref]}
		rightKey := [2]int{tally.byRef[right.Roles[0].Ref], tally.byRef[right.Roles[1].Ref]}
		if leftKey[0] != rightKey[0] {
			return leftKey[0] < rightKey[0]
		}
		return leftKey[1] < rightKey[1]
	})
	return insights
}
