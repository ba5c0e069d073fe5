package scoring

import (
	"sort"
)

// ComputeFinalScore folds per-round values into a final score.
// Manual rules and best-of highest or lowest matches without any scored round yield NoScore.
// Unrecognized rule combinations score 0.
func ComputeFinalScore(rounds []RoundValue, rule Rule) Score {
	ordered := orderRounds(rounds)

	if rule.WinCondition == WinConditionManual {
		return NoScore
	}
	if !rule.recognized() {
		return NewScore(0)
	}

	switch rule.RoundsScore {
	case RoundsScoreAggregate:
		var total int64
		for _, round := range ordered {
			if round.Value != nil {
				total += *round.Value
			}
		}
		return NewScore(total)
	default:
		return bestOf(ordered, rule)
	}
}

func bestOf(rounds []RoundValue, rule Rule) Score {
	switch rule.WinCondition {
	case WinConditionHighestScore:
		return extremum(rounds, func(candidate, current int64) bool { return candidate > current })
	case WinConditionLowestScore:
		return extremum(rounds, func(candidate, current int64) bool { return candidate < current })
	case WinConditionTargetScore:
		return targetSticky(rounds, rule.TargetScore)
	default:
		return NewScore(0)
	}
}

func extremum(rounds []RoundValue, better func(candidate, current int64) bool) Score {
	found := false
	var best int64
	for _, round := range rounds {
		if round.Value == nil {
			continue
		}
		if !found || better(*round.Value, best) {
			best = *round.Value
			found = true
		}
	}
	if !found {
		return NoScore
	}
	return NewScore(best)
}

// targetSticky seeds with the first scored round, or 0 without one; a round equal to the target sticks.
func targetSticky(rounds []RoundValue, target int64) Score {
	found := false
	var accumulator int64
	for _, round := range rounds {
		if round.Value == nil {
			continue
		}
		if !found {
			accumulator = *round.Value
			found = true
		}
		if *round.Value == target {
			return NewScore(target)
		}
	}
	return NewScore(accumulator)
}

// ComputeWinners returns the winning match player ids in ascending order.
// Manual rules return nil; callers read stored winner flags instead.
func ComputeWinners(players []PlayerScore, rule Rule) []int64 {
	if len(players) == 0 {
		return nil
	}

	var winners []int64
	switch rule.WinCondition {
	case WinConditionHighestScore, WinConditionLowestScore:
		best, found := bestFinal(players, rule.WinCondition)
		if !found {
			return nil
		}
		for _, player := range players {
			if value, ok := player.Score.Value(); ok && value == best {
				winners = append(winners, player.ID)
			}
		}
	case WinConditionTargetScore:
		for _, player := range players {
			if value, ok := player.Score.Value(); ok && value == rule.TargetScore {
				winners = append(winners, player.ID)
			}
		}
	default:
		return nil
	}

	return uniqueSorted(winners)
}

func bestFinal(players []PlayerScore, condition WinCondition) (int64, bool) {
	found := false
	var best int64
	for _, player := range players {
		value, ok := player.Score.Value()
		if !ok {
			continue
		}
		if !found {
			best = value
			found = true
			continue
		}
		if condition == WinConditionHighestScore && value > best {
			best = value
		}
		if condition == WinConditionLowestScore && value < best {
			best = value
		}
	}
	return best, found
}

// ComputePlacements ranks scored players with competition ranking (1, 1, 3).
// Under a target rule, players on the target share first place and the rest rank by distance to it.
func ComputePlacements(players []PlayerScore, rule Rule) map[int64]int {
	placements := make(map[int64]int, len(players))
	if rule.WinCondition == WinConditionManual {
		return placements
	}

	type ranked struct {
		id  int64
		key int64
	}
	candidates := make([]ranked, 0, len(players))
	for _, player := range players {
		value, ok := player.Score.Value()
		if !ok {
			continue
		}
		switch rule.WinCondition {
		case WinConditionHighestScore:
			candidates = append(candidates, ranked{id: player.ID, key: -value})
		case WinConditionLowestScore:
			candidates = append(candidates, ranked{id: player.ID, key: value})
		case WinConditionTargetScore:
			distance := value - rule.TargetScore
			if distance < 0 {
				distance = -distance
			}
			candidates = append(candidates, ranked{id: player.ID, key: distance})
		default:
			return placements
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].key != candidates[j].key {
			return candidates[i].key < candidates[j].key
		}
		return candidates[i].id < candidates[j].id
	})

	for index, candidate := range candidates {
		if index > 0 && candidate.key == candidates[index-1].key {
			placements[candidate.id] = placements[candidates[index-1].id]
			continue
		}
		placements[candidate.id] = index + 1
	}
	return placements
}

// Evaluate computes final scores, winners and placements for a match.
func Evaluate(rounds map[int64][]RoundValue, rule Rule) Outcome {
	outcome := Outcome{
		Scores:     make(map[int64]Score, len(rounds)),
		Placements: map[int64]int{},
		Manual:     rule.WinCondition == WinConditionManual,
	}
	if outcome.Manual {
		return outcome
	}
	if !rule.recognized() {
		for id := range rounds {
			outcome.Scores[id] = NewScore(0)
		}
		return outcome
	}

	players := make([]PlayerScore, 0, len(rounds))
	for id, values := range rounds {
		score := ComputeFinalScore(values, rule)
		outcome.Scores[id] = score
		players = append(players, PlayerScore{ID: id, Score: score})
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })

	outcome.Winners = ComputeWinners(players, rule)
	outcome.Placements = ComputePlacements(players, rule)
	return outcome
}

func orderRounds(rounds []RoundValue) []RoundValue {
	ordered := make([]RoundValue, len(rounds))
	copy(ordered, rounds)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	return ordered
}

// recognized reports whether the rule is a scored win condition paired with a known rounds score.
func (rule Rule) recognized() bool {
	switch rule.WinCondition {
	case WinConditionHighestScore, WinConditionLowestScore, WinConditionTargetScore:
	default:
		return false
	}
	switch rule.RoundsScore {
	case RoundsScoreAggregate, RoundsScoreBestOf:
		return true
	default:
		return false
	}
}

func uniqueSorted(values []int64) []int64 {
	if len(values) == 0 {
		return nil
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	unique := values[:1]
	for _, value := range values[1:] {
		if value != unique[len(unique)-1] {
			unique = append(unique, value)
		}
	}
	return unique
}
