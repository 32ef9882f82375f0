package domain

import "sort"

// Tally is the per-participant aggregate the ranking is computed from.
type Tally struct {
	Score     int
	TimeTaken int64
	Answered  int
}

// TallyAnswers folds a ledger into per-participant totals.
// Every recorded answer counts towards time, including auto-submitted ones.
func TallyAnswers(answers []Answer) map[string]Tally {
	out := make(map[string]Tally)
	for _, a := range answers {
		t := out[a.ParticipantID]
		if a.IsCorrect {
			t.Score++
		}
		t.TimeTaken += a.TimeSpentMs
		t.Answered++
		out[a.ParticipantID] = t
	}
	return out
}

// Rank orders participants by score desc, total time asc, then join order.
// Identity is the last key so the order is total even for malformed input.
func Rank(participants []Participant, answers []Answer) []Standing {
	tallies := TallyAnswers(answers)

	ordered := make([]Participant, len(participants))
	copy(ordered, participants)
	sort.SliceStable(ordered, func(i, j int) bool {
		ti, tj := tallies[ordered[i].Identity], tallies[ordered[j].Identity]
		if ti.Score != tj.Score {
			return ti.Score > tj.Score
		}
		if ti.TimeTaken != tj.TimeTaken {
			return ti.TimeTaken < tj.TimeTaken
		}
		if ordered[i].JoinOrder != ordered[j].JoinOrder {
			return ordered[i].JoinOrder < ordered[j].JoinOrder
		}
		return ordered[i].Identity < ordered[j].Identity
	})

	standings := make([]Standing, len(ordered))
	for i, p := range ordered {
		t := tallies[p.Identity]
		standings[i] = Standing{
			Rank:        i + 1,
			Identity:    p.Identity,
			DisplayName: p.DisplayName,
			Score:       t.Score,
			TimeTaken:   t.TimeTaken,
			Answered:    t.Answered,
		}
	}
	return standings
}
