package app

import "promptquiz-service/internal/domain"

type ledgerKey struct {
	participant string
	question    int
}

// ledger is append-only with at most one record per (participant, question).
type ledger struct {
	records []domain.Answer
	index   map[ledgerKey]int
}

func newLedger() *ledger {
	return &ledger{index: make(map[ledgerKey]int)}
}

func (l *ledger) get(participant string, question int) (domain.Answer, bool) {
	i, ok := l.index[ledgerKey{participant, question}]
	if !ok {
		return domain.Answer{}, false
	}
	return copyAnswer(l.records[i]), true
}

func (l *ledger) has(participant string, question int) bool {
	_, ok := l.index[ledgerKey{participant, question}]
	return ok
}

// record stores a and returns it. If a record already exists for the key, that
// record is returned instead and stored is false.
func (l *ledger) record(a domain.Answer) (answer domain.Answer, stored bool) {
	key := ledgerKey{a.ParticipantID, a.QuestionIndex}
	if i, ok := l.index[key]; ok {
		return copyAnswer(l.records[i]), false
	}
	a = copyAnswer(a)
	l.index[key] = len(l.records)
	l.records = append(l.records, a)
	return copyAnswer(a), true
}

func (l *ledger) answers() []domain.Answer {
	out := make([]domain.Answer, len(l.records))
	for i, a := range l.records {
		out[i] = copyAnswer(a)
	}
	return out
}

func copyAnswer(a domain.Answer) domain.Answer {
	if a.SelectedOption != nil {
		v := *a.SelectedOption
		a.SelectedOption = &v
	}
	return a
}
