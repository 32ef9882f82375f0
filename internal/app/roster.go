package app

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"promptquiz-service/internal/domain"
)

const (
	minNameLen = 2
	maxNameLen = 32
)

// roster keeps participants in join order. Entries are never removed.
type roster struct {
	ordered []*domain.Participant
	byID    map[string]*domain.Participant
}

func newRoster() *roster {
	return &roster{byID: make(map[string]*domain.Participant)}
}

func (r *roster) get(identity string) (*domain.Participant, bool) {
	p, ok := r.byID[identity]
	return p, ok
}

func (r *roster) len() int { return len(r.ordered) }

// nameTaken compares case-insensitively against every entry, connected or not.
func (r *roster) nameTaken(name, identity string) bool {
	for _, p := range r.ordered {
		if p.Identity != identity && strings.EqualFold(p.DisplayName, name) {
			return true
		}
	}
	return false
}

func (r *roster) add(identity, name string, now time.Time) *domain.Participant {
	p := &domain.Participant{
		Identity:        identity,
		DisplayName:     name,
		JoinedAt:        now,
		JoinOrder:       len(r.ordered),
		ConnectionState: domain.Connected,
	}
	r.ordered = append(r.ordered, p)
	r.byID[identity] = p
	return p
}

// setConnection reports whether the state actually changed.
func (r *roster) setConnection(identity string, state domain.ConnectionState) bool {
	p, ok := r.byID[identity]
	if !ok || p.ConnectionState == state {
		return false
	}
	p.ConnectionState = state
	return true
}

func (r *roster) connected() []string {
	out := make([]string, 0, len(r.ordered))
	for _, p := range r.ordered {
		if p.ConnectionState == domain.Connected {
			out = append(out, p.Identity)
		}
	}
	return out
}

func (r *roster) list() []domain.Participant {
	out := make([]domain.Participant, len(r.ordered))
	for i, p := range r.ordered {
		out[i] = *p
	}
	return out
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < minNameLen || n > maxNameLen {
		return "", fmt.Errorf("%w: must be %d-%d characters", domain.ErrInvalidName, minNameLen, maxNameLen)
	}
	return name, nil
}
