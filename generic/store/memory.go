// Package store provides Committer implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/card-wallet/generic"
)

// =============================================================================
// MEMORY COMMITTER - In-memory implementation (for testing/dev)
// =============================================================================

// Call records one committed (or refused) operation.
type Call struct {
	Op          string
	Key         generic.UsageKey
	Update      generic.UsageUpdate
	Ignored     bool
	Anniversary *generic.Date
	Err         error
}

// FailFunc decides whether an operation should fail. A nil return lets it
// through.
type FailFunc func(op string, key generic.UsageKey) error

type Memory struct {
	mu          sync.Mutex
	usage       map[generic.UsageKey]generic.Money
	ignored     map[ignoreKey]bool
	cards       map[generic.CardID]*generic.Date
	calls       []Call
	fail        FailFunc
	personality *generic.Personality
}

type ignoreKey struct {
	CardID  generic.CardID
	Benefit generic.BenefitIndex
}

func NewMemory() *Memory {
	return &Memory{
		usage:   make(map[generic.UsageKey]generic.Money),
		ignored: make(map[ignoreKey]bool),
		cards:   make(map[generic.CardID]*generic.Date),
	}
}

// FailWith installs a failure hook. Pass nil to clear it.
func (m *Memory) FailWith(fn FailFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fn
}

// SetPersonality sets what AddCard/RemoveCard report.
func (m *Memory) SetPersonality(p *generic.Personality) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.personality = p
}

func (m *Memory) UpdateBenefit(_ context.Context, cardID generic.CardID, benefit generic.BenefitIndex, u generic.UsageUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := generic.UsageKey{CardID: cardID, BenefitIndex: benefit, PeriodKey: u.PeriodKey}
	if err := m.check(generic.OpUpdateBenefit, key); err != nil {
		m.calls = append(m.calls, Call{Op: generic.OpUpdateBenefit, Key: key, Update: u, Err: err})
		return err
	}
	used := u.Amount
	if u.Increment {
		used = m.usage[key].Add(u.Amount)
	}
	m.usage[key] = used
	m.calls = append(m.calls, Call{Op: generic.OpUpdateBenefit, Key: key, Update: u})
	return nil
}

func (m *Memory) ToggleIgnore(_ context.Context, cardID generic.CardID, benefit generic.BenefitIndex, ignored bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := generic.UsageKey{CardID: cardID, BenefitIndex: benefit}
	if err := m.check(generic.OpToggleIgnore, key); err != nil {
		m.calls = append(m.calls, Call{Op: generic.OpToggleIgnore, Key: key, Ignored: ignored, Err: err})
		return err
	}
	m.ignored[ignoreKey{CardID: cardID, Benefit: benefit}] = ignored
	m.calls = append(m.calls, Call{Op: generic.OpToggleIgnore, Key: key, Ignored: ignored})
	return nil
}

func (m *Memory) UpdateAnniversary(_ context.Context, cardID generic.CardID, date generic.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := generic.UsageKey{CardID: cardID}
	if err := m.check(generic.OpUpdateAnniversary, key); err != nil {
		m.calls = append(m.calls, Call{Op: generic.OpUpdateAnniversary, Key: key, Anniversary: &date, Err: err})
		return err
	}
	if _, ok := m.cards[cardID]; !ok {
		err := &generic.NotFoundError{Kind: "holding", ID: string(cardID)}
		m.calls = append(m.calls, Call{Op: generic.OpUpdateAnniversary, Key: key, Anniversary: &date, Err: err})
		return err
	}
	m.cards[cardID] = &date
	m.calls = append(m.calls, Call{Op: generic.OpUpdateAnniversary, Key: key, Anniversary: &date})
	return nil
}

func (m *Memory) AddCard(_ context.Context, cardID generic.CardID, anniversary *generic.Date) (*generic.Personality, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := generic.UsageKey{CardID: cardID}
	if err := m.check(generic.OpAddCard, key); err != nil {
		m.calls = append(m.calls, Call{Op: generic.OpAddCard, Key: key, Anniversary: anniversary, Err: err})
		return nil, err
	}
	m.cards[cardID] = anniversary
	m.calls = append(m.calls, Call{Op: generic.OpAddCard, Key: key, Anniversary: anniversary})
	return m.personality, nil
}

func (m *Memory) RemoveCard(_ context.Context, cardID generic.CardID) (*generic.Personality, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := generic.UsageKey{CardID: cardID}
	if err := m.check(generic.OpRemoveCard, key); err != nil {
		m.calls = append(m.calls, Call{Op: generic.OpRemoveCard, Key: key, Err: err})
		return nil, err
	}
	delete(m.cards, cardID)
	for k := range m.usage {
		if k.CardID == cardID {
			delete(m.usage, k)
		}
	}
	m.calls = append(m.calls, Call{Op: generic.OpRemoveCard, Key: key})
	return m.personality, nil
}

func (m *Memory) check(op string, key generic.UsageKey) error {
	if m.fail == nil {
		return nil
	}
	return m.fail(op, key)
}

// =============================================================================
// INSPECTION (tests)
// =============================================================================

// Used returns the committed amount for a key.
func (m *Memory) Used(key generic.UsageKey) (generic.Money, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.usage[key]
	return v, ok
}

// Ignored reports the committed ignore flag of a benefit.
func (m *Memory) Ignored(cardID generic.CardID, benefit generic.BenefitIndex) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ignored[ignoreKey{CardID: cardID, Benefit: benefit}]
}

// Calls returns a copy of every call made so far.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Compile-time check
var _ generic.Committer = (*Memory)(nil)
