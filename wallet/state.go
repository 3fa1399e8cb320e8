package wallet

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/warp/card-wallet/generic"
)

// =============================================================================
// STATE - Confirmed snapshot + pending optimistic changes
// =============================================================================
//
// Two layers:
//
//   confirmed: the last snapshot the backend pushed, plus changes it has
//              acknowledged since
//   pending:   local changes staged while their commit is in flight
//
// Readers see pending overlaid on confirmed. A commit failure drops the
// pending entry, which reverts the view to the confirmed value. A snapshot
// replaces the confirmed layer wholesale and drops every pending entry the
// snapshot covers. Entries the snapshot does not cover survive at most
// MaxPendingAttempts snapshots and are then discarded and reported.
//
// ApplySnapshot is meant to have a single caller: the sync handler.

// DefaultMaxPendingAttempts is how many snapshots a pending change may
// outlive before it is discarded.
const DefaultMaxPendingAttempts = 3

type pendingKind int

const (
	pendingUsage pendingKind = iota
	pendingIgnore
	pendingAnniversary
)

func (k pendingKind) String() string {
	switch k {
	case pendingUsage:
		return "usage"
	case pendingIgnore:
		return "ignore"
	default:
		return "anniversary"
	}
}

type pendingKey struct {
	kind pendingKind
	key  generic.UsageKey
}

type pendingEntry struct {
	token       string
	record      UsageRecord
	ignored     bool
	anniversary generic.Date
	attempts    int
}

// DiscardedChange is a pending change that never showed up in a snapshot.
type DiscardedChange struct {
	Kind     string
	Key      generic.UsageKey
	Attempts int
}

func (d DiscardedChange) Error() string {
	return fmt.Sprintf("unconfirmed %s change to %s discarded after %d snapshots", d.Kind, d.Key, d.Attempts)
}

type State struct {
	mu          sync.RWMutex
	confirmed   map[generic.CardID]Holding
	pending     map[pendingKey]*pendingEntry
	maxAttempts int
	version     uint64
}

func NewState(maxPendingAttempts int) *State {
	if maxPendingAttempts <= 0 {
		maxPendingAttempts = DefaultMaxPendingAttempts
	}
	return &State{
		confirmed:   make(map[generic.CardID]Holding),
		pending:     make(map[pendingKey]*pendingEntry),
		maxAttempts: maxPendingAttempts,
	}
}

// ApplySnapshot replaces the confirmed layer. It returns the pending changes
// that were given up on.
func (s *State) ApplySnapshot(holdings []Holding) []DiscardedChange {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.confirmed = make(map[generic.CardID]Holding, len(holdings))
	for _, h := range holdings {
		s.confirmed[h.CardID] = h.Clone()
	}
	s.version++

	var discarded []DiscardedChange
	for pk, e := range s.pending {
		if s.coveredLocked(pk) {
			delete(s.pending, pk)
			continue
		}
		e.attempts++
		if e.attempts >= s.maxAttempts {
			delete(s.pending, pk)
			discarded = append(discarded, DiscardedChange{Kind: pk.kind.String(), Key: pk.key, Attempts: e.attempts})
		}
	}
	sort.Slice(discarded, func(i, j int) bool { return discarded[i].Key.String() < discarded[j].Key.String() })
	return discarded
}

func (s *State) coveredLocked(pk pendingKey) bool {
	h, ok := s.confirmed[pk.key.CardID]
	if !ok {
		return false
	}
	switch pk.kind {
	case pendingUsage:
		_, ok := h.Benefits[pk.key.BenefitIndex].Periods[pk.key.PeriodKey]
		return ok
	case pendingIgnore:
		_, ok := h.Benefits[pk.key.BenefitIndex]
		return ok
	default:
		return true
	}
}

// View returns every holding, pending changes applied, ordered by card ID.
func (s *State) View() []Holding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Holding, 0, len(s.confirmed))
	for id := range s.confirmed {
		out = append(out, s.mergedLocked(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CardID < out[j].CardID })
	return out
}

// Holding returns one holding with pending changes applied.
func (s *State) Holding(id generic.CardID) (Holding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.confirmed[id]; !ok {
		return Holding{}, false
	}
	return s.mergedLocked(id), true
}

// Confirmed returns one holding without pending changes.
func (s *State) Confirmed(id generic.CardID) (Holding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.confirmed[id]
	if !ok {
		return Holding{}, false
	}
	return h.Clone(), true
}

func (s *State) mergedLocked(id generic.CardID) Holding {
	h := s.confirmed[id].Clone()
	for pk, e := range s.pending {
		if pk.key.CardID != id {
			continue
		}
		switch pk.kind {
		case pendingUsage:
			h = h.withRecord(pk.key.BenefitIndex, pk.key.PeriodKey, e.record)
		case pendingIgnore:
			h = h.withIgnored(pk.key.BenefitIndex, e.ignored)
		case pendingAnniversary:
			d := e.anniversary
			h.AnniversaryDate = &d
		}
	}
	return h
}

// Version increments on every snapshot.
func (s *State) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// PendingCount is the number of staged, unconfirmed changes.
func (s *State) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// =============================================================================
// STAGING - Used by the ledger around each commit
// =============================================================================

// stage records a pending change and returns the token that confirms or
// rolls it back. A newer stage for the same key supersedes an older one.
func (s *State) stage(pk pendingKey, e pendingEntry) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.token = uuid.NewString()
	s.pending[pk] = &e
	return e.token
}

// rollback drops the pending change if it is still the one staged.
func (s *State) rollback(pk pendingKey, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.pending[pk]; ok && e.token == token {
		delete(s.pending, pk)
	}
}

// confirm promotes the pending change into the confirmed layer.
func (s *State) confirm(pk pendingKey, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.pending[pk]
	if !ok || e.token != token {
		return
	}
	delete(s.pending, pk)

	h, ok := s.confirmed[pk.key.CardID]
	if !ok {
		return
	}
	switch pk.kind {
	case pendingUsage:
		h = h.withRecord(pk.key.BenefitIndex, pk.key.PeriodKey, e.record)
	case pendingIgnore:
		h = h.withIgnored(pk.key.BenefitIndex, e.ignored)
	case pendingAnniversary:
		d := e.anniversary
		h.AnniversaryDate = &d
	}
	s.confirmed[pk.key.CardID] = h
}

// putHolding adds or replaces a confirmed holding (after add-card).
func (s *State) putHolding(h Holding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed[h.CardID] = h.Clone()
}

// removeHolding drops a holding and its pending changes (after remove-card).
func (s *State) removeHolding(id generic.CardID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.confirmed, id)
	for pk := range s.pending {
		if pk.key.CardID == id {
			delete(s.pending, pk)
		}
	}
}
