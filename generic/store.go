/*
store.go - Persistence collaborator contract

PURPOSE:
  Defines the interface between the benefit engine and whatever commits its
  mutations: the remote wallet backend over HTTP in production, an in-memory
  fake in tests. The engine never writes its own state directly; it asks a
  Committer and only promotes local state after the Committer confirms.

KEY INTERFACES:
  Committer: The five write operations the backend exposes

WIRE CONTRACT (HTTP implementation in client/):
  POST /wallet/update-benefit/{cardId}/{benefitId}/        UsageUpdate
  POST /wallet/toggle-ignore-benefit/{cardId}/{benefitId}/ {is_ignored}
  POST /wallet/update-anniversary/{cardId}/                {anniversary_date}
  POST /wallet/add-card/{cardId}/                          {anniversary_date}
  POST /wallet/remove-card/{cardId}/

ORDERING:
  Writes for the same usage key are last-write-wins on the backend. The
  engine does not serialize edits across devices; the snapshot stream is the
  reconciliation mechanism.

IMPLEMENTATIONS:
  - client/client.go: HTTP client with bounded timeout
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - wallet/ledger.go: Calls the Committer for every usage transition
  - api/handlers.go: Server side of the same contract
*/
package generic

import "context"

// =============================================================================
// COMMITTER - Write side of the persistence collaborator
// =============================================================================

// UsageUpdate is the body of an update-benefit call.
type UsageUpdate struct {
	Amount    Money     `json:"amount"`
	PeriodKey PeriodKey `json:"period_key"`
	IsFull    bool      `json:"is_full,omitempty"`
	Increment bool      `json:"increment,omitempty"`
}

// Personality is the backend's card-personality match, returned when the
// wallet composition changes.
type Personality struct {
	ID         string  `json:"id"`
	MatchScore float64 `json:"match_score"`
}

// Committer persists wallet mutations. Every method blocks until the
// collaborator answers or ctx is done.
type Committer interface {
	UpdateBenefit(ctx context.Context, cardID CardID, benefit BenefitIndex, update UsageUpdate) error
	ToggleIgnore(ctx context.Context, cardID CardID, benefit BenefitIndex, ignored bool) error
	UpdateAnniversary(ctx context.Context, cardID CardID, date Date) error
	AddCard(ctx context.Context, cardID CardID, anniversary *Date) (*Personality, error)
	RemoveCard(ctx context.Context, cardID CardID) (*Personality, error)
}

// Operation names, shared by committers, metrics and error messages.
const (
	OpUpdateBenefit     = "update-benefit"
	OpToggleIgnore      = "toggle-ignore-benefit"
	OpUpdateAnniversary = "update-anniversary"
	OpAddCard           = "add-card"
	OpRemoveCard        = "remove-card"
)
