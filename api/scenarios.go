/*
scenarios.go - Demo wallets for testing and demonstrations

PURPOSE:
  Provides pre-built wallets that populate the store with realistic holdings
  and usage. Each scenario exercises a specific engine feature against the
  bundled demo catalog.

AVAILABLE SCENARIOS:
  empty-wallet:       No cards
  dining-duo:         Gold + Sapphire Preferred with partial monthly usage
  five-twenty-four:   Five recent cards, over the 5/24 limit
  premium-travel:     Platinum + Sapphire Reserve, credits used, one ignored

HOW SCENARIOS WORK:
  1. Clear the calling user's wallet
  2. Add holdings with anniversary dates relative to today
  3. Write usage through the same path as update-benefit
  4. Push the new snapshot to the user's stream subscribers

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "dining-duo"}

NOTE:
  Scenarios replace the caller's wallet. Only use in development/demo
  environments. Card ids refer to factory/default_catalog.yaml.

SEE ALSO:
  - handlers.go: applyUsage
  - factory/default_catalog.yaml: Card definitions
*/
package api

import (
	"context"
	"net/http"

	"github.com/warp/card-wallet/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "empty-wallet",
		Name:        "Empty Wallet",
		Description: "No cards held",
	},
	{
		ID:          "dining-duo",
		Name:        "Dining Duo",
		Description: "Gold and Sapphire Preferred; dining credits used every month, current month partial",
	},
	{
		ID:          "five-twenty-four",
		Name:        "Five in Twenty-Four",
		Description: "Five cards opened in the last 24 months; not eligible for new applications",
	},
	{
		ID:          "premium-travel",
		Name:        "Premium Travel",
		Description: "Platinum and Sapphire Reserve with annual credits used and DoorDash ignored",
	},
}

type scenarioLoader func(h *Handler, ctx context.Context, user generic.UserID, now generic.Date) error

var scenarioLoaders = map[string]scenarioLoader{
	"empty-wallet":     func(*Handler, context.Context, generic.UserID, generic.Date) error { return nil },
	"dining-duo":       loadDiningDuo,
	"five-twenty-four": loadFiveTwentyFour,
	"premium-travel":   loadPremiumTravel,
}

// ListScenarios returns available scenarios.
// GET /api/scenarios/
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the scenario last loaded for the user, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	id := h.currentScenario[h.userID(r)]
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == id {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario replaces the caller's wallet with a predefined one.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeBody(r, &req, true); err != nil {
		h.fail(w, "", err)
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		h.fail(w, "", &generic.NotFoundError{Kind: "scenario", ID: req.ScenarioID})
		return
	}

	ctx := r.Context()
	user := h.userID(r)
	if err := h.Store.ResetUser(ctx, user); err != nil {
		h.fail(w, "", err)
		return
	}
	if err := load(h, ctx, user, h.Now()); err != nil {
		h.fail(w, "", err)
		return
	}

	h.mu.Lock()
	h.currentScenario[user] = req.ScenarioID
	h.mu.Unlock()

	h.Logger.Info("scenario loaded", "scenario", req.ScenarioID, "user", user)
	h.publish(ctx, user)
	writeJSON(w, http.StatusOK, MutationResponse{Success: true, Personality: h.personality(ctx, user)})
}

// ResetWallet clears the caller's wallet.
// POST /api/scenarios/reset
func (h *Handler) ResetWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := h.userID(r)
	if err := h.Store.ResetUser(ctx, user); err != nil {
		h.fail(w, "", err)
		return
	}

	h.mu.Lock()
	delete(h.currentScenario, user)
	h.mu.Unlock()

	h.publish(ctx, user)
	writeJSON(w, http.StatusOK, MutationResponse{Success: true})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadDiningDuo(h *Handler, ctx context.Context, user generic.UserID, now generic.Date) error {
	if err := h.seedHolding(ctx, user, "amex-gold", now.AddMonths(-14)); err != nil {
		return err
	}
	if err := h.seedHolding(ctx, user, "chase-sapphire-preferred", now.AddMonths(-8)); err != nil {
		return err
	}

	// Dining Credit: every past month in full, $4 so far this month
	if err := h.seedFullToDate(ctx, user, "amex-gold", 0, now); err != nil {
		return err
	}
	current := generic.PeriodKeyFor(generic.Monthly, now)
	if err := h.seedUsage(ctx, user, "amex-gold", 0, UpdateBenefitRequest{Amount: generic.NewMoney(4), PeriodKey: string(current)}); err != nil {
		return err
	}
	return h.seedUsage(ctx, user, "chase-sapphire-preferred", 0, UpdateBenefitRequest{
		Amount:    generic.NewMoney(20),
		PeriodKey: string(generic.PeriodKeyFor(generic.Annually, now)),
	})
}

func loadFiveTwentyFour(h *Handler, ctx context.Context, user generic.UserID, now generic.Date) error {
	opened := map[generic.CardID]int{
		"amex-gold":              -2,
		"amex-platinum":          -6,
		"chase-sapphire-reserve": -10,
		"capital-one-venture-x":  -15,
		"citi-double-cash":       -20,
	}
	for id, months := range opened {
		if err := h.seedHolding(ctx, user, id, now.AddMonths(months)); err != nil {
			return err
		}
	}
	return nil
}

func loadPremiumTravel(h *Handler, ctx context.Context, user generic.UserID, now generic.Date) error {
	if err := h.seedHolding(ctx, user, "amex-platinum", now.AddMonths(-30)); err != nil {
		return err
	}
	if err := h.seedHolding(ctx, user, "chase-sapphire-reserve", now.AddMonths(-3)); err != nil {
		return err
	}

	annual := string(generic.PeriodKeyFor(generic.Annually, now))
	if err := h.seedUsage(ctx, user, "amex-platinum", 0, UpdateBenefitRequest{PeriodKey: annual, IsFull: true, Amount: generic.NewMoney(200)}); err != nil {
		return err
	}
	if err := h.seedFullToDate(ctx, user, "amex-platinum", 2, now); err != nil {
		return err
	}
	if err := h.seedUsage(ctx, user, "chase-sapphire-reserve", 0, UpdateBenefitRequest{PeriodKey: annual, Amount: generic.NewMoney(150)}); err != nil {
		return err
	}
	return h.Store.SetIgnored(ctx, user, "chase-sapphire-reserve", 1, true)
}

func (h *Handler) seedHolding(ctx context.Context, user generic.UserID, cardID generic.CardID, opened generic.Date) error {
	if _, ok := h.Catalog.Card(cardID); !ok {
		return &generic.NotFoundError{Kind: "card", ID: string(cardID)}
	}
	return h.Store.AddHolding(ctx, user, cardID, &opened)
}

func (h *Handler) seedUsage(ctx context.Context, user generic.UserID, cardID generic.CardID, idx generic.BenefitIndex, req UpdateBenefitRequest) error {
	_, err := h.applyUsage(ctx, user, cardID, idx, req)
	return err
}

// seedFullToDate marks every available period before the current one full.
func (h *Handler) seedFullToDate(ctx context.Context, user generic.UserID, cardID generic.CardID, idx generic.BenefitIndex, now generic.Date) error {
	_, b, err := h.Catalog.Lookup(cardID, idx)
	if err != nil {
		return err
	}
	hold, err := h.Store.GetHolding(ctx, user, cardID)
	if err != nil {
		return err
	}
	for _, p := range generic.PeriodsToDate(generic.GeneratePeriods(b.Entitlement(), hold.AnniversaryDate, now)) {
		if p.IsCurrent || !p.IsAvailable {
			continue
		}
		req := UpdateBenefitRequest{Amount: p.MaxValue, PeriodKey: string(p.Key), IsFull: true}
		if err := h.seedUsage(ctx, user, cardID, idx, req); err != nil {
			return err
		}
	}
	return nil
}
