/*
handlers.go - HTTP API handlers for the card wallet

PURPOSE:
  Reference host for the wallet collaborator contract. Persists mutations in
  SQLite, pushes the user's snapshot to stream subscribers after every
  change, and serves read-only views computed by the wallet package.

ENDPOINTS:
  Mutations (collaborator contract, rate limited):
    POST /wallet/update-benefit/{cardId}/{benefitId}/        {amount, period_key, is_full?, increment?}
    POST /wallet/toggle-ignore-benefit/{cardId}/{benefitId}/ {is_ignored}
    POST /wallet/update-anniversary/{cardId}/                {anniversary_date}
    POST /wallet/add-card/{cardId}/                          {anniversary_date?}
    POST /wallet/remove-card/{cardId}/

  Wallet views:
    GET  /wallet/cards/                                  Held cards with benefits
    GET  /wallet/cards/{cardId}/benefits/{benefitId}/periods/
    GET  /wallet/summary/                                Dashboard totals
    GET  /wallet/eligibility/                            Application-limit status
    GET  /wallet/snapshot/                               Raw documents (same as stream)
    GET  /wallet/stream/                                 Websocket snapshot stream

  Catalog:
    GET  /catalog/                                       Full definitions (factory schema)
    GET  /catalog/cards/?q=&issuer=&category=&max_fee=&sort=
    GET  /catalog/cards/{cardId}/                        Stored definition + version

USER:
  The wallet user comes from the X-Wallet-User header and falls back to
  DefaultUser. There is no authentication.

ERROR HANDLING:
  Every error is {success: false, error} JSON:
  - 400: Validation errors (bad amount, date, period key, body)
  - 404: Unknown card, benefit or holding
  - 409: Conflict (card already held)
  - 429: Rate limited
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - stream.go: Snapshot hub
  - scenarios.go: Demo wallets
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/card-wallet/factory"
	"github.com/warp/card-wallet/generic"
	"github.com/warp/card-wallet/store/sqlite"
	"github.com/warp/card-wallet/wallet"
)

const userHeader = "X-Wallet-User"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       *sqlite.Store
	Catalog     *wallet.Catalog
	Factory     *factory.CatalogFactory
	Hub         *Hub
	Metrics     *Metrics
	Logger      *slog.Logger
	DefaultUser generic.UserID
	Eligibility wallet.EligibilityRule
	Origins     []string
	Now         func() generic.Date

	mu              sync.Mutex
	currentScenario map[generic.UserID]string
}

// NewHandler creates a handler with default collaborators. Fields may be
// overridden before the router is built.
func NewHandler(store *sqlite.Store, catalog *wallet.Catalog) *Handler {
	return &Handler{
		Store:           store,
		Catalog:         catalog,
		Factory:         factory.NewCatalogFactory(),
		Hub:             NewHub(),
		Metrics:         NewMetrics(),
		Logger:          slog.Default(),
		DefaultUser:     "demo",
		Eligibility:     wallet.FiveTwentyFour,
		Now:             generic.Today,
		currentScenario: make(map[generic.UserID]string),
	}
}

// SyncCatalog writes every catalog card to the store so stored definitions
// track the catalog the server was started with.
func (h *Handler) SyncCatalog(ctx context.Context) error {
	for _, card := range h.Catalog.Cards() {
		cj := h.Factory.ToJSON(wallet.NewCatalog(card)).Cards[0]
		data, err := json.Marshal(cj)
		if err != nil {
			return err
		}
		rec := sqlite.CardRecord{ID: cj.ID, Name: cj.Name, Issuer: cj.Issuer, ConfigJSON: string(data)}
		if err := h.Store.SaveCard(ctx, rec); err != nil {
			return err
		}
	}
	h.Logger.Info("catalog synced", "cards", h.Catalog.Len())
	return nil
}

// =============================================================================
// MUTATION HANDLERS
// =============================================================================

// UpdateBenefit writes one period's usage.
// POST /wallet/update-benefit/{cardId}/{benefitId}/
func (h *Handler) UpdateBenefit(w http.ResponseWriter, r *http.Request) {
	user := h.userID(r)
	cardID := generic.CardID(chi.URLParam(r, "cardId"))
	idx, err := benefitParam(r)
	if err != nil {
		h.fail(w, generic.OpUpdateBenefit, err)
		return
	}

	var req UpdateBenefitRequest
	if err := decodeBody(r, &req, true); err != nil {
		h.fail(w, generic.OpUpdateBenefit, err)
		return
	}

	if _, err := h.applyUsage(r.Context(), user, cardID, idx, req); err != nil {
		h.fail(w, generic.OpUpdateBenefit, err)
		return
	}
	h.succeed(r.Context(), w, generic.OpUpdateBenefit, user, nil)
}

// applyUsage validates an update against the catalog and stores it. The
// stored status is derived from the period maximum.
func (h *Handler) applyUsage(ctx context.Context, user generic.UserID, cardID generic.CardID, idx generic.BenefitIndex, req UpdateBenefitRequest) (wallet.UsageRecord, error) {
	_, b, err := h.Catalog.Lookup(cardID, idx)
	if err != nil {
		return wallet.UsageRecord{}, err
	}
	if req.Amount.IsNegative() {
		return wallet.UsageRecord{}, &generic.ValidationError{Field: "amount", Message: "must not be negative", Value: req.Amount.Display()}
	}
	key, freq, err := generic.ParsePeriodKey(req.PeriodKey)
	if err != nil {
		return wallet.UsageRecord{}, err
	}
	if freq != b.Frequency {
		return wallet.UsageRecord{}, &generic.ValidationError{Field: "period_key", Message: "does not match frequency " + string(b.Frequency), Value: req.PeriodKey}
	}

	periods := generic.GeneratePeriods(b.Entitlement(), nil, generic.StartOfYear(key.Year()))
	period, ok := generic.FindPeriod(periods, key)
	if !ok {
		return wallet.UsageRecord{}, &generic.ValidationError{Field: "period_key", Message: "unknown period", Value: req.PeriodKey}
	}

	usageKey := generic.UsageKey{CardID: cardID, BenefitIndex: idx, PeriodKey: key}
	return h.Store.SaveUsage(ctx, user, usageKey, sqlite.UsageWrite{
		Amount:    req.Amount,
		Increment: req.Increment,
		StatusOf: func(used generic.Money) wallet.UsageStatus {
			if req.IsFull && used.IsPositive() {
				return wallet.StatusFull
			}
			return wallet.StatusFor(used, period.MaxValue)
		},
	})
}

// ToggleIgnoreBenefit sets a benefit's ignore flag.
// POST /wallet/toggle-ignore-benefit/{cardId}/{benefitId}/
func (h *Handler) ToggleIgnoreBenefit(w http.ResponseWriter, r *http.Request) {
	user := h.userID(r)
	cardID := generic.CardID(chi.URLParam(r, "cardId"))
	idx, err := benefitParam(r)
	if err != nil {
		h.fail(w, generic.OpToggleIgnore, err)
		return
	}

	var req ToggleIgnoreRequest
	if err := decodeBody(r, &req, true); err != nil {
		h.fail(w, generic.OpToggleIgnore, err)
		return
	}
	if _, _, err := h.Catalog.Lookup(cardID, idx); err != nil {
		h.fail(w, generic.OpToggleIgnore, err)
		return
	}

	if err := h.Store.SetIgnored(r.Context(), user, cardID, idx, req.IsIgnored); err != nil {
		h.fail(w, generic.OpToggleIgnore, err)
		return
	}
	h.succeed(r.Context(), w, generic.OpToggleIgnore, user, nil)
}

// UpdateAnniversary re-dates a held card.
// POST /wallet/update-anniversary/{cardId}/
func (h *Handler) UpdateAnniversary(w http.ResponseWriter, r *http.Request) {
	user := h.userID(r)
	cardID := generic.CardID(chi.URLParam(r, "cardId"))

	var req AnniversaryRequest
	if err := decodeBody(r, &req, true); err != nil {
		h.fail(w, generic.OpUpdateAnniversary, err)
		return
	}
	date, err := generic.ParseDate("anniversary_date", req.AnniversaryDate)
	if err != nil {
		h.fail(w, generic.OpUpdateAnniversary, err)
		return
	}

	if err := h.Store.UpdateAnniversary(r.Context(), user, cardID, date); err != nil {
		h.fail(w, generic.OpUpdateAnniversary, err)
		return
	}
	h.succeed(r.Context(), w, generic.OpUpdateAnniversary, user, nil)
}

// AddCard adds a catalog card to the wallet and returns the new
// personality match.
// POST /wallet/add-card/{cardId}/
func (h *Handler) AddCard(w http.ResponseWriter, r *http.Request) {
	user := h.userID(r)
	cardID := generic.CardID(chi.URLParam(r, "cardId"))

	var req AnniversaryRequest
	if err := decodeBody(r, &req, false); err != nil {
		h.fail(w, generic.OpAddCard, err)
		return
	}
	if _, ok := h.Catalog.Card(cardID); !ok {
		h.fail(w, generic.OpAddCard, &generic.NotFoundError{Kind: "card", ID: string(cardID)})
		return
	}
	date, err := generic.ParseOptionalDate("anniversary_date", req.AnniversaryDate)
	if err != nil {
		h.fail(w, generic.OpAddCard, err)
		return
	}

	ctx := r.Context()
	if _, err := h.Store.GetHolding(ctx, user, cardID); err == nil {
		h.fail(w, generic.OpAddCard, &generic.StateConflictError{Key: generic.UsageKey{CardID: cardID}, Reason: "card is already in the wallet"})
		return
	} else if !generic.IsNotFound(err) {
		h.fail(w, generic.OpAddCard, err)
		return
	}

	if err := h.Store.AddHolding(ctx, user, cardID, date); err != nil {
		h.fail(w, generic.OpAddCard, err)
		return
	}
	h.succeed(ctx, w, generic.OpAddCard, user, h.personality(ctx, user))
}

// RemoveCard removes a held card and its usage.
// POST /wallet/remove-card/{cardId}/
func (h *Handler) RemoveCard(w http.ResponseWriter, r *http.Request) {
	user := h.userID(r)
	cardID := generic.CardID(chi.URLParam(r, "cardId"))

	ctx := r.Context()
	if err := h.Store.RemoveHolding(ctx, user, cardID); err != nil {
		h.fail(w, generic.OpRemoveCard, err)
		return
	}
	h.succeed(ctx, w, generic.OpRemoveCard, user, h.personality(ctx, user))
}

func (h *Handler) personality(ctx context.Context, user generic.UserID) *generic.Personality {
	holdings, err := h.Store.ListHoldings(ctx, user, false)
	if err != nil {
		h.Logger.Warn("personality unavailable", "user", user, "error", err)
		return nil
	}
	return wallet.MatchPersonality(holdings, h.Catalog)
}

// =============================================================================
// WALLET VIEW HANDLERS
// =============================================================================

// ListWalletCards returns every held card with its benefit views.
// GET /wallet/cards/
func (h *Handler) ListWalletCards(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.Store.ListHoldings(r.Context(), h.userID(r), false)
	if err != nil {
		h.fail(w, "", err)
		return
	}

	now := h.Now()
	dtos := make([]HoldingDTO, 0, len(holdings))
	for _, hold := range holdings {
		card, ok := h.Catalog.Card(hold.CardID)
		if !ok {
			h.Logger.Warn("holding references unknown card", "card_id", hold.CardID)
			continue
		}
		dtos = append(dtos, toHoldingDTO(wallet.ViewCard(hold, card, now)))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBenefitPeriods returns this year's periods for one held benefit.
// GET /wallet/cards/{cardId}/benefits/{benefitId}/periods/
func (h *Handler) GetBenefitPeriods(w http.ResponseWriter, r *http.Request) {
	cardID := generic.CardID(chi.URLParam(r, "cardId"))
	idx, err := benefitParam(r)
	if err != nil {
		h.fail(w, "", err)
		return
	}
	_, b, err := h.Catalog.Lookup(cardID, idx)
	if err != nil {
		h.fail(w, "", err)
		return
	}
	hold, err := h.Store.GetHolding(r.Context(), h.userID(r), cardID)
	if err != nil {
		h.fail(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTOs(wallet.PeriodsFor(hold, b, h.Now())))
}

// GetSummary returns the dashboard totals.
// GET /wallet/summary/
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.Store.ListHoldings(r.Context(), h.userID(r), false)
	if err != nil {
		h.fail(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(wallet.Summarize(holdings, h.Catalog, h.Now())))
}

// GetEligibility evaluates the application-limit rule. window_months and
// limit query parameters override the configured rule.
// GET /wallet/eligibility/
func (h *Handler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	rule := h.Eligibility
	q := r.URL.Query()
	for name, dst := range map[string]*int{"window_months": &rule.WindowMonths, "limit": &rule.Limit} {
		if s := q.Get(name); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				h.fail(w, "", &generic.ValidationError{Field: name, Message: "must be a positive integer", Value: s})
				return
			}
			*dst = n
		}
	}

	holdings, err := h.Store.ListHoldings(r.Context(), h.userID(r), false)
	if err != nil {
		h.fail(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, toEligibilityDTO(wallet.WalletEligibility(holdings, rule, h.Now())))
}

// GetSnapshot returns the documents the stream would push.
// GET /wallet/snapshot/
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := h.snapshot(r.Context(), h.userID(r))
	if err != nil {
		h.fail(w, "", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// GetCatalog returns full card definitions in the catalog file schema.
// GET /catalog/
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Factory.ToJSON(h.Catalog))
}

// ListCatalogCards searches the catalog.
// GET /catalog/cards/?q=&issuer=&category=&max_fee=&sort=
func (h *Handler) ListCatalogCards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := wallet.CardFilter{
		Query:    q.Get("q"),
		Issuer:   q.Get("issuer"),
		Category: q.Get("category"),
	}
	if s := q.Get("max_fee"); s != "" {
		fee, err := generic.ParseMoney(s)
		if err != nil {
			h.fail(w, "", &generic.ValidationError{Field: "max_fee", Message: "not a number", Value: s})
			return
		}
		filter.MaxFee = &fee
	}

	cards := wallet.FilterCards(h.Catalog.Cards(), filter)
	switch by := wallet.SortKey(q.Get("sort")); by {
	case "", wallet.SortByName, wallet.SortByFee, wallet.SortByValue:
		wallet.SortCards(cards, by)
	default:
		h.fail(w, "", &generic.ValidationError{Field: "sort", Message: "must be name, fee or value", Value: string(by)})
		return
	}

	dtos := make([]CatalogCardDTO, len(cards))
	for i, c := range cards {
		dtos[i] = toCatalogCardDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCatalogCard returns the stored definition of one card.
// GET /catalog/cards/{cardId}/
func (h *Handler) GetCatalogCard(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Store.GetCard(r.Context(), chi.URLParam(r, "cardId"))
	if err != nil {
		h.fail(w, "", err)
		return
	}

	dto := CatalogCardRecordDTO{ID: rec.ID, Version: rec.Version}
	if !rec.UpdatedAt.IsZero() {
		dto.UpdatedAt = rec.UpdatedAt.Format(time.RFC3339)
	}
	if err := json.Unmarshal([]byte(rec.ConfigJSON), &dto.Config); err != nil {
		h.fail(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) userID(r *http.Request) generic.UserID {
	if u := strings.TrimSpace(r.Header.Get(userHeader)); u != "" {
		return generic.UserID(u)
	}
	return h.DefaultUser
}

// snapshot encodes the user's active holdings as stream documents.
func (h *Handler) snapshot(ctx context.Context, user generic.UserID) ([]byte, error) {
	holdings, err := h.Store.ListHoldings(ctx, user, false)
	if err != nil {
		return nil, err
	}
	return wallet.EncodeSnapshot(holdings)
}

// publish pushes the user's current snapshot to their subscribers.
func (h *Handler) publish(ctx context.Context, user generic.UserID) {
	data, err := h.snapshot(ctx, user)
	if err != nil {
		h.Logger.Error("snapshot publish failed", "user", user, "error", err)
		return
	}
	h.Metrics.snapshotsPublished(h.Hub.Publish(user, data))
}

func (h *Handler) succeed(ctx context.Context, w http.ResponseWriter, op string, user generic.UserID, p *generic.Personality) {
	h.Metrics.mutation(op, nil)
	h.publish(ctx, user)
	writeJSON(w, http.StatusOK, MutationResponse{Success: true, Personality: p})
}

// fail writes the error envelope; op is empty for read endpoints.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if op != "" {
		h.Metrics.mutation(op, err)
	}
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", "op", op, "error", err)
	}
	writeJSON(w, status, MutationResponse{Error: err.Error()})
}

func (h *Handler) originPatterns() []string {
	if len(h.Origins) == 0 {
		return []string{"*"}
	}
	patterns := make([]string, 0, len(h.Origins))
	for _, o := range h.Origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}

func benefitParam(r *http.Request) (generic.BenefitIndex, error) {
	raw := chi.URLParam(r, "benefitId")
	idx, err := wallet.ParseBenefitDocumentKey(raw)
	if err != nil {
		return 0, &generic.ValidationError{Field: "benefitId", Message: "must be a benefit index", Value: raw}
	}
	return idx, nil
}

// decodeBody decodes JSON into dst. An empty body is accepted unless
// required is set.
func decodeBody(r *http.Request, dst any, required bool) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && !required:
		return nil
	default:
		return &generic.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, generic.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrStateConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorKind(err error) string {
	switch statusFor(err) {
	case http.StatusBadRequest:
		return "invalid"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	default:
		return "error"
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
