package wallet

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/warp/card-wallet/generic"
)

// =============================================================================
// DOCUMENT ADAPTER - Backend wallet documents <-> Holding
// =============================================================================
//
// The backend has stored wallet documents in more than one shape over time:
//
//   card id:      "id" or "card_id"
//   benefit key:  "benefit_3" or "3"
//
// DecodeHolding is the only place that knows this. Everything downstream
// works on Holding and never branches on key format. EncodeHolding always
// writes the canonical shape ("id", "benefit_N").

// Document is the canonical wire form of a held card.
type Document struct {
	ID              string                          `json:"id"`
	CardID          string                          `json:"card_id,omitempty"`
	Status          string                          `json:"status,omitempty"`
	AnniversaryDate string                          `json:"anniversary_date,omitempty"`
	BenefitUsage    map[string]BenefitUsageDocument `json:"benefit_usage,omitempty"`
}

type BenefitUsageDocument struct {
	Periods   map[string]PeriodDocument `json:"periods"`
	IsIgnored bool                      `json:"is_ignored,omitempty"`
}

type PeriodDocument struct {
	Used      generic.Money `json:"used"`
	Status    string        `json:"status,omitempty"`
	IsFull    bool          `json:"is_full,omitempty"`
	IsIgnored bool          `json:"is_ignored,omitempty"`
}

// BenefitDocumentKey is the canonical benefit_usage key for an index.
func BenefitDocumentKey(i generic.BenefitIndex) string {
	return "benefit_" + strconv.Itoa(int(i))
}

// ParseBenefitDocumentKey accepts "benefit_N" and "N".
func ParseBenefitDocumentKey(key string) (generic.BenefitIndex, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(key, "benefit_"))
	if err != nil || n < 0 {
		return 0, &generic.ValidationError{Field: "benefit_usage", Message: "unrecognized benefit key", Value: key}
	}
	return generic.BenefitIndex(n), nil
}

// DecodeHolding parses one backend document.
func DecodeHolding(data []byte) (Holding, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Holding{}, fmt.Errorf("decode wallet document: %w", err)
	}
	return doc.Holding()
}

// DecodeSnapshot parses a JSON array of documents, keeping active cards only.
func DecodeSnapshot(data []byte) ([]Holding, error) {
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode wallet snapshot: %w", err)
	}
	holdings := make([]Holding, 0, len(docs))
	for _, doc := range docs {
		h, err := doc.Holding()
		if err != nil {
			return nil, err
		}
		if h.IsActive() {
			holdings = append(holdings, h)
		}
	}
	return holdings, nil
}

// Holding normalizes the document into the canonical internal record.
func (d Document) Holding() (Holding, error) {
	id := d.ID
	if id == "" {
		id = d.CardID
	}
	if id == "" {
		return Holding{}, &generic.ValidationError{Field: "id", Message: "document has no card id"}
	}

	anniversary, err := generic.ParseOptionalDate("anniversary_date", d.AnniversaryDate)
	if err != nil {
		return Holding{}, err
	}

	h := Holding{
		CardID:          generic.CardID(id),
		Status:          d.Status,
		AnniversaryDate: anniversary,
		Benefits:        make(map[generic.BenefitIndex]BenefitUsage, len(d.BenefitUsage)),
	}

	// Sorted so that when both "benefit_2" and "2" exist the result does not
	// depend on map order: the canonical key is applied last and wins.
	keys := make([]string, 0, len(d.BenefitUsage))
	for k := range d.BenefitUsage {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		idx, err := ParseBenefitDocumentKey(k)
		if err != nil {
			return Holding{}, err
		}
		bd := d.BenefitUsage[k]
		u := h.Benefits[idx]
		if u.Periods == nil {
			u.Periods = make(map[generic.PeriodKey]UsageRecord, len(bd.Periods))
		}
		u.IsIgnored = u.IsIgnored || bd.IsIgnored
		for pk, pd := range bd.Periods {
			u.Periods[generic.PeriodKey(pk)] = pd.record()
			u.IsIgnored = u.IsIgnored || pd.IsIgnored
		}
		h.Benefits[idx] = u
	}
	return h, nil
}

func (p PeriodDocument) record() UsageRecord {
	status := ParseUsageStatus(p.Status)
	switch {
	case p.IsFull:
		status = StatusFull
	case status == "" && p.Used.IsPositive():
		status = StatusPartial
	case status == "":
		status = StatusEmpty
	}
	return UsageRecord{Used: p.Used, Status: status}
}

// EncodeHolding writes the canonical document.
func EncodeHolding(h Holding) Document {
	doc := Document{
		ID:           string(h.CardID),
		Status:       h.Status,
		BenefitUsage: make(map[string]BenefitUsageDocument, len(h.Benefits)),
	}
	if doc.Status == "" {
		doc.Status = HoldingActive
	}
	if h.AnniversaryDate != nil {
		doc.AnniversaryDate = h.AnniversaryDate.String()
	}
	for idx, u := range h.Benefits {
		bd := BenefitUsageDocument{IsIgnored: u.IsIgnored, Periods: make(map[string]PeriodDocument, len(u.Periods))}
		for pk, r := range u.Periods {
			bd.Periods[string(pk)] = PeriodDocument{
				Used:      r.Used,
				Status:    string(r.Status),
				IsFull:    r.Status == StatusFull,
				IsIgnored: u.IsIgnored,
			}
		}
		doc.BenefitUsage[BenefitDocumentKey(idx)] = bd
	}
	return doc
}

// EncodeSnapshot encodes holdings as a JSON array.
func EncodeSnapshot(holdings []Holding) ([]byte, error) {
	docs := make([]Document, len(holdings))
	for i, h := range holdings {
		docs[i] = EncodeHolding(h)
	}
	return json.Marshal(docs)
}
