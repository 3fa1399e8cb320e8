/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for the wallet API. Mutation endpoints speak
  the collaborator contract the client engine expects ({success, error?,
  personality?}); read endpoints return view DTOs built from the wallet
  package.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Envelope types

TYPES:
  Mutations:
    UpdateBenefitRequest, ToggleIgnoreRequest, AnniversaryRequest,
    MutationResponse

  Wallet views:
    HoldingDTO, BenefitViewDTO, PeriodDTO, SummaryDTO, EligibilityDTO

  Catalog:
    CatalogCardDTO, CatalogCardRecordDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/catalog.go: CardJSON type
*/
package api

import (
	"github.com/warp/card-wallet/factory"
	"github.com/warp/card-wallet/generic"
	"github.com/warp/card-wallet/wallet"
)

// =============================================================================
// MUTATIONS
// =============================================================================

// UpdateBenefitRequest mirrors generic.UsageUpdate on the wire.
type UpdateBenefitRequest struct {
	Amount    generic.Money `json:"amount"`
	PeriodKey string        `json:"period_key"`
	IsFull    bool          `json:"is_full,omitempty"`
	Increment bool          `json:"increment,omitempty"`
}

type ToggleIgnoreRequest struct {
	IsIgnored bool `json:"is_ignored"`
}

// AnniversaryRequest is the body of update-anniversary and add-card.
type AnniversaryRequest struct {
	AnniversaryDate string `json:"anniversary_date"`
}

// MutationResponse is the envelope every POST endpoint answers with.
type MutationResponse struct {
	Success     bool                 `json:"success"`
	Error       string               `json:"error,omitempty"`
	Personality *generic.Personality `json:"personality,omitempty"`
}

// =============================================================================
// WALLET VIEWS
// =============================================================================

type PeriodDTO struct {
	Key         string        `json:"key"`
	Label       string        `json:"label"`
	Start       string        `json:"start"`
	End         string        `json:"end"`
	MaxValue    generic.Money `json:"max_value"`
	Used        generic.Money `json:"used"`
	Remaining   generic.Money `json:"remaining"`
	Status      string        `json:"status"`
	IsCurrent   bool          `json:"is_current"`
	IsAvailable bool          `json:"is_available"`
	IsIgnored   bool          `json:"is_ignored"`
}

type BenefitViewDTO struct {
	Index        int           `json:"index"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Kind         string        `json:"kind"`
	Frequency    string        `json:"frequency"`
	Value        generic.Money `json:"value"`
	IsIgnored    bool          `json:"is_ignored"`
	Potential    generic.Money `json:"potential"`
	UsedThisYear generic.Money `json:"used_this_year"`
	Current      *PeriodDTO    `json:"current_period,omitempty"`
}

// HoldingDTO is one held card as the wallet screen renders it.
type HoldingDTO struct {
	CardID          string           `json:"card_id"`
	Name            string           `json:"name"`
	Issuer          string           `json:"issuer"`
	AnnualFee       generic.Money    `json:"annual_fee"`
	AnniversaryDate string           `json:"anniversary_date,omitempty"`
	NextFeeDate     string           `json:"next_fee_date,omitempty"`
	CreditsUsed     generic.Money    `json:"credits_used"`
	PotentialValue  generic.Money    `json:"potential_value"`
	Benefits        []BenefitViewDTO `json:"benefits"`
}

type SummaryDTO struct {
	AsOf           string        `json:"as_of"`
	CardCount      int           `json:"card_count"`
	CreditsUsed    generic.Money `json:"credits_used"`
	AnnualFees     generic.Money `json:"annual_fees"`
	YtdPotential   generic.Money `json:"ytd_potential"`
	NetPerformance generic.Money `json:"net_performance"`
}

type EligibilityDTO struct {
	Count            int    `json:"count"`
	Limit            int    `json:"limit"`
	WindowMonths     int    `json:"window_months"`
	Eligible         bool   `json:"eligible"`
	NextEligibleDate string `json:"next_eligible_date,omitempty"`
}

// =============================================================================
// CATALOG
// =============================================================================

// CatalogCardDTO is a search result row.
type CatalogCardDTO struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Issuer            string        `json:"issuer"`
	AnnualFee         generic.Money `json:"annual_fee"`
	Categories        []string      `json:"categories,omitempty"`
	BenefitCount      int           `json:"benefit_count"`
	TotalBenefitValue generic.Money `json:"total_benefit_value"`
}

// CatalogCardRecordDTO is a stored catalog card with its definition.
type CatalogCardRecordDTO struct {
	ID        string           `json:"id"`
	Version   int              `json:"version"`
	UpdatedAt string           `json:"updated_at,omitempty"`
	Config    factory.CardJSON `json:"config"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPeriodDTO(p wallet.PeriodView) PeriodDTO {
	return PeriodDTO{
		Key:         string(p.Key),
		Label:       p.Label,
		Start:       p.Start.String(),
		End:         p.End.String(),
		MaxValue:    p.MaxValue,
		Used:        p.Used,
		Remaining:   p.Remaining,
		Status:      string(p.Status),
		IsCurrent:   p.IsCurrent,
		IsAvailable: p.IsAvailable,
		IsIgnored:   p.IsIgnored,
	}
}

func toPeriodDTOs(views []wallet.PeriodView) []PeriodDTO {
	out := make([]PeriodDTO, len(views))
	for i, p := range views {
		out[i] = toPeriodDTO(p)
	}
	return out
}

func toHoldingDTO(v wallet.CardView) HoldingDTO {
	dto := HoldingDTO{
		CardID:         string(v.Card.ID),
		Name:           v.Card.Name,
		Issuer:         v.Card.Issuer,
		AnnualFee:      v.Card.AnnualFee,
		CreditsUsed:    v.CreditsUsed,
		PotentialValue: v.PotentialValue,
		Benefits:       make([]BenefitViewDTO, 0, len(v.Benefits)),
	}
	if v.Holding.AnniversaryDate != nil {
		dto.AnniversaryDate = v.Holding.AnniversaryDate.String()
	}
	if v.NextFeeDate != nil {
		dto.NextFeeDate = v.NextFeeDate.String()
	}
	for _, b := range v.Benefits {
		bv := BenefitViewDTO{
			Index:        int(b.Benefit.Index),
			Name:         b.Benefit.Name,
			Description:  b.Benefit.Description,
			Kind:         string(b.Benefit.Kind),
			Frequency:    string(b.Benefit.Frequency),
			Value:        b.Benefit.Value,
			IsIgnored:    b.IsIgnored,
			Potential:    b.Potential,
			UsedThisYear: b.UsedThisYear,
		}
		if b.Current != nil {
			cur := toPeriodDTO(*b.Current)
			bv.Current = &cur
		}
		dto.Benefits = append(dto.Benefits, bv)
	}
	return dto
}

func toSummaryDTO(s wallet.Summary) SummaryDTO {
	return SummaryDTO{
		AsOf:           s.AsOf.String(),
		CardCount:      s.CardCount,
		CreditsUsed:    s.CreditsUsed,
		AnnualFees:     s.AnnualFees,
		YtdPotential:   s.YtdPotential,
		NetPerformance: s.NetPerformance,
	}
}

func toEligibilityDTO(e wallet.Eligibility) EligibilityDTO {
	dto := EligibilityDTO{
		Count:        e.Count,
		Limit:        e.Limit,
		WindowMonths: e.WindowMonths,
		Eligible:     e.Eligible,
	}
	if e.NextEligibleDate != nil {
		dto.NextEligibleDate = e.NextEligibleDate.String()
	}
	return dto
}

func toCatalogCardDTO(c wallet.Card) CatalogCardDTO {
	return CatalogCardDTO{
		ID:                string(c.ID),
		Name:              c.Name,
		Issuer:            c.Issuer,
		AnnualFee:         c.AnnualFee,
		Categories:        c.Categories,
		BenefitCount:      len(c.Benefits),
		TotalBenefitValue: c.TotalBenefitValue(),
	}
}
