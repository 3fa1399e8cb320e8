package wallet

import (
	"github.com/warp/card-wallet/generic"
)

// =============================================================================
// USAGE RECORD - State machine for one (card, benefit, period)
// =============================================================================
//
//   empty ──logUsage(x>0)──▶ partial ──logUsage(x>=max)──▶ full
//     ▲                         │                            │
//     └────────── reset() ──────┴────────────────────────────┘
//
// The ignore flag is orthogonal and lives on BenefitUsage.

type UsageStatus string

const (
	StatusEmpty   UsageStatus = "empty"
	StatusPartial UsageStatus = "partial"
	StatusFull    UsageStatus = "full"
)

// ParseUsageStatus maps unknown or blank values to "".
func ParseUsageStatus(s string) UsageStatus {
	switch st := UsageStatus(s); st {
	case StatusEmpty, StatusPartial, StatusFull:
		return st
	default:
		return ""
	}
}

type UsageRecord struct {
	Used      generic.Money
	Status    UsageStatus
	IsIgnored bool
}

// StatusFor derives the status of a used amount against a period maximum.
func StatusFor(used, max generic.Money) UsageStatus {
	switch {
	case !used.IsPositive():
		return StatusEmpty
	case used.GreaterThanOrEqual(max):
		return StatusFull
	default:
		return StatusPartial
	}
}

// LogUsage overwrites the used amount. Zero clears the record.
func (r UsageRecord) LogUsage(amount, max generic.Money) (UsageRecord, error) {
	if amount.IsNegative() {
		return r, &generic.ValidationError{Field: "amount", Message: "must not be negative", Value: amount.Display()}
	}
	r.Used = amount
	r.Status = StatusFor(amount, max)
	return r, nil
}

// MarkFull sets the record to the period maximum. Idempotent.
func (r UsageRecord) MarkFull(max generic.Money) UsageRecord {
	r.Used = max
	r.Status = StatusFull
	return r
}

// Reset clears usage and keeps the ignore flag.
func (r UsageRecord) Reset() UsageRecord {
	r.Used = generic.Zero
	r.Status = StatusEmpty
	return r
}

// Remaining is what can still be used this period, never negative.
func (r UsageRecord) Remaining(max generic.Money) generic.Money {
	left := max.Sub(r.Used)
	if left.IsNegative() {
		return generic.Zero
	}
	return left
}
