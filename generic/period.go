package generic

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SPAN - Inclusive date range
// =============================================================================

type Span struct {
	Start Date
	End   Date
}

// Contains returns true if the date is within [Start, End].
func (s Span) Contains(d Date) bool {
	return d.AfterOrEqual(s.Start) && d.BeforeOrEqual(s.End)
}

func (s Span) String() string {
	return "[" + s.Start.String() + ", " + s.End.String() + "]"
}

// =============================================================================
// FREQUENCY - How often a benefit resets
// =============================================================================

type Frequency string

const (
	Monthly      Frequency = "monthly"
	Quarterly    Frequency = "quarterly"
	SemiAnnually Frequency = "semi_annually"
	Annually     Frequency = "annually"
)

// ParseFrequency normalizes catalog spellings. Anything unrecognized resets
// once a year.
func ParseFrequency(s string) Frequency {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)) {
	case "monthly":
		return Monthly
	case "quarterly":
		return Quarterly
	case "semiannually", "semiannual", "biannually", "halfyearly":
		return SemiAnnually
	default:
		return Annually
	}
}

// PeriodsPerYear returns how many periods partition a calendar year.
func (f Frequency) PeriodsPerYear() int {
	switch f {
	case Monthly:
		return 12
	case Quarterly:
		return 4
	case SemiAnnually:
		return 2
	default:
		return 1
	}
}

// =============================================================================
// PERIOD - One reset-cycle instance of a benefit
// =============================================================================

// PeriodKey formats: "2025", "2025_03", "2025_Q2", "2025_H1".
type PeriodKey string

// Year returns the calendar year prefix of the key, or 0 if malformed.
func (k PeriodKey) Year() int {
	s := string(k)
	if i := strings.IndexByte(s, '_'); i >= 0 {
		s = s[:i]
	}
	y, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return y
}

// Period is generated on demand and never stored.
type Period struct {
	Span
	Key         PeriodKey
	Label       string
	MaxValue    Money
	IsCurrent   bool
	IsAvailable bool
}

// Entitlement is what period generation needs to know about a benefit.
type Entitlement struct {
	Value     Money
	Frequency Frequency
	Overrides map[PeriodKey]Money
}

// GeneratePeriods partitions the calendar year of now into the benefit's
// reset periods, in chronological order.
//
// A period ending before the first day of the anniversary month is not
// available: the card did not exist yet. With no anniversary every period
// is available.
func GeneratePeriods(e Entitlement, anniversary *Date, now Date) []Period {
	year := now.Year()
	n := e.Frequency.PeriodsPerYear()
	monthsPer := 12 / n
	share := e.Value.Div(decimal.NewFromInt(int64(n)))

	var openedMonth Date
	if anniversary != nil {
		openedMonth = StartOfMonth(anniversary.Year(), anniversary.Month())
	}

	periods := make([]Period, 0, n)
	for i := 0; i < n; i++ {
		first := time.Month(i*monthsPer + 1)
		last := first + time.Month(monthsPer-1)
		span := Span{Start: StartOfMonth(year, first), End: EndOfMonth(year, last)}
		key := periodKey(e.Frequency, year, i+1)

		maxValue := share
		if v, ok := e.Overrides[key]; ok {
			maxValue = v
		}

		periods = append(periods, Period{
			Span:        span,
			Key:         key,
			Label:       periodLabel(e.Frequency, year, i+1),
			MaxValue:    maxValue,
			IsCurrent:   span.Contains(now),
			IsAvailable: anniversary == nil || !span.End.Before(openedMonth),
		})
	}
	return periods
}

// CurrentPeriod returns the period flagged current.
func CurrentPeriod(periods []Period) (Period, bool) {
	for _, p := range periods {
		if p.IsCurrent {
			return p, true
		}
	}
	return Period{}, false
}

// PeriodsToDate returns the periods from the start of the year through the
// current one, inclusive.
func PeriodsToDate(periods []Period) []Period {
	for i, p := range periods {
		if p.IsCurrent {
			return periods[:i+1]
		}
	}
	return periods
}

// FindPeriod looks a period up by key.
func FindPeriod(periods []Period, key PeriodKey) (Period, bool) {
	for _, p := range periods {
		if p.Key == key {
			return p, true
		}
	}
	return Period{}, false
}

// PeriodKeyFor returns the key of the period of the given frequency that
// contains d.
func PeriodKeyFor(f Frequency, d Date) PeriodKey {
	monthsPer := 12 / f.PeriodsPerYear()
	return periodKey(f, d.Year(), (int(d.Month())-1)/monthsPer+1)
}

// ParsePeriodKey validates a key and reports the frequency its format
// implies.
func ParsePeriodKey(s string) (PeriodKey, Frequency, error) {
	bad := &ValidationError{Field: "period_key", Message: "expected YYYY, YYYY_MM, YYYY_Qn or YYYY_Hn", Value: s}
	yearPart, rest, hasRest := strings.Cut(s, "_")
	if len(yearPart) != 4 {
		return "", "", bad
	}
	if _, err := strconv.Atoi(yearPart); err != nil {
		return "", "", bad
	}
	if !hasRest {
		return PeriodKey(s), Annually, nil
	}

	freq, digits := Monthly, rest
	limit := 12
	switch {
	case strings.HasPrefix(rest, "Q"):
		freq, digits, limit = Quarterly, rest[1:], 4
	case strings.HasPrefix(rest, "H"):
		freq, digits, limit = SemiAnnually, rest[1:], 2
	case len(rest) != 2:
		return "", "", bad
	}
	idx, err := strconv.Atoi(digits)
	if err != nil || idx < 1 || idx > limit {
		return "", "", bad
	}
	return PeriodKey(s), freq, nil
}

func periodKey(f Frequency, year, index int) PeriodKey {
	switch f {
	case Monthly:
		return PeriodKey(fmt.Sprintf("%d_%02d", year, index))
	case Quarterly:
		return PeriodKey(fmt.Sprintf("%d_Q%d", year, index))
	case SemiAnnually:
		return PeriodKey(fmt.Sprintf("%d_H%d", year, index))
	default:
		return PeriodKey(strconv.Itoa(year))
	}
}

func periodLabel(f Frequency, year, index int) string {
	switch f {
	case Monthly:
		return fmt.Sprintf("%s %d", time.Month(index), year)
	case Quarterly:
		return fmt.Sprintf("Q%d %d", index, year)
	case SemiAnnually:
		return fmt.Sprintf("H%d %d", index, year)
	default:
		return strconv.Itoa(year)
	}
}

// =============================================================================
// MEMBERSHIP YEAR - Anniversary-anchored year, used for annual fee timing
// =============================================================================

// MembershipYear returns the anniversary-to-anniversary span containing
// date. The annual fee posts on Start.
func MembershipYear(anchor, date Date) Span {
	yearsElapsed := date.Year() - anchor.Year()
	start := anchor.AddYears(yearsElapsed)

	// Before this year's anniversary we are still in the previous cycle
	if date.Before(start) {
		yearsElapsed--
		start = anchor.AddYears(yearsElapsed)
	}
	return Span{Start: start, End: anchor.AddYears(yearsElapsed + 1).AddDays(-1)}
}

// NextAnniversary returns the first anniversary strictly after date.
func NextAnniversary(anchor, date Date) Date {
	return MembershipYear(anchor, date).End.AddDays(1)
}
