/*
Package factory provides JSON/YAML to Go card catalog conversion.

PURPOSE:
  Converts catalog definitions into a wallet.Catalog. Card and benefit
  definitions change far more often than code (issuers add credits, rename
  perks, change fees), so they live in data files the backend or an operator
  can edit.

SCHEMA (JSON shown; YAML uses the same keys):
  {
    "cards": [
      {
        "id": "amex-gold",
        "name": "American Express Gold Card",
        "issuer": "American Express",
        "annual_fee": 325,
        "categories": ["dining", "groceries"],
        "benefits": [
          {
            "name": "Dining Credit",
            "value": 120,
            "frequency": "monthly",
            "kind": "credit",
            "period_values": {"2025_12": 20}
          }
        ]
      }
    ]
  }

  A bare array of cards is accepted in place of {"cards": [...]}.

KEY FEATURES:
  - Amounts may be numbers or strings and are parsed exactly (no float)
  - Unknown frequency falls back to annually, matching the backend
  - Unknown kind, negative value, duplicate id or a malformed
    period_values key is rejected with a ValidationError

USAGE:
  f := factory.NewCatalogFactory()
  catalog, err := f.LoadFile("catalog.yaml")

  // Or the bundled demo catalog
  catalog := factory.DefaultCatalog()

SEE ALSO:
  - wallet/types.go: Card, Benefit, Catalog
  - generic/period.go: Frequency and period keys
*/
package factory

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/card-wallet/generic"
	"github.com/warp/card-wallet/wallet"
)

// =============================================================================
// SCHEMA TYPES
// =============================================================================

// CatalogJSON is the file representation of a catalog.
type CatalogJSON struct {
	Cards []CardJSON `json:"cards" yaml:"cards"`
}

type CardJSON struct {
	ID         string        `json:"id" yaml:"id"`
	Name       string        `json:"name" yaml:"name"`
	Issuer     string        `json:"issuer,omitempty" yaml:"issuer"`
	AnnualFee  Amount        `json:"annual_fee" yaml:"annual_fee"`
	Categories []string      `json:"categories,omitempty" yaml:"categories"`
	Benefits   []BenefitJSON `json:"benefits" yaml:"benefits"`
}

type BenefitJSON struct {
	Name         string            `json:"name" yaml:"name"`
	Description  string            `json:"description,omitempty" yaml:"description"`
	Value        Amount            `json:"value" yaml:"value"`
	Frequency    string            `json:"frequency" yaml:"frequency"`
	Kind         string            `json:"kind,omitempty" yaml:"kind"`
	PeriodValues map[string]Amount `json:"period_values,omitempty" yaml:"period_values"`
}

// Amount keeps the literal text of a number so it converts to decimal
// without passing through float64.
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*a = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var unq string
		if err := json.Unmarshal(data, &unq); err != nil {
			return err
		}
		s = unq
	}
	*a = Amount(s)
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if a == "" {
		return []byte("0"), nil
	}
	return []byte(a), nil
}

func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: amount must be a scalar", node.Line)
	}
	*a = Amount(node.Value)
	return nil
}

func (a Amount) money(field string) (generic.Money, error) {
	if strings.TrimSpace(string(a)) == "" {
		return generic.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(string(a)))
	if err != nil {
		return generic.Zero, &generic.ValidationError{Field: field, Message: "not a number", Value: string(a)}
	}
	return generic.MoneyFromDecimal(d), nil
}

// =============================================================================
// CATALOG FACTORY
// =============================================================================

// CatalogFactory converts catalog files to a wallet.Catalog.
type CatalogFactory struct{}

func NewCatalogFactory() *CatalogFactory {
	return &CatalogFactory{}
}

// ParseJSON parses a JSON catalog ({"cards": [...]} or a bare array).
func (f *CatalogFactory) ParseJSON(data []byte) (*wallet.Catalog, error) {
	var cj CatalogJSON
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &cj.Cards); err != nil {
			return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
		}
	} else if err := json.Unmarshal(trimmed, &cj); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}
	return f.FromJSON(cj)
}

// ParseYAML parses a YAML catalog with the same keys as ParseJSON.
func (f *CatalogFactory) ParseYAML(data []byte) (*wallet.Catalog, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}

	var cj CatalogJSON
	if len(root.Content) > 0 && root.Content[0].Kind == yaml.SequenceNode {
		if err := root.Content[0].Decode(&cj.Cards); err != nil {
			return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
		}
	} else if err := root.Decode(&cj); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}
	return f.FromJSON(cj)
}

// LoadFile reads a catalog, choosing the parser by extension.
func (f *CatalogFactory) LoadFile(path string) (*wallet.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return f.ParseYAML(data)
	default:
		return f.ParseJSON(data)
	}
}

// FromJSON validates and converts a decoded catalog.
func (f *CatalogFactory) FromJSON(cj CatalogJSON) (*wallet.Catalog, error) {
	seen := make(map[string]bool, len(cj.Cards))
	cards := make([]wallet.Card, 0, len(cj.Cards))
	for i, c := range cj.Cards {
		if strings.TrimSpace(c.ID) == "" {
			return nil, &generic.ValidationError{Field: fmt.Sprintf("cards[%d].id", i), Message: "is required"}
		}
		if seen[c.ID] {
			return nil, &generic.ValidationError{Field: "cards.id", Message: "duplicate card id", Value: c.ID}
		}
		seen[c.ID] = true

		card, err := f.parseCard(c)
		if err != nil {
			return nil, fmt.Errorf("card %s: %w", c.ID, err)
		}
		cards = append(cards, card)
	}
	return wallet.NewCatalog(cards...), nil
}

func (f *CatalogFactory) parseCard(c CardJSON) (wallet.Card, error) {
	fee, err := c.AnnualFee.money("annual_fee")
	if err != nil {
		return wallet.Card{}, err
	}
	if fee.IsNegative() {
		return wallet.Card{}, &generic.ValidationError{Field: "annual_fee", Message: "must not be negative", Value: string(c.AnnualFee)}
	}

	card := wallet.Card{
		ID:         generic.CardID(c.ID),
		Name:       c.Name,
		Issuer:     c.Issuer,
		AnnualFee:  fee,
		Categories: c.Categories,
	}
	if card.Name == "" {
		card.Name = c.ID
	}

	for i, bj := range c.Benefits {
		b, err := parseBenefit(bj)
		if err != nil {
			return wallet.Card{}, fmt.Errorf("benefit %d: %w", i, err)
		}
		card.Benefits = append(card.Benefits, b)
	}
	return card, nil
}

func parseBenefit(bj BenefitJSON) (wallet.Benefit, error) {
	if strings.TrimSpace(bj.Name) == "" {
		return wallet.Benefit{}, &generic.ValidationError{Field: "name", Message: "is required"}
	}
	value, err := bj.Value.money("value")
	if err != nil {
		return wallet.Benefit{}, err
	}
	if value.IsNegative() {
		return wallet.Benefit{}, &generic.ValidationError{Field: "value", Message: "must not be negative", Value: string(bj.Value)}
	}
	kind, err := wallet.ParseBenefitKind(bj.Kind)
	if err != nil {
		return wallet.Benefit{}, err
	}
	freq := generic.ParseFrequency(bj.Frequency)

	b := wallet.Benefit{
		Name:        bj.Name,
		Description: bj.Description,
		Value:       value,
		Frequency:   freq,
		Kind:        kind,
	}

	if len(bj.PeriodValues) > 0 {
		b.PeriodOverrides = make(map[generic.PeriodKey]generic.Money, len(bj.PeriodValues))
		for k, v := range bj.PeriodValues {
			key, keyFreq, err := generic.ParsePeriodKey(k)
			if err != nil {
				return wallet.Benefit{}, err
			}
			if keyFreq != freq {
				return wallet.Benefit{}, &generic.ValidationError{Field: "period_values", Message: "key does not match frequency " + string(freq), Value: k}
			}
			m, err := v.money("period_values")
			if err != nil {
				return wallet.Benefit{}, err
			}
			b.PeriodOverrides[key] = m
		}
	}
	return b, nil
}

// ToJSON converts a catalog back to its file representation.
func (f *CatalogFactory) ToJSON(catalog *wallet.Catalog) CatalogJSON {
	var cj CatalogJSON
	for _, c := range catalog.Cards() {
		card := CardJSON{
			ID:         string(c.ID),
			Name:       c.Name,
			Issuer:     c.Issuer,
			AnnualFee:  Amount(c.AnnualFee.Value.String()),
			Categories: c.Categories,
		}
		for _, b := range c.Benefits {
			bj := BenefitJSON{
				Name:        b.Name,
				Description: b.Description,
				Value:       Amount(b.Value.Value.String()),
				Frequency:   string(b.Frequency),
				Kind:        string(b.Kind),
			}
			if len(b.PeriodOverrides) > 0 {
				bj.PeriodValues = make(map[string]Amount, len(b.PeriodOverrides))
				for k, v := range b.PeriodOverrides {
					bj.PeriodValues[string(k)] = Amount(v.Value.String())
				}
			}
			card.Benefits = append(card.Benefits, bj)
		}
		cj.Cards = append(cj.Cards, card)
	}
	return cj
}

// =============================================================================
// BUNDLED CATALOG
// =============================================================================

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// DefaultCatalog returns the bundled demo catalog. It panics if the bundled
// file is invalid, which a test guards against.
func DefaultCatalog() *wallet.Catalog {
	c, err := NewCatalogFactory().ParseYAML(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("bundled catalog: %v", err))
	}
	return c
}
