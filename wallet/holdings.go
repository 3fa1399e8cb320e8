package wallet

import (
	"context"

	"github.com/warp/card-wallet/generic"
)

// =============================================================================
// WALLET COMPOSITION - Add, remove and re-date held cards
// =============================================================================
//
// These share the ledger's committer, timeout and in-flight guard. Dates
// arrive as strings so a missing or malformed date is a ValidationError
// raised before the network call.

// AddCard adds a catalog card to the wallet. anniversary may be blank.
func (l *UsageLedger) AddCard(ctx context.Context, cardID generic.CardID, anniversary string) (*generic.Personality, error) {
	if _, ok := l.catalog.Card(cardID); !ok {
		return nil, &generic.NotFoundError{Kind: "card", ID: string(cardID)}
	}
	date, err := generic.ParseOptionalDate("anniversary_date", anniversary)
	if err != nil {
		return nil, err
	}
	if err := l.checkNotFuture(date); err != nil {
		return nil, err
	}
	key := generic.UsageKey{CardID: cardID}
	if _, held := l.state.Holding(cardID); held {
		return nil, &generic.StateConflictError{Key: key, Reason: "card is already in the wallet"}
	}

	release, err := l.acquire(generic.OpAddCard, key)
	if err != nil {
		return nil, err
	}
	defer release()

	var personality *generic.Personality
	err = l.call(ctx, generic.OpAddCard, func(ctx context.Context) error {
		var err error
		personality, err = l.committer.AddCard(ctx, cardID, date)
		return err
	})
	if err != nil {
		l.logger.Warn("add card failed", "card_id", string(cardID), "error", err)
		return nil, err
	}

	l.state.putHolding(Holding{
		CardID:          cardID,
		Status:          HoldingActive,
		AnniversaryDate: date,
		Benefits:        map[generic.BenefitIndex]BenefitUsage{},
	})
	l.logger.Info("card added", "card_id", string(cardID))
	return personality, nil
}

// RemoveCard drops a card and its pending changes from the wallet.
func (l *UsageLedger) RemoveCard(ctx context.Context, cardID generic.CardID) (*generic.Personality, error) {
	key := generic.UsageKey{CardID: cardID}
	if _, held := l.state.Holding(cardID); !held {
		return nil, &generic.NotFoundError{Kind: "holding", ID: string(cardID)}
	}

	release, err := l.acquire(generic.OpRemoveCard, key)
	if err != nil {
		return nil, err
	}
	defer release()

	var personality *generic.Personality
	err = l.call(ctx, generic.OpRemoveCard, func(ctx context.Context) error {
		var err error
		personality, err = l.committer.RemoveCard(ctx, cardID)
		return err
	})
	if err != nil {
		l.logger.Warn("remove card failed", "card_id", string(cardID), "error", err)
		return nil, err
	}

	l.state.removeHolding(cardID)
	l.logger.Info("card removed", "card_id", string(cardID))
	return personality, nil
}

// UpdateAnniversary re-dates a held card. The date is required.
func (l *UsageLedger) UpdateAnniversary(ctx context.Context, cardID generic.CardID, anniversary string) (generic.Date, error) {
	date, err := generic.ParseDate("anniversary_date", anniversary)
	if err != nil {
		return generic.Date{}, err
	}
	if err := l.checkNotFuture(&date); err != nil {
		return generic.Date{}, err
	}
	key := generic.UsageKey{CardID: cardID}
	if _, held := l.state.Holding(cardID); !held {
		return generic.Date{}, &generic.NotFoundError{Kind: "holding", ID: string(cardID)}
	}

	release, err := l.acquire(generic.OpUpdateAnniversary, key)
	if err != nil {
		return generic.Date{}, err
	}
	defer release()

	pk := pendingKey{kind: pendingAnniversary, key: key}
	token := l.state.stage(pk, pendingEntry{anniversary: date})
	err = l.call(ctx, generic.OpUpdateAnniversary, func(ctx context.Context) error {
		return l.committer.UpdateAnniversary(ctx, cardID, date)
	})
	if err != nil {
		l.state.rollback(pk, token)
		l.logger.Warn("update anniversary failed", "card_id", string(cardID), "error", err)
		return generic.Date{}, err
	}
	l.state.confirm(pk, token)
	l.logger.Info("anniversary updated", "card_id", string(cardID), "anniversary_date", date.String())
	return date, nil
}

func (l *UsageLedger) checkNotFuture(date *generic.Date) error {
	if date != nil && date.After(l.now()) {
		return &generic.ValidationError{Field: "anniversary_date", Message: "must not be in the future", Value: date.String()}
	}
	return nil
}
