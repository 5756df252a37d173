package feed

import (
	"strings"
	"time"

	"github.com/dvloznov/finance-bridge/internal/ledger"
)

// DefaultPayee is used when a feed item carries no display name at all.
const DefaultPayee = "Starling"

// Normalizer maps feed items to ledger transactions. It does no I/O; Now is
// only consulted when an item has no timestamp.
type Normalizer struct {
	Now func() time.Time
}

// NewNormalizer returns a Normalizer using the wall clock.
func NewNormalizer() *Normalizer {
	return &Normalizer{Now: time.Now}
}

// Normalize converts item into a transaction for ledgerAccountID.
func (n *Normalizer) Normalize(item Item, ledgerAccountID string) ledger.Transaction {
	amount := item.Amount.MinorUnits
	if amount < 0 {
		amount = -amount
	}
	if item.Direction.IsOut() {
		amount = -amount
	}

	payee := Payee(item)
	notes := strings.TrimSpace(item.Reference)
	if notes == payee {
		notes = ""
	}

	return ledger.Transaction{
		Account:       ledgerAccountID,
		Date:          n.date(item),
		Amount:        amount,
		PayeeName:     payee,
		ImportedPayee: payee,
		Notes:         notes,
		ImportedID:    item.FeedItemUID,
	}
}

// Payee returns the first non-empty display name on the item.
func Payee(item Item) string {
	for _, s := range []string{item.CounterPartyName, item.MerchantName, item.Reference, item.Narrative} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return DefaultPayee
}

func (n *Normalizer) date(item Item) string {
	ts := strings.TrimSpace(item.TransactionTime)
	if ts == "" {
		ts = strings.TrimSpace(item.EventTimestamp)
	}
	if ts == "" {
		now := time.Now
		if n.Now != nil {
			now = n.Now
		}
		ts = now().UTC().Format(time.RFC3339)
	}
	if len(ts) > 10 {
		ts = ts[:10]
	}
	return ts
}
