// Package feed models the bank's real-time feed items and maps them onto
// ledger transactions.
package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Direction is the money flow of a feed item.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// IsOut reports whether the item is an outflow. Comparison ignores case.
func (d Direction) IsOut() bool {
	return strings.EqualFold(string(d), string(DirectionOut))
}

// Amount is a non-negative magnitude in minor units. The feed sends it either
// as a bare number or as an object with a minorUnits field.
type Amount struct {
	MinorUnits int64
	Currency   string
}

// UnmarshalJSON accepts 1234, 12.6 (rounded), {"minorUnits":1234} and
// {"currency":"GBP","minorUnits":1234}. Signs are dropped.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}

	if data[0] == '{' {
		var obj struct {
			MinorUnits *float64 `json:"minorUnits"`
			Currency   string   `json:"currency"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("amount: %w", err)
		}
		*a = Amount{Currency: obj.Currency}
		if obj.MinorUnits != nil {
			a.MinorUnits = magnitude(*obj.MinorUnits)
		}
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	*a = Amount{MinorUnits: magnitude(n)}
	return nil
}

// MarshalJSON writes the structured form.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Currency   string `json:"currency,omitempty"`
		MinorUnits int64  `json:"minorUnits"`
	}{a.Currency, a.MinorUnits})
}

func magnitude(v float64) int64 {
	return int64(math.Round(math.Abs(v)))
}

// Item is one transaction event from the bank's feed.
type Item struct {
	FeedItemUID      string    `json:"feedItemUid"`
	Amount           Amount    `json:"amount"`
	Direction        Direction `json:"direction"`
	TransactionTime  string    `json:"transactionTime,omitempty"`
	EventTimestamp   string    `json:"eventTimestamp,omitempty"`
	CounterPartyName string    `json:"counterPartyName,omitempty"`
	MerchantName     string    `json:"merchantName,omitempty"`
	Reference        string    `json:"reference,omitempty"`
	Narrative        string    `json:"narrative,omitempty"`
	Source           string    `json:"source,omitempty"`
}
