package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedPayload is returned when the payload is not a JSON object.
	ErrMalformedPayload = errors.New("payload is not a JSON object")

	// ErrMissingAccount is returned when no rule yields an account uid.
	ErrMissingAccount = errors.New("payload has no account uid")

	// ErrMissingItem is returned when no rule yields a feed item with a uid.
	ErrMissingItem = errors.New("payload has no feed item")
)

// Event is the part of a webhook delivery the bridge acts on.
type Event struct {
	AccountUID string
	Item       Item

	// AccountRule and ItemRule name the extraction rules that matched.
	AccountRule string
	ItemRule    string
}

type document struct {
	top     map[string]json.RawMessage
	content map[string]json.RawMessage
}

type rule struct {
	name    string
	extract func(document) json.RawMessage
}

// The provider has changed its envelope over time. Rules are tried in order
// and the first one that yields a value wins.
var (
	accountRules = []rule{
		{"content.accountUid", func(d document) json.RawMessage { return d.content["accountUid"] }},
		{"accountUid", func(d document) json.RawMessage { return d.top["accountUid"] }},
	}

	itemRules = []rule{
		{"content.feedItem", func(d document) json.RawMessage { return d.content["feedItem"] }},
		{"content.feedItemEvent", func(d document) json.RawMessage { return d.content["feedItemEvent"] }},
		{"content", func(d document) json.RawMessage { return d.top["content"] }},
	}
)

// Extract pulls the account uid and feed item out of a raw webhook payload.
func Extract(payload []byte) (Event, error) {
	var doc document
	if err := json.Unmarshal(payload, &doc.top); err != nil || doc.top == nil {
		return Event{}, ErrMalformedPayload
	}
	if raw, ok := doc.top["content"]; ok && isObject(raw) {
		// A content value that is not an object simply matches no content rule.
		_ = json.Unmarshal(raw, &doc.content)
	}

	var ev Event

	for _, r := range accountRules {
		var uid string
		if raw := r.extract(doc); raw != nil && json.Unmarshal(raw, &uid) == nil && strings.TrimSpace(uid) != "" {
			ev.AccountUID = uid
			ev.AccountRule = r.name
			break
		}
	}
	if ev.AccountUID == "" {
		return Event{}, ErrMissingAccount
	}

	for _, r := range itemRules {
		raw := r.extract(doc)
		if !isObject(raw) {
			continue
		}
		var item Item
		if err := json.Unmarshal(raw, &item); err != nil {
			return Event{}, fmt.Errorf("%w: rule %s: %v", ErrMissingItem, r.name, err)
		}
		if strings.TrimSpace(item.FeedItemUID) == "" {
			return Event{}, fmt.Errorf("%w: rule %s matched an item without feedItemUid", ErrMissingItem, r.name)
		}
		ev.Item = item
		ev.ItemRule = r.name
		return ev, nil
	}

	return Event{}, ErrMissingItem
}

// IsShapeMiss reports whether err means the payload did not have a usable shape.
func IsShapeMiss(err error) bool {
	return errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, ErrMissingAccount) ||
		errors.Is(err, ErrMissingItem)
}

func isObject(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return strings.HasPrefix(s, "{")
}
