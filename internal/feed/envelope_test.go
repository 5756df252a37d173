package feed

import (
	"errors"
	"testing"
)

func TestExtract_Shapes(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantAccount string
		wantItem    string
		accountRule string
		itemRule    string
	}{
		{
			name:        "content.feedItem",
			payload:     `{"content":{"accountUid":"acc-1","feedItem":{"feedItemUid":"fi-1","amount":{"minorUnits":100},"direction":"OUT"}}}`,
			wantAccount: "acc-1",
			wantItem:    "fi-1",
			accountRule: "content.accountUid",
			itemRule:    "content.feedItem",
		},
		{
			name:        "content.feedItemEvent",
			payload:     `{"content":{"accountUid":"acc-2","feedItemEvent":{"feedItemUid":"fi-2","amount":250,"direction":"IN"}}}`,
			wantAccount: "acc-2",
			wantItem:    "fi-2",
			accountRule: "content.accountUid",
			itemRule:    "content.feedItemEvent",
		},
		{
			name:        "content is the item",
			payload:     `{"webhookEventUid":"w-1","content":{"accountUid":"acc-3","feedItemUid":"fi-3","amount":{"currency":"GBP","minorUnits":999},"direction":"OUT"}}`,
			wantAccount: "acc-3",
			wantItem:    "fi-3",
			accountRule: "content.accountUid",
			itemRule:    "content",
		},
		{
			name:        "top-level accountUid",
			payload:     `{"accountUid":"acc-4","content":{"feedItem":{"feedItemUid":"fi-4"}}}`,
			wantAccount: "acc-4",
			wantItem:    "fi-4",
			accountRule: "accountUid",
			itemRule:    "content.feedItem",
		},
		{
			name:        "content account wins over top-level",
			payload:     `{"accountUid":"outer","content":{"accountUid":"inner","feedItemUid":"fi-5"}}`,
			wantAccount: "inner",
			wantItem:    "fi-5",
			accountRule: "content.accountUid",
			itemRule:    "content",
		},
		{
			name:        "null feedItem falls through",
			payload:     `{"content":{"accountUid":"acc-6","feedItem":null,"feedItemEvent":{"feedItemUid":"fi-6"}}}`,
			wantAccount: "acc-6",
			wantItem:    "fi-6",
			accountRule: "content.accountUid",
			itemRule:    "content.feedItemEvent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Extract([]byte(tt.payload))
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if ev.AccountUID != tt.wantAccount {
				t.Errorf("AccountUID = %q, want %q", ev.AccountUID, tt.wantAccount)
			}
			if ev.Item.FeedItemUID != tt.wantItem {
				t.Errorf("FeedItemUID = %q, want %q", ev.Item.FeedItemUID, tt.wantItem)
			}
			if ev.AccountRule != tt.accountRule {
				t.Errorf("AccountRule = %q, want %q", ev.AccountRule, tt.accountRule)
			}
			if ev.ItemRule != tt.itemRule {
				t.Errorf("ItemRule = %q, want %q", ev.ItemRule, tt.itemRule)
			}
		})
	}
}

func TestExtract_Misses(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"not json", `not json`, ErrMalformedPayload},
		{"json array", `[1,2]`, ErrMalformedPayload},
		{"json null", `null`, ErrMalformedPayload},
		{"no account", `{"content":{"feedItemUid":"fi-1"}}`, ErrMissingAccount},
		{"empty account", `{"content":{"accountUid":"  ","feedItemUid":"fi-1"}}`, ErrMissingAccount},
		{"numeric account", `{"accountUid":42,"content":{"feedItemUid":"fi-1"}}`, ErrMissingAccount},
		{"no content", `{"accountUid":"acc-1"}`, ErrMissingItem},
		{"content not an object", `{"accountUid":"acc-1","content":"hello"}`, ErrMissingItem},
		{"item without uid", `{"content":{"accountUid":"acc-1","feedItem":{"amount":100}}}`, ErrMissingItem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract([]byte(tt.payload))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Extract() error = %v, want %v", err, tt.wantErr)
			}
			if !IsShapeMiss(err) {
				t.Errorf("IsShapeMiss(%v) = false", err)
			}
		})
	}
}

func TestIsShapeMiss_OtherErrors(t *testing.T) {
	if IsShapeMiss(errors.New("boom")) {
		t.Error("IsShapeMiss() = true for unrelated error")
	}
}
