package events

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewEvent(t *testing.T) {
	ev := NewEvent(TransferCompleted, TransferEvent{FromCardID: 1, ToCardID: 2, UserID: 3, Amount: decimal.RequireFromString("40.50")})
	if ev.ID == "" || ev.Type != TransferCompleted || ev.Timestamp.IsZero() {
		t.Fatalf("unexpected envelope %+v", ev)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"amount":"40.5"`) || !strings.Contains(string(data), `"fromCardId":1`) {
		t.Fatalf("json=%s", data)
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.Publish(context.Background(), CardCreated, CardEvent{CardID: 1}); err != nil {
		t.Fatal(err)
	}
}
