package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"mediator/internal/db"
	"mediator/internal/models"
	"mediator/internal/protocol"
)

func TestGetCurrencies(t *testing.T) {
	gdb, r, _ := setupTest(t)
	if err := db.SeedCurrencies(gdb); err != nil {
		t.Fatalf("seed: %v", err)
	}
	gdb.Model(&models.Currency{}).Where("code = ?", "EUR").Update("enabled", false)

	w := doRequest(r, "GET", "/currencies", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var list []models.Currency
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("parse: %v", err)
	}
	codes := make(map[string]bool)
	for _, c := range list {
		codes[c.Code] = true
	}
	if !codes["USD"] {
		t.Fatalf("USD missing")
	}
	if codes["EUR"] {
		t.Fatalf("disabled currency listed")
	}
}

func TestListOrders(t *testing.T) {
	gdb, r, _ := setupTest(t)
	base := time.Now()
	orders := []models.Order{
		{Kind: protocol.OrderKindSell, Status: protocol.StatusPending, Amount: 10_000, FiatCode: "USD"},
		{Kind: protocol.OrderKindBuy, Status: protocol.StatusPending, Amount: 20_000, FiatCode: "EUR"},
		{Kind: protocol.OrderKindSell, Status: protocol.StatusActive, Amount: 30_000, FiatCode: "USD"},
	}
	for i := range orders {
		orders[i].FiatAmount = decimal.NewFromInt(100)
		orders[i].PaymentMethod = "sepa"
		orders[i].CreatorPubkey = "pk"
		orders[i].ExpiresAt = base.Add(time.Hour)
		orders[i].CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := gdb.Create(&orders[i]).Error; err != nil {
			t.Fatalf("create order: %v", err)
		}
	}

	list := func(query string) []models.Order {
		t.Helper()
		w := doRequest(r, "GET", "/orders"+query, "", "")
		if w.Code != http.StatusOK {
			t.Fatalf("list %s status %d", query, w.Code)
		}
		var out []models.Order
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("parse: %v", err)
		}
		return out
	}

	if got := list(""); len(got) != 2 || got[0].ID != orders[1].ID {
		t.Fatalf("unexpected book %+v", got)
	}
	if got := list("?kind=sell"); len(got) != 1 || got[0].ID != orders[0].ID {
		t.Fatalf("kind filter %+v", got)
	}
	if got := list("?fiat_code=eur"); len(got) != 1 || got[0].ID != orders[1].ID {
		t.Fatalf("fiat filter %+v", got)
	}
	if got := list("?limit=1&offset=1"); len(got) != 1 || got[0].ID != orders[0].ID {
		t.Fatalf("pagination %+v", got)
	}
	if w := doRequest(r, "GET", "/orders?kind=swap", "", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid kind status %d", w.Code)
	}

	w := doRequest(r, "GET", "/orders/"+orders[2].ID, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status %d", w.Code)
	}
	if w := doRequest(r, "GET", "/orders/missing", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing status %d", w.Code)
	}
}
