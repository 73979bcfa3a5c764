package invoicewatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"mediator/internal/lightning"
	"mediator/internal/models"
	"mediator/internal/protocol"
)

type recorder struct {
	mu       sync.Mutex
	accepted []string
	canceled []string
}

func (r *recorder) OnHoldInvoiceAccepted(ctx context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted = append(r.accepted, orderID)
	return nil
}

func (r *recorder) OnHoldInvoiceCanceled(ctx context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.canceled = append(r.canceled, orderID)
	return nil
}

func TestWatcherReportsStates(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:invoicewatcher?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("db open: %v", err)
	}
	if err := db.AutoMigrate(&models.Order{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	ln := lightning.NewMemory()

	mk := func() (models.Order, *lightning.HoldInvoice) {
		inv, err := ln.CreateHoldInvoice(ctx, 1000, "test")
		if err != nil {
			t.Fatalf("invoice: %v", err)
		}
		ord := models.Order{
			Kind: protocol.OrderKindSell, Status: protocol.StatusWaitingPayment, Amount: 1000,
			FiatCode: "USD", PaymentMethod: "bank", CreatorPubkey: "maker", Hash: &inv.Hash,
			ExpiresAt: time.Now().Add(time.Hour),
		}
		if err := db.Create(&ord).Error; err != nil {
			t.Fatalf("order: %v", err)
		}
		return ord, inv
	}
	accepted, acceptedInv := mk()
	canceled, canceledInv := mk()
	open, _ := mk()

	if err := ln.Accept(acceptedInv.Hash); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := ln.CancelHoldInvoice(ctx, canceledInv.Hash); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	rec := &recorder{}
	w := New(db, ln, rec, zap.NewNop(), time.Hour)
	w.Check(ctx)

	if len(rec.accepted) != 1 || rec.accepted[0] != accepted.ID {
		t.Fatalf("accepted: %v", rec.accepted)
	}
	if len(rec.canceled) != 1 || rec.canceled[0] != canceled.ID {
		t.Fatalf("canceled: %v", rec.canceled)
	}
	for _, id := range append(rec.accepted, rec.canceled...) {
		if id == open.ID {
			t.Fatalf("open invoice reported")
		}
	}
}
