package invoicewatcher

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"mediator/internal/lightning"
	"mediator/internal/models"
	"mediator/internal/protocol"
)

// Handler получает события по hold-инвойсам ордеров.
type Handler interface {
	OnHoldInvoiceAccepted(ctx context.Context, orderID string) error
	OnHoldInvoiceCanceled(ctx context.Context, orderID string) error
}

// Watcher отслеживает состояние hold-инвойсов ордеров, ожидающих оплаты.
type Watcher struct {
	ln           lightning.Connector
	db           *gorm.DB
	handler      Handler
	log          *zap.Logger
	pollInterval time.Duration
	stopCh       chan struct{}
}

// New создаёт нового наблюдателя.
func New(db *gorm.DB, ln lightning.Connector, handler Handler, log *zap.Logger, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Watcher{
		ln:           ln,
		db:           db,
		handler:      handler,
		log:          log,
		pollInterval: interval,
		stopCh:       make(chan struct{}),
	}
}

// Start запускает периодический опрос.
func (w *Watcher) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	go func() {
		defer ticker.Stop()
		w.Check(ctx)
		for {
			select {
			case <-ticker.C:
				w.Check(ctx)
			case <-w.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop останавливает опрос.
func (w *Watcher) Stop() { close(w.stopCh) }

// Check один проход по ордерам в статусе waiting-payment.
func (w *Watcher) Check(ctx context.Context) {
	var orders []models.Order
	if err := w.db.WithContext(ctx).
		Where("status = ? AND hash IS NOT NULL AND hold_invoice_accepted = ?", protocol.StatusWaitingPayment, false).
		Limit(100).Find(&orders).Error; err != nil {
		w.log.Warn("load waiting orders", zap.Error(err))
		return
	}
	for _, ord := range orders {
		state, err := w.ln.InvoiceState(ctx, *ord.Hash)
		if err != nil {
			w.log.Warn("invoice state", zap.String("order", ord.ID), zap.Error(err))
			continue
		}
		switch state {
		case lightning.InvoiceAccepted:
			err = w.handler.OnHoldInvoiceAccepted(ctx, ord.ID)
		case lightning.InvoiceCanceled:
			err = w.handler.OnHoldInvoiceCanceled(ctx, ord.ID)
		default:
			continue
		}
		if err != nil {
			w.log.Warn("hold invoice event", zap.String("order", ord.ID), zap.String("state", string(state)), zap.Error(err))
		}
	}
}
