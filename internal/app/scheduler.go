package app

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"mediator/internal/lightning"
	"mediator/internal/models"
	"mediator/internal/protocol"
)

// Scheduler периодически снимает просроченные ордера, возвращает в книгу
// брошенные сделки и повторяет неудачные выплаты.
type Scheduler struct {
	m        *Mediator
	interval time.Duration
	stopCh   chan struct{}
}

func NewScheduler(m *Mediator, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{m: m, interval: interval, stopCh: make(chan struct{})}
}

// Start запускает периодическую проверку в отдельной горутине
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop останавливает проверку
func (s *Scheduler) Stop() { close(s.stopCh) }

func (s *Scheduler) RunOnce(ctx context.Context) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.expirePending(ctx)
	s.m.revertTaken(ctx)
	s.m.retryPayments(ctx)

	var pending int64
	if err := s.m.db.WithContext(ctx).Model(&models.Order{}).
		Where("status = ?", protocol.StatusPending).Count(&pending).Error; err == nil {
		s.m.metrics.SetPendingOrders(pending)
	}
}

// expirePending снимает опубликованные ордера с истёкшим сроком.
func (m *Mediator) expirePending(ctx context.Context) {
	var orders []models.Order
	if err := m.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", protocol.StatusPending, m.now()).
		Limit(100).Find(&orders).Error; err != nil {
		m.log.Warn("load expired orders", zap.Error(err))
		return
	}
	for i := range orders {
		ord := &orders[i]
		if err := m.transition(ctx, ord, []protocol.Status{protocol.StatusPending},
			map[string]any{"status": protocol.StatusExpired}); err != nil {
			continue
		}
		m.log.Info("order expired", zap.String("order", ord.ID))
		m.sendOrder(ctx, ord.CreatorPubkey, ord, nil, protocol.ActionCancel, nil)
	}
}

// revertTaken возвращает в книгу ордера, по которым не пришли оплата или инвойс.
func (m *Mediator) revertTaken(ctx context.Context) {
	deadline := m.now().Add(-m.settings.TakenExpiration())
	var orders []models.Order
	if err := m.db.WithContext(ctx).
		Where("status IN ? AND taken_at <= ?", waitingStatuses, deadline).
		Limit(100).Find(&orders).Error; err != nil {
		m.log.Warn("load taken orders", zap.Error(err))
		return
	}
	for i := range orders {
		ord := &orders[i]
		buyer, seller := ptrValue(ord.BuyerPubkey), ptrValue(ord.SellerPubkey)
		// средства продавца ещё заблокированы: повторим на следующем тике
		if err := m.cancelHold(ctx, ord); err != nil && !errors.Is(err, lightning.ErrInvoiceNotFound) {
			m.log.Warn("cancel hold invoice", zap.String("order", ord.ID), zap.Error(err))
			continue
		}
		if err := m.transition(ctx, ord, waitingStatuses, republish(ord)); err != nil {
			continue
		}
		m.log.Info("taken order returned to the book", zap.String("order", ord.ID))
		m.sendOrder(ctx, buyer, ord, nil, protocol.ActionHoldInvoicePaymentCanceled, nil)
		m.sendOrder(ctx, seller, ord, nil, protocol.ActionHoldInvoicePaymentCanceled, nil)
	}
}

// retryPayments повторяет выплаты покупателям не чаще payment_retries_interval.
func (m *Mediator) retryPayments(ctx context.Context) {
	deadline := m.now().Add(-m.settings.Lightning.PaymentRetriesInterval)
	var orders []models.Order
	if err := m.db.WithContext(ctx).
		Where("status = ? AND failed_payment = ? AND payment_attempts < ? AND last_payment_attempt_at <= ?",
			protocol.StatusSettledHoldInvoice, true, m.settings.Lightning.PaymentAttempts, deadline).
		Limit(100).Find(&orders).Error; err != nil {
		m.log.Warn("load failed payments", zap.Error(err))
		return
	}
	for i := range orders {
		m.payBuyer(ctx, &orders[i])
	}
}
