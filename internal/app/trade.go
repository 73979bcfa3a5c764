package app

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mediator/internal/db"
	"mediator/internal/models"
	"mediator/internal/protocol"
)

func (m *Mediator) fiatSent(ctx context.Context, req *request) error {
	ord, err := m.loadOrder(ctx, req.kind.OrderID())
	if err != nil {
		return err
	}
	if !ord.IsBuyer(req.sender) {
		return cantDo(protocol.CantDoIsNotYourOrder)
	}
	m.record(ctx, req, ord.ID)
	if err := m.transition(ctx, ord, []protocol.Status{protocol.StatusActive},
		map[string]any{"status": protocol.StatusFiatSent}); err != nil {
		return err
	}
	seller := *ord.SellerPubkey
	m.sendOrder(ctx, seller, ord, nil, protocol.ActionFiatSent, m.peer(ctx, req.sender))
	m.sendOrder(ctx, req.sender, ord, req.kind.RequestID, protocol.ActionFiatSent, m.peer(ctx, seller))
	return nil
}

func (m *Mediator) release(ctx context.Context, req *request) error {
	ord, err := m.loadOrder(ctx, req.kind.OrderID())
	if err != nil {
		return err
	}
	if !ord.IsSeller(req.sender) {
		return cantDo(protocol.CantDoIsNotYourOrder)
	}
	m.record(ctx, req, ord.ID)
	switch ord.Status {
	case protocol.StatusActive, protocol.StatusFiatSent, protocol.StatusDispute:
	default:
		return cantDo(protocol.CantDoNotAllowedByStatus)
	}
	wasDispute := ord.Status == protocol.StatusDispute
	if err := m.settle(ctx, ord, []protocol.Status{ord.Status}); err != nil {
		return err
	}
	if wasDispute {
		m.closeDispute(ctx, ord, models.DisputeStatusSettled)
	}
	m.sendOrder(ctx, req.sender, ord, req.kind.RequestID, protocol.ActionHoldInvoicePaymentSettled, orderPayload(ord))
	m.sendOrder(ctx, *ord.BuyerPubkey, ord, nil, protocol.ActionRelease, orderPayload(ord))
	m.payBuyer(ctx, ord)
	return nil
}

// settle раскрывает preimage hold-инвойса: средства продавца списаны.
func (m *Mediator) settle(ctx context.Context, ord *models.Order, from []protocol.Status) error {
	if ord.Preimage == nil {
		return errors.Errorf("order %s has no preimage", ord.ID)
	}
	if err := m.ln.SettleHoldInvoice(ctx, *ord.Preimage); err != nil {
		return errors.Wrapf(err, "settle hold invoice for %s", ord.ID)
	}
	return m.transition(ctx, ord, from, map[string]any{"status": protocol.StatusSettledHoldInvoice})
}

// payBuyer переводит покупателю сумму сделки за вычетом его половины комиссии.
func (m *Mediator) payBuyer(ctx context.Context, ord *models.Order) {
	if ord.BuyerInvoice == nil {
		m.log.Warn("buyer invoice missing", zap.String("order", ord.ID))
		return
	}
	amount := ord.PayoutAmount()
	err := m.ln.SendPayment(ctx, *ord.BuyerInvoice, amount)
	m.metrics.ObservePayment(err == nil)
	if err != nil {
		m.paymentFailed(ctx, ord, err)
		return
	}
	upd := map[string]any{"status": protocol.StatusSuccess, "failed_payment": false}
	if err := m.transition(ctx, ord, []protocol.Status{protocol.StatusSettledHoldInvoice}, upd); err != nil {
		m.log.Warn("mark order success", zap.String("order", ord.ID), zap.Error(err))
		return
	}
	m.log.Info("buyer paid", zap.String("order", ord.ID), zap.Int64("amount", amount))
	buyer, seller := *ord.BuyerPubkey, *ord.SellerPubkey
	m.sendOrder(ctx, buyer, ord, nil, protocol.ActionPurchaseCompleted, nil)
	m.sendOrder(ctx, seller, ord, nil, protocol.ActionSaleCompleted, nil)
	m.sendRate(ctx, buyer, ord, nil, protocol.ActionRateUser, nil)
	m.sendRate(ctx, seller, ord, nil, protocol.ActionRateUser, nil)
}

func (m *Mediator) paymentFailed(ctx context.Context, ord *models.Order, cause error) {
	attempts := ord.PaymentAttempts + 1
	upd := map[string]any{
		"failed_payment":          true,
		"payment_attempts":        attempts,
		"last_payment_attempt_at": m.now(),
	}
	if err := m.transition(ctx, ord, []protocol.Status{protocol.StatusSettledHoldInvoice}, upd); err != nil {
		m.log.Warn("record failed payment", zap.String("order", ord.ID), zap.Error(err))
		return
	}
	m.log.Warn("buyer payment failed",
		zap.String("order", ord.ID),
		zap.Int("attempt", attempts),
		zap.Error(cause))

	buyer := *ord.BuyerPubkey
	id := ord.ID
	reason := protocol.CantDoPaymentFailed
	m.deliver(ctx, buyer, &id, protocol.NewCantDoMessage(&id, nil, &reason))
	if attempts >= m.settings.Lightning.PaymentAttempts {
		// повторы исчерпаны: просим у покупателя новый инвойс
		amount := ord.PayoutAmount()
		m.sendOrder(ctx, buyer, ord, nil, protocol.ActionAddInvoice, &protocol.Payload{
			PaymentRequest: &protocol.PaymentRequest{Order: ord.Small(), Amount: &amount},
		})
	}
}

var canceledStatuses = []protocol.Status{
	protocol.StatusCanceled,
	protocol.StatusCooperativelyCanceled,
	protocol.StatusCanceledByAdmin,
	protocol.StatusExpired,
}

func (m *Mediator) cancel(ctx context.Context, req *request) error {
	ord, err := m.loadOrder(ctx, req.kind.OrderID())
	if err != nil {
		return err
	}
	if req.sender == ord.CreatorPubkey || ord.IsBuyer(req.sender) || ord.IsSeller(req.sender) {
		m.record(ctx, req, ord.ID)
	}
	for _, s := range canceledStatuses {
		if ord.Status == s {
			return cantDo(protocol.CantDoOrderAlreadyCanceled)
		}
	}

	switch ord.Status {
	case protocol.StatusPending:
		if ord.CreatorPubkey != req.sender {
			return cantDo(protocol.CantDoIsNotYourOrder)
		}
		if err := m.transition(ctx, ord, []protocol.Status{protocol.StatusPending},
			map[string]any{"status": protocol.StatusCanceled}); err != nil {
			return err
		}
		m.sendOrder(ctx, req.sender, ord, req.kind.RequestID, protocol.ActionCancel, nil)
		return nil

	case protocol.StatusWaitingBuyerInvoice, protocol.StatusWaitingPayment:
		return m.cancelWaiting(ctx, req, ord)

	case protocol.StatusActive, protocol.StatusFiatSent:
		return m.cooperativeCancel(ctx, req, ord)
	}
	return cantDo(protocol.CantDoNotAllowedByStatus)
}

func (m *Mediator) cancelHold(ctx context.Context, ord *models.Order) error {
	if ord.Hash == nil {
		return nil
	}
	if err := m.ln.CancelHoldInvoice(ctx, *ord.Hash); err != nil {
		return errors.Wrapf(err, "cancel hold invoice for %s", ord.ID)
	}
	return nil
}

func (m *Mediator) cancelWaiting(ctx context.Context, req *request, ord *models.Order) error {
	taker := ord.TakerPubkey()
	switch req.sender {
	case ord.CreatorPubkey:
		if err := m.cancelHold(ctx, ord); err != nil {
			return err
		}
		if err := m.transition(ctx, ord, waitingStatuses,
			map[string]any{"status": protocol.StatusCanceled}); err != nil {
			return err
		}
		m.sendOrder(ctx, req.sender, ord, req.kind.RequestID, protocol.ActionCancel, nil)
		m.sendOrder(ctx, taker, ord, nil, protocol.ActionCancel, nil)
	case taker:
		if err := m.cancelHold(ctx, ord); err != nil {
			return err
		}
		if err := m.transition(ctx, ord, waitingStatuses, republish(ord)); err != nil {
			return err
		}
		m.sendOrder(ctx, req.sender, ord, req.kind.RequestID, protocol.ActionCancel, nil)
	default:
		return cantDo(protocol.CantDoIsNotYourOrder)
	}
	return nil
}

func (m *Mediator) cooperativeCancel(ctx context.Context, req *request, ord *models.Order) error {
	if !ord.IsBuyer(req.sender) && !ord.IsSeller(req.sender) {
		return cantDo(protocol.CantDoIsNotYourOrder)
	}
	counterpart := ord.Counterpart(req.sender)
	if ord.CancelInitiatorPubkey == nil {
		res := m.db.WithContext(ctx).Model(&models.Order{}).
			Where("id = ? AND cancel_initiator_pubkey IS NULL", ord.ID).
			Update("cancel_initiator_pubkey", req.sender)
		if res.Error != nil {
			return errors.Wrap(res.Error, "update order")
		}
		if res.RowsAffected == 0 {
			return cantDo(protocol.CantDoNotAllowedByStatus)
		}
		m.sendOrder(ctx, req.sender, ord, req.kind.RequestID, protocol.ActionCooperativeCancelInitiatedByYou, nil)
		m.sendOrder(ctx, counterpart, ord, nil, protocol.ActionCooperativeCancelInitiatedByPeer, nil)
		return nil
	}
	if *ord.CancelInitiatorPubkey == req.sender {
		return cantDo(protocol.CantDoInvalidPeer)
	}
	if err := m.cancelHold(ctx, ord); err != nil {
		return err
	}
	if err := m.transition(ctx, ord, []protocol.Status{protocol.StatusActive, protocol.StatusFiatSent},
		map[string]any{"status": protocol.StatusCooperativelyCanceled}); err != nil {
		return err
	}
	m.sendOrder(ctx, req.sender, ord, req.kind.RequestID, protocol.ActionCooperativeCancelAccepted, nil)
	m.sendOrder(ctx, counterpart, ord, nil, protocol.ActionCooperativeCancelAccepted, nil)
	return nil
}

func (m *Mediator) rateUser(ctx context.Context, req *request) error {
	ord, err := m.loadOrder(ctx, req.kind.OrderID())
	if err != nil {
		return err
	}
	if ord.Status != protocol.StatusSuccess && ord.Status != protocol.StatusSettledHoldInvoice {
		return cantDo(protocol.CantDoNotAllowedByStatus)
	}
	var flag string
	switch {
	case ord.IsBuyer(req.sender):
		flag = "buyer_sent_rate"
	case ord.IsSeller(req.sender):
		flag = "seller_sent_rate"
	default:
		return cantDo(protocol.CantDoIsNotYourOrder)
	}
	m.record(ctx, req, ord.ID)
	rating, _ := req.kind.Rating()

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).Where("id = ? AND "+flag+" = ?", ord.ID, false).Update(flag, true)
		if res.Error != nil {
			return errors.Wrap(res.Error, "update order")
		}
		if res.RowsAffected == 0 {
			return cantDo(protocol.CantDoInvalidPeer)
		}
		user, err := db.FindOrCreateUser(tx, ord.Counterpart(req.sender))
		if err != nil {
			return errors.Wrap(err, "load counterpart")
		}
		user.AddRating(int(rating))
		return errors.Wrap(tx.Save(user).Error, "save rating")
	})
	if err != nil {
		return err
	}
	m.sendRate(ctx, req.sender, ord, req.kind.RequestID, protocol.ActionReceived, &protocol.Payload{RatingUser: &rating})
	return nil
}
