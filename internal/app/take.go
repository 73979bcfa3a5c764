package app

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"mediator/internal/lightning"
	"mediator/internal/models"
	"mediator/internal/protocol"
)

var waitingStatuses = []protocol.Status{protocol.StatusWaitingBuyerInvoice, protocol.StatusWaitingPayment}

// takeParams инвойс и сумма из запроса на взятие ордера
func takeParams(kind *protocol.MessageKind) (invoice string, amount int64) {
	p := kind.Payload
	if p == nil {
		return "", 0
	}
	if p.PaymentRequest != nil {
		invoice = p.PaymentRequest.Invoice
		if p.PaymentRequest.Amount != nil {
			amount = *p.PaymentRequest.Amount
		}
	}
	if p.Amount != nil {
		amount = *p.Amount
	}
	return invoice, amount
}

// prepareTake проверяет ордер и фиксирует сумму и комиссию сделки.
func (m *Mediator) prepareTake(ctx context.Context, req *request, kind protocol.OrderKind) (*models.Order, int64, error) {
	ord, err := m.loadOrder(ctx, req.kind.OrderID())
	if err != nil {
		return nil, 0, err
	}
	if ord.Kind != kind {
		return nil, 0, cantDo(protocol.CantDoInvalidOrderKind)
	}
	if ord.Status != protocol.StatusPending {
		return nil, 0, cantDo(protocol.CantDoNotAllowedByStatus)
	}
	if ord.CreatorPubkey == req.sender {
		return nil, 0, cantDo(protocol.CantDoInvalidPeer)
	}
	_, amount := takeParams(req.kind)
	if !ord.Market {
		if amount != 0 && amount != ord.Amount {
			return nil, 0, cantDo(protocol.CantDoInvalidAmount)
		}
		return ord, ord.Amount, nil
	}
	if amount == 0 {
		return nil, 0, cantDo(protocol.CantDoInvalidAmount)
	}
	if err := m.checkSats(amount); err != nil {
		return nil, 0, err
	}
	return ord, amount, nil
}

func (m *Mediator) takeSell(ctx context.Context, req *request) error {
	ord, amount, err := m.prepareTake(ctx, req, protocol.OrderKindSell)
	if err != nil {
		return err
	}
	m.record(ctx, req, ord.ID)
	fee := m.fee(amount)
	invoice, _ := takeParams(req.kind)
	if invoice != "" {
		if err := lightning.ValidatePaymentRequest(invoice, amount-fee); err != nil {
			return cantDo(protocol.CantDoInvalidInvoice)
		}
	}

	upd := map[string]any{
		"buyer_pubkey": req.sender,
		"amount":       amount,
		"fee":          fee,
		"taken_at":     m.now(),
	}
	if invoice == "" {
		upd["status"] = protocol.StatusWaitingBuyerInvoice
		if err := m.transition(ctx, ord, []protocol.Status{protocol.StatusPending}, upd); err != nil {
			return err
		}
		m.sendOrder(ctx, req.sender, ord, req.kind.RequestID, protocol.ActionAddInvoice, orderPayload(ord))
		m.sendOrder(ctx, *ord.SellerPubkey, ord, nil, protocol.ActionWaitingBuyerInvoice, nil)
		return nil
	}
	upd["buyer_invoice"] = invoice
	inv, err := m.lockHold(ctx, ord, amount, fee, []protocol.Status{protocol.StatusPending}, upd)
	if err != nil {
		return err
	}
	m.sendHoldInvoice(ctx, ord, inv, req.kind.RequestID)
	return nil
}

func (m *Mediator) takeBuy(ctx context.Context, req *request) error {
	ord, amount, err := m.prepareTake(ctx, req, protocol.OrderKindBuy)
	if err != nil {
		return err
	}
	m.record(ctx, req, ord.ID)
	fee := m.fee(amount)
	upd := map[string]any{
		"seller_pubkey": req.sender,
		"amount":        amount,
		"fee":           fee,
		"taken_at":      m.now(),
	}
	// инвойс мейкера рыночного ордера проверялся без суммы; если сумма
	// в нём не совпадает с выплатой, покупатель пришлёт новый
	if ord.BuyerInvoice != nil {
		if err := lightning.ValidatePaymentRequest(*ord.BuyerInvoice, amount-fee); err != nil {
			m.log.Info("buyer invoice does not match payout",
				zap.String("order", ord.ID), zap.Int64("payout", amount-fee), zap.Error(err))
			upd["buyer_invoice"] = nil
		}
	}
	inv, err := m.lockHold(ctx, ord, amount, fee, []protocol.Status{protocol.StatusPending}, upd)
	if err != nil {
		return err
	}
	m.sendHoldInvoice(ctx, ord, inv, req.kind.RequestID)
	return nil
}

// lockHold выставляет hold-инвойс на amount+fee и одним обновлением
// переводит ордер в waiting-payment. Пока инвойс не создан, ордер не меняется.
func (m *Mediator) lockHold(ctx context.Context, ord *models.Order, amount, fee int64, from []protocol.Status, upd map[string]any) (*lightning.HoldInvoice, error) {
	inv, err := m.ln.CreateHoldInvoice(ctx, amount+fee, lightning.HoldDescription(ord.ID, amount))
	if err != nil {
		return nil, errors.Wrap(err, "create hold invoice")
	}
	upd["hash"] = inv.Hash
	upd["preimage"] = inv.Preimage
	upd["hold_invoice_accepted"] = false
	upd["status"] = protocol.StatusWaitingPayment
	if err := m.transition(ctx, ord, from, upd); err != nil {
		if cancelErr := m.ln.CancelHoldInvoice(ctx, inv.Hash); cancelErr != nil {
			m.log.Warn("cancel unused hold invoice", zap.String("order", ord.ID), zap.Error(cancelErr))
		}
		return nil, err
	}
	return inv, nil
}

// sendHoldInvoice отправляет hold-инвойс продавцу и уведомляет покупателя.
func (m *Mediator) sendHoldInvoice(ctx context.Context, ord *models.Order, inv *lightning.HoldInvoice, requestID *uint64) {
	amount := ord.HoldAmount()
	m.sendOrder(ctx, *ord.SellerPubkey, ord, requestID, protocol.ActionPayInvoice, &protocol.Payload{
		PaymentRequest: &protocol.PaymentRequest{Order: ord.Small(), Invoice: inv.PaymentRequest, Amount: &amount},
	})
	m.sendOrder(ctx, *ord.BuyerPubkey, ord, nil, protocol.ActionWaitingSellerToPay, nil)
}

func (m *Mediator) addInvoice(ctx context.Context, req *request) error {
	ord, err := m.loadOrder(ctx, req.kind.OrderID())
	if err != nil {
		return err
	}
	if !ord.IsBuyer(req.sender) {
		return cantDo(protocol.CantDoIsNotYourOrder)
	}
	m.record(ctx, req, ord.ID)
	invoice := req.kind.Payload.PaymentRequest.Invoice
	if err := lightning.ValidatePaymentRequest(invoice, ord.PayoutAmount()); err != nil {
		return cantDo(protocol.CantDoInvalidInvoice)
	}

	// новый инвойс после неудачной выплаты
	if ord.Status == protocol.StatusSettledHoldInvoice && ord.FailedPayment {
		upd := map[string]any{"buyer_invoice": invoice, "payment_attempts": 0}
		if err := m.transition(ctx, ord, []protocol.Status{protocol.StatusSettledHoldInvoice}, upd); err != nil {
			return err
		}
		m.sendOrder(ctx, req.sender, ord, req.kind.RequestID, protocol.ActionBuyerInvoiceAccepted, orderPayload(ord))
		m.payBuyer(ctx, ord)
		return nil
	}

	if ord.Status != protocol.StatusWaitingBuyerInvoice {
		return cantDo(protocol.CantDoNotAllowedByStatus)
	}
	from := []protocol.Status{protocol.StatusWaitingBuyerInvoice}
	upd := map[string]any{"buyer_invoice": invoice}
	if ord.HoldInvoiceAccepted {
		upd["status"] = protocol.StatusActive
		if err := m.transition(ctx, ord, from, upd); err != nil {
			return err
		}
		m.sendOrder(ctx, req.sender, ord, req.kind.RequestID, protocol.ActionBuyerInvoiceAccepted, orderPayload(ord))
		m.notifyActive(ctx, ord)
		return nil
	}
	inv, err := m.lockHold(ctx, ord, ord.Amount, ord.Fee, from, upd)
	if err != nil {
		return err
	}
	m.sendOrder(ctx, req.sender, ord, req.kind.RequestID, protocol.ActionBuyerInvoiceAccepted, orderPayload(ord))
	m.sendHoldInvoice(ctx, ord, inv, nil)
	return nil
}

// notifyActive сообщает сторонам, что средства продавца заблокированы.
func (m *Mediator) notifyActive(ctx context.Context, ord *models.Order) {
	m.sendOrder(ctx, *ord.BuyerPubkey, ord, nil, protocol.ActionHoldInvoicePaymentAccepted, orderPayload(ord))
	m.sendOrder(ctx, *ord.SellerPubkey, ord, nil, protocol.ActionBuyerTookOrder, orderPayload(ord))
}

// OnHoldInvoiceAccepted продавец оплатил hold-инвойс.
func (m *Mediator) OnHoldInvoiceAccepted(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ord, err := m.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	upd := map[string]any{"hold_invoice_accepted": true}
	if ord.BuyerInvoice != nil {
		upd["status"] = protocol.StatusActive
	} else {
		upd["status"] = protocol.StatusWaitingBuyerInvoice
	}
	if err := m.transition(ctx, ord, []protocol.Status{protocol.StatusWaitingPayment}, upd); err != nil {
		return err
	}
	m.log.Info("hold invoice accepted", zap.String("order", ord.ID), zap.String("status", string(ord.Status)))
	if ord.Status == protocol.StatusActive {
		m.notifyActive(ctx, ord)
		return nil
	}
	m.sendOrder(ctx, *ord.BuyerPubkey, ord, nil, protocol.ActionAddInvoice, orderPayload(ord))
	m.sendOrder(ctx, *ord.SellerPubkey, ord, nil, protocol.ActionWaitingBuyerInvoice, nil)
	return nil
}

// OnHoldInvoiceCanceled hold-инвойс отменён до оплаты: ордер снова в книге.
func (m *Mediator) OnHoldInvoiceCanceled(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ord, err := m.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	buyer, seller := ptrValue(ord.BuyerPubkey), ptrValue(ord.SellerPubkey)
	if err := m.transition(ctx, ord, []protocol.Status{protocol.StatusWaitingPayment}, republish(ord)); err != nil {
		return err
	}
	m.sendOrder(ctx, buyer, ord, nil, protocol.ActionHoldInvoicePaymentCanceled, nil)
	m.sendOrder(ctx, seller, ord, nil, protocol.ActionHoldInvoicePaymentCanceled, nil)
	return nil
}

// republish сбрасывает взятие ордера; данные мейкера сохраняются.
func republish(ord *models.Order) map[string]any {
	upd := map[string]any{
		"status":                  protocol.StatusPending,
		"taken_at":                nil,
		"hash":                    nil,
		"preimage":                nil,
		"hold_invoice_accepted":   false,
		"cancel_initiator_pubkey": nil,
	}
	if ord.Kind == protocol.OrderKindSell {
		upd["buyer_pubkey"] = nil
		upd["buyer_invoice"] = nil
	} else {
		upd["seller_pubkey"] = nil
	}
	if ord.Market {
		upd["amount"] = 0
		upd["fee"] = 0
	}
	return upd
}

func ptrValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
