package lightning

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/pkg/errors"
)

type memInvoice struct {
	HoldInvoice
	state InvoiceState
}

// Payment исходящий платёж, проведённый Memory
type Payment struct {
	Request string
	Amount  int64
}

// Memory коннектор в памяти для дев-режима и тестов.
type Memory struct {
	mu           sync.Mutex
	invoices     map[string]*memInvoice
	payments     []Payment
	failPayments bool
}

func NewMemory() *Memory {
	return &Memory{invoices: make(map[string]*memInvoice)}
}

func (m *Memory) CreateHoldInvoice(ctx context.Context, amount int64, description string) (*HoldInvoice, error) {
	preimage, hash, err := NewPreimage()
	if err != nil {
		return nil, err
	}
	raw, _ := hex.DecodeString(hash)
	req, err := encodeRequest(amount, raw)
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}
	inv := &memInvoice{
		HoldInvoice: HoldInvoice{Hash: hash, Preimage: preimage, PaymentRequest: req, Amount: amount},
		state:       InvoiceOpen,
	}
	m.mu.Lock()
	m.invoices[hash] = inv
	m.mu.Unlock()
	out := inv.HoldInvoice
	return &out, nil
}

// Accept имитирует оплату hold-инвойса продавцом.
func (m *Memory) Accept(hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[hash]
	if !ok {
		return ErrInvoiceNotFound
	}
	if inv.state != InvoiceOpen {
		return errors.Wrapf(ErrInvalidState, "accept %s invoice", inv.state)
	}
	inv.state = InvoiceAccepted
	return nil
}

func (m *Memory) SettleHoldInvoice(ctx context.Context, preimage string) error {
	hash, err := HashPreimage(preimage)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[hash]
	if !ok {
		return ErrInvoiceNotFound
	}
	if inv.state != InvoiceAccepted {
		return errors.Wrapf(ErrInvalidState, "settle %s invoice", inv.state)
	}
	inv.state = InvoiceSettled
	return nil
}

func (m *Memory) CancelHoldInvoice(ctx context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[hash]
	if !ok {
		return ErrInvoiceNotFound
	}
	if inv.state == InvoiceSettled {
		return errors.Wrapf(ErrInvalidState, "cancel %s invoice", inv.state)
	}
	inv.state = InvoiceCanceled
	return nil
}

func (m *Memory) InvoiceState(ctx context.Context, hash string) (InvoiceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[hash]
	if !ok {
		return "", ErrInvoiceNotFound
	}
	return inv.state, nil
}

func (m *Memory) SendPayment(ctx context.Context, request string, amount int64) error {
	if err := ValidatePaymentRequest(request, amount); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPayments {
		return ErrPaymentFailed
	}
	m.payments = append(m.payments, Payment{Request: request, Amount: amount})
	return nil
}

// FailPayments переключает имитацию неудачных платежей.
func (m *Memory) FailPayments(fail bool) {
	m.mu.Lock()
	m.failPayments = fail
	m.mu.Unlock()
}

// Payments проведённые платежи.
func (m *Memory) Payments() []Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Payment(nil), m.payments...)
}

// NewTestInvoice выставляет инвойс, который принимает ValidatePaymentRequest.
func NewTestInvoice(amount int64) string {
	_, hash, _ := NewPreimage()
	raw, _ := hex.DecodeString(hash)
	req, _ := encodeRequest(amount, raw)
	return req
}

var _ Connector = (*Memory)(nil)
