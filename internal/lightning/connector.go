package lightning

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/pkg/errors"
)

// InvoiceState состояние hold-инвойса
type InvoiceState string

const (
	InvoiceOpen     InvoiceState = "open"
	InvoiceAccepted InvoiceState = "accepted"
	InvoiceSettled  InvoiceState = "settled"
	InvoiceCanceled InvoiceState = "canceled"
)

var (
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrInvalidState    = errors.New("invoice in invalid state")
	ErrPaymentFailed   = errors.New("payment failed")
)

// HoldInvoice выставленный продавцу hold-инвойс
type HoldInvoice struct {
	Hash           string
	Preimage       string
	PaymentRequest string
	Amount         int64
}

// Connector операции медиатора с Lightning-узлом
type Connector interface {
	CreateHoldInvoice(ctx context.Context, amount int64, description string) (*HoldInvoice, error)
	SettleHoldInvoice(ctx context.Context, preimage string) error
	CancelHoldInvoice(ctx context.Context, hash string) error
	InvoiceState(ctx context.Context, hash string) (InvoiceState, error)
	SendPayment(ctx context.Context, request string, amount int64) error
}

// New возвращает коннектор по имени бэкенда.
func New(backend string) (Connector, error) {
	switch backend {
	case "", "memory":
		return NewMemory(), nil
	default:
		return nil, errors.Errorf("unsupported lightning backend %q", backend)
	}
}

// NewPreimage случайный preimage и его хеш в hex.
func NewPreimage() (preimage, hash string, err error) {
	b := make([]byte, 32)
	if _, err = rand.Read(b); err != nil {
		return "", "", errors.Wrap(err, "read random")
	}
	preimage = hex.EncodeToString(b)
	hash, err = HashPreimage(preimage)
	return preimage, hash, err
}

// HashPreimage sha256 от preimage, оба в hex.
func HashPreimage(preimage string) (string, error) {
	b, err := hex.DecodeString(preimage)
	if err != nil {
		return "", errors.Wrap(err, "decode preimage")
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// HoldDescription описание hold-инвойса для ордера.
func HoldDescription(orderID string, amount int64) string {
	return fmt.Sprintf("Escrow amount Order #%s: %s", orderID, btcutil.Amount(amount))
}
