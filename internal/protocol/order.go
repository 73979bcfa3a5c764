package protocol

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderKind сторона мейкера
type OrderKind string

const (
	OrderKindBuy  OrderKind = "buy"
	OrderKindSell OrderKind = "sell"
)

func (k OrderKind) IsValid() bool { return k == OrderKindBuy || k == OrderKindSell }

// Status статус ордера
type Status string

const (
	StatusPending               Status = "pending"
	StatusWaitingBuyerInvoice   Status = "waiting-buyer-invoice"
	StatusWaitingPayment        Status = "waiting-payment"
	StatusActive                Status = "active"
	StatusFiatSent              Status = "fiat-sent"
	StatusSettledHoldInvoice    Status = "settled-hold-invoice"
	StatusSuccess               Status = "success"
	StatusCanceled              Status = "canceled"
	StatusCooperativelyCanceled Status = "cooperatively-canceled"
	StatusCanceledByAdmin       Status = "canceled-by-admin"
	StatusDispute               Status = "dispute"
	StatusExpired               Status = "expired"
)

// SmallOrder представление ордера внутри полезной нагрузки сообщения
type SmallOrder struct {
	ID            *string         `json:"id,omitempty"`
	Kind          OrderKind       `json:"kind"`
	Status        Status          `json:"status,omitempty"`
	Amount        int64           `json:"amount"`
	FiatCode      string          `json:"fiat_code"`
	FiatAmount    decimal.Decimal `json:"fiat_amount"`
	PaymentMethod string          `json:"payment_method"`
	Premium       int64           `json:"premium"`
	BuyerInvoice  *string         `json:"buyer_invoice,omitempty"`
	BuyerPubkey   *string         `json:"buyer_pubkey,omitempty"`
	SellerPubkey  *string         `json:"seller_pubkey,omitempty"`
	CreatedAt     *time.Time      `json:"created_at,omitempty"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
}
