package app

import (
	"context"
	"strings"

	"github.com/biter777/countries"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"mediator/internal/lightning"
	"mediator/internal/models"
	"mediator/internal/protocol"
)

func (m *Mediator) loadOrder(ctx context.Context, id string) (*models.Order, error) {
	var ord models.Order
	err := m.db.WithContext(ctx).Where("id = ?", id).First(&ord).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, cantDo(protocol.CantDoNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load order")
	}
	return &ord, nil
}

// transition меняет статус ордера только из перечисленных статусов и
// перечитывает ордер. Гонка с другим переходом даёт not-allowed-by-status.
func (m *Mediator) transition(ctx context.Context, ord *models.Order, from []protocol.Status, upd map[string]any) error {
	res := m.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status IN ?", ord.ID, from).
		Updates(upd)
	if res.Error != nil {
		return errors.Wrap(res.Error, "update order")
	}
	if res.RowsAffected == 0 {
		return cantDo(protocol.CantDoNotAllowedByStatus)
	}
	return m.db.WithContext(ctx).Where("id = ?", ord.ID).First(ord).Error
}

func (m *Mediator) fee(amount int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromFloat(m.settings.Mediator.Fee)).
		Div(decimal.NewFromInt(2)).
		Round(0).IntPart()
}

func (m *Mediator) checkSats(amount int64) error {
	if amount < m.settings.Mediator.MinPaymentAmount || amount > m.settings.Mediator.MaxOrderAmount {
		return cantDo(protocol.CantDoOutOfRangeSatsAmount)
	}
	return nil
}

// validFiat код ISO 4217, не отключённый в таблице валют
func (m *Mediator) validFiat(ctx context.Context, code string) bool {
	code = strings.ToUpper(code)
	cc := countries.CurrencyCodeByName(code)
	if !cc.IsValid() || cc.Alpha() != code {
		return false
	}
	var cur models.Currency
	err := m.db.WithContext(ctx).Where("code = ?", code).First(&cur).Error
	if err == nil {
		return cur.Enabled
	}
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func (m *Mediator) newOrder(ctx context.Context, req *request) error {
	so := req.kind.Payload.Order
	if !so.Kind.IsValid() {
		return cantDo(protocol.CantDoInvalidOrderKind)
	}
	if !m.validFiat(ctx, so.FiatCode) {
		return cantDo(protocol.CantDoInvalidFiatCurrency)
	}
	maxFiat := decimal.NewFromFloat(m.settings.Mediator.MaxFiatAmount)
	if !so.FiatAmount.IsPositive() || so.FiatAmount.GreaterThan(maxFiat) {
		return cantDo(protocol.CantDoOutOfRangeFiatAmount)
	}
	if so.Amount < 0 {
		return cantDo(protocol.CantDoInvalidAmount)
	}
	market := so.Amount == 0
	if !market {
		if so.Premium != 0 {
			return cantDo(protocol.CantDoInvalidParameters)
		}
		if err := m.checkSats(so.Amount); err != nil {
			return err
		}
	}
	if strings.TrimSpace(so.PaymentMethod) == "" {
		return cantDo(protocol.CantDoInvalidParameters)
	}

	now := m.now()
	ord := models.Order{
		Kind:          so.Kind,
		Status:        protocol.StatusPending,
		Amount:        so.Amount,
		FiatCode:      strings.ToUpper(so.FiatCode),
		FiatAmount:    so.FiatAmount,
		PaymentMethod: so.PaymentMethod,
		Premium:       so.Premium,
		Market:        market,
		CreatorPubkey: req.sender,
		ExpiresAt:     now.Add(m.settings.OrderExpiration()),
	}
	if !market {
		ord.Fee = m.fee(so.Amount)
	}
	creator := req.sender
	if so.Kind == protocol.OrderKindSell {
		ord.SellerPubkey = &creator
	} else {
		ord.BuyerPubkey = &creator
		if so.BuyerInvoice != nil && *so.BuyerInvoice != "" {
			expected := int64(0)
			if !market {
				expected = ord.PayoutAmount()
			}
			if err := lightning.ValidatePaymentRequest(*so.BuyerInvoice, expected); err != nil {
				return cantDo(protocol.CantDoInvalidInvoice)
			}
			inv := *so.BuyerInvoice
			ord.BuyerInvoice = &inv
		}
	}
	if err := m.db.WithContext(ctx).Create(&ord).Error; err != nil {
		return errors.Wrap(err, "create order")
	}
	m.record(ctx, req, ord.ID)
	m.sendOrder(ctx, req.sender, &ord, req.kind.RequestID, protocol.ActionOrder, orderPayload(&ord))
	return nil
}
