package app

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediator/internal/db"
	"mediator/internal/lightning"
	"mediator/internal/models"
	"mediator/internal/protocol"
)

func TestSellOrderHappyPath(t *testing.T) {
	e := newTestEnv(t)
	seller, buyer := e.keys(), e.keys()

	ord := e.createOrder(seller, protocol.OrderKindSell, 10_000)
	assert.Equal(t, protocol.StatusPending, ord.Status)
	assert.Equal(t, int64(30), ord.Fee)
	assert.True(t, ord.IsSeller(seller.PublicKey()))
	reply, ok := e.out.last(seller.PublicKey(), protocol.ActionOrder)
	require.True(t, ok)
	assert.Equal(t, ord.ID, *reply.Inner().Payload.Order.ID)

	e.trade(buyer, &ord.ID, protocol.ActionTakeSell, &protocol.Payload{
		PaymentRequest: &protocol.PaymentRequest{Invoice: lightning.NewTestInvoice(0)},
	})
	ord = e.reload(ord)
	assert.Equal(t, protocol.StatusWaitingPayment, ord.Status)
	pay, ok := e.out.last(seller.PublicKey(), protocol.ActionPayInvoice)
	require.True(t, ok)
	pr := pay.Inner().Payload.PaymentRequest
	assert.NotEmpty(t, pr.Invoice)
	assert.Equal(t, int64(10_030), *pr.Amount)
	_, ok = e.out.last(buyer.PublicKey(), protocol.ActionWaitingSellerToPay)
	assert.True(t, ok)

	e.acceptHold(ord)
	assert.Equal(t, protocol.StatusActive, e.reload(ord).Status)
	_, ok = e.out.last(buyer.PublicKey(), protocol.ActionHoldInvoicePaymentAccepted)
	assert.True(t, ok)
	_, ok = e.out.last(seller.PublicKey(), protocol.ActionBuyerTookOrder)
	assert.True(t, ok)

	e.order(buyer, ord.ID, protocol.ActionFiatSent, nil)
	assert.Equal(t, protocol.StatusFiatSent, e.reload(ord).Status)
	_, ok = e.out.last(seller.PublicKey(), protocol.ActionFiatSent)
	assert.True(t, ok)

	e.order(seller, ord.ID, protocol.ActionRelease, nil)
	ord = e.reload(ord)
	assert.Equal(t, protocol.StatusSuccess, ord.Status)
	payments := e.ln.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, int64(9_970), payments[0].Amount)
	state, err := e.ln.InvoiceState(e.ctx, *ord.Hash)
	require.NoError(t, err)
	assert.Equal(t, lightning.InvoiceSettled, state)

	for _, want := range []struct {
		to     string
		action protocol.Action
	}{
		{seller.PublicKey(), protocol.ActionHoldInvoicePaymentSettled},
		{buyer.PublicKey(), protocol.ActionRelease},
		{buyer.PublicKey(), protocol.ActionPurchaseCompleted},
		{seller.PublicKey(), protocol.ActionSaleCompleted},
		{buyer.PublicKey(), protocol.ActionRateUser},
		{seller.PublicKey(), protocol.ActionRateUser},
	} {
		_, ok := e.out.last(want.to, want.action)
		assert.True(t, ok, want.action.String())
	}

	rating := uint8(4)
	e.order(buyer, ord.ID, protocol.ActionRateUser, &protocol.Payload{RatingUser: &rating})
	_, ok = e.out.last(buyer.PublicKey(), protocol.ActionReceived)
	assert.True(t, ok)
	user, err := db.FindUser(e.db, seller.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.TotalReviews)
	assert.Equal(t, 4.0, user.TotalRating)
	assert.Equal(t, 4, user.MinRating)
	assert.Equal(t, 4, user.MaxRating)

	e.order(buyer, ord.ID, protocol.ActionRateUser, &protocol.Payload{RatingUser: &rating})
	assert.Equal(t, protocol.CantDoInvalidPeer, e.out.cantDo(buyer.PublicKey()))
}

func TestTakeSellWithoutInvoice(t *testing.T) {
	e := newTestEnv(t)
	seller, buyer := e.keys(), e.keys()
	ord := e.createOrder(seller, protocol.OrderKindSell, 20_000)

	e.trade(buyer, &ord.ID, protocol.ActionTakeSell, nil)
	assert.Equal(t, protocol.StatusWaitingBuyerInvoice, e.reload(ord).Status)
	_, ok := e.out.last(buyer.PublicKey(), protocol.ActionAddInvoice)
	assert.True(t, ok)
	_, ok = e.out.last(seller.PublicKey(), protocol.ActionWaitingBuyerInvoice)
	assert.True(t, ok)

	// чужой инвойс не принимается
	stranger := e.keys()
	e.order(stranger, ord.ID, protocol.ActionAddInvoice, &protocol.Payload{
		PaymentRequest: &protocol.PaymentRequest{Invoice: lightning.NewTestInvoice(0)},
	})
	assert.Equal(t, protocol.CantDoIsNotYourOrder, e.out.cantDo(stranger.PublicKey()))

	e.order(buyer, ord.ID, protocol.ActionAddInvoice, &protocol.Payload{
		PaymentRequest: &protocol.PaymentRequest{Invoice: "lnbc1garbage"},
	})
	assert.Equal(t, protocol.CantDoInvalidInvoice, e.out.cantDo(buyer.PublicKey()))

	e.order(buyer, ord.ID, protocol.ActionAddInvoice, &protocol.Payload{
		PaymentRequest: &protocol.PaymentRequest{Invoice: lightning.NewTestInvoice(0)},
	})
	assert.Equal(t, protocol.StatusWaitingPayment, e.reload(ord).Status)
	_, ok = e.out.last(buyer.PublicKey(), protocol.ActionBuyerInvoiceAccepted)
	assert.True(t, ok)
	_, ok = e.out.last(seller.PublicKey(), protocol.ActionPayInvoice)
	assert.True(t, ok)

	e.acceptHold(ord)
	assert.Equal(t, protocol.StatusActive, e.reload(ord).Status)
}

func TestTakeBuyFlow(t *testing.T) {
	e := newTestEnv(t)
	buyer, seller := e.keys(), e.keys()
	ord := e.createOrder(buyer, protocol.OrderKindBuy, 50_000)

	// ордер на покупку нельзя взять как продажу
	e.trade(seller, &ord.ID, protocol.ActionTakeSell, nil)
	assert.Equal(t, protocol.CantDoInvalidOrderKind, e.out.cantDo(seller.PublicKey()))

	e.trade(seller, &ord.ID, protocol.ActionTakeBuy, nil)
	ord = e.reload(ord)
	assert.Equal(t, protocol.StatusWaitingPayment, ord.Status)
	assert.True(t, ord.IsSeller(seller.PublicKey()))
	_, ok := e.out.last(seller.PublicKey(), protocol.ActionPayInvoice)
	assert.True(t, ok)

	e.acceptHold(ord)
	ord = e.reload(ord)
	assert.Equal(t, protocol.StatusWaitingBuyerInvoice, ord.Status)
	assert.True(t, ord.HoldInvoiceAccepted)
	_, ok = e.out.last(buyer.PublicKey(), protocol.ActionAddInvoice)
	assert.True(t, ok)

	e.order(buyer, ord.ID, protocol.ActionAddInvoice, &protocol.Payload{
		PaymentRequest: &protocol.PaymentRequest{Invoice: lightning.NewTestInvoice(0)},
	})
	assert.Equal(t, protocol.StatusActive, e.reload(ord).Status)
	_, ok = e.out.last(buyer.PublicKey(), protocol.ActionHoldInvoicePaymentAccepted)
	assert.True(t, ok)
	_, ok = e.out.last(seller.PublicKey(), protocol.ActionBuyerTookOrder)
	assert.True(t, ok)
}

func TestTakeOwnOrder(t *testing.T) {
	e := newTestEnv(t)
	seller := e.keys()
	ord := e.createOrder(seller, protocol.OrderKindSell, 10_000)
	e.trade(seller, &ord.ID, protocol.ActionTakeSell, nil)
	assert.Equal(t, protocol.CantDoInvalidPeer, e.out.cantDo(seller.PublicKey()))
	assert.Equal(t, protocol.StatusPending, e.reload(ord).Status)
}

func TestMarketOrderNeedsAmount(t *testing.T) {
	e := newTestEnv(t)
	seller, buyer := e.keys(), e.keys()
	ord := e.createOrder(seller, protocol.OrderKindSell, 0)
	assert.True(t, ord.Market)

	e.trade(buyer, &ord.ID, protocol.ActionTakeSell, nil)
	assert.Equal(t, protocol.CantDoInvalidAmount, e.out.cantDo(buyer.PublicKey()))

	amount := int64(15_000)
	e.trade(buyer, &ord.ID, protocol.ActionTakeSell, &protocol.Payload{Amount: &amount})
	ord = e.reload(ord)
	assert.Equal(t, protocol.StatusWaitingBuyerInvoice, ord.Status)
	assert.Equal(t, amount, ord.Amount)
	assert.Equal(t, int64(45), ord.Fee)

	// отказ покупателя возвращает рыночный ордер в исходный вид
	e.order(buyer, ord.ID, protocol.ActionCancel, nil)
	ord = e.reload(ord)
	assert.Equal(t, protocol.StatusPending, ord.Status)
	assert.Zero(t, ord.Amount)
	assert.Nil(t, ord.BuyerPubkey)
}

func TestNewOrderValidation(t *testing.T) {
	e := newTestEnv(t)
	maker := e.keys()
	send := func(so *protocol.SmallOrder) protocol.CantDoReason {
		e.out.reset()
		e.trade(maker, nil, protocol.ActionOrder, &protocol.Payload{Order: so})
		return e.out.cantDo(maker.PublicKey())
	}
	base := func() *protocol.SmallOrder {
		ord := e.createOrderTemplate()
		return &ord
	}

	so := base()
	so.Kind = "swap"
	assert.Equal(t, protocol.CantDoInvalidOrderKind, send(so))

	so = base()
	so.FiatCode = "XYZ"
	assert.Equal(t, protocol.CantDoInvalidFiatCurrency, send(so))

	so = base()
	so.Amount = 10
	assert.Equal(t, protocol.CantDoOutOfRangeSatsAmount, send(so))

	so = base()
	so.Premium = 3
	assert.Equal(t, protocol.CantDoInvalidParameters, send(so))

	so = base()
	so.FiatAmount = so.FiatAmount.Neg()
	assert.Equal(t, protocol.CantDoOutOfRangeFiatAmount, send(so))

	so = base()
	so.Amount = -1
	assert.Equal(t, protocol.CantDoInvalidAmount, send(so))

	assert.Equal(t, protocol.CantDoReason(""), send(base()))
}

func TestMarketBuyInvoiceCheckedOnTake(t *testing.T) {
	e := newTestEnv(t)
	buyer, seller := e.keys(), e.keys()
	invoice := lightning.NewTestInvoice(12_345)
	e.trade(buyer, nil, protocol.ActionOrder, &protocol.Payload{Order: &protocol.SmallOrder{
		Kind:          protocol.OrderKindBuy,
		FiatCode:      "USD",
		FiatAmount:    decimal.NewFromInt(100),
		PaymentMethod: "bank transfer",
		BuyerInvoice:  &invoice,
	}})
	var ord models.Order
	require.NoError(t, e.db.Where("creator_pubkey = ?", buyer.PublicKey()).First(&ord).Error)
	require.NotNil(t, ord.BuyerInvoice)

	// сумма инвойса не совпадает с выплатой 49 850: инвойс сбрасывается
	amount := int64(50_000)
	e.trade(seller, &ord.ID, protocol.ActionTakeBuy, &protocol.Payload{Amount: &amount})
	got := e.reload(&ord)
	assert.Equal(t, protocol.StatusWaitingPayment, got.Status)
	assert.Nil(t, got.BuyerInvoice)
	assert.Equal(t, int64(49_850), got.PayoutAmount())

	e.acceptHold(got)
	got = e.reload(got)
	assert.Equal(t, protocol.StatusWaitingBuyerInvoice, got.Status)
	_, ok := e.out.last(buyer.PublicKey(), protocol.ActionAddInvoice)
	require.True(t, ok)

	e.order(buyer, ord.ID, protocol.ActionAddInvoice, &protocol.Payload{
		PaymentRequest: &protocol.PaymentRequest{Invoice: lightning.NewTestInvoice(49_850)},
	})
	assert.Equal(t, protocol.StatusActive, e.reload(got).Status)

	e.order(seller, ord.ID, protocol.ActionRelease, nil)
	assert.Equal(t, protocol.StatusSuccess, e.reload(got).Status)
	payments := e.ln.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, int64(49_850), payments[0].Amount)
}

func TestMarketBuyMatchingInvoiceKept(t *testing.T) {
	e := newTestEnv(t)
	buyer, seller := e.keys(), e.keys()
	invoice := lightning.NewTestInvoice(49_850)
	e.trade(buyer, nil, protocol.ActionOrder, &protocol.Payload{Order: &protocol.SmallOrder{
		Kind:          protocol.OrderKindBuy,
		FiatCode:      "USD",
		FiatAmount:    decimal.NewFromInt(100),
		PaymentMethod: "bank transfer",
		BuyerInvoice:  &invoice,
	}})
	var ord models.Order
	require.NoError(t, e.db.Where("creator_pubkey = ?", buyer.PublicKey()).First(&ord).Error)

	amount := int64(50_000)
	e.trade(seller, &ord.ID, protocol.ActionTakeBuy, &protocol.Payload{Amount: &amount})
	got := e.reload(&ord)
	require.NotNil(t, got.BuyerInvoice)
	assert.Equal(t, invoice, *got.BuyerInvoice)

	e.acceptHold(got)
	assert.Equal(t, protocol.StatusActive, e.reload(got).Status)
}

type offlineNode struct {
	*lightning.Memory
}

func (offlineNode) CreateHoldInvoice(ctx context.Context, amount int64, description string) (*lightning.HoldInvoice, error) {
	return nil, errors.New("node offline")
}

func TestTakeKeepsOrderWhenHoldInvoiceFails(t *testing.T) {
	e := newTestEnv(t)
	buyer, seller := e.keys(), e.keys()
	buyOrd := e.createOrder(buyer, protocol.OrderKindBuy, 50_000)
	sellOrd := e.createOrder(seller, protocol.OrderKindSell, 10_000)
	e.out.reset()
	e.m.ln = offlineNode{e.ln}

	e.trade(seller, &buyOrd.ID, protocol.ActionTakeBuy, nil)
	got := e.reload(buyOrd)
	assert.Equal(t, protocol.StatusPending, got.Status)
	assert.Nil(t, got.SellerPubkey)
	assert.Nil(t, got.Hash)
	assert.Nil(t, got.TakenAt)
	reply, ok := e.out.last(seller.PublicKey(), protocol.ActionCantDo)
	require.True(t, ok)
	assert.Nil(t, reply.Inner().Payload)
	_, ok = e.out.last(buyer.PublicKey(), protocol.ActionWaitingSellerToPay)
	assert.False(t, ok)

	e.trade(buyer, &sellOrd.ID, protocol.ActionTakeSell, &protocol.Payload{
		PaymentRequest: &protocol.PaymentRequest{Invoice: lightning.NewTestInvoice(0)},
	})
	got = e.reload(sellOrd)
	assert.Equal(t, protocol.StatusPending, got.Status)
	assert.Nil(t, got.BuyerPubkey)
	assert.Nil(t, got.BuyerInvoice)

	// узел снова доступен: ордер берётся
	e.m.ln = e.ln
	e.trade(seller, &buyOrd.ID, protocol.ActionTakeBuy, nil)
	got = e.reload(buyOrd)
	assert.Equal(t, protocol.StatusWaitingPayment, got.Status)
	assert.NotNil(t, got.Hash)
	_, ok = e.out.last(seller.PublicKey(), protocol.ActionPayInvoice)
	assert.True(t, ok)
}

func TestPeerReputationAndRatePrompts(t *testing.T) {
	e := newTestEnv(t)
	seller, buyer := e.keys(), e.keys()
	ord := e.activeSellOrder(seller, buyer)

	require.NoError(t, e.db.Model(&models.User{}).Where("pubkey = ?", buyer.PublicKey()).
		Updates(map[string]any{"total_reviews": 3, "total_rating": 4.5}).Error)

	e.order(buyer, ord.ID, protocol.ActionFiatSent, nil)
	msg, ok := e.out.last(seller.PublicKey(), protocol.ActionFiatSent)
	require.True(t, ok)
	peer := msg.Inner().Payload.Peer
	require.NotNil(t, peer)
	assert.Equal(t, buyer.PublicKey(), peer.Pubkey)
	require.NotNil(t, peer.Reputation)
	assert.Equal(t, int64(3), peer.Reputation.TotalReviews)
	assert.Equal(t, 4.5, peer.Reputation.TotalRating)

	e.order(seller, ord.ID, protocol.ActionRelease, nil)
	prompt, ok := e.out.last(buyer.PublicKey(), protocol.ActionRateUser)
	require.True(t, ok)
	assert.NotNil(t, prompt.Rate)

	rating := uint8(5)
	e.order(buyer, ord.ID, protocol.ActionRateUser, &protocol.Payload{RatingUser: &rating})
	received, ok := e.out.last(buyer.PublicKey(), protocol.ActionReceived)
	require.True(t, ok)
	assert.NotNil(t, received.Rate)
}
