package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mediator/config"
	"mediator/internal/db"
	"mediator/internal/lightning"
	"mediator/internal/models"
	"mediator/internal/protocol"
	"mediator/internal/services"
	"mediator/internal/services/storage"
)

type sentMessage struct {
	to  string
	msg protocol.Message
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeMessenger) Send(ctx context.Context, to string, orderID *string, msg protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{to: to, msg: msg})
	return nil
}

// last последнее сообщение получателю с тегом action
func (f *fakeMessenger) last(to string, action protocol.Action) (protocol.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].to == to && f.sent[i].msg.Action() == action {
			return f.sent[i].msg, true
		}
	}
	return protocol.Message{}, false
}

// cantDo причина последнего отказа получателю
func (f *fakeMessenger) cantDo(to string) protocol.CantDoReason {
	m, ok := f.last(to, protocol.ActionCantDo)
	if !ok || m.Inner().Payload == nil {
		return ""
	}
	return *m.Inner().Payload.CantDo
}

func (f *fakeMessenger) reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

type testEnv struct {
	t        *testing.T
	ctx      context.Context
	m        *Mediator
	db       *gorm.DB
	ln       *lightning.Memory
	out      *fakeMessenger
	store    *storage.Memory
	settings *config.Settings
	admin    *protocol.Keys
	clock    time.Time
	reqID    uint64
	index    map[string]int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gdb, err := db.Open("file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	keys, err := protocol.GenerateKeys()
	require.NoError(t, err)
	admin, err := protocol.GenerateKeys()
	require.NoError(t, err)

	e := &testEnv{
		t:        t,
		ctx:      context.Background(),
		db:       gdb,
		ln:       lightning.NewMemory(),
		out:      &fakeMessenger{},
		store:    storage.NewMemory(),
		settings: config.DefaultSettings(),
		admin:    admin,
		index:    make(map[string]int64),
	}
	e.m = New(Deps{
		DB:          gdb,
		Lightning:   e.ln,
		Keys:        keys,
		Settings:    e.settings,
		AdminPubkey: admin.PublicKey(),
		Messenger:   e.out,
		Guard:       services.NewReplayGuard(rdb, 2*e.settings.Mediator.MaxMessageAge),
		MessageLog:  services.NewMessageLog(rdb, 100),
		Storage:     e.store,
		Logger:      zap.NewNop(),
		Now: func() time.Time {
			if e.clock.IsZero() {
				return time.Now()
			}
			return e.clock
		},
	})
	return e
}

func (e *testEnv) keys() *protocol.Keys {
	k, err := protocol.GenerateKeys()
	require.NoError(e.t, err)
	return k
}

func (e *testEnv) nextReq() *uint64 {
	e.reqID++
	id := e.reqID
	return &id
}

func (e *testEnv) handle(k *protocol.Keys, msg protocol.Message) {
	e.t.Helper()
	env, err := protocol.SealMessage(k, msg, 0)
	require.NoError(e.t, err)
	require.NoError(e.t, e.m.Handle(e.ctx, env))
}

// trade сообщение с очередным индексом сделки отправителя
func (e *testEnv) trade(k *protocol.Keys, id *string, action protocol.Action, payload *protocol.Payload) {
	e.t.Helper()
	e.index[k.PublicKey()]++
	idx := e.index[k.PublicKey()]
	e.handle(k, protocol.NewOrderMessage(id, e.nextReq(), &idx, action, payload))
}

func (e *testEnv) order(k *protocol.Keys, id string, action protocol.Action, payload *protocol.Payload) {
	e.t.Helper()
	e.handle(k, protocol.NewOrderMessage(&id, e.nextReq(), nil, action, payload))
}

func (e *testEnv) createOrder(maker *protocol.Keys, kind protocol.OrderKind, amount int64) *models.Order {
	e.t.Helper()
	e.trade(maker, nil, protocol.ActionOrder, &protocol.Payload{Order: &protocol.SmallOrder{
		Kind:          kind,
		Amount:        amount,
		FiatCode:      "USD",
		FiatAmount:    decimal.NewFromInt(100),
		PaymentMethod: "bank transfer",
	}})
	var ord models.Order
	require.NoError(e.t, e.db.Where("creator_pubkey = ?", maker.PublicKey()).Order("created_at desc").First(&ord).Error)
	return &ord
}

func (e *testEnv) reload(ord *models.Order) *models.Order {
	e.t.Helper()
	var fresh models.Order
	require.NoError(e.t, e.db.Where("id = ?", ord.ID).First(&fresh).Error)
	return &fresh
}

func (e *testEnv) acceptHold(ord *models.Order) {
	e.t.Helper()
	ord = e.reload(ord)
	require.NotNil(e.t, ord.Hash)
	require.NoError(e.t, e.ln.Accept(*ord.Hash))
	require.NoError(e.t, e.m.OnHoldInvoiceAccepted(e.ctx, ord.ID))
}

// activeSellOrder доводит ордер на продажу до статуса active.
func (e *testEnv) activeSellOrder(seller, buyer *protocol.Keys) *models.Order {
	e.t.Helper()
	ord := e.createOrder(seller, protocol.OrderKindSell, 10_000)
	e.trade(buyer, &ord.ID, protocol.ActionTakeSell, &protocol.Payload{
		PaymentRequest: &protocol.PaymentRequest{Invoice: lightning.NewTestInvoice(0)},
	})
	e.acceptHold(ord)
	ord = e.reload(ord)
	require.Equal(e.t, protocol.StatusActive, ord.Status)
	return ord
}

func (e *testEnv) createOrderTemplate() protocol.SmallOrder {
	return protocol.SmallOrder{
		Kind:          protocol.OrderKindSell,
		Amount:        10_000,
		FiatCode:      "EUR",
		FiatAmount:    decimal.NewFromInt(50),
		PaymentMethod: "sepa",
	}
}
