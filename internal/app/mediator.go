package app

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mediator/config"
	"mediator/internal/db"
	"mediator/internal/lightning"
	"mediator/internal/metrics"
	"mediator/internal/models"
	"mediator/internal/protocol"
	"mediator/internal/services"
	"mediator/internal/services/storage"
)

// ReplayGuard запоминает обработанные конверты.
type ReplayGuard interface {
	Seen(ctx context.Context, id string) (bool, error)
}

// Deps зависимости медиатора. Guard, MessageLog и Storage необязательны.
type Deps struct {
	DB          *gorm.DB
	Lightning   lightning.Connector
	Keys        *protocol.Keys
	Settings    *config.Settings
	AdminPubkey string
	Messenger   Messenger
	Guard       ReplayGuard
	MessageLog  *services.MessageLog
	Storage     storage.Storage
	Logger      *zap.Logger
	Now         func() time.Time
}

// Mediator маршрутизирует входящие сообщения по тегу действия.
type Mediator struct {
	db          *gorm.DB
	ln          lightning.Connector
	keys        *protocol.Keys
	settings    *config.Settings
	adminPubkey string
	out         Messenger
	guard       ReplayGuard
	msgLog      *services.MessageLog
	store       storage.Storage
	log         *zap.Logger
	metrics     *metrics.Mediator
	now         func() time.Time

	// переходы состояний ордеров выполняются последовательно
	mu    sync.Mutex
	inbox chan *protocol.Envelope
}

func New(d Deps) *Mediator {
	m := &Mediator{
		db:          d.DB,
		ln:          d.Lightning,
		keys:        d.Keys,
		settings:    d.Settings,
		adminPubkey: d.AdminPubkey,
		out:         d.Messenger,
		guard:       d.Guard,
		msgLog:      d.MessageLog,
		store:       d.Storage,
		log:         d.Logger,
		metrics:     metrics.Get(),
		now:         d.Now,
		inbox:       make(chan *protocol.Envelope, 256),
	}
	if m.settings == nil {
		m.settings = config.DefaultSettings()
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.adminPubkey == "" && m.keys != nil {
		m.adminPubkey = m.keys.PublicKey()
	}
	return m
}

// Pubkey публичный ключ медиатора.
func (m *Mediator) Pubkey() string { return m.keys.PublicKey() }

// Submit ставит конверт в очередь на обработку.
func (m *Mediator) Submit(env *protocol.Envelope) error {
	select {
	case m.inbox <- env:
		return nil
	default:
		return ErrInboxFull
	}
}

// Run обрабатывает очередь до отмены контекста.
func (m *Mediator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-m.inbox:
			if err := m.Handle(ctx, env); err != nil {
				m.log.Info("envelope rejected", zap.String("id", env.ID), zap.String("pubkey", env.Pubkey), zap.Error(err))
			}
		}
	}
}

// request входящее сообщение после всех проверок
type request struct {
	env    *protocol.Envelope
	sender string
	msg    protocol.Message
	kind   *protocol.MessageKind
}

// Handle проверяет конверт и передаёт сообщение обработчику действия.
// Ошибки участника превращаются в ответ CantDo и не возвращаются.
func (m *Mediator) Handle(ctx context.Context, env *protocol.Envelope) error {
	if env.Difficulty() < m.settings.Mediator.Pow {
		m.metrics.ObserveRejected("pow")
		return ErrInsufficientPow
	}
	age := m.now().Sub(env.Created())
	if age > m.settings.Mediator.MaxMessageAge || -age > m.settings.Mediator.MaxMessageAge {
		m.metrics.ObserveRejected("stale")
		return errors.Wrapf(ErrStaleMessage, "age %s", age)
	}
	if err := env.Verify(); err != nil {
		m.metrics.ObserveRejected("signature")
		return err
	}
	if m.guard != nil {
		seen, err := m.guard.Seen(ctx, env.ID)
		if err != nil {
			return errors.Wrap(err, "replay guard")
		}
		if seen {
			m.metrics.ObserveRejected("replay")
			return ErrReplay
		}
	}

	msg, err := protocol.ParseMessage(env.Content)
	if errors.Is(err, protocol.ErrUnknownAction) {
		m.metrics.ObserveUnknownAction()
		m.log.Info("unknown action, skipping", zap.String("id", env.ID), zap.Error(err))
		return nil
	}
	if err != nil {
		m.metrics.ObserveRejected("parse")
		return errors.Wrap(err, "parse message")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	req := &request{env: env, sender: env.Pubkey, msg: msg, kind: msg.Inner()}
	m.metrics.ObserveInbound(req.kind.Action.String())

	if err := m.checkUser(ctx, req); err != nil {
		return m.reply(ctx, req, err)
	}
	if !req.kind.Verify() {
		return m.reply(ctx, req, cantDo(protocol.CantDoInvalidParameters))
	}
	return m.reply(ctx, req, m.route(ctx, req))
}

func (m *Mediator) route(ctx context.Context, req *request) error {
	switch req.kind.Action {
	case protocol.ActionOrder:
		return m.newOrder(ctx, req)
	case protocol.ActionTakeSell:
		return m.takeSell(ctx, req)
	case protocol.ActionTakeBuy:
		return m.takeBuy(ctx, req)
	case protocol.ActionAddInvoice:
		return m.addInvoice(ctx, req)
	case protocol.ActionFiatSent:
		return m.fiatSent(ctx, req)
	case protocol.ActionRelease:
		return m.release(ctx, req)
	case protocol.ActionCancel:
		return m.cancel(ctx, req)
	case protocol.ActionDispute:
		return m.dispute(ctx, req)
	case protocol.ActionRateUser:
		return m.rateUser(ctx, req)
	case protocol.ActionAdminTakeDispute:
		return m.adminTakeDispute(ctx, req)
	case protocol.ActionAdminCancel:
		return m.adminCancel(ctx, req)
	case protocol.ActionAdminSettle:
		return m.adminSettle(ctx, req)
	case protocol.ActionAdminAddSolver:
		return m.adminAddSolver(ctx, req)
	case protocol.ActionPayInvoice:
		return cantDo(protocol.CantDoInvalidAction)
	default:
		m.log.Info("action is not handled by the mediator",
			zap.String("action", req.kind.Action.String()), zap.String("sender", req.sender))
		return nil
	}
}

// reply отвечает CantDo на ошибку участника. Внутренняя ошибка пишется в лог,
// отправитель получает CantDo без причины.
func (m *Mediator) reply(ctx context.Context, req *request, err error) error {
	if err == nil {
		return nil
	}
	var reason *protocol.CantDoReason
	var cd *CantDoError
	if errors.As(err, &cd) {
		r := cd.Reason
		reason = &r
	} else {
		m.log.Warn("handler failed",
			zap.String("action", req.kind.Action.String()),
			zap.String("sender", req.sender),
			zap.Error(err))
	}
	// отказ не попадает в журнал ордера: id выбран отправителем
	msg := protocol.NewCantDoMessage(req.kind.ID, req.kind.RequestID, reason)
	if sendErr := m.out.Send(ctx, req.sender, nil, msg); sendErr != nil {
		m.log.Warn("send cant-do", zap.Error(sendErr))
	}
	return nil
}

// checkUser проверяет бан и индекс сделки отправителя.
func (m *Mediator) checkUser(ctx context.Context, req *request) error {
	tx := m.db.WithContext(ctx)
	user, err := db.FindUser(tx, req.sender)
	if err != nil {
		return errors.Wrap(err, "find user")
	}
	if user != nil && user.IsBanned {
		return cantDo(protocol.CantDoInvalidPubkey)
	}
	switch req.kind.Action {
	case protocol.ActionOrder, protocol.ActionTakeSell, protocol.ActionTakeBuy:
	default:
		return nil
	}
	has, index := req.kind.HasTradeIndex()
	if user == nil {
		u := models.User{Pubkey: req.sender}
		if has {
			u.TradeIndex = index
		}
		if err := tx.Create(&u).Error; err != nil {
			return errors.Wrap(err, "create user")
		}
		return nil
	}
	if !has || index <= user.TradeIndex {
		return cantDo(protocol.CantDoInvalidTradeIndex)
	}
	return tx.Model(&models.User{}).Where("pubkey = ?", req.sender).Update("trade_index", index).Error
}
