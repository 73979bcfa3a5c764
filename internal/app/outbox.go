package app

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"mediator/internal/db"
	"mediator/internal/metrics"
	"mediator/internal/models"
	"mediator/internal/notifications"
	"mediator/internal/protocol"
	"mediator/internal/services"
)

// Messenger доставляет сообщения медиатора участникам.
type Messenger interface {
	Send(ctx context.Context, to string, orderID *string, msg protocol.Message) error
}

// Outbox подписывает сообщение ключом медиатора, сохраняет его как
// уведомление и рассылает по открытым вебсокетам получателя.
type Outbox struct {
	db      *gorm.DB
	keys    *protocol.Keys
	msgLog  *services.MessageLog
	metrics *metrics.Mediator
}

func NewOutbox(db *gorm.DB, keys *protocol.Keys, msgLog *services.MessageLog) *Outbox {
	notifications.SetDB(db)
	return &Outbox{db: db, keys: keys, msgLog: msgLog, metrics: metrics.Get()}
}

func (o *Outbox) Send(ctx context.Context, to string, orderID *string, msg protocol.Message) error {
	env, err := protocol.SealMessage(o.keys, msg, 0)
	if err != nil {
		return errors.Wrap(err, "seal message")
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	n := models.Notification{
		Pubkey:   to,
		Action:   msg.Action(),
		OrderID:  orderID,
		Envelope: datatypes.JSON(b),
	}
	if err := o.db.WithContext(ctx).Create(&n).Error; err != nil {
		return errors.Wrap(err, "save notification")
	}
	if o.msgLog != nil && orderID != nil {
		entry := services.LoggedMessage{
			ID:        env.ID,
			Sender:    env.Pubkey,
			Recipient: to,
			Action:    msg.Action(),
			Content:   env.Content,
			CreatedAt: env.Created(),
		}
		if err := o.msgLog.Append(ctx, *orderID, entry); err != nil {
			return errors.Wrap(err, "append message log")
		}
	}
	o.metrics.ObserveOutbound(msg.Action().String())
	notifications.Broadcast(to, n)
	return nil
}

// record пишет входящее сообщение в журнал ордера. Вызывается обработчиком
// после проверки, что отправитель участвует в сделке или разбирает спор.
func (m *Mediator) record(ctx context.Context, req *request, orderID string) {
	if m.msgLog == nil || req.env == nil {
		return
	}
	entry := services.LoggedMessage{
		ID:        req.env.ID,
		Sender:    req.sender,
		Action:    req.kind.Action,
		Content:   req.env.Content,
		CreatedAt: req.env.Created(),
	}
	if err := m.msgLog.Append(ctx, orderID, entry); err != nil {
		m.log.Warn("append message log", zap.String("order", orderID), zap.Error(err))
	}
}

// sendOrder сообщение вида order по ордеру ord.
func (m *Mediator) sendOrder(ctx context.Context, to string, ord *models.Order, requestID *uint64, action protocol.Action, payload *protocol.Payload) {
	id := ord.ID
	m.deliver(ctx, to, &id, protocol.NewOrderMessage(&id, requestID, nil, action, payload))
}

func (m *Mediator) sendDispute(ctx context.Context, to string, ord *models.Order, action protocol.Action, payload *protocol.Payload) {
	id := ord.ID
	m.deliver(ctx, to, &id, protocol.NewDisputeMessage(&id, nil, action, payload))
}

// sendRate сообщение вида rate: запрос оценки и подтверждение.
func (m *Mediator) sendRate(ctx context.Context, to string, ord *models.Order, requestID *uint64, action protocol.Action, payload *protocol.Payload) {
	id := ord.ID
	m.deliver(ctx, to, &id, protocol.NewRateMessage(&id, requestID, action, payload))
}

func (m *Mediator) deliver(ctx context.Context, to string, orderID *string, msg protocol.Message) {
	if to == "" {
		return
	}
	if err := m.out.Send(ctx, to, orderID, msg); err != nil {
		m.log.Warn("send message",
			zap.String("to", to),
			zap.String("action", msg.Action().String()),
			zap.Error(err))
	}
}

func orderPayload(ord *models.Order) *protocol.Payload {
	return &protocol.Payload{Order: ord.Small()}
}

// peer полезная нагрузка с ключом и репутацией участника.
func (m *Mediator) peer(ctx context.Context, pubkey string) *protocol.Payload {
	user, err := db.FindUser(m.db.WithContext(ctx), pubkey)
	if err != nil {
		m.log.Warn("load peer", zap.String("pubkey", pubkey), zap.Error(err))
	}
	return peerPayload(pubkey, user)
}

func peerPayload(pubkey string, user *models.User) *protocol.Payload {
	p := &protocol.Peer{Pubkey: pubkey}
	if user != nil {
		p.Reputation = user.Reputation()
	}
	return &protocol.Payload{Peer: p}
}
