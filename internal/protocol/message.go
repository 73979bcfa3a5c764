package protocol

import (
	"encoding/json"
	"errors"
)

// ProtocolVersion текущая версия формата сообщений
const ProtocolVersion = 1

// PaymentRequest запрос на оплату или инвойс покупателя
type PaymentRequest struct {
	Order   *SmallOrder `json:"order,omitempty"`
	Invoice string      `json:"invoice"`
	Amount  *int64      `json:"amount,omitempty"`
}

// Peer контрагент сделки
type Peer struct {
	Pubkey     string      `json:"pubkey"`
	Reputation *Reputation `json:"reputation,omitempty"`
}

// Reputation сводный рейтинг пользователя
type Reputation struct {
	TotalReviews int64   `json:"total_reviews"`
	TotalRating  float64 `json:"total_rating"`
}

// Payload полезная нагрузка сообщения: задаётся не более одного варианта
type Payload struct {
	Order          *SmallOrder     `json:"order,omitempty"`
	PaymentRequest *PaymentRequest `json:"payment_request,omitempty"`
	TextMessage    *string         `json:"text_message,omitempty"`
	Peer           *Peer           `json:"peer,omitempty"`
	RatingUser     *uint8          `json:"rating_user,omitempty"`
	Amount         *int64          `json:"amount,omitempty"`
	Dispute        *string         `json:"dispute,omitempty"`
	CantDo         *CantDoReason   `json:"cant_do,omitempty"`
}

func (p *Payload) variants() int {
	n := 0
	for _, set := range []bool{
		p.Order != nil, p.PaymentRequest != nil, p.TextMessage != nil, p.Peer != nil,
		p.RatingUser != nil, p.Amount != nil, p.Dispute != nil, p.CantDo != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// MessageKind тело сообщения
type MessageKind struct {
	Version    int      `json:"version"`
	RequestID  *uint64  `json:"request_id,omitempty"`
	TradeIndex *int64   `json:"trade_index,omitempty"`
	ID         *string  `json:"id,omitempty"`
	Action     Action   `json:"action"`
	Payload    *Payload `json:"payload,omitempty"`
}

// NewMessageKind собирает тело сообщения текущей версии.
func NewMessageKind(id *string, requestID *uint64, tradeIndex *int64, action Action, payload *Payload) MessageKind {
	return MessageKind{
		Version:    ProtocolVersion,
		RequestID:  requestID,
		TradeIndex: tradeIndex,
		ID:         id,
		Action:     action,
		Payload:    payload,
	}
}

// OrderID возвращает идентификатор ордера или пустую строку.
func (k MessageKind) OrderID() string {
	if k.ID == nil {
		return ""
	}
	return *k.ID
}

// Rating возвращает оценку из RateUser.
func (k MessageKind) Rating() (uint8, bool) {
	if k.Payload == nil || k.Payload.RatingUser == nil {
		return 0, false
	}
	return *k.Payload.RatingUser, true
}

// HasTradeIndex сообщает, передан ли индекс сделки.
func (k MessageKind) HasTradeIndex() (bool, int64) {
	if k.TradeIndex == nil {
		return false, 0
	}
	return true, *k.TradeIndex
}

// Verify проверяет обязательные поля для тега сообщения.
func (k MessageKind) Verify() bool {
	if k.Version != ProtocolVersion || !k.Action.IsValid() {
		return false
	}
	if k.Payload != nil && k.Payload.variants() > 1 {
		return false
	}
	hasID := k.ID != nil && *k.ID != ""
	switch k.Action {
	case ActionOrder:
		return k.Payload != nil && k.Payload.Order != nil
	case ActionTakeSell, ActionTakeBuy:
		if !hasID {
			return false
		}
		return k.Payload == nil || k.Payload.PaymentRequest != nil || k.Payload.Amount != nil
	case ActionAddInvoice:
		return hasID && k.Payload != nil && k.Payload.PaymentRequest != nil &&
			k.Payload.PaymentRequest.Invoice != ""
	case ActionFiatSent, ActionRelease, ActionCancel, ActionDispute,
		ActionAdminCancel, ActionAdminSettle, ActionAdminTakeDispute:
		return hasID
	case ActionRateUser:
		r, ok := k.Rating()
		return hasID && ok && r >= 1 && r <= 5
	case ActionAdminAddSolver:
		return k.Payload != nil && k.Payload.TextMessage != nil && *k.Payload.TextMessage != ""
	default:
		return true
	}
}

// Message обёртка, в которой задан ровно один вид сообщения
type Message struct {
	Order   *MessageKind `json:"order,omitempty"`
	Dispute *MessageKind `json:"dispute,omitempty"`
	CantDo  *MessageKind `json:"cant-do,omitempty"`
	Rate    *MessageKind `json:"rate,omitempty"`
}

var ErrEmptyMessage = errors.New("message has no kind")

func NewOrderMessage(id *string, requestID *uint64, tradeIndex *int64, action Action, payload *Payload) Message {
	k := NewMessageKind(id, requestID, tradeIndex, action, payload)
	return Message{Order: &k}
}

func NewDisputeMessage(id *string, requestID *uint64, action Action, payload *Payload) Message {
	k := NewMessageKind(id, requestID, nil, action, payload)
	return Message{Dispute: &k}
}

func NewRateMessage(id *string, requestID *uint64, action Action, payload *Payload) Message {
	k := NewMessageKind(id, requestID, nil, action, payload)
	return Message{Rate: &k}
}

// NewCantDoMessage ответ об отказе; reason может быть nil.
func NewCantDoMessage(id *string, requestID *uint64, reason *CantDoReason) Message {
	var payload *Payload
	if reason != nil {
		payload = &Payload{CantDo: reason}
	}
	k := NewMessageKind(id, requestID, nil, ActionCantDo, payload)
	return Message{CantDo: &k}
}

// Inner возвращает тело сообщения независимо от вида.
func (m Message) Inner() *MessageKind {
	switch {
	case m.Order != nil:
		return m.Order
	case m.Dispute != nil:
		return m.Dispute
	case m.CantDo != nil:
		return m.CantDo
	case m.Rate != nil:
		return m.Rate
	}
	return nil
}

// Action тег сообщения или ActionUnknown для пустого сообщения.
func (m Message) Action() Action {
	if k := m.Inner(); k != nil {
		return k.Action
	}
	return ActionUnknown
}

func (m Message) JSON() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseMessage разбирает JSON сообщения. Нераспознанный тег возвращается
// как ошибка, совместимая с ErrUnknownAction.
func ParseMessage(content string) (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(content), &m); err != nil {
		return Message{}, err
	}
	if m.Inner() == nil {
		return Message{}, ErrEmptyMessage
	}
	return m, nil
}
