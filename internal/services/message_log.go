package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"mediator/internal/protocol"
)

// LoggedMessage запись журнала сообщений по ордеру
type LoggedMessage struct {
	ID        string          `json:"id"`
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient,omitempty"`
	Action    protocol.Action `json:"action"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"createdAt"`
}

// MessageLog хранит последние limit сообщений каждого ордера в redis.
type MessageLog struct {
	client *redis.Client
	limit  int64
}

func NewMessageLog(client *redis.Client, limit int64) *MessageLog {
	return &MessageLog{client: client, limit: limit}
}

func logKey(orderID string) string {
	return "order:" + orderID + ":messages"
}

func (l *MessageLog) Append(ctx context.Context, orderID string, msg LoggedMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := logKey(orderID)
	pipe := l.client.TxPipeline()
	pipe.LPush(ctx, key, b)
	pipe.LTrim(ctx, key, 0, l.limit-1)
	_, err = pipe.Exec(ctx)
	return err
}

// History возвращает журнал в хронологическом порядке.
func (l *MessageLog) History(ctx context.Context, orderID string) ([]LoggedMessage, error) {
	vals, err := l.client.LRange(ctx, logKey(orderID), 0, l.limit-1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	res := make([]LoggedMessage, 0, len(vals))
	for i := len(vals) - 1; i >= 0; i-- {
		var m LoggedMessage
		if e := json.Unmarshal([]byte(vals[i]), &m); e == nil {
			res = append(res, m)
		}
	}
	return res, nil
}
