package ctl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"mediator/internal/protocol"
)

// Client доступ к HTTP API медиатора.
type Client interface {
	Submit(env *protocol.Envelope) error
	Listen(keys *protocol.Keys, handle func(*protocol.Envelope) error) error
}

type client struct {
	server string
	http   *http.Client
}

func NewClient(server string) Client {
	return &client{
		server: strings.TrimRight(server, "/"),
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *client) Submit(env *protocol.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	resp, err := c.http.Post(c.server+"/messages", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// Listen подключается к /ws/messages и передаёт каждый конверт в handle,
// пока соединение не закроется или handle не вернёт ошибку.
func (c *client) Listen(keys *protocol.Keys, handle func(*protocol.Envelope) error) error {
	ts := time.Now().Unix()
	sig, err := keys.Sign(protocol.AuthHash(keys.PublicKey(), ts))
	if err != nil {
		return err
	}
	u, err := url.Parse(c.server)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/messages"
	q := url.Values{}
	q.Set("pubkey", keys.PublicKey())
	q.Set("ts", strconv.FormatInt(ts, 10))
	q.Set("sig", sig)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()
	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		if err := handle(&env); err != nil {
			return err
		}
	}
}
