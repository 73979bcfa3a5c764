package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mediator/internal/notifications"
	"mediator/internal/protocol"
)

// MessagesWS godoc
// @Summary Websocket сообщений
// @Description Подключает участника по подписи AuthHash(pubkey, ts). После подключения сервер досылает недоставленные конверты, входящие кадры ставятся в очередь медиатора.
// @Tags messages
// @Param pubkey query string true "публичный ключ участника"
// @Param ts query int true "unix-время подписи"
// @Param sig query string true "подпись schnorr"
// @Success 101 {object} protocol.Envelope "Switching Protocols"
// @Failure 401 {object} ErrorResponse
// @Router /ws/messages [get]
func MessagesWS(sub Submitter, log *zap.Logger, maxSkew time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		pubkey := c.Query("pubkey")
		ts, err := strconv.ParseInt(c.Query("ts"), 10, 64)
		if err != nil || !protocol.ValidPubkey(pubkey) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		skew := time.Since(time.Unix(ts, 0))
		if skew > maxSkew || -skew > maxSkew {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "stale signature"})
			return
		}
		if !protocol.VerifySignature(pubkey, protocol.AuthHash(pubkey, ts), c.Query("sig")) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid signature"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer func() {
			notifications.RemoveClient(pubkey, conn)
			conn.Close()
		}()
		if err := notifications.Flush(pubkey, conn); err != nil {
			log.Warn("flush notifications", zap.String("pubkey", pubkey), zap.Error(err))
			return
		}

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var env protocol.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				log.Debug("malformed envelope", zap.String("pubkey", pubkey), zap.Error(err))
				continue
			}
			if env.Pubkey != pubkey {
				log.Debug("envelope from another key", zap.String("pubkey", pubkey), zap.String("author", env.Pubkey))
				continue
			}
			if err := sub.Submit(&env); err != nil {
				log.Warn("submit envelope", zap.String("id", env.ID), zap.Error(err))
			}
		}
	}
}
