package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/bits"
	"strconv"
	"time"
)

var (
	ErrInvalidID        = errors.New("envelope id mismatch")
	ErrInvalidSignature = errors.New("invalid envelope signature")
)

// Envelope подписанный кадр, в котором передаётся сообщение
type Envelope struct {
	ID        string `json:"id"`
	Pubkey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Nonce     uint64 `json:"nonce"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

func (e *Envelope) hash() []byte {
	// сериализация массива фиксирована, поэтому хеш детерминирован
	raw, _ := json.Marshal([]any{e.Pubkey, e.CreatedAt, strconv.FormatUint(e.Nonce, 10), e.Content})
	sum := sha256.Sum256(raw)
	return sum[:]
}

// Seal подбирает nonce под сложность difficulty и подписывает кадр.
func Seal(keys *Keys, content string, difficulty int) (*Envelope, error) {
	e := &Envelope{
		Pubkey:    keys.PublicKey(),
		CreatedAt: time.Now().Unix(),
		Content:   content,
	}
	h := e.hash()
	for leadingZeroBits(h) < difficulty {
		e.Nonce++
		h = e.hash()
	}
	e.ID = hex.EncodeToString(h)
	sig, err := keys.Sign(h)
	if err != nil {
		return nil, err
	}
	e.Sig = sig
	return e, nil
}

// SealMessage сериализует сообщение и упаковывает его в кадр.
func SealMessage(keys *Keys, m Message, difficulty int) (*Envelope, error) {
	content, err := m.JSON()
	if err != nil {
		return nil, err
	}
	return Seal(keys, content, difficulty)
}

// Verify сверяет идентификатор и подпись.
func (e *Envelope) Verify() error {
	h := e.hash()
	if hex.EncodeToString(h) != e.ID {
		return ErrInvalidID
	}
	if !VerifySignature(e.Pubkey, h, e.Sig) {
		return ErrInvalidSignature
	}
	return nil
}

// Difficulty число ведущих нулевых бит идентификатора.
func (e *Envelope) Difficulty() int {
	b, err := hex.DecodeString(e.ID)
	if err != nil {
		return 0
	}
	return leadingZeroBits(b)
}

// Created время создания кадра.
func (e *Envelope) Created() time.Time {
	return time.Unix(e.CreatedAt, 0)
}

func leadingZeroBits(b []byte) int {
	n := 0
	for _, c := range b {
		if c == 0 {
			n += 8
			continue
		}
		n += bits.LeadingZeros8(c)
		break
	}
	return n
}

// AuthHash хеш, который подписывает клиент при подключении к шлюзу.
func AuthHash(pubkey string, ts int64) []byte {
	sum := sha256.Sum256([]byte("auth:" + pubkey + ":" + strconv.FormatInt(ts, 10)))
	return sum[:]
}
