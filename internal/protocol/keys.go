package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	bip39 "github.com/tyler-smith/go-bip39"
)

// Keys пара ключей участника или медиатора
type Keys struct {
	Private *btcec.PrivateKey
}

// GenerateKeys создаёт случайную пару ключей.
func GenerateKeys() (*Keys, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return &Keys{Private: priv}, nil
}

// KeysFromHex восстанавливает ключи из hex-представления секретного ключа.
func KeysFromHex(s string) (*Keys, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, errors.New("private key must be 32 bytes")
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return &Keys{Private: priv}, nil
}

// KeysFromMnemonic выводит ключ из мнемонической фразы BIP-39.
func KeysFromMnemonic(mnemonic, passphrase string) (*Keys, error) {
	seed, err := bip39.NewSeedWithErrorChecking(strings.TrimSpace(mnemonic), passphrase)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(seed)
	priv, _ := btcec.PrivKeyFromBytes(sum[:])
	return &Keys{Private: priv}, nil
}

// NewMnemonic генерирует новую фразу из 12 слов.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// PublicKey x-only публичный ключ в hex.
func (k *Keys) PublicKey() string {
	return hex.EncodeToString(schnorr.SerializePubKey(k.Private.PubKey()))
}

// SecretHex секретный ключ в hex.
func (k *Keys) SecretHex() string {
	return hex.EncodeToString(k.Private.Serialize())
}

// Sign подписывает 32-байтовый хеш.
func (k *Keys) Sign(hash []byte) (string, error) {
	sig, err := schnorr.Sign(k.Private, hash)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig.Serialize()), nil
}

// ValidPubkey проверяет x-only публичный ключ в hex.
func ValidPubkey(pubkey string) bool {
	_, err := parsePubkey(pubkey)
	return err == nil
}

func parsePubkey(pubkey string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(pubkey)
	if err != nil {
		return nil, err
	}
	return schnorr.ParsePubKey(b)
}

// VerifySignature проверяет подпись sigHex над hash ключом pubkey.
func VerifySignature(pubkey string, hash []byte, sigHex string) bool {
	pub, err := parsePubkey(pubkey)
	if err != nil {
		return false
	}
	raw, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(raw)
	if err != nil {
		return false
	}
	return sig.Verify(hash, pub)
}
