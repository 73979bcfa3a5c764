package ctl

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediator/internal/protocol"
)

type fakeClient struct {
	sent []*protocol.Envelope
}

func (f *fakeClient) Submit(env *protocol.Envelope) error {
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeClient) Listen(keys *protocol.Keys, handle func(*protocol.Envelope) error) error {
	for _, env := range f.sent {
		if err := handle(env); err != nil {
			return err
		}
	}
	return nil
}

func run(t *testing.T, fc *fakeClient, args ...string) (string, error) {
	t.Helper()
	root := Root("test", func(string) Client { return fc })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestKeygenFromMnemonic(t *testing.T) {
	mnemonic, err := protocol.NewMnemonic()
	require.NoError(t, err)
	keys, err := protocol.KeysFromMnemonic(mnemonic, "")
	require.NoError(t, err)

	out, err := run(t, &fakeClient{}, "keygen", "--mnemonic", mnemonic)
	require.NoError(t, err)
	assert.Contains(t, out, keys.PublicKey())
	assert.Contains(t, out, keys.SecretHex())

	_, err = run(t, &fakeClient{}, "keygen", "--mnemonic", "not a phrase")
	assert.Error(t, err)
}

func TestActionsList(t *testing.T) {
	out, err := run(t, &fakeClient{}, "actions")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, len(protocol.Actions()))
	assert.Equal(t, "order", lines[0])
	assert.Contains(t, lines, "admin-take-dispute")
}

func TestSendAndDecode(t *testing.T) {
	keys, err := protocol.GenerateKeys()
	require.NoError(t, err)
	fc := &fakeClient{}

	out, err := run(t, fc, "send", "--secret", keys.SecretHex(), "--action", "take-buy",
		"--id", "ord1", "--trade-index", "4", "--payload", `{"amount":5000}`)
	require.NoError(t, err)
	require.Len(t, fc.sent, 1)
	env := fc.sent[0]
	assert.Equal(t, env.ID, strings.TrimSpace(out))
	require.NoError(t, env.Verify())
	msg, err := protocol.ParseMessage(env.Content)
	require.NoError(t, err)
	assert.Equal(t, protocol.ActionTakeBuy, msg.Action())
	assert.Equal(t, int64(5000), *msg.Inner().Payload.Amount)
	ok, idx := msg.Inner().HasTradeIndex()
	assert.True(t, ok)
	assert.Equal(t, int64(4), idx)

	raw, _ := json.Marshal(env)
	out, err = run(t, fc, "decode", string(raw))
	require.NoError(t, err)
	assert.Contains(t, out, "action: take-buy")

	out, err = run(t, fc, "listen", "--secret", keys.SecretHex())
	require.NoError(t, err)
	assert.Contains(t, out, keys.PublicKey())
}

func TestSendRejectsInvalidMessages(t *testing.T) {
	keys, err := protocol.GenerateKeys()
	require.NoError(t, err)
	fc := &fakeClient{}

	_, err = run(t, fc, "send", "--secret", keys.SecretHex(), "--action", "released", "--id", "x")
	assert.ErrorIs(t, err, protocol.ErrUnknownAction)
	_, err = run(t, fc, "send", "--secret", keys.SecretHex(), "--action", "release")
	assert.Error(t, err)
	_, err = run(t, fc, "send", "--secret", "zz", "--action", "release", "--id", "x")
	assert.Error(t, err)
	assert.Empty(t, fc.sent)
}

func TestClientSubmit(t *testing.T) {
	var got protocol.Envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil || got.Verify() != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid envelope"}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	keys, err := protocol.GenerateKeys()
	require.NoError(t, err)
	id := "o1"
	env, err := protocol.SealMessage(keys, protocol.NewOrderMessage(&id, nil, nil, protocol.ActionFiatSent, nil), 0)
	require.NoError(t, err)

	c := NewClient(srv.URL + "/")
	require.NoError(t, c.Submit(env))
	assert.Equal(t, env.ID, got.ID)

	env.Sig = strings.Repeat("0", len(env.Sig))
	err = c.Submit(env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
