package database

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/moff-wallet/internal/walletconnect"
)

func TestWalletAccountState(t *testing.T) {
	state := walletconnect.AccountState{
		Address:  "umee1abc",
		PubKey:   "02ab",
		ChainID:  "umee-1",
		Prefix:   "umee",
		IsLedger: true,
	}
	account := NewWalletAccount(state, "ledger")
	assert.Equal(t, state, account.State())
	assert.NotZero(t, account.CreatedAt)

	states := toStates([]*WalletAccount{account, NewWalletAccount(walletconnect.AccountState{Address: "0x1", ChainID: "1"}, "")})
	assert.Equal(t, []string{"umee1abc", "0x1"}, []string{states[0].Address, states[1].Address})
}

func TestNewWalletConnectEvent(t *testing.T) {
	e := &walletconnect.SessionEvent{
		Type:       walletconnect.EventRejected,
		Topic:      "pairing",
		ProposalID: 42,
		Error:      "no supported namespaces",
		CreatedAt:  1700000000,
	}
	row := NewWalletConnectEvent(e)
	assert.Equal(t, walletconnect.EventRejected, row.EventType)
	assert.Equal(t, "pairing", row.Topic)
	assert.Equal(t, int64(1700000000), row.EventTime.Unix())
	assert.Equal(t, int64(42), row.Event["proposal_id"])
	assert.NotContains(t, row.Event, "method")

	value, err := row.Event.Value()
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(value.(string)), &decoded))
	assert.Equal(t, "session_rejected", decoded["type"])
}

func TestJSONBMapScan(t *testing.T) {
	var m JSONBMap
	require.NoError(t, m.Scan([]byte(`{"a":1}`)))
	assert.Equal(t, float64(1), m["a"])
	require.NoError(t, m.Scan(`{"b":"x"}`))
	assert.Equal(t, "x", m["b"])
	assert.Error(t, m.Scan(42))
}
