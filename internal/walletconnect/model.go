package walletconnect

import (
	"encoding/json"
	"time"

	"go.uber.org/atomic"
	"moff.io/moff-wallet/pkg/errors"
)

// bridgeMessage is the envelope the legacy bridge server relays.
type bridgeMessage struct {
	Topic string `json:"topic"`
	// pub sub ack
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

func newBridgeMessageFromBytes(data []byte) (*bridgeMessage, error) {
	var msg bridgeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, "unmarshal bridge message")
	}
	return &msg, nil
}

func (msg *bridgeMessage) Marshal() []byte {
	bytes, _ := json.Marshal(msg)
	return bytes
}

type peer struct {
	PeerID   string      `json:"peerId"`
	PeerMeta Metadata    `json:"peerMeta"`
	ChainID  interface{} `json:"chainId"`
}

// sessionResult answers wc_sessionRequest, and with Approved false it is also the wc_sessionUpdate kill message.
type sessionResult struct {
	Approved  bool        `json:"approved"`
	ChainID   interface{} `json:"chainId"`
	NetworkID interface{} `json:"networkId"`
	Accounts  []string    `json:"accounts"`
	RPCURL    string      `json:"rpcUrl,omitempty"`
	PeerID    string      `json:"peerId,omitempty"`
	PeerMeta  *Metadata   `json:"peerMeta,omitempty"`
}

type jsonRPCRequest struct {
	ID      int64         `json:"id"`
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

func newJSONRPCRequest(method string, params ...interface{}) *jsonRPCRequest {
	r := &jsonRPCRequest{
		ID:      nextPayloadID(),
		JSONRPC: "2.0",
		Method:  method,
		Params:  []interface{}{},
	}
	if len(params) > 0 {
		r.Params = params
	}
	return r
}

var lastPayloadID atomic.Int64

// nextPayloadID is microsecond based like the js clients, bumped when two ids land in the same microsecond.
func nextPayloadID() int64 {
	for {
		now := time.Now().UnixNano() / 1000
		last := lastPayloadID.Load()
		if now <= last {
			now = last + 1
		}
		if lastPayloadID.CAS(last, now) {
			return now
		}
	}
}
