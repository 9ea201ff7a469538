package walletconnect

import (
	"context"
	"encoding/json"
	"time"
)

// Metadata describes a peer to the other side of the session.
type Metadata struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	URL         string   `json:"url" yaml:"url"`
	Icons       []string `json:"icons" yaml:"icons"`
}

type Relay struct {
	Protocol string `json:"protocol"`
}

// Proposal is a pending session proposal from a dapp.
type Proposal struct {
	ID                 int64                        `json:"id"`
	PairingTopic       string                       `json:"pairingTopic"`
	Proposer           Metadata                     `json:"proposer"`
	RequiredNamespaces map[string]RequiredNamespace `json:"requiredNamespaces"`
	Relays             []Relay                      `json:"relays"`
}

func (p Proposal) relayProtocol() string {
	for _, r := range p.Relays {
		if r.Protocol != "" {
			return r.Protocol
		}
	}
	return defaultRelayProtocol
}

// SessionApproval is what the wallet answers a proposal with.
type SessionApproval struct {
	ID            int64      `json:"id"`
	Namespaces    Namespaces `json:"namespaces"`
	RelayProtocol string     `json:"relayProtocol"`
}

type Session struct {
	Topic        string     `json:"topic"`
	PairingTopic string     `json:"pairingTopic"`
	Peer         Metadata   `json:"peer"`
	Namespaces   Namespaces `json:"namespaces"`
	Expiry       time.Time  `json:"expiry"`
}

// SessionRequest is a JSON-RPC call a dapp sends over an approved session. ChainID is the CAIP-2 chain.
type SessionRequest struct {
	ID      int64           `json:"id"`
	Topic   string          `json:"topic"`
	ChainID string          `json:"chainId"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return e.Message
}

type RPCResponse struct {
	ID      int64       `json:"id"`
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

func resultResponse(id int64, result interface{}) RPCResponse {
	return RPCResponse{ID: id, JSONRPC: "2.0", Result: result}
}

func errorResponse(id int64, reason RPCError) RPCResponse {
	return RPCResponse{ID: id, JSONRPC: "2.0", Error: &reason}
}

// sdk reason codes
var (
	ReasonUserRejected        = RPCError{Code: 5000, Message: "User rejected."}
	ReasonUserRejectedMethods = RPCError{Code: 5002, Message: "User rejected methods."}
	ReasonUnsupportedMethods  = RPCError{Code: 5101, Message: "Unsupported methods."}
	ReasonUserDisconnected    = RPCError{Code: 6000, Message: "User disconnected."}
)

const defaultRelayProtocol = "irn"

// Handlers are the callbacks a PairingClient fires on inbound traffic. Any of them may be nil.
type Handlers struct {
	OnProposal       func(Proposal)
	OnSessionRequest func(SessionRequest)
	OnSessionDelete  func(topic string)
}

func (h Handlers) proposal(p Proposal) {
	if h.OnProposal != nil {
		h.OnProposal(p)
	}
}

func (h Handlers) sessionRequest(r SessionRequest) {
	if h.OnSessionRequest != nil {
		h.OnSessionRequest(r)
	}
}

func (h Handlers) sessionDelete(topic string) {
	if h.OnSessionDelete != nil {
		h.OnSessionDelete(topic)
	}
}

// PairingClient is the relay side of the protocol. Implementations must be safe for concurrent use.
type PairingClient interface {
	Pair(ctx context.Context, uri *PairingURI) error
	ApproveSession(ctx context.Context, approval SessionApproval) (*Session, error)
	RejectSession(ctx context.Context, proposalID int64, reason RPCError) error
	RespondSessionRequest(ctx context.Context, topic string, response RPCResponse) error
	DisconnectSession(ctx context.Context, topic string, reason RPCError) error
	PendingProposals() []Proposal
	ActiveSessions() []Session
	Close() error
}

// ClientFactory builds a PairingClient wired to handlers.
type ClientFactory func(ctx context.Context, handlers Handlers) (PairingClient, error)
