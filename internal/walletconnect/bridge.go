package walletconnect

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
	"moff.io/moff-wallet/pkg/wccrypto"
)

var (
	ErrProposalNotFound = errors.New("session proposal not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrClientClosed     = errors.New("pairing client closed")

	errSessionClosed = errors.New("session closed")
)

const (
	methodSessionRequest = "wc_sessionRequest"
	methodSessionUpdate  = "wc_sessionUpdate"

	legacyNamespace      = "eip155"
	legacyRelayProtocol  = "bridge"
	legacyDefaultChainID = int64(1)
)

var (
	legacyMethods = []string{"eth_sendTransaction", "eth_signTransaction", "eth_sign", "personal_sign", "eth_signTypedData"}
	legacyEvents  = []string{"chainChanged", "accountsChanged"}
)

type BridgeOptions struct {
	Meta        Metadata
	ReadTimeout time.Duration
	Dialer      *websocket.Dialer
}

// BridgeVersions are the uri versions the bridge client pairs with.
var BridgeVersions = []string{"1"}

// NewBridgeClientFactory builds wallet side clients for version 1 uris. Other versions fail to pair with
// ErrUnsupportedVersion.
func NewBridgeClientFactory(opts BridgeOptions) ClientFactory {
	return func(ctx context.Context, handlers Handlers) (PairingClient, error) {
		return newBridgeClient(opts, handlers), nil
	}
}

type bridgeClient struct {
	opts     BridgeOptions
	handlers Handlers

	mu       sync.Mutex
	closed   bool
	pending  map[int64]*bridgeSession
	sessions map[string]*bridgeSession
}

func newBridgeClient(opts BridgeOptions, handlers Handlers) *bridgeClient {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = time.Minute * 5
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: time.Second * 30}
	}
	return &bridgeClient{
		opts:     opts,
		handlers: handlers,
		pending:  map[int64]*bridgeSession{},
		sessions: map[string]*bridgeSession{},
	}
}

// bridgeSession is one dapp connection. Each pairing gets its own socket and peer id so the bridge never fans
// another session's traffic into it.
type bridgeSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	key            []byte
	clientID       string
	handshakeTopic string
	peerID         string
	chainID        int64
	proposal       Proposal
	session        *Session
}

func (s *bridgeSession) write(msg *bridgeMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	log.Debugf("wallet connect - send:%v", string(msg.Marshal()))
	if err := s.conn.WriteMessage(websocket.TextMessage, msg.Marshal()); err != nil {
		return errors.WrapAndReport(err, "write wallet connect message to bridge")
	}
	return nil
}

func (s *bridgeSession) subscribe(topic string) error {
	return s.write(&bridgeMessage{Topic: topic, Type: "sub", Payload: "", Silent: true})
}

func (s *bridgeSession) ack(topic string) error {
	return s.write(&bridgeMessage{Topic: topic, Type: "ack", Payload: "", Silent: true})
}

func (s *bridgeSession) publish(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.WrapAndReport(err, "marshal json rpc")
	}
	payload, err := wccrypto.Seal(raw, s.key)
	if err != nil {
		return errors.WrapAndReport(err, "encrypt json rpc")
	}
	return s.write(&bridgeMessage{Topic: s.peerID, Type: "pub", Payload: payload.Marshal(), Silent: true})
}

// read blocks for the next published message and returns its decrypted json rpc.
func (s *bridgeSession) read(deadline time.Time) (string, error) {
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return "", errors.Wrap(err, "set websocket read deadline")
	}
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return "", errSessionClosed
			}
			return "", errors.Wrap(err, "read bridge message")
		}
		if msgType != websocket.TextMessage {
			continue
		}
		log.Debugf("wallet connect - receive:%v", string(data))
		msg, err := newBridgeMessageFromBytes(data)
		if err != nil {
			return "", err
		}
		if msg.Type != "pub" {
			continue
		}
		if err := s.ack(msg.Topic); err != nil {
			return "", err
		}
		payload, err := wccrypto.UnmarshalPayload([]byte(msg.Payload))
		if err != nil {
			return "", err
		}
		plain, err := wccrypto.Open(payload, s.key)
		if err != nil {
			return "", errors.Wrap(err, "decrypt bridge payload")
		}
		return string(plain), nil
	}
}

func (c *bridgeClient) Pair(ctx context.Context, uri *PairingURI) error {
	if !uri.IsLegacy() {
		return errors.Wrapf(ErrUnsupportedVersion, "version %q", uri.Version)
	}
	bridgeURL := uri.Parameters["bridge"]
	if bridgeURL == "" {
		return errors.WithMessage(ErrInvalidURI, "missing bridge")
	}
	key, err := hex.DecodeString(uri.SymKey())
	if err != nil || len(key) != 32 {
		return errors.WithMessage(ErrInvalidURI, "key must be 32 hex encoded bytes")
	}
	if c.isClosed() {
		return ErrClientClosed
	}

	conn, _, err := c.opts.Dialer.DialContext(ctx, wccrypto.WebSocketURL(bridgeURL, "wc", "1"), nil)
	if err != nil {
		return errors.WrapAndReport(err, "dial to wallet connect bridge url")
	}
	sess := &bridgeSession{
		conn:           conn,
		key:            key,
		clientID:       uuid.NewString(),
		handshakeTopic: uri.Bridge,
	}
	if err := c.handshake(ctx, sess); err != nil {
		_ = conn.Close()
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClientClosed
	}
	c.pending[sess.proposal.ID] = sess
	c.mu.Unlock()

	go c.readLoop(sess)
	c.handlers.proposal(sess.proposal)
	return nil
}

func (c *bridgeClient) handshake(ctx context.Context, sess *bridgeSession) error {
	if err := sess.subscribe(sess.handshakeTopic); err != nil {
		return err
	}
	if err := sess.subscribe(sess.clientID); err != nil {
		return err
	}

	deadline := time.Now().Add(c.opts.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	stop, exited := make(chan struct{}), make(chan struct{})
	defer func() {
		close(stop)
		<-exited
	}()
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			_ = sess.conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	payload, err := sess.read(deadline)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "wait for session request")
		}
		return err
	}
	if method := gjson.Get(payload, "method").String(); method != methodSessionRequest {
		return errors.Errorf("unexpected handshake method %q", method)
	}
	var req struct {
		ID     int64  `json:"id"`
		Params []peer `json:"params"`
	}
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return errors.Wrap(err, "unmarshal session request")
	}
	if len(req.Params) == 0 || req.Params[0].PeerID == "" {
		return errors.New("session request without peer")
	}

	p := req.Params[0]
	sess.peerID = p.PeerID
	sess.chainID = legacyChainID(p.ChainID)
	sess.proposal = Proposal{
		ID:           req.ID,
		PairingTopic: sess.handshakeTopic,
		Proposer:     p.PeerMeta,
		RequiredNamespaces: map[string]RequiredNamespace{
			legacyNamespace: {
				Chains:  []string{fmt.Sprintf("%s:%d", legacyNamespace, sess.chainID)},
				Methods: copyStrings(legacyMethods),
				Events:  copyStrings(legacyEvents),
			},
		},
		Relays: []Relay{{Protocol: legacyRelayProtocol}},
	}
	return nil
}

func legacyChainID(v interface{}) int64 {
	switch id := v.(type) {
	case float64:
		if id > 0 {
			return int64(id)
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimPrefix(id, legacyNamespace+":"), 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return legacyDefaultChainID
}

func (c *bridgeClient) readLoop(sess *bridgeSession) {
	defer c.drop(sess, true)
	for {
		payload, err := sess.read(time.Time{})
		if err != nil {
			if !errors.Is(err, errSessionClosed) && !c.isClosed() {
				log.Warnf("wallet connect - session %v read: %v", sess.handshakeTopic, err)
			}
			return
		}
		method := gjson.Get(payload, "method").String()
		switch {
		case method == methodSessionUpdate:
			approved := gjson.Get(payload, "params.0.approved")
			if approved.Exists() && !approved.Bool() {
				log.Infof("wallet connect - session %v closed by peer", sess.handshakeTopic)
				return
			}
		case method != "":
			c.mu.Lock()
			active := sess.session != nil
			chainID := sess.chainID
			c.mu.Unlock()
			if !active {
				log.Warnf("wallet connect - drop %v before session approved", method)
				continue
			}
			c.handlers.sessionRequest(SessionRequest{
				ID:      gjson.Get(payload, "id").Int(),
				Topic:   sess.handshakeTopic,
				ChainID: fmt.Sprintf("%s:%d", legacyNamespace, chainID),
				Method:  method,
				Params:  json.RawMessage(gjson.Get(payload, "params").Raw),
			})
		}
	}
}

// drop forgets sess and closes its socket. The delete handler only fires for the caller that removed it.
func (c *bridgeClient) drop(sess *bridgeSession, notify bool) {
	c.mu.Lock()
	removed := false
	if cur, ok := c.pending[sess.proposal.ID]; ok && cur == sess {
		delete(c.pending, sess.proposal.ID)
		removed = true
	}
	if cur, ok := c.sessions[sess.handshakeTopic]; ok && cur == sess {
		delete(c.sessions, sess.handshakeTopic)
		removed = true
	}
	c.mu.Unlock()
	_ = sess.conn.Close()
	if removed && notify {
		c.handlers.sessionDelete(sess.handshakeTopic)
	}
}

func (c *bridgeClient) ApproveSession(ctx context.Context, approval SessionApproval) (*Session, error) {
	c.mu.Lock()
	sess, ok := c.pending[approval.ID]
	c.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(ErrProposalNotFound, "id %d", approval.ID)
	}

	chainID, addresses := legacyAccounts(approval.Namespaces, sess.chainID)
	result := sessionResult{
		Approved:  true,
		ChainID:   chainID,
		NetworkID: 0,
		Accounts:  addresses,
		PeerID:    sess.clientID,
		PeerMeta:  &c.opts.Meta,
	}
	if err := sess.publish(resultResponse(approval.ID, result)); err != nil {
		return nil, err
	}

	session := &Session{
		Topic:        sess.handshakeTopic,
		PairingTopic: sess.proposal.PairingTopic,
		Peer:         sess.proposal.Proposer,
		Namespaces:   approval.Namespaces,
	}
	c.mu.Lock()
	if cur, ok := c.pending[approval.ID]; !ok || cur != sess {
		c.mu.Unlock()
		return nil, errors.Wrapf(errSessionClosed, "proposal %d", approval.ID)
	}
	delete(c.pending, approval.ID)
	sess.chainID = chainID
	sess.session = session
	c.sessions[sess.handshakeTopic] = sess
	c.mu.Unlock()
	copied := *session
	return &copied, nil
}

// legacyAccounts flattens CAIP-10 accounts into the bare addresses v1 peers expect, preferring eip155.
func legacyAccounts(namespaces Namespaces, fallback int64) (int64, []string) {
	ns, ok := namespaces[legacyNamespace]
	if !ok {
		names := namespaces.Names()
		if len(names) == 0 {
			return fallback, nil
		}
		ns = namespaces[names[0]]
	}
	chainID := fallback
	addresses := make([]string, 0, len(ns.Accounts))
	for i, account := range ns.Accounts {
		parts := strings.SplitN(account, ":", 3)
		if len(parts) != 3 {
			continue
		}
		if i == 0 {
			if n, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
				chainID = n
			}
		}
		addresses = append(addresses, parts[2])
	}
	return chainID, addresses
}

func (c *bridgeClient) RejectSession(ctx context.Context, proposalID int64, reason RPCError) error {
	c.mu.Lock()
	sess, ok := c.pending[proposalID]
	c.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrProposalNotFound, "id %d", proposalID)
	}
	defer c.drop(sess, false)
	reason.Message = "Session Rejected: " + reason.Message
	return sess.publish(errorResponse(proposalID, reason))
}

func (c *bridgeClient) RespondSessionRequest(ctx context.Context, topic string, response RPCResponse) error {
	c.mu.Lock()
	sess, ok := c.sessions[topic]
	c.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrSessionNotFound, "topic %s", topic)
	}
	return sess.publish(response)
}

func (c *bridgeClient) DisconnectSession(ctx context.Context, topic string, reason RPCError) error {
	c.mu.Lock()
	sess, ok := c.sessions[topic]
	if !ok {
		for _, p := range c.pending {
			if p.proposal.PairingTopic == topic {
				sess, ok = p, true
				break
			}
		}
	}
	c.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrSessionNotFound, "topic %s", topic)
	}
	defer c.drop(sess, false)
	log.Debugf("wallet connect - disconnect %v: %v", topic, reason.Message)
	return sess.publish(newJSONRPCRequest(methodSessionUpdate, sessionResult{Approved: false}))
}

func (c *bridgeClient) PendingProposals() []Proposal {
	c.mu.Lock()
	defer c.mu.Unlock()
	proposals := make([]Proposal, 0, len(c.pending))
	for _, sess := range c.pending {
		proposals = append(proposals, sess.proposal)
	}
	sort.Slice(proposals, func(i, j int) bool { return proposals[i].ID < proposals[j].ID })
	return proposals
}

func (c *bridgeClient) ActiveSessions() []Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	sessions := make([]Session, 0, len(c.sessions))
	for _, sess := range c.sessions {
		sessions = append(sessions, *sess.session)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Topic < sessions[j].Topic })
	return sessions
}

func (c *bridgeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *bridgeClient) Close() error {
	c.mu.Lock()
	c.closed = true
	all := make([]*bridgeSession, 0, len(c.pending)+len(c.sessions))
	for _, sess := range c.pending {
		all = append(all, sess)
	}
	for _, sess := range c.sessions {
		all = append(all, sess)
	}
	c.mu.Unlock()
	for _, sess := range all {
		c.drop(sess, false)
	}
	return nil
}
