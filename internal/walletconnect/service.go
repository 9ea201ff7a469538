package walletconnect

import (
	"context"
	"sync"
	"time"

	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

var ErrPairingInProgress = errors.New("pairing already in progress")

type ServiceOptions struct {
	Factory   ClientFactory
	Accounts  AccountStore
	Signers   SignerResolver
	Publisher Publisher
	Archiver  Archiver

	// Versions the Factory's client pairs with, empty accepts any.
	Versions []string

	PairTimeout time.Duration
	CoinType    uint32
}

// Service is the wallet side of wallet connect. It owns the single live PairingClient and admits one pairing
// attempt at a time.
type Service struct {
	opts  ServiceOptions
	guard PairingGuard

	mu     sync.Mutex
	client PairingClient

	reqMu    sync.Mutex
	requests map[int64]SessionRequest
}

func NewService(opts ServiceOptions) *Service {
	if opts.PairTimeout <= 0 {
		opts.PairTimeout = time.Minute * 2
	}
	if opts.CoinType == 0 {
		opts.CoinType = 118
	}
	return &Service{opts: opts}
}

func (s *Service) handlers() Handlers {
	return Handlers{
		OnProposal:       s.onProposal,
		OnSessionRequest: s.onSessionRequest,
		OnSessionDelete:  s.onSessionDelete,
	}
}

// Client returns the live client, creating it on first use.
func (s *Service) Client(ctx context.Context) (PairingClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	client, err := s.opts.Factory(ctx, s.handlers())
	if err != nil {
		return nil, errors.WrapAndReport(err, "create pairing client")
	}
	s.client = client
	return client, nil
}

func (s *Service) currentClient() PairingClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Recreate closes the live client, returns the guard to idle and builds a fresh client. Requests parked for the
// old client are dropped.
func (s *Service) Recreate(ctx context.Context) error {
	s.mu.Lock()
	old := s.client
	s.client = nil
	s.mu.Unlock()
	s.dropRequests("")
	if old != nil {
		if err := old.Close(); err != nil {
			log.Warnf("wallet connect - close previous client: %v", err)
		}
	}
	s.guard.Leave()
	_, err := s.Client(ctx)
	return err
}

// Close shuts the live client down.
func (s *Service) Close() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}

func (s *Service) PairingState() PairingState {
	return s.guard.State()
}

// Supports reports whether the live client can pair with a uri of this version.
func (s *Service) Supports(uri *PairingURI) bool {
	if len(s.opts.Versions) == 0 {
		return true
	}
	for _, v := range s.opts.Versions {
		if v == uri.Version {
			return true
		}
	}
	return false
}

func (s *Service) admit(uri string) (*PairingURI, error) {
	if !ValidateURI(uri) {
		return nil, ErrInvalidURI
	}
	parsed := ParseURI(uri)
	if !s.Supports(parsed) {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %q", parsed.Version)
	}
	return parsed, nil
}

// HandleURI starts pairing with uri in the background. It returns false without side effects when the uri is
// invalid, of a version the client cannot pair, or another pairing is running.
func (s *Service) HandleURI(ctx context.Context, uri string) bool {
	parsed, err := s.admit(uri)
	if err != nil {
		log.Debugf("wallet connect - ignore uri: %v", err)
		return false
	}
	ctx = detach(ctx)
	admitted := make(chan bool, 1)
	go func() {
		entered, err := s.guard.Do(func() error {
			admitted <- true
			return s.pair(ctx, parsed)
		})
		if !entered {
			admitted <- false
			return
		}
		if err != nil {
			log.Errorf("wallet connect - pair %v: %v", parsed.Bridge, err)
		}
	}()
	if !<-admitted {
		log.Debugf("wallet connect - ignore uri: %v", ErrPairingInProgress)
		return false
	}
	return true
}

// PairURI pairs synchronously. It fails with ErrInvalidURI, ErrUnsupportedVersion or ErrPairingInProgress before
// touching the client.
func (s *Service) PairURI(ctx context.Context, uri string) error {
	parsed, err := s.admit(uri)
	if err != nil {
		return err
	}
	entered, err := s.guard.Do(func() error {
		return s.pair(ctx, parsed)
	})
	if !entered {
		return ErrPairingInProgress
	}
	return err
}

func (s *Service) pair(ctx context.Context, uri *PairingURI) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.PairTimeout)
	defer cancel()
	client, err := s.Client(ctx)
	if err != nil {
		return err
	}
	if err := client.Pair(ctx, uri); err != nil {
		return errors.Wrap(err, "pair")
	}
	return nil
}

func (s *Service) onProposal(p Proposal) {
	log.Infof("wallet connect - session proposal %d from %v", p.ID, p.Proposer.Name)
	e := newSessionEvent(EventProposal)
	e.ProposalID = p.ID
	e.Topic = p.PairingTopic
	e.Peer = p.Proposer.Name
	s.publish(context.Background(), e)
}

// onSessionRequest parks signing requests until ApproveRequest or RejectRequest. Account queries and unsupported
// methods are answered right away.
func (s *Service) onSessionRequest(req SessionRequest) {
	if needsApproval(req.Method) {
		log.Infof("wallet connect - session request %d %v waiting for approval", req.ID, req.Method)
		s.park(req)
		return
	}
	go func() {
		if err := s.HandleSessionRequest(context.Background(), req); err != nil {
			log.Warnf("wallet connect - session request %d %v: %v", req.ID, req.Method, err)
		}
	}()
}

func (s *Service) onSessionDelete(topic string) {
	log.Infof("wallet connect - session %v deleted by peer", topic)
	s.dropRequests(topic)
	e := newSessionEvent(EventDisconnected)
	e.Topic = topic
	s.publish(context.Background(), e)
}

func (s *Service) PendingProposals() []Proposal {
	client := s.currentClient()
	if client == nil {
		return []Proposal{}
	}
	return client.PendingProposals()
}

func (s *Service) ActiveSessions() []Session {
	client := s.currentClient()
	if client == nil {
		return []Session{}
	}
	return client.ActiveSessions()
}

// ApproveProposalByID approves a proposal still pending on the live client.
func (s *Service) ApproveProposalByID(ctx context.Context, id int64) (*Session, error) {
	for _, p := range s.PendingProposals() {
		if p.ID == id {
			return s.ApproveProposal(ctx, p)
		}
	}
	return nil, errors.Wrapf(ErrProposalNotFound, "id %d", id)
}

// ApproveProposal reconciles the proposal against the held accounts and approves what is supported. Any failure
// rejects the proposal and disconnects its pairing.
func (s *Service) ApproveProposal(ctx context.Context, p Proposal) (*Session, error) {
	client, err := s.Client(ctx)
	if err != nil {
		return nil, err
	}
	states, err := s.opts.Accounts.Accounts(ctx)
	if err != nil {
		err = errors.Wrap(err, "load accounts")
		s.reject(ctx, client, p, err)
		return nil, err
	}
	namespaces, err := Reconcile(p.RequiredNamespaces, toAccounts(states))
	if err != nil {
		s.reject(ctx, client, p, err)
		return nil, err
	}
	session, err := client.ApproveSession(ctx, SessionApproval{
		ID:            p.ID,
		Namespaces:    namespaces,
		RelayProtocol: p.relayProtocol(),
	})
	if err != nil {
		err = errors.Wrap(err, "approve session")
		s.reject(ctx, client, p, err)
		return nil, err
	}

	e := newSessionEvent(EventApproved)
	e.ProposalID = p.ID
	e.Topic = session.Topic
	e.Peer = p.Proposer.Name
	e.Namespaces = namespaces.Names()
	s.publish(ctx, e)
	return session, nil
}

func (s *Service) reject(ctx context.Context, client PairingClient, p Proposal, cause error) {
	log.Warnf("wallet connect - reject proposal %d: %v", p.ID, cause)
	if err := client.RejectSession(ctx, p.ID, ReasonUserRejected); err != nil && !errors.Is(err, ErrProposalNotFound) {
		log.Errorf("wallet connect - reject session %d: %v", p.ID, err)
	}
	err := client.DisconnectSession(ctx, p.PairingTopic, ReasonUserRejectedMethods)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		log.Errorf("wallet connect - disconnect pairing %v: %v", p.PairingTopic, err)
	}
	e := newSessionEvent(EventRejected)
	e.ProposalID = p.ID
	e.Topic = p.PairingTopic
	e.Peer = p.Proposer.Name
	e.Error = cause.Error()
	s.publish(ctx, e)
}

func (s *Service) Disconnect(ctx context.Context, topic string) error {
	client := s.currentClient()
	if client == nil {
		return errors.Wrapf(ErrSessionNotFound, "topic %s", topic)
	}
	if err := client.DisconnectSession(ctx, topic, ReasonUserDisconnected); err != nil {
		return err
	}
	s.dropRequests(topic)
	e := newSessionEvent(EventDisconnected)
	e.Topic = topic
	s.publish(ctx, e)
	return nil
}

// DisconnectAll rejects every pending proposal and ends every active session. Failures are only logged.
func (s *Service) DisconnectAll(ctx context.Context) {
	client := s.currentClient()
	if client == nil {
		return
	}
	for _, p := range client.PendingProposals() {
		if err := client.RejectSession(ctx, p.ID, ReasonUserRejected); err != nil {
			log.Warnf("wallet connect - reject proposal %d: %v", p.ID, err)
		}
	}
	for _, session := range client.ActiveSessions() {
		if err := s.Disconnect(ctx, session.Topic); err != nil {
			log.Warnf("wallet connect - disconnect %v: %v", session.Topic, err)
		}
	}
}

// detached keeps the values of a request context without its deadline or cancellation.
type detached struct {
	context.Context
}

func detach(ctx context.Context) context.Context {
	return detached{ctx}
}

func (detached) Deadline() (time.Time, bool) { return time.Time{}, false }
func (detached) Done() <-chan struct{}       { return nil }
func (detached) Err() error                  { return nil }
