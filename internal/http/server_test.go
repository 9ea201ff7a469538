package http

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/moff-wallet/internal/chains"
	"moff.io/moff-wallet/internal/ledger"
	"moff.io/moff-wallet/internal/swap"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testURI      = "wc:7f6e504bfad60b485450578e05678ed3e8e8c4751d3c6160be17160d63ec90f9@2?relay-protocol=irn&symKey=587d5484ce2a2a6ee3ba1962fdd7e8588e06200c46823bd18fbd67def96ad303"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubClient struct {
	mu        sync.Mutex
	paired    []string
	proposals []walletconnect.Proposal
	sessions  []walletconnect.Session
	responses []walletconnect.RPCResponse
	closed    int
}

func (c *stubClient) Pair(ctx context.Context, uri *walletconnect.PairingURI) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paired = append(c.paired, uri.Bridge)
	c.proposals = append(c.proposals, walletconnect.Proposal{ID: 7, PairingTopic: uri.Bridge})
	return nil
}

func (c *stubClient) ApproveSession(ctx context.Context, approval walletconnect.SessionApproval) (*walletconnect.Session, error) {
	return &walletconnect.Session{Topic: "session", Namespaces: approval.Namespaces}, nil
}

func (c *stubClient) RejectSession(ctx context.Context, proposalID int64, reason walletconnect.RPCError) error {
	return nil
}

func (c *stubClient) RespondSessionRequest(ctx context.Context, topic string, response walletconnect.RPCResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, response)
	return nil
}

func (c *stubClient) answered() []walletconnect.RPCResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]walletconnect.RPCResponse{}, c.responses...)
}

func (c *stubClient) DisconnectSession(ctx context.Context, topic string, reason walletconnect.RPCError) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.sessions {
		if s.Topic == topic {
			c.sessions = append(c.sessions[:i], c.sessions[i+1:]...)
			return nil
		}
	}
	return errors.Wrapf(walletconnect.ErrSessionNotFound, "topic %s", topic)
}

func (c *stubClient) PendingProposals() []walletconnect.Proposal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]walletconnect.Proposal{}, c.proposals...)
}

func (c *stubClient) ActiveSessions() []walletconnect.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]walletconnect.Session{}, c.sessions...)
}

func (c *stubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

type denyLimiter struct {
	keys []string
}

func (l *denyLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.keys = append(l.keys, key)
	return false, nil
}

type memoryRegistry struct {
	states     []walletconnect.AccountState
	remembered []walletconnect.AccountState
}

func (r *memoryRegistry) Accounts(ctx context.Context) ([]walletconnect.AccountState, error) {
	return r.states, nil
}

func (r *memoryRegistry) Import(ctx context.Context, state walletconnect.AccountState, label string) error {
	for _, s := range r.states {
		if s.Address == state.Address {
			return errors.New(`ERROR: duplicate key value violates unique constraint "idx_wallet_accounts_address"`)
		}
	}
	r.states = append(r.states, state)
	return nil
}

func (r *memoryRegistry) Remember(ctx context.Context, state walletconnect.AccountState, label string) error {
	r.remembered = append(r.remembered, state)
	return nil
}

type memoryProfiles map[string]ledger.Profile

func (p memoryProfiles) SaveProfile(ctx context.Context, address string, profile ledger.Profile) error {
	p[address] = profile
	return nil
}

type memoryMnemonics map[string]string

func (m memoryMnemonics) Put(ctx context.Context, pubKey, mnemonic string) error {
	m[pubKey] = mnemonic
	return nil
}

type staticEnumerator []ledger.Device

func (e staticEnumerator) Devices(ctx context.Context) ([]ledger.Device, error) {
	return e, nil
}

type stubApp struct {
	info ledger.AppInfo
}

func (a *stubApp) Open(ctx context.Context, device ledger.Device) (ledger.CosmosApp, error) {
	return a, nil
}

func (a *stubApp) AppInfo() (ledger.AppInfo, error) {
	return a.info, nil
}

func (a *stubApp) GetAddressAndPubKey(path []uint32, hrp string) ([]byte, string, error) {
	return []byte{0x02, 0x01}, hrp + "1ledger", nil
}

func (a *stubApp) SignSECP256K1(path []uint32, msg []byte) ([]byte, error) {
	return nil, errors.New("not used")
}

func (a *stubApp) Close() error {
	return nil
}

type stubQuoter struct {
	params swap.QuoteParams
	quote  *swap.Quote
	err    error
}

func (q *stubQuoter) Quote(ctx context.Context, params swap.QuoteParams) (*swap.Quote, error) {
	q.params = params
	return q.quote, q.err
}

type fixture struct {
	server   *Server
	client   *stubClient
	handlers walletconnect.Handlers
	registry *memoryRegistry
	profiles memoryProfiles
	secrets  memoryMnemonics
	quoter   *stubQuoter
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		client:   &stubClient{},
		registry: &memoryRegistry{},
		profiles: memoryProfiles{},
		secrets:  memoryMnemonics{},
		quoter:   &stubQuoter{},
	}
	scanner := ledger.NewScanner(staticEnumerator{{ID: "hid:0", Name: "Nano X"}}, ledger.PruneMissing, 0)
	require.NoError(t, scanner.Scan(context.Background()))
	f.server = &Server{
		WalletConnect: walletconnect.NewService(walletconnect.ServiceOptions{
			Factory: func(ctx context.Context, handlers walletconnect.Handlers) (walletconnect.PairingClient, error) {
				f.handlers = handlers
				return f.client, nil
			},
			Accounts: f.registry,
		}),
		Scanner: scanner,
		Pairer: &ledger.Pairer{
			Opener:     &stubApp{info: ledger.AppInfo{Name: "Cosmos", Major: 2, Minor: 34}},
			HRP:        "umee",
			MinVersion: "2.1.0",
			CoinType:   118,
		},
		Swap:      &swap.Service{Quotes: f.quoter, DefaultSlippageBps: 50},
		Accounts:  f.registry,
		Profiles:  f.profiles,
		Mnemonics: f.secrets,
		CoinType:  118,
	}
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHello(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/hello", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idle", decode(t, w)["pairing"])
}

func TestPairURIAsyncRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/walletconnect/uri", map[string]interface{}{"uri": "wc:broken"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["accepted"])

	w = f.do(t, http.MethodPost, "/walletconnect/uri", map[string]interface{}{"uri": "wc:broken", "wait": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/walletconnect/uri", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPairURIWaitAndApprove(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/walletconnect/uri", map[string]interface{}{"uri": testURI, "wait": true})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["accepted"])
	assert.Len(t, body["proposals"], 1)
	assert.Equal(t, []string{"7f6e504bfad60b485450578e05678ed3e8e8c4751d3c6160be17160d63ec90f9"}, f.client.paired)

	w = f.do(t, http.MethodGet, "/walletconnect/proposals", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/walletconnect/proposals/8/approve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/walletconnect/proposals/abc/approve", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateURI(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/walletconnect/uri/validate", map[string]interface{}{"uri": testURI})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "2", body["version"])

	assert.Equal(t, true, body["supported"])

	w = f.do(t, http.MethodPost, "/walletconnect/uri/validate", map[string]interface{}{"uri": "https://example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["valid"])

	w = f.do(t, http.MethodPost, "/walletconnect/uri/validate", map[string]interface{}{"uri": "wc:topic@2?relay-protocol=irn&symKey=%C3%28"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["valid"])
}

func TestValidateURIReportsUnsupportedVersion(t *testing.T) {
	f := newFixture(t)
	f.server.WalletConnect = walletconnect.NewService(walletconnect.ServiceOptions{
		Factory: func(ctx context.Context, handlers walletconnect.Handlers) (walletconnect.PairingClient, error) {
			return f.client, nil
		},
		Versions: walletconnect.BridgeVersions,
	})
	w := f.do(t, http.MethodPost, "/walletconnect/uri/validate", map[string]interface{}{"uri": testURI})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, false, body["supported"])

	w = f.do(t, http.MethodPost, "/walletconnect/uri", map[string]interface{}{"uri": testURI, "wait": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.client.paired)
}

func TestSessionRequestApproval(t *testing.T) {
	f := newFixture(t)
	_, err := f.server.WalletConnect.Client(context.Background())
	require.NoError(t, err)
	f.handlers.OnSessionRequest(walletconnect.SessionRequest{
		ID: 11, Topic: "session", ChainID: "eip155:1", Method: walletconnect.MethodPersonalSign,
		Params: json.RawMessage(`["0x68656c6c6f","0x9858EfFD232B4033E47d90003D41EC34EcaEda94"]`),
	})
	f.handlers.OnSessionRequest(walletconnect.SessionRequest{
		ID: 12, Topic: "session", ChainID: "cosmos:umee-1", Method: walletconnect.MethodCosmosSignAmino,
		Params: json.RawMessage(`{}`),
	})

	w := f.do(t, http.MethodGet, "/walletconnect/requests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["requests"], 2)
	assert.Empty(t, f.client.answered())

	w = f.do(t, http.MethodPost, "/walletconnect/requests/12/reject", nil)
	require.Equal(t, http.StatusOK, w.Code)
	responses := f.client.answered()
	require.Len(t, responses, 1)
	assert.Equal(t, int64(12), responses[0].ID)
	assert.Equal(t, walletconnect.ReasonUserRejected.Code, responses[0].Error.Code)

	// no account is registered, approving answers the dapp with the signing error
	w = f.do(t, http.MethodPost, "/walletconnect/requests/11/approve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	responses = f.client.answered()
	require.Len(t, responses, 2)
	assert.Equal(t, int64(11), responses[1].ID)
	assert.NotNil(t, responses[1].Error)

	w = f.do(t, http.MethodPost, "/walletconnect/requests/11/approve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(t, http.MethodPost, "/walletconnect/requests/abc/reject", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/walletconnect/requests", nil)
	assert.Len(t, decode(t, w)["requests"], 0)
}

func TestResetClient(t *testing.T) {
	f := newFixture(t)
	_, err := f.server.WalletConnect.Client(context.Background())
	require.NoError(t, err)
	f.handlers.OnSessionRequest(walletconnect.SessionRequest{ID: 1, Topic: "session", Method: walletconnect.MethodPersonalSign})

	w := f.do(t, http.MethodPost, "/walletconnect/client/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idle", decode(t, w)["pairing"])
	assert.Equal(t, 1, f.client.closed)
	assert.Empty(t, f.server.WalletConnect.PendingRequests())
}

func TestURIQRCode(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/walletconnect/uri/qr", nil)
	q := req.URL.Query()
	q.Set("uri", testURI)
	q.Set("size", "128")
	req.URL.RawQuery = q.Encode()
	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
}

func TestPairingRateLimited(t *testing.T) {
	f := newFixture(t)
	limiter := &denyLimiter{}
	f.server.PairingLimiter = limiter
	w := f.do(t, http.MethodPost, "/walletconnect/uri", map[string]interface{}{"uri": testURI})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Len(t, limiter.keys, 1)
	assert.Empty(t, f.client.paired)

	// other groups are not throttled
	w = f.do(t, http.MethodGet, "/walletconnect/sessions", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDisconnectUnknownSession(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodDelete, "/walletconnect/sessions/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLedgerDevicesAndPair(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/ledger/devices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["devices"], 1)

	w = f.do(t, http.MethodPost, "/ledger/pair", map[string]interface{}{"chainId": "umee-1", "label": "ledger"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "umee1ledger", body["address"])
	assert.Equal(t, "0201", body["pubKey"])
	require.Len(t, f.registry.remembered, 1)
	assert.True(t, f.registry.remembered[0].IsLedger)
	assert.Equal(t, "umee", f.registry.remembered[0].Prefix)

	w = f.do(t, http.MethodPost, "/ledger/pair", map[string]interface{}{"deviceId": "hid:9"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLedgerPairOutdatedApp(t *testing.T) {
	f := newFixture(t)
	f.server.Pairer.Opener = &stubApp{info: ledger.AppInfo{Name: "Cosmos", Major: 1}}
	w := f.do(t, http.MethodPost, "/ledger/pair", map[string]interface{}{"deviceId": "hid:0"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Empty(t, f.registry.remembered)
}

func TestImportAccount(t *testing.T) {
	f := newFixture(t)
	req := map[string]interface{}{"mnemonic": testMnemonic, "chainId": "cosmoshub-4", "prefix": "cosmos"}
	w := f.do(t, http.MethodPost, "/accounts/import", req)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "cosmos19rl4cm2hmr8afy4kldpxz3fka4jguq0auqdal4", body["address"])
	assert.Equal(t, testMnemonic, f.secrets[body["pubKey"].(string)])

	w = f.do(t, http.MethodPost, "/accounts/import", req)
	assert.Equal(t, http.StatusConflict, w.Code)

	req["mnemonic"] = "not a mnemonic"
	w = f.do(t, http.MethodPost, "/accounts/import", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSaveProfile(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/profiles", map[string]interface{}{"address": "umee1abc", "name": "moff"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "moff", f.profiles["umee1abc"].Name)

	w = f.do(t, http.MethodPost, "/profiles", map[string]interface{}{"address": "umee1abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSwapQuoteFillsOpenSide(t *testing.T) {
	f := newFixture(t)
	f.quoter.quote = &swap.Quote{
		InputAmount:  swap.Amount{Value: big.NewInt(1000000), Decimals: 6},
		OutputAmount: swap.Amount{Value: big.NewInt(500000000000000000)},
		Calldatas:    []swap.Calldata{{To: "0x0000000000000000000000000000000000000001"}},
	}
	form := swap.Form{SrcChain: chains.BaseID, DestChain: chains.BaseID, FromValue: "1", SrcDecimals: 6, DestDecimals: 18}
	w := f.do(t, http.MethodPost, "/swap/quote", form)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "1", body["fromValue"])
	assert.Equal(t, "0.5", body["toValue"])
	assert.Equal(t, "1000000", f.quoter.params.Amount)

	form.SwapMode = swap.ExactOut
	form.ToValue = "0.5"
	w = f.do(t, http.MethodPost, "/swap/quote", form)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.0", decode(t, w)["fromValue"])
}

func TestSwapErrors(t *testing.T) {
	f := newFixture(t)
	f.quoter.err = errors.Wrap(swap.ErrNoRoute, "no liquidity")
	w := f.do(t, http.MethodPost, "/swap/quote", swap.Form{SrcChain: chains.BaseID, FromValue: "1"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodGet, "/swap/status?chain=cosmoshub-4&txid=0x01", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/swap/status", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/swap/submit", swap.Form{SrcChain: chains.BaseID, WalletAddress: "0xabc"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{errors.Wrap(walletconnect.ErrInvalidURI, "x"), http.StatusBadRequest},
		{walletconnect.ErrPairingInProgress, http.StatusConflict},
		{errors.Wrap(walletconnect.ErrRequestNotFound, "x"), http.StatusNotFound},
		{errors.Wrap(ledger.ErrDeviceNotFound, "x"), http.StatusNotFound},
		{errors.Wrap(ledger.ErrTransport, "x"), http.StatusServiceUnavailable},
		{errors.Wrap(context.DeadlineExceeded, "x"), http.StatusGatewayTimeout},
		{errors.Wrap(walletconnect.ErrNoSupportedNamespaces, "x"), http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusOf(c.err), c.err.Error())
	}
}
