package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcec"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ledger_go "github.com/zondax/ledger-go"
	"moff.io/moff-wallet/internal/cosmos"
	"moff.io/moff-wallet/pkg/errors"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

type fakeEnumerator struct {
	mu      sync.Mutex
	devices []Device
	err     error
}

func (e *fakeEnumerator) set(devices []Device, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.devices, e.err = devices, err
}

func (e *fakeEnumerator) Devices(ctx context.Context) ([]Device, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Device{}, e.devices...), e.err
}

type fakeApp struct {
	info   AppInfo
	key    *btcec.PrivateKey
	opened int
	closed int
	signed int
}

func newFakeApp(t *testing.T) *fakeApp {
	key, err := cosmos.DerivePrivateKey(testMnemonic, cosmos.HDPath(118, 0))
	require.NoError(t, err)
	priv, _ := btcec.PrivKeyFromBytes(btcec.S256(), crypto.FromECDSA(key))
	return &fakeApp{info: AppInfo{Name: "Cosmos", Major: 2, Minor: 34, Patch: 12}, key: priv}
}

func (a *fakeApp) Open(ctx context.Context, device Device) (CosmosApp, error) {
	if device.ID == "" {
		return nil, errors.Wrap(ErrTransport, "no device")
	}
	a.opened++
	return a, nil
}

func (a *fakeApp) AppInfo() (AppInfo, error) {
	return a.info, nil
}

func (a *fakeApp) GetAddressAndPubKey(path []uint32, hrp string) ([]byte, string, error) {
	pubKey := a.key.PubKey().SerializeCompressed()
	address, err := cosmos.AddressFromPubKey(hrp, pubKey)
	return pubKey, address, err
}

func (a *fakeApp) SignSECP256K1(path []uint32, msg []byte) ([]byte, error) {
	a.signed++
	hash := sha256.Sum256(msg)
	sig, err := a.key.Sign(hash[:])
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

func (a *fakeApp) Close() error {
	a.closed++
	return nil
}

type staticProfiles map[string]*Profile

func (p staticProfiles) ProfileByAddress(ctx context.Context, address string) (*Profile, error) {
	return p[address], nil
}

func TestScannerKeepPolicy(t *testing.T) {
	enum := &fakeEnumerator{}
	scanner := NewScanner(enum, PruneKeep, 0)
	events, unsubscribe := scanner.Subscribe(4)
	defer unsubscribe()

	enum.set([]Device{{ID: "hid:0", Name: "Ledger #1"}}, nil)
	require.NoError(t, scanner.Scan(context.Background()))
	assert.Equal(t, "hid:0", (<-events).Device.ID)

	enum.set([]Device{{ID: "hid:0"}, {ID: "hid:1"}}, nil)
	require.NoError(t, scanner.Scan(context.Background()))
	assert.Equal(t, "hid:1", (<-events).Device.ID)
	assert.Len(t, events, 0)

	enum.set(nil, nil)
	require.NoError(t, scanner.Scan(context.Background()))
	assert.Len(t, scanner.Devices(), 2)

	first, err := scanner.First()
	require.NoError(t, err)
	assert.Equal(t, "Ledger #1", first.Name)
}

func TestScannerPruneMissing(t *testing.T) {
	enum := &fakeEnumerator{}
	scanner := NewScanner(enum, PruneMissing, 0)
	enum.set([]Device{{ID: "hid:0"}, {ID: "hid:1"}}, nil)
	require.NoError(t, scanner.Scan(context.Background()))
	enum.set([]Device{{ID: "hid:1"}}, nil)
	require.NoError(t, scanner.Scan(context.Background()))

	assert.Equal(t, []Device{{ID: "hid:1"}}, scanner.Devices())
	_, err := scanner.Device("hid:0")
	assert.True(t, errors.Is(err, ErrDeviceNotFound))
}

func TestScannerErrorKeepsCandidates(t *testing.T) {
	enum := &fakeEnumerator{}
	scanner := NewScanner(enum, PruneMissing, 0)
	enum.set([]Device{{ID: "hid:0"}}, nil)
	require.NoError(t, scanner.Scan(context.Background()))

	enum.set(nil, errors.New("usb gone"))
	err := scanner.Scan(context.Background())
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Equal(t, err, scanner.LastError())
	assert.Len(t, scanner.Devices(), 1)
}

func TestScannerReloadAnnouncesAgain(t *testing.T) {
	enum := &fakeEnumerator{}
	scanner := NewScanner(enum, PruneKeep, 0)
	enum.set([]Device{{ID: "hid:0"}}, nil)
	require.NoError(t, scanner.Scan(context.Background()))

	events, unsubscribe := scanner.Subscribe(1)
	require.NoError(t, scanner.Reload(context.Background()))
	assert.Equal(t, "hid:0", (<-events).Device.ID)

	unsubscribe()
	unsubscribe()
	_, ok := <-events
	assert.False(t, ok)
}

func TestCheckAppInfo(t *testing.T) {
	info := AppInfo{Name: "Cosmos", Major: 2, Minor: 1, Patch: 0}
	assert.NoError(t, CheckAppInfo(info, "2.1.0"))
	assert.NoError(t, CheckAppInfo(info, "1.9"))
	assert.NoError(t, CheckAppInfo(info, ""))
	assert.True(t, errors.Is(CheckAppInfo(info, "2.1.1"), ErrTransport))
	assert.True(t, errors.Is(CheckAppInfo(AppInfo{Name: "Ethereum", Major: 9}, "1.0.0"), ErrTransport))
	assert.Error(t, CheckAppInfo(info, "x.y"))
}

type dashboardDevice struct {
	resp    []byte
	command []byte
	closed  bool
}

func (d *dashboardDevice) CountDevices() int {
	return 1
}

func (d *dashboardDevice) ListDevices() ([]string, error) {
	return []string{"hid:0"}, nil
}

func (d *dashboardDevice) Connect(int) (ledger_go.LedgerDevice, error) {
	return d, nil
}

func (d *dashboardDevice) Exchange(command []byte) ([]byte, error) {
	d.command = command
	return d.resp, nil
}

func (d *dashboardDevice) Close() error {
	d.closed = true
	return nil
}

func appAndVersion(name, version string) []byte {
	resp := []byte{0x01, byte(len(name))}
	resp = append(resp, name...)
	resp = append(resp, byte(len(version)))
	resp = append(resp, version...)
	return append(resp, 0x01, 0x00)
}

func TestRunningAppName(t *testing.T) {
	device := &dashboardDevice{resp: appAndVersion("Ethereum", "1.10.3")}
	name, err := runningAppName(device)
	require.NoError(t, err)
	assert.Equal(t, "Ethereum", name)
	assert.Equal(t, getAppAndVersion, device.command)
	assert.True(t, device.closed)

	// the name read from the device is what CheckAppInfo judges
	assert.True(t, errors.Is(CheckAppInfo(AppInfo{Name: name, Major: 9}, "1.0.0"), ErrTransport))
	assert.NoError(t, CheckAppInfo(AppInfo{Name: "Cosmos", Major: 2, Minor: 34}, "2.1.0"))
}

func TestParseAppAndVersion(t *testing.T) {
	name, version, err := parseAppAndVersion(appAndVersion("Cosmos", "2.34.12"))
	require.NoError(t, err)
	assert.Equal(t, "Cosmos", name)
	assert.Equal(t, "2.34.12", version)

	_, _, err = parseAppAndVersion([]byte{0x01, 0x06, 'C', 'o'})
	assert.Error(t, err)
	_, _, err = parseAppAndVersion([]byte{0x02, 0x00, 0x00})
	assert.Error(t, err)
	_, _, err = parseAppAndVersion(nil)
	assert.Error(t, err)
}

func TestPair(t *testing.T) {
	app := newFakeApp(t)
	address := "cosmos19rl4cm2hmr8afy4kldpxz3fka4jguq0auqdal4"
	pairer := &Pairer{
		Opener:     app,
		Profiles:   staticProfiles{address: {Name: "moff"}},
		HRP:        "cosmos",
		MinVersion: "2.0.0",
		CoinType:   118,
	}
	result, err := pairer.Pair(context.Background(), Device{ID: "hid:0"})
	require.NoError(t, err)
	assert.Equal(t, address, result.Address)
	assert.Equal(t, hex.EncodeToString(app.key.PubKey().SerializeCompressed()), result.PubKey)
	require.NotNil(t, result.Profile)
	assert.Equal(t, "moff", result.Profile.Name)
	assert.Equal(t, 1, app.closed)
}

func TestPairOutdatedApp(t *testing.T) {
	app := newFakeApp(t)
	pairer := &Pairer{Opener: app, HRP: "cosmos", MinVersion: "3.0.0", CoinType: 118}
	_, err := pairer.Pair(context.Background(), Device{ID: "hid:0"})
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Equal(t, 1, app.closed)

	_, err = pairer.Pair(context.Background(), Device{})
	assert.True(t, errors.Is(err, ErrTransport))
}

func TestSignerSignAmino(t *testing.T) {
	app := newFakeApp(t)
	signer, err := NewSigner(context.Background(), app, Device{ID: "hid:0"}, cosmos.HDPath(118, 0), "cosmos", "2.0.0")
	require.NoError(t, err)

	fee := cosmos.StdFee{Amount: []cosmos.Coin{{Denom: "uatom", Amount: "500"}}, Gas: "200000"}
	doc := cosmos.MakeSignDoc(nil, fee, "cosmoshub-4", "ledger", "7", "1")
	resp, err := signer.SignAmino(context.Background(), signer.Address(), doc)
	require.NoError(t, err)
	assert.True(t, cosmos.VerifyAminoSignature(resp))
	assert.Equal(t, 1, app.signed)
	assert.Equal(t, app.opened, app.closed)

	_, err = signer.SignAmino(context.Background(), "cosmos1other", doc)
	assert.True(t, errors.Is(err, cosmos.ErrAddressMismatch))
	assert.Equal(t, 1, app.signed)
}

func TestDERToCompactNormalizesS(t *testing.T) {
	app := newFakeApp(t)
	hash := sha256.Sum256([]byte("moff"))
	sig, err := app.key.Sign(hash[:])
	require.NoError(t, err)

	low, err := DERToCompact(sig.Serialize())
	require.NoError(t, err)

	highS := new(big.Int).Sub(btcec.S256().N, sig.S)
	high, err := DERToCompact(derEncode(sig.R, highS))
	require.NoError(t, err)
	assert.Equal(t, low, high)

	pubKey := app.key.PubKey().SerializeCompressed()
	assert.True(t, crypto.VerifySignature(pubKey, hash[:], low))

	_, err = DERToCompact([]byte{0x30, 0x01})
	assert.Error(t, err)
}

func derEncode(r, s *big.Int) []byte {
	rb, sb := derInt(r), derInt(s)
	out := []byte{0x30, byte(4 + len(rb) + len(sb)), 0x02, byte(len(rb))}
	out = append(out, rb...)
	out = append(out, 0x02, byte(len(sb)))
	return append(out, sb...)
}

func derInt(v *big.Int) []byte {
	b := v.Bytes()
	if b[0]&0x80 != 0 {
		b = append([]byte{0x00}, b...)
	}
	return b
}
