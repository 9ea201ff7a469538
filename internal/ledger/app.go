package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	ledger_cosmos_go "github.com/cosmos/ledger-cosmos-go"
	ledger_go "github.com/zondax/ledger-go"
	"moff.io/moff-wallet/pkg/errors"
)

const cosmosAppName = "Cosmos"

type AppInfo struct {
	Name    string `json:"name"`
	Major   uint8  `json:"major"`
	Minor   uint8  `json:"minor"`
	Patch   uint8  `json:"patch"`
	AppMode uint8  `json:"appMode"`
}

func (i AppInfo) Version() string {
	return fmt.Sprintf("%d.%d.%d", i.Major, i.Minor, i.Patch)
}

// CosmosApp is the cosmos app running on an opened device.
type CosmosApp interface {
	AppInfo() (AppInfo, error)
	GetAddressAndPubKey(path []uint32, hrp string) (pubKey []byte, address string, err error)
	// SignSECP256K1 returns a DER signature over sha256(msg), the device does the hashing.
	SignSECP256K1(path []uint32, msg []byte) ([]byte, error)
	Close() error
}

type Opener interface {
	Open(ctx context.Context, device Device) (CosmosApp, error)
}

// HIDOpener connects to the first ledger on usb that runs the cosmos app. The device id is not used to pick among
// several ledgers.
type HIDOpener struct{}

func (HIDOpener) Open(ctx context.Context, device Device) (CosmosApp, error) {
	name, err := runningAppName(ledger_go.NewLedgerAdmin())
	if err != nil {
		return nil, errors.Wrapf(ErrTransport, "open %s: %v", device.ID, err)
	}
	app, err := ledger_cosmos_go.FindLedgerCosmosUserApp()
	if err != nil {
		return nil, errors.Wrapf(ErrTransport, "open %s running %q: %v", device.ID, name, err)
	}
	return &hidApp{app: app, name: name}, nil
}

// dashboard command answered by every app: get app name and version
var getAppAndVersion = []byte{0xb0, 0x01, 0x00, 0x00, 0x00}

// runningAppName asks the first ledger which app is open, the device is closed again before returning.
func runningAppName(admin ledger_go.LedgerAdmin) (string, error) {
	device, err := admin.Connect(0)
	if err != nil {
		return "", err
	}
	defer device.Close()
	resp, err := device.Exchange(getAppAndVersion)
	if err != nil {
		return "", err
	}
	name, _, err := parseAppAndVersion(resp)
	return name, err
}

// parseAppAndVersion reads format, then the length prefixed name and version.
func parseAppAndVersion(resp []byte) (name, version string, err error) {
	if len(resp) < 2 || resp[0] != 0x01 {
		return "", "", errors.Errorf("unexpected app info response %x", resp)
	}
	rest := resp[1:]
	field := func() (string, bool) {
		if len(rest) < 1 || len(rest) < 1+int(rest[0]) {
			return "", false
		}
		v := string(rest[1 : 1+int(rest[0])])
		rest = rest[1+int(rest[0]):]
		return v, true
	}
	var ok bool
	if name, ok = field(); !ok {
		return "", "", errors.Errorf("truncated app name in %x", resp)
	}
	if version, ok = field(); !ok {
		return "", "", errors.Errorf("truncated app version in %x", resp)
	}
	return name, version, nil
}

type hidApp struct {
	app  *ledger_cosmos_go.LedgerCosmos
	name string
}

// AppInfo reports the app name read when the device was opened and the version the cosmos app returns.
func (a *hidApp) AppInfo() (AppInfo, error) {
	v, err := a.app.GetVersion()
	if err != nil {
		return AppInfo{}, errors.Wrap(ErrTransport, err.Error())
	}
	return AppInfo{Name: a.name, Major: v.Major, Minor: v.Minor, Patch: v.Patch, AppMode: v.AppMode}, nil
}

func (a *hidApp) GetAddressAndPubKey(path []uint32, hrp string) ([]byte, string, error) {
	pubKey, address, err := a.app.GetAddressPubKeySECP256K1(path, hrp)
	if err != nil {
		return nil, "", errors.Wrap(ErrTransport, err.Error())
	}
	return pubKey, address, nil
}

func (a *hidApp) SignSECP256K1(path []uint32, msg []byte) ([]byte, error) {
	sig, err := a.app.SignSECP256K1(path, msg)
	if err != nil {
		return nil, errors.Wrap(ErrTransport, err.Error())
	}
	return sig, nil
}

func (a *hidApp) Close() error {
	return a.app.Close()
}

// CheckAppInfo requires the cosmos app at minVersion or newer.
func CheckAppInfo(info AppInfo, minVersion string) error {
	if info.Name != cosmosAppName {
		return errors.Wrapf(ErrTransport, "open the %s app on the ledger, found %q", cosmosAppName, info.Name)
	}
	min, err := parseVersion(minVersion)
	if err != nil {
		return err
	}
	have := [3]int{int(info.Major), int(info.Minor), int(info.Patch)}
	for i := range have {
		if have[i] != min[i] {
			if have[i] < min[i] {
				return errors.Wrapf(ErrTransport, "cosmos app %s is older than %s, update the ledger", info.Version(), minVersion)
			}
			return nil
		}
	}
	return nil
}

func parseVersion(v string) ([3]int, error) {
	var out [3]int
	if v == "" {
		return out, nil
	}
	parts := strings.Split(strings.TrimPrefix(v, "v"), ".")
	if len(parts) > 3 {
		return out, errors.Errorf("invalid version %q", v)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return out, errors.Errorf("invalid version %q", v)
		}
		out[i] = n
	}
	return out, nil
}
