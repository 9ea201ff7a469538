package signing

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/accounts"
	"moff.io/moff-wallet/internal/cosmos"
	"moff.io/moff-wallet/internal/ledger"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
)

const evmCoinType = 60

var ErrLedgerEVMUnsupported = errors.New("ledger accounts cannot sign evm messages")

// MnemonicSource is satisfied by *keystore.Store.
type MnemonicSource interface {
	Get(ctx context.Context, pubKey string) (string, error)
}

// DeviceSource is satisfied by *ledger.Scanner.
type DeviceSource interface {
	First() (ledger.Device, error)
	Subscribe(buffer int) (<-chan ledger.DeviceEvent, func())
}

// Resolver picks the keystore or the attached ledger depending on the account.
type Resolver struct {
	Mnemonics        MnemonicSource
	Devices          DeviceSource
	Opener           ledger.Opener
	LedgerMinVersion string
}

var _ walletconnect.SignerResolver = (*Resolver)(nil)

func (r *Resolver) AminoSigner(ctx context.Context, account walletconnect.AccountState, path accounts.DerivationPath) (cosmos.AminoSigner, error) {
	if account.IsLedger {
		return r.ledgerSigner(ctx, account, path)
	}
	mnemonic, err := r.Mnemonics.Get(ctx, account.PubKey)
	if err != nil {
		return nil, err
	}
	signer, err := cosmos.NewMnemonicSigner(mnemonic, path, account.Prefix)
	if err != nil {
		return nil, err
	}
	if err := cosmos.CheckSigner(account.Address, signer.Address()); err != nil {
		return nil, err
	}
	return signer, nil
}

func (r *Resolver) ledgerSigner(ctx context.Context, account walletconnect.AccountState, path accounts.DerivationPath) (cosmos.AminoSigner, error) {
	if r.Devices == nil || r.Opener == nil {
		return nil, errors.Wrap(ledger.ErrTransport, "ledger support is not configured")
	}
	device, err := r.waitDevice(ctx)
	if err != nil {
		return nil, err
	}
	signer, err := ledger.NewSigner(ctx, r.Opener, device, path, account.Prefix, r.LedgerMinVersion)
	if err != nil {
		return nil, err
	}
	if err := cosmos.CheckSigner(account.Address, signer.Address()); err != nil {
		return nil, err
	}
	return signer, nil
}

// waitDevice returns the first candidate, blocking until the scanner announces one or ctx ends.
func (r *Resolver) waitDevice(ctx context.Context) (ledger.Device, error) {
	// subscribe before looking so a device found in between is not missed
	events, unsubscribe := r.Devices.Subscribe(1)
	defer unsubscribe()
	device, err := r.Devices.First()
	if err == nil {
		return device, nil
	}
	if !errors.Is(err, ledger.ErrDeviceNotFound) {
		return ledger.Device{}, errors.Wrap(ledger.ErrTransport, err.Error())
	}
	select {
	case e, open := <-events:
		if !open {
			return ledger.Device{}, errors.Wrap(ledger.ErrTransport, "device scanner stopped")
		}
		return e.Device, nil
	case <-ctx.Done():
		return ledger.Device{}, errors.Wrap(ctx.Err(), "wait for ledger device")
	}
}

// EVMKey derives the eip155 key from the mnemonic of a cosmos account, m/44'/60'/0'/0/0.
func (r *Resolver) EVMKey(ctx context.Context, account walletconnect.AccountState) (*ecdsa.PrivateKey, error) {
	if account.IsLedger {
		return nil, ErrLedgerEVMUnsupported
	}
	mnemonic, err := r.Mnemonics.Get(ctx, account.PubKey)
	if err != nil {
		return nil, err
	}
	return cosmos.DerivePrivateKey(mnemonic, cosmos.HDPath(evmCoinType, 0))
}
