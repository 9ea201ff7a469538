package ledger

import (
	"context"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
	"github.com/ethereum/go-ethereum/accounts"
	"moff.io/moff-wallet/internal/cosmos"
	"moff.io/moff-wallet/pkg/errors"
)

// Signer signs amino docs on a ledger. The app is opened per signature and closed right after.
type Signer struct {
	opener     Opener
	device     Device
	path       accounts.DerivationPath
	minVersion string
	pubKey     []byte
	address    string
}

func NewSigner(ctx context.Context, opener Opener, device Device, path accounts.DerivationPath, hrp, minVersion string) (*Signer, error) {
	app, err := opener.Open(ctx, device)
	if err != nil {
		return nil, err
	}
	defer app.Close()
	info, err := app.AppInfo()
	if err != nil {
		return nil, err
	}
	if err := CheckAppInfo(info, minVersion); err != nil {
		return nil, err
	}
	pubKey, address, err := app.GetAddressAndPubKey(path, hrp)
	if err != nil {
		return nil, err
	}
	return &Signer{
		opener:     opener,
		device:     device,
		path:       path,
		minVersion: minVersion,
		pubKey:     pubKey,
		address:    address,
	}, nil
}

func (s *Signer) Address() string {
	return s.address
}

func (s *Signer) PubKey() []byte {
	return s.pubKey
}

func (s *Signer) SignAmino(ctx context.Context, signerAddress string, doc cosmos.StdSignDoc) (*cosmos.AminoSignResponse, error) {
	if err := cosmos.CheckSigner(signerAddress, s.address); err != nil {
		return nil, err
	}
	bz, err := cosmos.SortedJSON(doc)
	if err != nil {
		return nil, err
	}
	app, err := s.opener.Open(ctx, s.device)
	if err != nil {
		return nil, err
	}
	defer app.Close()
	der, err := app.SignSECP256K1(s.path, bz)
	if err != nil {
		return nil, err
	}
	sig, err := DERToCompact(der)
	if err != nil {
		return nil, err
	}
	return cosmos.NewAminoSignResponse(doc, s.pubKey, sig)
}

// DERToCompact converts a DER secp256k1 signature into 64 byte r||s with s normalized to the lower half.
func DERToCompact(der []byte) ([]byte, error) {
	sig, err := btcec.ParseDERSignature(der, btcec.S256())
	if err != nil {
		return nil, errors.Wrap(err, "parse der signature")
	}
	curveN := btcec.S256().N
	s := new(big.Int).Set(sig.S)
	if s.Cmp(new(big.Int).Rsh(curveN, 1)) > 0 {
		s.Sub(curveN, s)
	}
	out := make([]byte, 64)
	sig.R.FillBytes(out[:32])
	s.FillBytes(out[32:])
	return out, nil
}
