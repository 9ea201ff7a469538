package cosmos

import (
	"crypto/ecdsa"
	"crypto/sha256"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil/bech32"
	"github.com/btcsuite/btcutil/hdkeychain"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/ripemd160"
	"moff.io/moff-wallet/pkg/errors"
)

var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// HDPath is m/44'/<coin>'/0'/0/<index>.
func HDPath(coinType, index uint32) accounts.DerivationPath {
	return accounts.DerivationPath{
		0x80000000 + 44,
		0x80000000 + coinType,
		0x80000000,
		0,
		index,
	}
}

// DerivePrivateKey walks path from the bip39 seed of mnemonic, empty passphrase.
func DerivePrivateKey(mnemonic string, path accounts.DerivationPath) (*ecdsa.PrivateKey, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, errors.Wrap(ErrInvalidMnemonic, err.Error())
	}
	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, errors.Wrap(err, "create master key")
	}
	for _, i := range path {
		if key, err = key.Derive(i); err != nil {
			return nil, errors.Wrapf(err, "derive child %d", i)
		}
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, errors.Wrap(err, "extract private key")
	}
	return crypto.ToECDSA(priv.Serialize())
}

// AddressFromPubKey is bech32(prefix, ripemd160(sha256(compressed pubkey))).
func AddressFromPubKey(prefix string, compressed []byte) (string, error) {
	if len(compressed) != 33 {
		return "", errors.Errorf("compressed secp256k1 pubkey must be 33 bytes, got %d", len(compressed))
	}
	sha := sha256.Sum256(compressed)
	hasher := ripemd160.New()
	hasher.Write(sha[:])
	conv, err := bech32.ConvertBits(hasher.Sum(nil), 8, 5, true)
	if err != nil {
		return "", errors.Wrap(err, "convert address bits")
	}
	address, err := bech32.Encode(prefix, conv)
	if err != nil {
		return "", errors.Wrap(err, "bech32 encode address")
	}
	return address, nil
}
