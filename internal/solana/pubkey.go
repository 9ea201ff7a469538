package solana

import (
	"github.com/mr-tron/base58"
	"moff.io/moff-wallet/pkg/errors"
)

const PublicKeyLength = 32

type PublicKey [PublicKeyLength]byte

func PublicKeyFromBase58(s string) (PublicKey, error) {
	var key PublicKey
	b, err := base58.Decode(s)
	if err != nil {
		return key, errors.Wrapf(err, "decode public key %q", s)
	}
	if len(b) != PublicKeyLength {
		return key, errors.Errorf("public key %q has %d bytes", s, len(b))
	}
	copy(key[:], b)
	return key, nil
}

func MustPublicKey(s string) PublicKey {
	key, err := PublicKeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return key
}

func (k PublicKey) String() string {
	return base58.Encode(k[:])
}

func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *PublicKey) UnmarshalText(text []byte) error {
	key, err := PublicKeyFromBase58(string(text))
	if err != nil {
		return err
	}
	*k = key
	return nil
}
