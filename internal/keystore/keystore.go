package keystore

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/tyler-smith/go-bip39"
	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/internal/cosmos"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/wccrypto"
)

var ErrCredentialsNotFound = errors.New("credentials not found")

const keyPrefix = "keystore:"

// Store keeps mnemonics encrypted at rest in redis, keyed by the hex pubkey of the account they derive.
type Store struct {
	client redis.Cmdable
	key    []byte
}

func New(client redis.Cmdable, encryptionKey []byte) (*Store, error) {
	if len(encryptionKey) != 32 {
		return nil, wccrypto.ErrInvalidKey
	}
	return &Store{client: client, key: encryptionKey}, nil
}

func storeKey(pubKey string) string {
	return keyPrefix + strings.ToLower(pubKey)
}

func (s *Store) Put(ctx context.Context, pubKey, mnemonic string) error {
	if !bip39.IsMnemonicValid(mnemonic) {
		return cosmos.ErrInvalidMnemonic
	}
	payload, err := wccrypto.Seal([]byte(mnemonic), s.key)
	if err != nil {
		return errors.WrapAndReport(err, "encrypt mnemonic")
	}
	if err := s.client.Set(ctx, storeKey(pubKey), payload.Marshal(), 0).Err(); err != nil {
		return errors.WrapAndReport(err, "write keystore entry")
	}
	return nil
}

// Get fails with ErrCredentialsNotFound when nothing is stored for pubKey.
func (s *Store) Get(ctx context.Context, pubKey string) (string, error) {
	raw, err := s.client.Get(ctx, storeKey(pubKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", errors.Wrapf(ErrCredentialsNotFound, "pubkey %s", pubKey)
	}
	if err != nil {
		return "", errors.WrapAndReport(err, "read keystore entry")
	}
	payload, err := wccrypto.UnmarshalPayload(raw)
	if err != nil {
		return "", err
	}
	mnemonic, err := wccrypto.Open(payload, s.key)
	if err != nil {
		return "", errors.WrapAndReport(err, "decrypt keystore entry")
	}
	return string(mnemonic), nil
}

func (s *Store) Has(ctx context.Context, pubKey string) (bool, error) {
	n, err := s.client.Exists(ctx, storeKey(pubKey)).Result()
	if err != nil {
		return false, errors.WrapAndReport(err, "check keystore entry")
	}
	return n > 0, nil
}

func (s *Store) Delete(ctx context.Context, pubKey string) error {
	if err := s.client.Del(ctx, storeKey(pubKey)).Err(); err != nil {
		return errors.WrapAndReport(err, "delete keystore entry")
	}
	return nil
}

// ParameterSource reads decrypted secrets, the aws ssm client in production.
type ParameterSource interface {
	GetParameterValue(ctx context.Context, name string) (string, error)
}

// LoadEncryptionKey prefers the ssm parameter over the inline hex key.
func LoadEncryptionKey(ctx context.Context, conf config.Keystore, params ParameterSource) ([]byte, error) {
	hexKey := conf.EncryptionKey
	if conf.EncryptionKeySSMParam != "" {
		if params == nil {
			return nil, errors.New("keystore key lives in ssm but no parameter source is configured")
		}
		value, err := params.GetParameterValue(ctx, conf.EncryptionKeySSMParam)
		if err != nil {
			return nil, err
		}
		hexKey = value
	}
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, errors.Wrap(err, "decode keystore encryption key")
	}
	if len(key) != 32 {
		return nil, wccrypto.ErrInvalidKey
	}
	return key, nil
}
