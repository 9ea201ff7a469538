package cosmos

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"moff.io/moff-wallet/pkg/errors"
)

var ErrAddressMismatch = errors.New("signer address mismatch")

const PubKeyTypeSecp256k1 = "tendermint/PubKeySecp256k1"

type PubKey struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type StdSignature struct {
	PubKey    PubKey `json:"pub_key"`
	Signature string `json:"signature"`
}

type AminoSignResponse struct {
	Signed    StdSignDoc   `json:"signed"`
	Signature StdSignature `json:"signature"`
}

// AminoSigner signs sign docs for the single account it holds.
type AminoSigner interface {
	Address() string
	PubKey() []byte
	SignAmino(ctx context.Context, signerAddress string, doc StdSignDoc) (*AminoSignResponse, error)
}

// NewAminoSignResponse packs a 64 byte r||s signature.
func NewAminoSignResponse(doc StdSignDoc, pubKey, sig []byte) (*AminoSignResponse, error) {
	if len(sig) != 64 {
		return nil, errors.Errorf("signature must be 64 bytes, got %d", len(sig))
	}
	return &AminoSignResponse{
		Signed: doc,
		Signature: StdSignature{
			PubKey: PubKey{
				Type:  PubKeyTypeSecp256k1,
				Value: base64.StdEncoding.EncodeToString(pubKey),
			},
			Signature: base64.StdEncoding.EncodeToString(sig),
		},
	}, nil
}

// VerifyAminoSignature checks the signature against the sorted json of the signed doc. High S is rejected.
func VerifyAminoSignature(resp *AminoSignResponse) bool {
	pubKey, err := base64.StdEncoding.DecodeString(resp.Signature.PubKey.Value)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(resp.Signature.Signature)
	if err != nil || len(sig) != 64 {
		return false
	}
	bz, err := SortedJSON(resp.Signed)
	if err != nil {
		return false
	}
	hash := sha256.Sum256(bz)
	return crypto.VerifySignature(pubKey, hash[:], sig)
}

// CheckSigner fails with ErrAddressMismatch when the key does not belong to the requested signer.
func CheckSigner(expected, actual string) error {
	if expected != actual {
		return errors.Wrapf(ErrAddressMismatch, "want %s, key is %s", expected, actual)
	}
	return nil
}

// MnemonicSigner holds a key derived from a mnemonic in memory.
type MnemonicSigner struct {
	key     *ecdsa.PrivateKey
	pubKey  []byte
	address string
}

func NewMnemonicSigner(mnemonic string, path accounts.DerivationPath, prefix string) (*MnemonicSigner, error) {
	key, err := DerivePrivateKey(mnemonic, path)
	if err != nil {
		return nil, err
	}
	pubKey := crypto.CompressPubkey(&key.PublicKey)
	address, err := AddressFromPubKey(prefix, pubKey)
	if err != nil {
		return nil, err
	}
	return &MnemonicSigner{key: key, pubKey: pubKey, address: address}, nil
}

func (s *MnemonicSigner) Address() string {
	return s.address
}

func (s *MnemonicSigner) PubKey() []byte {
	return s.pubKey
}

func (s *MnemonicSigner) SignAmino(ctx context.Context, signerAddress string, doc StdSignDoc) (*AminoSignResponse, error) {
	if err := CheckSigner(signerAddress, s.address); err != nil {
		return nil, err
	}
	bz, err := SortedJSON(doc)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(bz)
	sig, err := crypto.Sign(hash[:], s.key)
	if err != nil {
		return nil, errors.Wrap(err, "sign amino doc")
	}
	return NewAminoSignResponse(doc, s.pubKey, sig[:64])
}
