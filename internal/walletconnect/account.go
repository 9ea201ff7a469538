package walletconnect

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/accounts"
	"moff.io/moff-wallet/internal/cosmos"
)

// AccountState is an account the wallet holds. PubKey is the hex compressed secp256k1 key.
type AccountState struct {
	Address  string `json:"address"`
	PubKey   string `json:"pubKey"`
	ChainID  string `json:"chainId"`
	Prefix   string `json:"prefix"`
	IsLedger bool   `json:"isLedger"`
}

func (a AccountState) Account() Account {
	return Account{ChainID: a.ChainID, Address: a.Address}
}

type AccountStore interface {
	Accounts(ctx context.Context) ([]AccountState, error)
}

// SignerResolver hands out the key material behind an account, mnemonic backed or on a ledger.
type SignerResolver interface {
	AminoSigner(ctx context.Context, account AccountState, path accounts.DerivationPath) (cosmos.AminoSigner, error)
	EVMKey(ctx context.Context, account AccountState) (*ecdsa.PrivateKey, error)
}

func toAccounts(states []AccountState) []Account {
	result := make([]Account, 0, len(states))
	for _, s := range states {
		result = append(result, s.Account())
	}
	return result
}
