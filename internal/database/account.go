package database

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
)

type WalletAccount struct {
	ID       int64  `gorm:"primaryKey"`
	Address  string `gorm:"type:varchar(128);uniqueIndex:idx_account_chain"`
	ChainID  string `gorm:"type:varchar(100);uniqueIndex:idx_account_chain"`
	PubKey   string `gorm:"type:varchar(130)"`
	Prefix   string `gorm:"type:varchar(32)"`
	IsLedger bool
	Label    string `gorm:"type:varchar(255)"`
	// 创建时间，毫秒
	CreatedAt int64  `gorm:"type:int8"`
	DeletedAt *int64 `gorm:"type:int8"`
}

func NewWalletAccount(state walletconnect.AccountState, label string) *WalletAccount {
	return &WalletAccount{
		Address:   state.Address,
		ChainID:   state.ChainID,
		PubKey:    state.PubKey,
		Prefix:    state.Prefix,
		IsLedger:  state.IsLedger,
		Label:     label,
		CreatedAt: time.Now().UnixMilli(),
	}
}

func (in WalletAccount) State() walletconnect.AccountState {
	return walletconnect.AccountState{
		Address:  in.Address,
		PubKey:   in.PubKey,
		ChainID:  in.ChainID,
		Prefix:   in.Prefix,
		IsLedger: in.IsLedger,
	}
}

func (in WalletAccount) Create() error {
	err := WalletPostgres.Create(&in).Error
	return errors.WrapAndReport(err, "create wallet account")
}

func (in WalletAccount) Save() error {
	err := WalletPostgres.Clauses(clause.OnConflict{DoNothing: true}).Create(&in).Error
	return errors.WrapAndReport(err, "save wallet account")
}

// SelectAll returns live accounts in creation order, the first one per chain is the one sessions expose.
func (WalletAccount) SelectAll(ctx context.Context) ([]*WalletAccount, error) {
	var entities []*WalletAccount
	err := WalletPostgres.WithContext(ctx).Where("deleted_at IS NULL").Order("id").Find(&entities).Error
	if err != nil {
		return nil, errors.WrapAndReport(err, "query wallet accounts")
	}
	return entities, nil
}

func (WalletAccount) SelectOne(ctx context.Context, address, chainID string) (*WalletAccount, error) {
	var entity WalletAccount
	err := WalletPostgres.WithContext(ctx).Where("address = ? AND chain_id = ? AND deleted_at IS NULL",
		address, chainID).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapAndReport(err, "query wallet account")
	}
	return &entity, nil
}

func (WalletAccount) SoftDelete(ctx context.Context, address string) error {
	err := WalletPostgres.WithContext(ctx).Model(&WalletAccount{}).
		Where("address = ? AND deleted_at IS NULL", address).
		Update("deleted_at", time.Now().UnixMilli()).Error
	return errors.WrapAndReport(err, "delete wallet account")
}

// AccountStore serves the held accounts to wallet connect.
type AccountStore struct{}

func (AccountStore) Accounts(ctx context.Context) ([]walletconnect.AccountState, error) {
	entities, err := WalletAccount{}.SelectAll(ctx)
	if err != nil {
		return nil, err
	}
	return toStates(entities), nil
}

// Import stores a new account, a duplicate address on the same chain is reported by IsDuplicateKeyErr.
func (AccountStore) Import(ctx context.Context, state walletconnect.AccountState, label string) error {
	return NewWalletAccount(state, label).Create()
}

// Remember keeps an account, doing nothing when it is already stored.
func (AccountStore) Remember(ctx context.Context, state walletconnect.AccountState, label string) error {
	return NewWalletAccount(state, label).Save()
}

func toStates(entities []*WalletAccount) []walletconnect.AccountState {
	states := make([]walletconnect.AccountState, 0, len(entities))
	for _, e := range entities {
		states = append(states, e.State())
	}
	return states
}
