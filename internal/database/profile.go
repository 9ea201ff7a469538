package database

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"moff.io/moff-wallet/internal/ledger"
	"moff.io/moff-wallet/pkg/errors"
)

type WalletProfile struct {
	ID        int64  `gorm:"primaryKey"`
	Address   string `gorm:"type:varchar(128);uniqueIndex"`
	Name      string `gorm:"type:varchar(255)"`
	Avatar    string `gorm:"type:varchar(1024)"`
	CreatedAt int64  `gorm:"type:int8"`
	UpdatedAt int64  `gorm:"type:int8"`
}

func (in WalletProfile) Upsert(ctx context.Context) error {
	now := time.Now().UnixMilli()
	if in.CreatedAt == 0 {
		in.CreatedAt = now
	}
	in.UpdatedAt = now
	err := WalletPostgres.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "avatar", "updated_at"}),
	}).Create(&in).Error
	return errors.WrapAndReport(err, "upsert wallet profile")
}

func (WalletProfile) SelectByAddress(ctx context.Context, address string) (*WalletProfile, error) {
	var entity WalletProfile
	err := WalletPostgres.WithContext(ctx).Where("address = ?", address).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapAndReport(err, "query wallet profile")
	}
	return &entity, nil
}

// ProfileStore looks up the profile a paired ledger address already owns.
type ProfileStore struct{}

func (ProfileStore) ProfileByAddress(ctx context.Context, address string) (*ledger.Profile, error) {
	entity, err := WalletProfile{}.SelectByAddress(ctx, address)
	if err != nil || entity == nil {
		return nil, err
	}
	return &ledger.Profile{Name: entity.Name, Avatar: entity.Avatar}, nil
}

func (ProfileStore) SaveProfile(ctx context.Context, address string, profile ledger.Profile) error {
	return WalletProfile{Address: address, Name: profile.Name, Avatar: profile.Avatar}.Upsert(ctx)
}
