package database

import (
	"context"
	"time"

	"github.com/fatih/structs"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
)

type WalletConnectEvents struct {
	ID        int64                          `gorm:"primaryKey"`
	EventType walletconnect.SessionEventType `gorm:"type:varchar(64);index"`
	Topic     string                         `gorm:"type:varchar(255);index"`
	Event     JSONBMap                       `gorm:"type:jsonb"`
	EventTime time.Time                      `gorm:"type:timestamptz"`
}

func NewWalletConnectEvent(e *walletconnect.SessionEvent) *WalletConnectEvents {
	return &WalletConnectEvents{
		EventType: e.Type,
		Topic:     e.Topic,
		Event:     structs.Map(e),
		EventTime: time.Unix(e.CreatedAt, 0),
	}
}

func (in WalletConnectEvents) Create(ctx context.Context) error {
	err := WalletPostgres.WithContext(ctx).Create(&in).Error
	return errors.WrapAndReport(err, "create wallet connect event")
}

// SessionEventStore persists every session event it is handed.
type SessionEventStore struct{}

func (SessionEventStore) Publish(ctx context.Context, e *walletconnect.SessionEvent) error {
	return NewWalletConnectEvent(e).Create(ctx)
}
