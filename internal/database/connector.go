package database

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/pkg/log"
)

var (
	WalletPostgres *gorm.DB
)

func InitWalletPostgres(conf *config.DBCredential) {
	cli, err := gorm.Open(postgres.Open(conf.Dsn()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: "wallet.",
		},
	})
	if err != nil {
		log.Fatalf("connect to pg:%v", err)
	}
	WalletPostgres = cli

	db, err := cli.DB()
	if err != nil {
		log.Fatalf("get pg conn:%v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("ping to pg:%v", err)
	}
	log.Info("Connected to wallet postgres...")

	err = WalletPostgres.AutoMigrate(
		&WalletAccount{},
		&WalletProfile{},
		&WalletConnectEvents{},
	)
	if err != nil {
		log.Fatalf("autoMigrate tables:%v", err)
	}
}

func Close() {
	if WalletPostgres == nil {
		return
	}
	if db, err := WalletPostgres.DB(); err == nil {
		_ = db.Close()
	}
}
