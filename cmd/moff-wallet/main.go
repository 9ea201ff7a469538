package main

import (
	"context"
	"time"

	"moff.io/moff-wallet/internal/aws"
	"moff.io/moff-wallet/internal/cache"
	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/internal/database"
	"moff.io/moff-wallet/internal/databus"
	"moff.io/moff-wallet/internal/http"
	"moff.io/moff-wallet/internal/keystore"
	"moff.io/moff-wallet/internal/ledger"
	"moff.io/moff-wallet/internal/signing"
	"moff.io/moff-wallet/internal/solana"
	"moff.io/moff-wallet/internal/starter"
	"moff.io/moff-wallet/internal/swap"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

func main() {
	log.Infof("Starting app")
	startApp()
}

func startApp() {
	defer func() {
		if i := recover(); i != nil {
			log.Fatal(errors.ErrorfAndReport("%v", i))
		}
	}()
	config.Read()
	conf := config.Global
	log.SetLevel(conf.LogLevel)
	setupReporters(conf)

	ctx := context.Background()
	cache.Init(&conf.RedisCredential)
	defer cache.Close()
	database.InitWalletPostgres(&conf.Postgres)
	defer database.Close()

	var params keystore.ParameterSource
	if conf.Aws.Region != "" {
		aws.Init(conf.Aws.AuditBucket, conf.Aws.Region)
		params = aws.Client
	}
	encryptionKey, err := keystore.LoadEncryptionKey(ctx, conf.Keystore, params)
	if err != nil {
		log.Fatalf("load keystore key: %v", err)
	}
	mnemonics, err := keystore.New(cache.Redis, encryptionKey)
	if err != nil {
		log.Fatalf("create keystore: %v", err)
	}

	scanner := ledger.NewScanner(ledger.NewHIDEnumerator(), ledger.PrunePolicy(conf.Ledger.PrunePolicy), conf.Ledger.PollInterval)
	opener := ledger.HIDOpener{}
	signers := &signing.Resolver{
		Mnemonics:        mnemonics,
		Devices:          scanner,
		Opener:           opener,
		LedgerMinVersion: conf.Ledger.MinAppVersion,
	}

	accounts := database.AccountStore{}
	wc := walletconnect.NewService(walletconnect.ServiceOptions{
		Factory: walletconnect.NewBridgeClientFactory(walletconnect.BridgeOptions{
			Meta:        walletconnect.Metadata(conf.WalletConnect.Metadata),
			ReadTimeout: conf.WalletConnect.ReadTimeout,
		}),
		Accounts:    accounts,
		Signers:     signers,
		Publisher:   sessionPublishers(conf),
		Archiver:    archiver(),
		Versions:    walletconnect.BridgeVersions,
		PairTimeout: conf.WalletConnect.PairTimeout,
		CoinType:    conf.WalletConnect.CoinType,
	})
	defer wc.Close()

	swapService, err := newSwapService(ctx, conf)
	if err != nil {
		log.Fatalf("init swap: %v", err)
	}

	intake := aws.NewDeepLinkIntake(aws.Client, wc.HandleURI)
	stop := starter.Start(ctx, conf, scanner, intake)
	defer stop()

	server := &http.Server{
		WalletConnect: wc,
		Scanner:       scanner,
		Pairer: &ledger.Pairer{
			Opener:     opener,
			Profiles:   database.ProfileStore{},
			HRP:        conf.Ledger.Bech32Prefix,
			MinVersion: conf.Ledger.MinAppVersion,
			CoinType:   conf.WalletConnect.CoinType,
		},
		Swap:           swapService,
		Accounts:       accounts,
		Profiles:       database.ProfileStore{},
		Mnemonics:      mnemonics,
		Signers:        signers,
		PairingLimiter: http.NewRedisLimiter(cache.RateLimiter, conf.HTTP.PairingRatePerSecs),
		RequestTimeout: conf.HTTP.RequestTimeout,
		CoinType:       conf.WalletConnect.CoinType,
	}
	if err := server.Run(conf.HTTP.ListenAddr); err != nil {
		log.Fatalf("http server: %v", err)
	}
}

func setupReporters(conf *config.Configuration) {
	if conf.SentryDSN != "" {
		if err := errors.NewSentryReporter(conf.SentryDSN); err != nil {
			log.Errorf("init sentry: %v", err)
		}
	}
	if conf.LarkAlarmWebhook != "" {
		errors.NewLarkReporter(conf.LarkAlarmWebhook, time.Minute)
	}
	if conf.DingTalk.Webhook != "" {
		errors.NewDingTalkReporter(conf.DingTalk.Webhook, conf.DingTalk.Secret, time.Minute)
	}
}

// sessionPublishers stores every session event and also streams it to kafka when a broker is configured.
func sessionPublishers(conf *config.Configuration) walletconnect.Publisher {
	publishers := walletconnect.Publishers{database.SessionEventStore{}}
	if conf.KafkaServer != "" {
		databus.InitDataBus(conf.KafkaServer)
		publishers = append(publishers, databus.NewSessionEventPublisher(databus.GetDataBus(), conf.WalletConnect.EventsTopic))
	}
	return publishers
}

func archiver() walletconnect.Archiver {
	if aws.Client == nil {
		return nil
	}
	return aws.Client
}

func newSwapService(ctx context.Context, conf *config.Configuration) (*swap.Service, error) {
	backends, err := swap.DialEVM(ctx, conf.Swap.EVMRPCURLs)
	if err != nil {
		return nil, err
	}
	service := &swap.Service{
		Quotes:             swap.NewQuoteClient(conf.Swap.QuoteAPIURL),
		EVM:                backends,
		DefaultSlippageBps: conf.Swap.DefaultSlippageBps,
	}
	if conf.Swap.SolanaRPCURL != "" {
		service.Solana = solana.NewRPCClient(conf.Swap.SolanaRPCURL, conf.Swap.RPCRate)
	}
	return service, nil
}
