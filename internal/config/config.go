package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// DBCredential struct
type DBCredential struct {
	Address  string `yaml:"address"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
}

func (c *DBCredential) Dsn() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s",
		c.Address, c.Port, c.User, c.Password, c.Database)
}

// GetRedisAddress returns host:port of the redis server.
func (c *DBCredential) GetRedisAddress() string {
	return fmt.Sprintf("%v:%v", c.Address, c.Port)
}

// Configuration struct
type Configuration struct {
	LogLevel         int           `yaml:"log_level"`
	Postgres         DBCredential  `yaml:"postgres"`
	RedisCredential  DBCredential  `yaml:"redis"`
	Aws              Aws           `yaml:"aws"`
	KafkaServer      string        `yaml:"kafka-server"`
	SentryDSN        string        `yaml:"sentry_dsn"`
	LarkAlarmWebhook string        `yaml:"lark_alarm_webhook"`
	DingTalk         DingTalk      `yaml:"dingtalk"`
	HTTP             HTTP          `yaml:"http"`
	WalletConnect    WalletConnect `yaml:"walletconnect"`
	Keystore         Keystore      `yaml:"keystore"`
	Ledger           Ledger        `yaml:"ledger"`
	Swap             Swap          `yaml:"swap"`
}

type DingTalk struct {
	Webhook string `yaml:"webhook"`
	Secret  string `yaml:"secret"`
}

type Aws struct {
	Region string `yaml:"region"`
	// AuditBucket receives every signed amino document, empty disables archiving.
	AuditBucket      string `yaml:"audit_bucket"`
	DeepLinkQueueURL string `yaml:"deep_link_queue_url"`
}

type HTTP struct {
	ListenAddr         string        `yaml:"listen_addr"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	PairingRatePerSecs int           `yaml:"pairing_rate_per_second"`
}

type WalletConnect struct {
	ProjectID   string        `yaml:"project_id"`
	RelayURL    string        `yaml:"relay_url"`
	PairTimeout time.Duration `yaml:"pair_timeout"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	CoinType    uint32        `yaml:"coin_type"`
	EventsTopic string        `yaml:"events_topic"`
	Metadata    Metadata      `yaml:"metadata"`
}

type Metadata struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	URL         string   `yaml:"url"`
	Icons       []string `yaml:"icons"`
}

type Keystore struct {
	// EncryptionKey is a hex encoded 32 byte key, EncryptionKeySSMParam takes precedence when set.
	EncryptionKey         string `yaml:"encryption_key"`
	EncryptionKeySSMParam string `yaml:"encryption_key_ssm_param"`
}

type Ledger struct {
	// PrunePolicy is "keep" (discovered devices only accumulate) or "prune-missing".
	PrunePolicy   string        `yaml:"prune_policy"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Bech32Prefix  string        `yaml:"bech32_prefix"`
	MinAppVersion string        `yaml:"min_app_version"`
}

type Swap struct {
	QuoteAPIURL  string            `yaml:"quote_api_url"`
	EVMRPCURLs   map[string]string `yaml:"evm_rpc_urls"`
	SolanaRPCURL string            `yaml:"solana_rpc_url"`
	RPCRate      int               `yaml:"rpc_rate"`
	// DefaultSlippageBps applies when a form carries no slippage.
	DefaultSlippageBps int `yaml:"default_slippage_bps"`
}

func (c *Configuration) applyDefaults() {
	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = "127.0.0.1:8080"
	}
	if c.HTTP.RequestTimeout == 0 {
		c.HTTP.RequestTimeout = time.Minute
	}
	if c.HTTP.PairingRatePerSecs == 0 {
		c.HTTP.PairingRatePerSecs = 5
	}
	if c.WalletConnect.PairTimeout == 0 {
		c.WalletConnect.PairTimeout = time.Minute * 2
	}
	if c.WalletConnect.ReadTimeout == 0 {
		c.WalletConnect.ReadTimeout = time.Minute * 5
	}
	if c.WalletConnect.CoinType == 0 {
		c.WalletConnect.CoinType = 118
	}
	if c.WalletConnect.EventsTopic == "" {
		c.WalletConnect.EventsTopic = "walletconnect_session_events"
	}
	if c.Ledger.PrunePolicy == "" {
		c.Ledger.PrunePolicy = "keep"
	}
	if c.Ledger.PollInterval == 0 {
		c.Ledger.PollInterval = time.Second * 2
	}
	if c.Ledger.Bech32Prefix == "" {
		c.Ledger.Bech32Prefix = "umee"
	}
	if c.Ledger.MinAppVersion == "" {
		c.Ledger.MinAppVersion = "2.1.0"
	}
	if c.Swap.RPCRate == 0 {
		c.Swap.RPCRate = 10
	}
	if c.Swap.DefaultSlippageBps == 0 {
		c.Swap.DefaultSlippageBps = 50
	}
}

// Parse decodes a yaml document and applies defaults.
func Parse(data []byte) (*Configuration, error) {
	t := Configuration{}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	t.applyDefaults()
	return &t, nil
}

func readConfig(path string) (*Configuration, error) {
	logrus.Info("Starting to load configuration file ...")
	dat, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file %s does not exist", path)
		}
		return nil, err
	}
	return Parse(dat)
}

var Global *Configuration

// Read reads configuration information from yml.
func Read() {
	configFilePath := flag.String("config-path", "internal/config/config.yml", "The path to the configuration file")
	flag.Parse()
	logrus.Infof("Loading configuration file from %s", *configFilePath)
	globalConfig, err := readConfig(*configFilePath)
	if err != nil {
		logrus.Fatal(err)
	}
	Global = globalConfig
}
