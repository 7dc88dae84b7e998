package config

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
	"moff.io/wallet-verify/pkg/errors"
)

// DBCredential struct
type DBCredential struct {
	Address  string `yaml:"address"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
}

// GetRedisAddress returns host:port of a redis credential.
func (c *DBCredential) GetRedisAddress() string {
	return fmt.Sprintf("%v:%v", c.Address, c.Port)
}

// Configured reports whether the credential points somewhere.
func (c *DBCredential) Configured() bool {
	return c.Address != ""
}

// Configuration struct
type Configuration struct {
	Environment      string       `yaml:"environment"`
	LogLevel         string       `yaml:"log_level"`
	HTTP             HTTP         `yaml:"http"`
	Discord          Discord      `yaml:"discord"`
	Backend          Backend      `yaml:"backend"`
	Wallet           Wallet       `yaml:"wallet"`
	Session          Session      `yaml:"session"`
	RedisCredential  DBCredential `yaml:"redis"`
	RateLimit        RateLimit    `yaml:"rate_limit"`
	AWS              AWS          `yaml:"aws"`
	KafkaServer      string       `yaml:"kafka-server"`
	VerifiedTopic    string       `yaml:"verified_topic"`
	SentryDSN        string       `yaml:"sentry_dsn"`
	LarkAlarmWebhook string       `yaml:"lark_alarm_webhook"`
	DingTalk         DingTalk     `yaml:"dingtalk"`
}

type HTTP struct {
	Address        string   `yaml:"address"`
	PageURL        string   `yaml:"page_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// StepTimeout bounds one button handler, including waiting for the wallet.
	StepTimeout time.Duration `yaml:"step_timeout"`
}

type Discord struct {
	ClientID    string     `yaml:"client_id"`
	RedirectURI string     `yaml:"redirect_uri"`
	Bot         DiscordBot `yaml:"bot"`
}

type DiscordBot struct {
	AppID     string `yaml:"app_id"`
	AuthToken string `yaml:"auth_token"`
}

// Enabled reports whether the verification bot should be started.
func (in DiscordBot) Enabled() bool {
	return in.AuthToken != ""
}

func (in DiscordBot) IsMe(appID string) bool {
	return in.AppID == appID
}

type Backend struct {
	APIBaseURL string        `yaml:"api_base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	// RequestsPerSecond paces the calls to the backend, 0 disables pacing.
	RequestsPerSecond int `yaml:"requests_per_second"`
}

type AWS struct {
	Region string `yaml:"region"`
	// BotTokenParameter is the SSM parameter holding the Discord bot token.
	BotTokenParameter string `yaml:"bot_token_parameter"`
	VerifiedQueueURL  string `yaml:"verified_queue_url"`
}

// Enabled reports whether any AWS service is used.
func (in AWS) Enabled() bool {
	return in.Region != "" && (in.BotTokenParameter != "" || in.VerifiedQueueURL != "")
}

const (
	WalletProviderNone          = ""
	WalletProviderRPC           = "rpc"
	WalletProviderWalletConnect = "walletconnect"
)

type Wallet struct {
	// Provider is one of "", "rpc", "walletconnect". Empty means no wallet is available.
	Provider      string        `yaml:"provider"`
	RPCEndpoint   string        `yaml:"rpc_endpoint"`
	WalletConnect WalletConnect `yaml:"walletconnect"`
}

type WalletConnect struct {
	BridgeURLs  []string      `yaml:"bridge_urls"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	MaxSessions int           `yaml:"max_sessions"`
	AppName     string        `yaml:"app_name"`
	AppURL      string        `yaml:"app_url"`
}

type Session struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type RateLimit struct {
	StepsPerMinute int `yaml:"steps_per_minute"`
}

type DingTalk struct {
	Webhook string `yaml:"webhook"`
	Secret  string `yaml:"secret"`
}

// Environment variables that override the file, mirroring the deployment
// settings of the hosted page.
const (
	EnvDiscordClientID = "DISCORD_CLIENT_ID"
	EnvRedirectURI     = "REDIRECT_URI"
	EnvAPIBaseURL      = "API_BASE_URL"
)

func (c *Configuration) applyEnv(getenv func(string) string) {
	if v := getenv(EnvDiscordClientID); v != "" {
		c.Discord.ClientID = v
	}
	if v := getenv(EnvRedirectURI); v != "" {
		c.Discord.RedirectURI = v
	}
	if v := getenv(EnvAPIBaseURL); v != "" {
		c.Backend.APIBaseURL = v
	}
}

func (c *Configuration) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":3000"
	}
	if c.HTTP.StepTimeout <= 0 {
		c.HTTP.StepTimeout = 5 * time.Minute
	}
	if c.HTTP.PageURL == "" {
		c.HTTP.PageURL = c.Discord.RedirectURI
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = 10 * time.Second
	}
	c.Backend.APIBaseURL = strings.TrimRight(c.Backend.APIBaseURL, "/")
	if c.Wallet.WalletConnect.ReadTimeout <= 0 {
		c.Wallet.WalletConnect.ReadTimeout = 5 * time.Minute
	}
	if c.Wallet.WalletConnect.MaxSessions <= 0 {
		c.Wallet.WalletConnect.MaxSessions = 100
	}
	if c.Wallet.WalletConnect.AppName == "" {
		c.Wallet.WalletConnect.AppName = "Discord wallet verification"
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = 30 * time.Minute
	}
	if c.Session.SweepInterval <= 0 {
		c.Session.SweepInterval = time.Minute
	}
	if c.VerifiedTopic == "" {
		c.VerifiedTopic = "wallet_verified"
	}
}

const (
	EnvironmentDevelopment = "development"
	EnvironmentTest        = "test"
)

// LocalEnvironment reports whether the page runs on a developer machine or in tests.
func (c *Configuration) LocalEnvironment() bool {
	return c.Environment == EnvironmentDevelopment || c.Environment == EnvironmentTest
}

// Validate checks the settings the page cannot work without.
func (c *Configuration) Validate() error {
	var missing []string
	if c.Discord.ClientID == "" {
		missing = append(missing, "discord.client_id ("+EnvDiscordClientID+")")
	}
	if c.Discord.RedirectURI == "" {
		missing = append(missing, "discord.redirect_uri ("+EnvRedirectURI+")")
	}
	if c.Backend.APIBaseURL == "" {
		missing = append(missing, "backend.api_base_url ("+EnvAPIBaseURL+")")
	}
	if len(missing) > 0 {
		return errors.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	switch c.Wallet.Provider {
	case WalletProviderNone, WalletProviderWalletConnect:
	case WalletProviderRPC:
		if !c.LocalEnvironment() {
			return errors.Errorf("the rpc wallet provider connects the server's wallet for every visitor, it is not allowed in environment %q", c.Environment)
		}
		if c.Wallet.RPCEndpoint == "" {
			return errors.New("wallet.rpc_endpoint is required for the rpc wallet provider")
		}
	default:
		return errors.Errorf("unknown wallet provider %q", c.Wallet.Provider)
	}
	return nil
}

// Load reads the yaml file at path, applies environment overrides and
// defaults, and validates the result.
func Load(path string, getenv func(string) string) (*Configuration, error) {
	c := Configuration{}
	if path != "" {
		dat, err := ioutil.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err == nil {
			if err := yaml.Unmarshal(dat, &c); err != nil {
				return nil, errors.Wrapf(err, "decode config %s", path)
			}
		} else {
			logrus.Warnf("config file %s does not exist, using environment only", path)
		}
	}
	c.applyEnv(getenv)
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

var Global *Configuration

// Read loads the configuration named by -config-path into Global.
// A missing required setting is a deployment error and stops the process.
func Read() {
	configFilePath := flag.String("config-path", "internal/config/config.yml", "The path to the configuration file")
	flag.Parse()
	logrus.Infof("Loading configuration file from %s", *configFilePath)
	globalConfig, err := Load(*configFilePath, os.Getenv)
	if err != nil {
		logrus.Fatal(err)
	}
	Global = globalConfig
}
