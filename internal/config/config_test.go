package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0600))
	return path
}

func envOf(kv map[string]string) func(string) string {
	return func(k string) string { return kv[k] }
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
discord:
  client_id: "123"
  redirect_uri: "http://localhost:3000/verify"
backend:
  api_base_url: "http://localhost:3001/"
  timeout: 3s
wallet:
  provider: walletconnect
`)
	c, err := Load(path, envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, "123", c.Discord.ClientID)
	assert.Equal(t, "http://localhost:3001", c.Backend.APIBaseURL, "trailing slash is trimmed")
	assert.Equal(t, 3*time.Second, c.Backend.Timeout)
	assert.Equal(t, ":3000", c.HTTP.Address)
	assert.Equal(t, "http://localhost:3000/verify", c.HTTP.PageURL, "page url falls back to the redirect uri")
	assert.Equal(t, 30*time.Minute, c.Session.TTL)
	assert.Equal(t, 100, c.Wallet.WalletConnect.MaxSessions)
	assert.False(t, c.Discord.Bot.Enabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
discord:
  client_id: "from-file"
`)
	c, err := Load(path, envOf(map[string]string{
		EnvDiscordClientID: "from-env",
		EnvRedirectURI:     "https://verify.example/verify",
		EnvAPIBaseURL:      "https://api.example",
	}))
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.Discord.ClientID)
	assert.Equal(t, "https://verify.example/verify", c.Discord.RedirectURI)
	assert.Equal(t, "https://api.example", c.Backend.APIBaseURL)
}

func TestLoad_MissingRequired(t *testing.T) {
	_, err := Load("", envOf(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord.client_id")
	assert.Contains(t, err.Error(), "discord.redirect_uri")
	assert.Contains(t, err.Error(), "backend.api_base_url")
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yml"), envOf(map[string]string{
		EnvDiscordClientID: "1",
		EnvRedirectURI:     "http://localhost/verify",
		EnvAPIBaseURL:      "http://localhost:3001",
	}))
	require.NoError(t, err)
	assert.Equal(t, WalletProviderNone, c.Wallet.Provider)
}

func TestValidate_WalletProvider(t *testing.T) {
	base := func() *Configuration {
		return &Configuration{
			Environment: EnvironmentDevelopment,
			Discord:     Discord{ClientID: "1", RedirectURI: "http://x/verify"},
			Backend: Backend{APIBaseURL: "http://x"},
		}
	}
	tests := []struct {
		name        string
		environment string
		wallet      Wallet
		wantErr     bool
	}{
		{name: "none", wallet: Wallet{}},
		{name: "walletconnect", wallet: Wallet{Provider: WalletProviderWalletConnect}},
		{name: "rpc with endpoint", wallet: Wallet{Provider: WalletProviderRPC, RPCEndpoint: "http://127.0.0.1:1248"}},
		{name: "rpc without endpoint", wallet: Wallet{Provider: WalletProviderRPC}, wantErr: true},
		{name: "rpc in test", environment: EnvironmentTest, wallet: Wallet{Provider: WalletProviderRPC, RPCEndpoint: "http://127.0.0.1:1248"}},
		{name: "rpc in production", environment: "production", wallet: Wallet{Provider: WalletProviderRPC, RPCEndpoint: "http://127.0.0.1:1248"}, wantErr: true},
		{name: "walletconnect in production", environment: "production", wallet: Wallet{Provider: WalletProviderWalletConnect}},
		{name: "unknown", wallet: Wallet{Provider: "ledger"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			if tt.environment != "" {
				c.Environment = tt.environment
			}
			c.Wallet = tt.wallet
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAWS_Enabled(t *testing.T) {
	assert.False(t, AWS{}.Enabled())
	assert.False(t, AWS{Region: "us-east-1"}.Enabled())
	assert.False(t, AWS{VerifiedQueueURL: "https://sqs/queue"}.Enabled())
	assert.True(t, AWS{Region: "us-east-1", BotTokenParameter: "/verify/bot"}.Enabled())
}
