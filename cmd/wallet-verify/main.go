package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moff.io/wallet-verify/internal/aws"
	"moff.io/wallet-verify/internal/backend"
	"moff.io/wallet-verify/internal/cache"
	"moff.io/wallet-verify/internal/config"
	"moff.io/wallet-verify/internal/databus"
	"moff.io/wallet-verify/internal/discord"
	"moff.io/wallet-verify/internal/http"
	"moff.io/wallet-verify/internal/session"
	"moff.io/wallet-verify/internal/starter"
	"moff.io/wallet-verify/internal/verify"
	"moff.io/wallet-verify/internal/wallet"
	"moff.io/wallet-verify/internal/walletconnect"
	"moff.io/wallet-verify/pkg/errors"
	"moff.io/wallet-verify/pkg/log"
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
	cfg := config.Global
	log.SetLevel(cfg.LogLevel)

	if err := errors.NewSentryReporter(cfg.SentryDSN, cfg.Environment); err != nil {
		log.Error(err)
	}
	defer errors.Flush(2 * time.Second)
	errors.NewLarkReporter(cfg.LarkAlarmWebhook, "Wallet verification alarm", time.Minute)
	errors.NewDingTalkReporter(cfg.DingTalk.Webhook, cfg.DingTalk.Secret, time.Minute)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := verify.Dependencies{
		Backend:  backend.New(cfg.Backend.APIBaseURL, cfg.Backend.Timeout).WithRateLimit(cfg.Backend.RequestsPerSecond),
		Wallets:  newWalletLocator(&cfg.Wallet),
		LoginURL: discord.LoginURL(discord.NewOAuthConfig(cfg.Discord.ClientID, cfg.Discord.RedirectURI)),
	}

	opts := http.Options{
		Address:        cfg.HTTP.Address,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		StepTimeout:    cfg.HTTP.StepTimeout,
	}
	if cfg.RedisCredential.Configured() {
		if err := cache.Init(&cfg.RedisCredential); err != nil {
			log.Errorf("step rate limit disabled:%v", err)
		} else {
			defer cache.Close()
			if cfg.RateLimit.StepsPerMinute > 0 {
				opts.Limiter = cache.NewStepLimiter(cache.RateLimiter, cfg.RateLimit.StepsPerMinute)
			}
		}
	}

	if cfg.KafkaServer != "" {
		bus, err := databus.InitDataBus(cfg.KafkaServer)
		if err != nil {
			log.Errorf("wallet verified events disabled:%v", err)
		} else {
			defer bus.Close()
			deps.OnVerified = databus.NewWalletVerifiedHook(bus, cfg.VerifiedTopic)
		}
	}

	if cfg.AWS.Enabled() {
		setupAWS(ctx, cfg, &deps)
	}

	store := session.NewStore(cfg.Session.TTL, cfg.Session.SweepInterval)
	var bot starter.Startable
	if cfg.Discord.Bot.Enabled() {
		b, err := discord.NewBot(cfg.Discord.Bot, cfg.HTTP.PageURL)
		if err != nil {
			log.Errorf("verification bot disabled:%v", err)
		} else {
			bot = b
		}
	}

	starter.Start(ctx,
		store,
		http.NewServer(store, deps, opts),
		bot,
	)
	log.Info("Stopped app")
}

func newWalletLocator(cfg *config.Wallet) wallet.Locator {
	switch cfg.Provider {
	case config.WalletProviderRPC:
		log.Infof("Wallet provider: rpc at %v", cfg.RPCEndpoint)
		return wallet.NewRPCLocator(cfg.RPCEndpoint)
	case config.WalletProviderWalletConnect:
		log.Info("Wallet provider: walletconnect")
		return walletconnect.NewLocator(cfg.WalletConnect)
	default:
		log.Warn("No wallet provider configured, every connect attempt reports a missing wallet.")
		return wallet.None()
	}
}

// setupAWS resolves the bot token from SSM and queues verified events on SQS.
func setupAWS(ctx context.Context, cfg *config.Configuration, deps *verify.Dependencies) {
	clients, err := aws.Init(ctx, cfg.AWS.Region)
	if err != nil {
		log.Errorf("aws disabled:%v", err)
		return
	}
	if cfg.AWS.BotTokenParameter != "" {
		token, err := clients.GetParameterFromSSM(ctx, cfg.AWS.BotTokenParameter)
		if err != nil {
			log.Errorf("discord bot token from ssm:%v", err)
		} else {
			cfg.Discord.Bot.AuthToken = token
		}
	}
	if cfg.AWS.VerifiedQueueURL != "" {
		queueHook := aws.NewWalletVerifiedQueueHook(clients, cfg.AWS.VerifiedQueueURL)
		deps.OnVerified = verify.ChainHooks(deps.OnVerified, queueHook)
	}
}
