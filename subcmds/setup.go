// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bvk/fulfill/alert"
	"github.com/bvk/fulfill/config"
	"github.com/bvk/fulfill/exchange"
	"github.com/bvk/fulfill/pushover"
	"github.com/bvk/fulfill/subcmds/cmdutil"
	"github.com/bvk/fulfill/telegram"
	"github.com/visvasity/cli"
	"golang.org/x/term"
)

type Setup struct {
	cmdutil.DBFlags

	skipTesting bool

	exchange  string
	apiKey    string
	apiSecret string

	pushoverApp  string
	pushoverUser string

	telegramToken string
	telegramChats string
}

func (c *Setup) Purpose() string {
	return "Setup prints and/or configures exchange credentials and notifications"
}

func (c *Setup) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("setup", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	fset.BoolVar(&c.skipTesting, "skip-testing", false, "don't test the parameters")
	fset.StringVar(&c.exchange, "exchange", "", "Name of the exchange for the api credentials")
	fset.StringVar(&c.apiKey, "api-key", "", "Exchange api key")
	fset.StringVar(&c.apiSecret, "api-secret", "", "Exchange api secret; prompted when empty")
	fset.StringVar(&c.pushoverApp, "pushover-app", "", "Pushover application key")
	fset.StringVar(&c.pushoverUser, "pushover-user", "", "Pushover user key")
	fset.StringVar(&c.telegramToken, "telegram-token", "", "Telegram bot token")
	fset.StringVar(&c.telegramChats, "telegram-chat-ids", "", "Comma separated telegram chat ids")
	return "setup", fset, cli.CmdFunc(c.run)
}

func (c *Setup) Description() string {
	return `

Command "setup" saves exchange api credentials and notification keys in the
config file. Command prints the current config when run without any flags.

EXCHANGE CREDENTIALS

Api credentials are required to place orders. Secret is read from the terminal
when it is not given on the command-line:

  $ fulfill setup -exchange=coinex -api-key=7A2D...9C1F

NOTIFICATIONS

Pushover and Telegram notifications are optional. They are sent when a trade
finishes:

  $ fulfill setup -pushover-app=awja5ue...ito7svf -pushover-user=uscjs2...tvp4kv
  $ fulfill setup -telegram-token=123456:ABC...xyz -telegram-chat-ids=123456789

`
}

func (c *Setup) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("this command takes no arguments")
	}
	dataDir, err := c.DataDir()
	if err != nil {
		return err
	}
	cfg, err := config.Load(dataDir)
	if err != nil {
		return err
	}

	updated := false
	if len(c.exchange) != 0 {
		if err := c.setupExchange(ctx, cfg); err != nil {
			return err
		}
		updated = true
	}
	if len(c.pushoverApp) != 0 || len(c.pushoverUser) != 0 {
		keys := &pushover.Keys{ApplicationKey: c.pushoverApp, UserKey: c.pushoverUser}
		if err := keys.Check(); err != nil {
			return err
		}
		cfg.Pushover = keys
		updated = true
	}
	if len(c.telegramToken) != 0 || len(c.telegramChats) != 0 {
		secrets := &telegram.Secrets{BotToken: c.telegramToken}
		for _, s := range strings.Split(c.telegramChats, ",") {
			if s = strings.TrimSpace(s); len(s) == 0 {
				continue
			}
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid telegram chat id %q: %w", s, err)
			}
			secrets.ChatIDs = append(secrets.ChatIDs, id)
		}
		if err := secrets.Check(); err != nil {
			return err
		}
		cfg.Telegram = secrets
		updated = true
	}

	if !updated {
		return printConfig(cfg)
	}

	if !c.skipTesting && (len(c.pushoverApp) != 0 || len(c.telegramToken) != 0) {
		opts := &alert.Options{}
		if len(c.pushoverApp) != 0 {
			opts.Pushover = cfg.Pushover
		}
		if len(c.telegramToken) != 0 {
			opts.Telegram = cfg.Telegram
		}
		notifier, err := alert.New(ctx, opts)
		if err != nil {
			return err
		}
		if err := notifier.SendMessage(ctx, time.Now(), "Test message from fulfill config setup; please ignore."); err != nil {
			return err
		}
	}
	return config.Save(dataDir, cfg)
}

func (c *Setup) setupExchange(ctx context.Context, cfg *config.Config) error {
	if len(c.apiKey) == 0 {
		return fmt.Errorf("api key is required to setup exchange %q", c.exchange)
	}
	if len(c.apiSecret) == 0 {
		fmt.Printf("Enter api secret for %s: ", c.exchange)
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("could not read api secret: %w", err)
		}
		c.apiSecret = strings.TrimSpace(string(secret))
	}
	if len(c.apiSecret) == 0 {
		return fmt.Errorf("api secret cannot be empty")
	}

	creds := &exchange.Credentials{Key: c.apiKey, Secret: c.apiSecret}
	if !c.skipTesting {
		// Attempt to fetch the balances to validate the credentials.
		gw, err := exchange.Open(ctx, c.exchange, creds)
		if err != nil {
			return err
		}
		defer gw.Close()

		if _, err := gw.FetchFreeBalance(ctx); err != nil {
			return fmt.Errorf("could not validate credentials for %q: %w", c.exchange, err)
		}
	}
	cfg.SetCredentials(c.exchange, creds)
	return nil
}

func mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}

func printConfig(cfg *config.Config) error {
	masked := *cfg
	masked.Exchanges = make(map[string]*exchange.Credentials)
	for name, creds := range cfg.Exchanges {
		masked.Exchanges[name] = &exchange.Credentials{Key: creds.Key, Secret: mask(creds.Secret)}
	}
	if cfg.Pushover != nil {
		masked.Pushover = &pushover.Keys{ApplicationKey: mask(cfg.Pushover.ApplicationKey), UserKey: mask(cfg.Pushover.UserKey)}
	}
	if cfg.Telegram != nil {
		masked.Telegram = &telegram.Secrets{BotToken: mask(cfg.Telegram.BotToken), ChatIDs: cfg.Telegram.ChatIDs}
	}
	js, err := json.MarshalIndent(&masked, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", js)
	return nil
}
