package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/relaybots/relay/backend/go-services/internal/config"
	"github.com/relaybots/relay/backend/go-services/internal/guard"
	"github.com/relaybots/relay/backend/go-services/internal/relay"
	"github.com/relaybots/relay/backend/go-services/internal/store"
	"github.com/relaybots/relay/backend/go-services/internal/telegram"
	"github.com/relaybots/relay/backend/go-services/pkg/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var botType, token string
	root := &cobra.Command{
		Use:           "bot --bot-type <base|customer_service|report> --token <TOKEN>",
		Short:         "Run a relay bot worker against the shared store",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			bt, err := relay.ParseBotType(botType)
			if err != nil {
				return err
			}
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if token == "" {
				token = cfg.Telegram.Token
			}
			if token == "" {
				return fmt.Errorf("--token is required (or set TELEGRAM_BOT_TOKEN)")
			}
			logger.Init(cfg.Log.Level)
			logger.SetFormat(cfg.Log.Format)
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBot(ctx, cfg, bt, token)
		},
	}
	root.Flags().StringVar(&botType, "bot-type", "", "bot type (base, customer_service, report)")
	root.Flags().StringVar(&token, "token", "", "Telegram bot token")
	_ = root.MarkFlagRequired("bot-type")

	root.AddCommand(newHashPasswordCommand())
	return root
}

func runBot(ctx context.Context, cfg *config.Config, bt relay.BotType, token string) error {
	client, err := telegram.NewClient(token, cfg.Telegram.APIURL, nil)
	if err != nil {
		return err
	}
	me, err := client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("verify bot token: %w", err)
	}

	g := guard.New(store.NewFileStore(cfg.Store.Path), cfg.Store.LockTimeout)
	if _, err := g.Snapshot(); err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	d := relay.NewDispatcher(relay.NewRecorder(g, bt), client)

	log := logger.With("bot", me.Username, "bot_type", string(bt))
	log.Infof("starting %s bot on %s", bt, cfg.Store.Path)
	err = telegram.NewPoller(client, cfg.Telegram.PollTimeout).Run(ctx, d.Handle)
	log.Infof("bot stopped")
	return err
}

// newHashPasswordCommand prints a bcrypt hash for CONSOLE_ACCOUNTS entries.
func newHashPasswordCommand() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-password <username>",
		Short: "Print a CONSOLE_ACCOUNTS entry for username (password read from stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cmd)
			if err != nil {
				return err
			}
			if len(pw) == 0 {
				return fmt.Errorf("empty password")
			}
			h, err := bcrypt.GenerateFromPassword(pw, cost)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s:%s\n", args[0], h)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}

// readPassword reads one line; inner spaces belong to the password.
func readPassword(cmd *cobra.Command) ([]byte, error) {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}
