// Command notifytail follows a user's live notification feed and prints each
// notification as it arrives.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/rentwise/rentwise/pkg/logger"
	"github.com/rentwise/rentwise/pkg/notifyclient"
)

type options struct {
	URL      string
	UserID   string
	Token    string
	JSON     bool
	LogLevel string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("notifytail", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := options{}
	fs.StringVar(&opts.URL, "url", envOr("RENTWISE_NOTIFY_URL", "ws://localhost:8000/ws"), "WebSocket endpoint of the rentwise server")
	fs.StringVar(&opts.UserID, "user", os.Getenv("RENTWISE_NOTIFY_USER"), "User id to follow")
	fs.StringVar(&opts.Token, "token", os.Getenv("RENTWISE_NOTIFY_TOKEN"), "Access token sent with the identity announcement")
	fs.BoolVar(&opts.JSON, "json", false, "Print each notification as a JSON line")
	fs.StringVar(&opts.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if strings.TrimSpace(opts.UserID) == "" {
		return options{}, errors.New("-user is required")
	}
	return opts, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	if err := logger.InitWithFormat(opts.LogLevel, "console"); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort
	log := logger.WithModule("notifytail")

	onNotification := printer(out, opts.JSON, log)

	sub, err := notifyclient.Subscribe(ctx, notifyclient.Options{
		URL:    opts.URL,
		UserID: opts.UserID,
		Token:  opts.Token,
		Logger: log,
	}, onNotification)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Close()

	select {
	case <-sub.Authenticated():
		log.Info("following notifications", logger.UserID(sub.UserID()), zap.String("url", opts.URL))
	case <-sub.Rejected():
		return sub.Err()
	case <-sub.Done():
		return sub.Err()
	case <-ctx.Done():
		return nil
	}

	select {
	case <-ctx.Done():
		return nil
	case <-sub.Done():
		return sub.Err()
	}
}

func printer(out io.Writer, asJSON bool, log *zap.Logger) notifyclient.Callback {
	encoder := json.NewEncoder(out)
	return func(n notifyclient.Notification) {
		if asJSON {
			if err := encoder.Encode(n); err != nil {
				log.Warn("write notification", zap.Error(err))
			}
			return
		}
		log.Info(n.Title,
			zap.String("id", n.ID),
			zap.String("type", n.Type),
			zap.String("message", n.Message),
			zap.Time("created_at", n.CreatedAt),
			zap.ByteString("data", n.Data),
		)
	}
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
