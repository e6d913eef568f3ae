package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/aussiebroadwan/tabmail/internal/app"
	"github.com/aussiebroadwan/tabmail/pkg/authsdk"
)

func main() {
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	flags := pflag.NewFlagSet("tabmail", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	configPath := flags.String("config", "", "path to config.yaml (default ~/.config/tabmail/config.yaml)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tabmail: %v\n", err)
		os.Exit(1)
	}

	application, err := app.New(cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tabmail: failed to initialize: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	runErr := application.Run(ctx, flags.Args())
	stop()

	if err := application.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "tabmail: shutdown: %v\n", err)
	}

	if runErr != nil {
		// The expiry notice has already been shown by the session subscriber.
		if !errors.Is(runErr, authsdk.ErrSessionExpired) && !errors.Is(runErr, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "tabmail: %s\n", authsdk.UserMessage(runErr))
		}
		os.Exit(1)
	}
}
