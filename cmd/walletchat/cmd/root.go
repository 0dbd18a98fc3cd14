package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nfrund/walletchat/internal/app"
	"github.com/nfrund/walletchat/internal/config"
	"github.com/nfrund/walletchat/internal/logging"
)

// skipAppAnnotation marks commands that run without opening the data directory.
const skipAppAnnotation = "walletchat/no-app"

// application is built by the root command's pre-run hook.
var application *app.App

var rootCmd = &cobra.Command{
	Use:   "walletchat",
	Short: "Ephemeral room-based chat client",
	Long: `walletchat is a terminal client for ephemeral, room-based chat.

Rooms are identified by an address and gated by an access key. Messages
are kept locally for 24 hours.

Configuration is read from the environment (and a .env file), using the
WALLETCHAT_ prefix, e.g. WALLETCHAT_WS_URL or WALLETCHAT_DATA_DIR.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipAppAnnotation] != "" {
			return nil
		}
		cfg, err := config.New()
		if err != nil {
			return err
		}
		logging.New(cfg.LogFormat, cfg.LogLevel)

		a, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if err := a.Start(cmd.Context()); err != nil {
			_ = a.Close(cmd.Context())
			return err
		}
		application = a
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if application == nil {
			return nil
		}
		err := application.Close(cmd.Context())
		application = nil
		return err
	},
}

// Execute executes the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
