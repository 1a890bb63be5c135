package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tkoivu/threadline-backend/internal/app"
	"github.com/tkoivu/threadline-backend/internal/hooks"
)

var (
	runHost     string
	runPort     int
	runHeadless bool
	runDebug    bool
	runWatch    bool
)

func init() {
	runCmd.Flags().StringVar(&runHost, "host", "", "bind address (overrides config)")
	runCmd.Flags().IntVar(&runPort, "port", 0, "bind port (overrides config)")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "do not open a browser")
	runCmd.Flags().BoolVarP(&runDebug, "debug", "d", false, "debug logging")
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "accepted for CLI compatibility; a compiled server has nothing to hot-reload")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(&hooks.Registry{})
	},
}

// runServer boots the app with the given hooks and blocks until SIGINT
// or SIGTERM.
func runServer(hookSet *hooks.Registry) error {
	applyFlagEnv()

	a, err := app.New(configFile, hookSet)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Start(); err != nil {
		return err
	}
	if !runHeadless {
		a.Log.Info("UI available", "url", a.Cfg.PublicURL)
	}
	if runWatch {
		a.Log.Warn("--watch has no effect on a compiled server")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		a.Log.Info("Shutting down", "signal", fmt.Sprint(sig))
		return nil
	}
}

// applyFlagEnv projects run flags onto the env-backed config so flags,
// env and file resolve through one path.
func applyFlagEnv() {
	if runHost != "" {
		os.Setenv("HOST", runHost)
	}
	if runPort != 0 {
		os.Setenv("PORT", strconv.Itoa(runPort))
	}
	if runDebug {
		os.Setenv("LOG_MODE", "development")
	}
}
