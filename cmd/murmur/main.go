// Command murmur is the peer-to-peer encrypted messenger's terminal
// client: it logs the user into (or creates) their sealed identity,
// loads the local contact store, starts the background session
// listener, and hands control to the interactive command loop.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/murmur-chat/murmur/health"
	"github.com/murmur-chat/murmur/identity"
	"github.com/murmur-chat/murmur/internal/config"
	"github.com/murmur-chat/murmur/internal/errs"
	"github.com/murmur-chat/murmur/internal/logger"
	"github.com/murmur-chat/murmur/internal/metrics"
	"github.com/murmur-chat/murmur/listener"
	"github.com/murmur-chat/murmur/store"
	"github.com/murmur-chat/murmur/ui"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	configPath string
	envPath    string
)

var rootCmd = &cobra.Command{
	Use:   "murmur",
	Short: "murmur - peer-to-peer encrypted messenger",
	Long: `murmur is a peer-to-peer encrypted messenger. Each account is an RSA
keypair sealed under a password; contacts are identified by the BLAKE2b
fingerprint of their public key and reached directly over TCP.`,
	RunE: run,
}

func main() {
	rootCmd.Flags().StringVar(&configPath, "config", "murmur.yaml", "path to config file")
	rootCmd.Flags().StringVar(&envPath, "env", ".env", "path to .env file")
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "murmur: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if e := underlying(err); e == errs.ErrKeystoreUnavailable {
		return 2
	}
	return 1
}

func underlying(err error) error {
	for {
		unwrapped, ok := unwrap(err)
		if !ok {
			return err
		}
		err = unwrapped
	}
}

func unwrap(err error) (error, bool) {
	type unwrapper interface{ Unwrap() error }
	u, ok := err.(unwrapper)
	if !ok {
		return nil, false
	}
	return u.Unwrap(), true
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, envPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := logger.InfoLevel
	switch cfg.LogLevel {
	case "DEBUG":
		level = logger.DebugLevel
	case "WARN":
		level = logger.WarnLevel
	case "ERROR":
		level = logger.ErrorLevel
	}
	logger.SetDefaultLogger(logger.NewLogger(os.Stderr, level))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := ui.New(os.Stdin, os.Stdout, cfg.KeyDir, cfg.ContactDir, fmt.Sprintf("0.0.0.0:%d", cfg.ListenPort))
	if err := app.Login(); err != nil {
		return err
	}
	if err := app.LoadStore(); err != nil {
		return err
	}

	self, book, valid := app.Identity(), app.Book(), app.BookValid()
	if book == nil {
		book = store.NewContactBook()
	}

	l := listener.New(self.Private, self.Public, cfg.ContactDir, book, valid)
	app.AttachListener(l)

	if cfg.MetricsEnabled {
		checker := health.NewChecker(5 * time.Second)
		checker.Register("keystore", health.KeyStoreCheck(func() error {
			if !identity.Exists(cfg.KeyDir) {
				return fmt.Errorf("key files not found under %s", cfg.KeyDir)
			}
			return nil
		}))
		checker.Register("contacts", health.ContactStoreCheck(func() error {
			_, statErr := os.Stat(cfg.ContactDir)
			return statErr
		}))

		go serveDiagnostics(fmt.Sprintf("0.0.0.0:%d", cfg.MetricsPort), checker)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return l.Serve(groupCtx, fmt.Sprintf("0.0.0.0:%d", cfg.ListenPort))
	})
	group.Go(func() error {
		// Leaving the command loop cancels the shared context so the
		// listener stops too; a cancelled context ends this worker without
		// waiting for the loop's pending stdin read.
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- app.Run(groupCtx) }()
		select {
		case err := <-done:
			return err
		case <-groupCtx.Done():
			return nil
		}
	})

	return group.Wait()
}

// serveDiagnostics runs the metrics and health HTTP endpoints on addr
// until the process exits; a failure here is logged, not fatal, since
// the chat session protocol does not depend on it.
func serveDiagnostics(addr string, checker *health.Checker) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := checker.OverallStatus(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if status != health.StatusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(checker.CheckAll(r.Context()))
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.ErrorMsg("diagnostics server stopped", logger.Error(err))
	}
}
