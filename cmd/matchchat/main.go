package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"matchchat/internal/assistant"
	"matchchat/internal/chat"
	"matchchat/internal/config"
	"matchchat/internal/logging"
	"matchchat/internal/session"
	"matchchat/internal/snapshot"
	"matchchat/internal/store"
	"matchchat/internal/types"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	configPath string
	envFile    string
	token      string
	userID     int64
	timeout    time.Duration

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "matchchat",
	Short: "matchchat - chat sync client for the study-partner matching backend",
	Long: `matchchat keeps a local view of your channels, messages and the typing
status of whoever you are talking to, by polling the backend's snapshot
endpoints. It can also send messages, manage groups, and talk to the
built-in study assistant.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		if err := logging.Initialize(logging.Options{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			File:       cfg.Logging.File,
			Categories: cfg.Logging.Categories,
		}); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.Boot("%s %s, backend %s", cfg.Name, cfg.Version, cfg.Backend.BaseURL)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "matchchat.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before config (missing file is ignored)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token (or set MATCHCHAT_TOKEN env)")
	rootCmd.PersistentFlags().Int64Var(&userID, "user", 0, "Signed-in user id (default: read from token claims)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Timeout for one-shot commands")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(channelsCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(groupCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext returns a context canceled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logging.Boot("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// resolveSession builds the session from flags, env and config.
func resolveSession() (*session.Session, error) {
	tok := strings.TrimSpace(token)
	if tok == "" {
		tok = cfg.Backend.Token
	}
	if userID != 0 {
		return session.New(userID, tok), nil
	}
	if tok == "" {
		return nil, fmt.Errorf("no user: pass --user or a token with a user_id claim")
	}
	return session.FromToken(tok)
}

// buildEngine wires the engine from config. The returned cleanup closes the
// engine and the archive.
func buildEngine(ctx context.Context) (*chat.Engine, func(), error) {
	sess, err := resolveSession()
	if err != nil {
		return nil, nil, err
	}

	httpClient := snapshot.NewHTTPClient(snapshot.Options{
		BaseURL:   cfg.Backend.BaseURL,
		Timeout:   cfg.GetRequestTimeout(),
		RateLimit: cfg.Backend.RateLimit,
		Burst:     cfg.Backend.Burst,
	}, sess)
	backend := snapshot.NewBounded(httpClient, cfg.GetRequestTimeout())

	var gen types.Generator
	if cfg.Assistant.APIKey != "" {
		gen, err = assistant.NewGenerator(ctx, cfg.Assistant, cfg.GetAssistantTimeout())
		if err != nil {
			logging.BootWarn("assistant disabled: %v", err)
		}
	}

	opts := chat.Options{
		Session:   sess,
		Backend:   backend,
		Generator: gen,
		Intervals: intervalsFrom(cfg),
	}

	var archive *store.Archive
	if cfg.IsArchiveEnabled() {
		archive, err = store.OpenArchive(cfg.Store.ArchivePath)
		if err != nil {
			return nil, nil, err
		}
		opts.Archive = archive
	}

	engine, err := chat.New(opts)
	if err != nil {
		if archive != nil {
			archive.Close()
		}
		return nil, nil, err
	}

	cleanup := func() {
		if err := engine.Close(); err != nil {
			logging.BootWarn("engine close: %v", err)
		}
		if archive != nil {
			if err := archive.Close(); err != nil {
				logging.StoreWarn("archive close: %v", err)
			}
		}
	}
	return engine, cleanup, nil
}

func intervalsFrom(c *config.Config) chat.Intervals {
	return chat.Intervals{
		Directory: c.GetDirectoryInterval(),
		Messages:  c.GetMessageInterval(),
		Presence:  c.GetPresenceInterval(),
	}
}
