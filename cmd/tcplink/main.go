// tcplink keeps a resilient TCP stream open to a remote endpoint.
//
// The run command starts the link client and, as configured, the peer
// server, the admin API, MQTT event publishing and InfluxDB history.
// Other commands issue API tokens and manage the database schema.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/tcplink/internal/auth"
	"github.com/nerrad567/tcplink/internal/infrastructure/config"
	"github.com/nerrad567/tcplink/internal/infrastructure/database"
	"github.com/nerrad567/tcplink/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path, used when it exists.
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdin, os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. in and out back the run command's
// --stdin and --print options and every command's output.
func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "tcplink",
		Short:         "Resilient TCP stream client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $TCPLINK_CONFIG or "+defaultConfigPath+")")

	load := func() (*config.Config, error) {
		path := getConfigPath(configPath)
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	root.AddCommand(
		newRunCmd(load, in, out),
		newTokenCmd(load, out),
		newMigrateCmd(load, out),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "tcplink %s (commit %s, built %s)\n", version, commit, date)
			},
		},
	)
	return root
}

// getConfigPath picks the flag, then TCPLINK_CONFIG, then the default
// path if it exists. An empty result means built-in defaults.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(config.EnvPrefix + "CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

func newRunCmd(load func() (*config.Config, error), in io.Reader, out io.Writer) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the remote and serve until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if opts.stdin {
				opts.in = in
			}
			if opts.print {
				opts.out = out
			}
			return run(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.stdin, "stdin", false, "send each line read from stdin")
	cmd.Flags().BoolVar(&opts.print, "print", false, "print arriving messages to stdout")
	cmd.Flags().BoolVar(&opts.noConnect, "no-connect", false, "start idle; connect later through the API")
	return cmd
}

func newTokenCmd(load func() (*config.Config, error), out io.Writer) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin API bearer token",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			r, err := auth.ParseRole(role)
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = cfg.API.Auth.TokenTTL
			}
			token, err := auth.GenerateToken(subject, r, cfg.API.Auth.JWTSecret, ttl)
			if err != nil {
				return fmt.Errorf("issuing token: %w", err)
			}
			fmt.Fprintln(out, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleViewer), "viewer or operator")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default api.auth.token_ttl)")
	return cmd
}

func newMigrateCmd(load func() (*config.Config, error), out io.Writer) *cobra.Command {
	open := func() (*database.DB, *logging.Logger, error) {
		cfg, err := load()
		if err != nil {
			return nil, nil, err
		}
		db, err := database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		return db, logging.New(cfg.Logging, version), nil
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, log, err := open()
				if err != nil {
					return err
				}
				defer db.Close() //nolint:errcheck // Exit path; nothing to do on failure
				if err := db.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("running migrations: %w", err)
				}
				log.Info("database migrations complete", "path", db.Path())
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, log, err := open()
				if err != nil {
					return err
				}
				defer db.Close() //nolint:errcheck // Exit path; nothing to do on failure
				if err := db.MigrateDown(cmd.Context()); err != nil {
					return fmt.Errorf("rolling back migration: %w", err)
				}
				log.Info("latest migration rolled back", "path", db.Path())
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, _, err := open()
				if err != nil {
					return err
				}
				defer db.Close() //nolint:errcheck // Exit path; nothing to do on failure
				applied, pending, err := db.MigrationStatus(cmd.Context())
				if err != nil {
					return fmt.Errorf("reading migration status: %w", err)
				}
				for _, m := range applied {
					fmt.Fprintf(out, "applied  %s\n", m.Version)
				}
				for _, m := range pending {
					fmt.Fprintf(out, "pending  %s_%s\n", m.Version, m.Name)
				}
				return nil
			},
		},
	)
	return cmd
}
