package main

import (
	"context"
	"fmt"

	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	auth "github.com/goliatone/go-session-auth"
	"github.com/goliatone/go-session-auth/memory"
	"github.com/goliatone/go-session-auth/repository"
)

// credentialStore adds listing to auth.CredentialStore.
type credentialStore interface {
	auth.CredentialStore
	Usernames(ctx context.Context) ([]string, error)
}

// authorizationStore adds listing to auth.AuthorizationStore.
type authorizationStore interface {
	auth.AuthorizationStore
	RoleNames(ctx context.Context) ([]string, error)
}

// stores bundles the two stores with whatever must be closed on exit.
type stores struct {
	credentials   credentialStore
	authorization authorizationStore
	close         func() error
}

// cli carries state shared by every subcommand. It is filled in by the
// root PersistentPreRunE.
type cli struct {
	logLevel string
	cfg      auth.Config
	zap      *zap.Logger
	logger   auth.Logger
	hasher   *auth.MultiHasher
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "authserver",
		Short:         "Session token authentication server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.zap != nil {
				_ = c.zap.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(c),
		newInitCmd(c),
		newUserCmd(c),
		newRoleCmd(c),
	)
	return root
}

func (c *cli) setup() error {
	level, err := zapcore.ParseLevel(c.logLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zl, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	c.zap = zl
	c.logger = auth.NewLogrLogger(zapr.NewLogger(zl))

	cfg, err := auth.ParseConfig()
	if err != nil {
		return err
	}
	c.cfg = cfg

	hasher, err := auth.NewPasswordHasher(cfg.PasswordScheme)
	if err != nil {
		return err
	}
	c.hasher = hasher
	return nil
}

// openStores opens the configured backend. The memory driver keeps state
// for the lifetime of the process only.
func (c *cli) openStores(ctx context.Context) (*stores, error) {
	if c.cfg.DatabaseDriver == "memory" {
		creds := memory.NewCredentials(c.hasher, memory.WithSeedAdminPassword(c.cfg.SeedAdminPassword))
		return &stores{
			credentials:   creds,
			authorization: memory.NewAuthorization(creds),
			close:         func() error { return nil },
		}, nil
	}

	db, err := repository.Open(ctx, c.cfg.DatabaseDriver, c.cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	m := repository.NewManager(db, c.hasher, repository.WithSeedAdminPassword(c.cfg.SeedAdminPassword))
	if err := m.Validate(); err != nil {
		_ = m.Close()
		return nil, err
	}

	c.logger.Debug("database opened", "driver", c.cfg.DatabaseDriver)
	return &stores{
		credentials:   m.Credentials(),
		authorization: m.Authorization(),
		close:         m.Close,
	}, nil
}

// withStores opens the stores, runs fn and closes them.
func (c *cli) withStores(ctx context.Context, fn func(*stores) error) error {
	s, err := c.openStores(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.close(); err != nil {
			c.logger.Warn("failed to close stores", "error", err)
		}
	}()
	return fn(s)
}

func initialise(ctx context.Context, s *stores) error {
	if err := s.credentials.Initialise(ctx); err != nil {
		return err
	}
	return s.authorization.Initialise(ctx)
}

func newInitCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the schema and seed the baseline roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStores(cmd.Context(), func(s *stores) error {
				if err := initialise(cmd.Context(), s); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "initialised")
				return nil
			})
		},
	}
}
