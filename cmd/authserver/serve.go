package main

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	auth "github.com/goliatone/go-session-auth"
	"github.com/goliatone/go-session-auth/ldap"
	"github.com/goliatone/go-session-auth/metrics"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.cfg.Validate(); err != nil {
				return err
			}
			return c.withStores(cmd.Context(), func(s *stores) error {
				if err := initialise(cmd.Context(), s); err != nil {
					return err
				}
				srv, err := c.newServer(s, prometheus.NewRegistry())
				if err != nil {
					return err
				}
				return c.listen(cmd.Context(), srv)
			})
		},
	}
}

// newServer wires the session manager and mounts the auth routes and the
// metrics endpoint.
func (c *cli) newServer(s *stores, reg *prometheus.Registry) (router.Server[*fiber.App], error) {
	observer, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}

	var (
		verifier auth.CredentialVerifier = auth.NewStoreVerifier(s.credentials, c.hasher)
		roles    auth.RoleProvider       = s.authorization
	)
	if c.cfg.LDAPURL != "" {
		dir := ldap.New(ldap.Config{
			URL:          c.cfg.LDAPURL,
			BindDN:       c.cfg.LDAPBindDN,
			BindPassword: c.cfg.LDAPBindPassword,
			BaseDN:       c.cfg.LDAPBaseDN,
		}, ldap.WithLogger(c.logger))
		verifier = dir.Verifier()
		roles = dir.GroupRoles()
		c.logger.Info("using ldap directory", "url", c.cfg.LDAPURL)
	}

	codec := auth.NewJWTCodec(c.cfg.CodecConfig(), auth.WithCodecLogger(c.logger))
	sessions := auth.NewSessionManager(verifier, roles, codec, c.cfg.SessionConfig()).
		WithLogger(c.logger).
		WithObserver(observer).
		WithActivitySink(auth.ActivitySinkFunc(func(_ context.Context, e auth.ActivityEvent) error {
			c.logger.Info("auth activity",
				"event", e.EventType,
				"username", e.Username,
				"state", e.State,
				"kind", e.Kind,
			)
			return nil
		}))

	auther := auth.NewHTTPAuthenticator(sessions, c.cfg).WithLogger(c.logger)

	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			Views:                 auth.NewViewEngine(),
			DisableStartupMessage: true,
		}))
	})

	auth.RegisterAuthRoutes(srv.Router(),
		auth.WithAuther(auther),
		auth.WithPathPrefix(c.cfg.PathPrefix),
		auth.WithControllerLogger(c.logger),
	)

	// promhttp speaks net/http, so it is mounted on the fiber app directly
	srv.WrappedRouter().Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return srv, nil
}

func (c *cli) listen(ctx context.Context, srv router.Server[*fiber.App]) error {
	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("listening", "addr", c.cfg.ListenAddr)
		errCh <- srv.Serve(c.cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		c.logger.Info("shutting down")
		return srv.WrappedRouter().ShutdownWithTimeout(shutdownTimeout)
	}
}
