package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maxpert/saslauth/auth"
	"github.com/maxpert/saslauth/authenticator"
	"github.com/maxpert/saslauth/config"
	"github.com/maxpert/saslauth/metrics"
	"github.com/maxpert/saslauth/transport"
)

// Build-time variables injected via ldflags
var version = "dev"

type probeFlags struct {
	configFile  string
	address     string
	mechanism   string
	username    string
	password    string
	principal   string
	clientID    string
	logLevel    string
	timeout     time.Duration
	metricsPort int
	options     []string
}

func newRootCommand() *cobra.Command {
	flags := &probeFlags{}

	root := &cobra.Command{
		Use:   "sasl-probe",
		Short: "Authenticate against a broker and report the outcome",
		Long: `sasl-probe connects to a broker, negotiates a SASL mechanism and runs the
token exchange. It prints the authenticated principal, or the fault that
stopped the exchange.

Settings come from --config, then SASLAUTH_ environment variables
(SASLAUTH_SASL__MECHANISM=PLAIN), then flags.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			return runProbe(cmd, cfg)
		},
	}

	f := root.Flags()
	f.StringVar(&flags.configFile, "config", "", "Configuration file path (YAML/JSON)")
	f.StringVar(&flags.address, "address", "", "Broker address, host:port")
	f.StringVar(&flags.mechanism, "mechanism", "", "SASL mechanism")
	f.StringVar(&flags.username, "username", "", "Username")
	f.StringVar(&flags.password, "password", "", "Password or bearer token")
	f.StringVar(&flags.principal, "principal", "", "Principal reported on success (default: username)")
	f.StringVar(&flags.clientID, "client-id", "", "Client id sent in request headers")
	f.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.DurationVar(&flags.timeout, "timeout", 0, "Authentication timeout")
	f.IntVar(&flags.metricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port while probing")
	f.StringArrayVar(&flags.options, "option", nil, "Mechanism option key=value (repeatable)")

	root.AddCommand(newGenerateConfigCommand())
	root.AddCommand(newMechanismsCommand())
	return root
}

// resolve layers changed flags over the loaded configuration
func (f *probeFlags) resolve(cmd *cobra.Command) (*config.ClientConfig, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	builder := config.FromConfig(cfg)
	changed := cmd.Flags().Changed
	if changed("address") {
		builder.WithAddress(f.address)
	}
	if changed("mechanism") {
		builder.WithMechanism(f.mechanism)
	}
	if changed("username") || changed("password") {
		username, password := cfg.SASL.Username, cfg.SASL.Password
		if changed("username") {
			username = f.username
		}
		if changed("password") {
			password = f.password
		}
		builder.WithCredentials(username, password)
	}
	if changed("principal") {
		builder.WithPrincipal(f.principal)
	}
	if changed("client-id") {
		builder.WithClientID(f.clientID)
	}
	if changed("log-level") {
		builder.WithLogging(f.logLevel, cfg.Logging.File)
	}
	if changed("timeout") {
		builder.WithTimeouts(cfg.Network.DialTimeout, f.timeout)
	}
	if changed("metrics-port") {
		builder.WithMetrics(f.metricsPort)
	}
	for _, option := range f.options {
		key, value, ok := strings.Cut(option, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid option %q, expected key=value", option)
		}
		builder.WithOption(key, value)
	}

	return builder.Build()
}

func runProbe(cmd *cobra.Command, cfg *config.ClientConfig) error {
	logger, err := config.NewLogger(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(cfg.Metrics.Namespace, registry)
	if cfg.Metrics.Enabled {
		server := metrics.NewServer(cfg.Metrics.Port, registry)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", zap.Error(err))
			}
		}()
		defer server.Stop(context.Background())
		logger.Info("Metrics enabled", zap.Int("port", server.Port()))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Network.DialTimeout+cfg.Network.AuthTimeout)
	defer cancel()

	dialer := net.Dialer{Timeout: cfg.Network.DialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", cfg.Network.Address)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", cfg.Network.Address, err)
	}
	conn, err := transport.New(raw)
	if err != nil {
		raw.Close()
		return err
	}
	defer conn.Close()

	session, err := authenticator.NewBuilderWithConfig(cfg).
		WithLogger(logger).
		WithMetrics(collector).
		Build(conn)
	if session != nil {
		defer session.Close()
	}
	if err != nil {
		return err
	}

	authCtx, authCancel := context.WithTimeout(cmd.Context(), cfg.Network.AuthTimeout)
	defer authCancel()
	if err := transport.Run(authCtx, session, conn, cfg.Network.PollInterval); err != nil {
		return fmt.Errorf("authentication with %s failed in state %s: %w", cfg.Network.Address, session.State(), err)
	}

	principal, _ := session.Principal()
	fmt.Fprintf(cmd.OutOrStdout(), "authenticated to %s as %s using %s\n", cfg.Network.Address, principal, cfg.SASL.Mechanism)
	return nil
}

func newGenerateConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-config <file>",
		Short: "Write the default configuration to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if err := cfg.Save(args[0]); err != nil {
				return fmt.Errorf("failed to generate config file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated default configuration: %s\n", args[0])
			return nil
		},
	}
}

func newMechanismsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mechanisms",
		Short: "List the mechanisms this client can use",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range auth.DefaultRegistry().List() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}
