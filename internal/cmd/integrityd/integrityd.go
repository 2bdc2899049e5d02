// Package integrityd parses integrity daemon flags and starts the server.
package integrityd

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/jobchain/integrity/internal/app"
	entrypoint "github.com/jobchain/integrity/internal/platform/cmd"
	platformgrpc "github.com/jobchain/integrity/internal/platform/grpc"
)

// Config holds integrity daemon configuration.
type Config struct {
	GRPCPort  int    `env:"JOBCHAIN_INTEGRITY_GRPC_PORT" envDefault:"8090"`
	HTTPAddr  string `env:"JOBCHAIN_INTEGRITY_HTTP_ADDR" envDefault:"localhost:8091"`
	DBPath    string `env:"JOBCHAIN_INTEGRITY_DB_PATH"`
	LedgerURL string `env:"JOBCHAIN_LEDGER_RPC_URL"`

	// HealthCheck, when set, probes a running daemon instead of serving.
	HealthCheck bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.GRPCPort, "grpc-port", cfg.GRPCPort, "The integrity gRPC health port")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The integrity HTTP API address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The integrity SQLite database path")
	fs.StringVar(&cfg.LedgerURL, "ledger-url", cfg.LedgerURL, "The ledger JSON-RPC endpoint")
	fs.BoolVar(&cfg.HealthCheck, "healthcheck", false, "Probe a running daemon and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the integrity service, or probes a running one when the
// healthcheck flag is set.
func Run(ctx context.Context, cfg Config) error {
	if cfg.HealthCheck {
		return probeHealth(ctx, cfg)
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceIntegrity, func(ctx context.Context) error {
		return app.Run(ctx, app.Config{
			GRPCPort:  cfg.GRPCPort,
			HTTPAddr:  cfg.HTTPAddr,
			DBPath:    cfg.DBPath,
			LedgerURL: cfg.LedgerURL,
		})
	})
}

// probeHealth dials the daemon's gRPC port and waits for SERVING. Container
// orchestrators run this as their liveness command.
func probeHealth(ctx context.Context, cfg Config) error {
	addr := fmt.Sprintf("localhost:%d", cfg.GRPCPort)
	conn, err := platformgrpc.DialWithHealth(ctx, nil, addr, 5*time.Second, nil,
		platformgrpc.DefaultClientDialOptions()...)
	if err != nil {
		return fmt.Errorf("probe %s: %w", addr, err)
	}
	return conn.Close()
}
