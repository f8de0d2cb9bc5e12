// Command pacsys-proxyd runs the supervised pacsys proxy: a gRPC
// front for Read/Set/Alarms/Subscribe, backed by a data-pool
// connection, gated by a policy chain, and audited end to end.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/beauremus/pacsys/audit"
	"github.com/beauremus/pacsys/datapool"
	"github.com/beauremus/pacsys/internal/secrets"
	"github.com/beauremus/pacsys/internal/telemetry"
	"github.com/beauremus/pacsys/policy"
	"github.com/beauremus/pacsys/proxy"
	"github.com/beauremus/pacsys/proxy/pacsyspb"
)

func newRunCommand() *cobra.Command {
	var (
		grpcAddr     string
		httpAddr     string
		dataPoolURL  string
		poolSize     int
		auditJSON    string
		auditProto   string
		denyGlobs    []string
		readOnly     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the supervised pacsys proxy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(runOptions{
				grpcAddr:    grpcAddr,
				httpAddr:    httpAddr,
				dataPoolURL: dataPoolURL,
				poolSize:    poolSize,
				auditJSON:   auditJSON,
				auditProto:  auditProto,
				denyGlobs:   denyGlobs,
				readOnly:    readOnly,
			})
		},
	}

	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", ":50061", "gRPC listen address")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8081", "HTTP health listen address")
	cmd.Flags().StringVar(&dataPoolURL, "data-pool-url", "ws://localhost:6802/data-pool", "data-pool WebSocket upstream URL")
	cmd.Flags().IntVar(&poolSize, "pool-size", datapool.DefaultPoolSize, "number of pooled data-pool connections")
	cmd.Flags().StringVar(&auditJSON, "audit-json", "audit.jsonl", "path to the JSON-lines audit log")
	cmd.Flags().StringVar(&auditProto, "audit-proto", "", "path to the tagged-binary audit log (disabled if empty)")
	cmd.Flags().StringSliceVar(&denyGlobs, "deny-device", nil, "device-name glob denied by the DeviceAccess policy (repeatable)")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "deny every Set RPC")

	return cmd
}

type runOptions struct {
	grpcAddr    string
	httpAddr    string
	dataPoolURL string
	poolSize    int
	auditJSON   string
	auditProto  string
	denyGlobs   []string
	readOnly    bool
}

func run(opts runOptions) error {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint != "" {
		mp, err := telemetry.InitMeterProvider(context.Background(), "pacsys-proxyd", otelEndpoint)
		if err != nil {
			logger.Error("failed to init OTel meter provider", zap.Error(err))
		} else {
			defer mp.Shutdown(context.Background())
			logger.Info("OTel meter provider initialized", zap.String("endpoint", otelEndpoint))
		}
	}

	vaultAddr := os.Getenv("VAULT_ADDR")
	if vaultAddr == "" {
		vaultAddr = "http://localhost:8200"
	}
	vaultToken := os.Getenv("VAULT_TOKEN")
	if vaultToken == "" {
		vaultToken = "root"
	}
	secretPath := os.Getenv("VAULT_SECRET_PATH")
	if secretPath == "" {
		secretPath = "secret/data/pacsys/proxyd"
	}

	var creds secrets.Credentials
	if mgr, err := secrets.NewManager(vaultAddr, vaultToken); err != nil {
		logger.Warn("Vault connection failed, proceeding with unauthenticated data-pool access", zap.Error(err))
	} else if creds, err = secrets.LoadCredentials(mgr, secretPath); err != nil {
		logger.Warn("failed to load secrets from Vault, proceeding with unauthenticated data-pool access", zap.Error(err))
	}

	be, err := datapool.Open(context.Background(), datapool.Config{
		URL:      opts.dataPoolURL,
		PoolSize: opts.poolSize,
		Role:     creds.DataPoolRole,
		Token:    creds.DataPoolToken,
		Log:      logger,
	})
	if err != nil {
		return fmt.Errorf("data-pool dial failed: %w", err)
	}
	defer be.Close()

	auditLog, err := audit.New(opts.auditJSON, audit.WithProtoPath(opts.auditProto), audit.WithResponses(true))
	if err != nil {
		return fmt.Errorf("audit log init failed: %w", err)
	}
	defer auditLog.Close()

	var policies []policy.Policy
	if opts.readOnly {
		policies = append(policies, policy.ReadOnly{})
	}
	if len(opts.denyGlobs) > 0 {
		policies = append(policies, policy.NewDeviceAccess(opts.denyGlobs, policy.ModeDeny))
	}

	srv := proxy.New(be, auditLog, proxy.Config{
		Token:        []byte(creds.ProxyBearerToken),
		Policies:     policies,
		LogResponses: true,
		Log:          logger,
	})

	lis, err := net.Listen("tcp", opts.grpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC address: %w", err)
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	pacsyspb.RegisterPacsysServer(grpcServer, srv)

	go func() {
		logger.Info("pacsys-proxyd gRPC server listening", zap.String("addr", opts.grpcAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server stopped serving", zap.Error(err))
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	go func() {
		logger.Info("pacsys-proxyd HTTP health server listening", zap.String("addr", opts.httpAddr))
		if err := e.Start(opts.httpAddr); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failure", zap.Error(err))
		}
	}()

	logger.Info("pacsys-proxyd started", zap.String("grpc", opts.grpcAddr), zap.String("http", opts.httpAddr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("pacsys-proxyd shut down cleanly")
	return nil
}

func main() {
	root := &cobra.Command{
		Use:  "pacsys-proxyd [command]",
		Long: "Supervised proxy for the pacsys control-network client library",
	}
	root.AddCommand(newRunCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
