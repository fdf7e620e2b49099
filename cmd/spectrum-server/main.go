package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/spectrum-manager/core"
	"github.com/signalsfoundry/spectrum-manager/internal/config"
	"github.com/signalsfoundry/spectrum-manager/internal/health"
	"github.com/signalsfoundry/spectrum-manager/internal/logging"
	"github.com/signalsfoundry/spectrum-manager/internal/mqtt"
	"github.com/signalsfoundry/spectrum-manager/internal/observability"
	"github.com/signalsfoundry/spectrum-manager/internal/sim"
	"github.com/signalsfoundry/spectrum-manager/internal/web"
	"github.com/signalsfoundry/spectrum-manager/kb"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	httpAddr := flag.String("http-addr", "", "HTTP address for the operator page and API (overrides config)")
	grpcAddr := flag.String("grpc-addr", "", "gRPC address for the health service (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Separate HTTP address for /metrics (overrides config)")
	flag.Parse()

	bootLog := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Error(ctx, "failed to load configuration", logging.Err(err))
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.Server.HTTPAddr = *httpAddr
	}
	if *grpcAddr != "" {
		cfg.Server.GRPCAddr = *grpcAddr
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}

	log := logging.New(cfg.LoggerConfig())

	httpLis, err := net.Listen("tcp", cfg.Server.HTTPAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for HTTP", logging.String("addr", cfg.Server.HTTPAddr), logging.Err(err))
		os.Exit(1)
	}
	var grpcLis net.Listener
	if cfg.Server.GRPCAddr != "" {
		grpcLis, err = net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Server.GRPCAddr), logging.Err(err))
			os.Exit(1)
		}
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(stopCtx, cfg, log, httpLis, grpcLis); err != nil {
		log.Error(ctx, "spectrum server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is done or a server fails.
func run(ctx context.Context, cfg *config.Config, log logging.Logger, httpLis, grpcLis net.Listener) error {
	settings, err := cfg.Settings()
	if err != nil {
		return fmt.Errorf("initial settings: %w", err)
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewCycleCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics collector: %w", err)
	}

	store := kb.NewKnowledgeBase(settings)

	var sensor *core.Sensor
	if cfg.Simulation.Seed != 0 {
		sensor = core.NewSensor(cfg.Simulation.Bands, cfg.Simulation.Seed)
	} else {
		sensor = core.NewRandomSensor(cfg.Simulation.Bands)
	}

	engineOpts := []sim.Option{sim.WithMetrics(collector)}
	if cfg.MQTT.Enabled {
		pub, err := mqtt.Connect(ctx, cfg.MQTT, log)
		if err != nil {
			return err
		}
		defer pub.Close()
		engineOpts = append(engineOpts, sim.WithPublisher(pub))
		log.Info(ctx, "publishing cycles to mqtt", logging.String("topic", pub.Topic()))
	}

	engine := sim.NewEngine(sensor, store, log, engineOpts...)
	runner := sim.NewRunner(engine, store, nil, log, collector)

	var webOpts []web.Option
	if cfg.Server.MetricsAddr == "" {
		webOpts = append(webOpts, web.WithMetricsEndpoint())
	}
	webSrv, err := web.NewServer(store, runner, log, collector, webOpts...)
	if err != nil {
		return err
	}
	defer webSrv.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return runner.Run(gctx) })

	httpSrv := &http.Server{Handler: webSrv.Handler(), ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		log.Info(gctx, "serving operator page", logging.String("addr", httpLis.Addr().String()))
		return serveHTTP(gctx, httpSrv, httpLis)
	})

	if cfg.Server.MetricsAddr != "" {
		metricsSrv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: collector.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			lis, err := net.Listen("tcp", cfg.Server.MetricsAddr)
			if err != nil {
				return fmt.Errorf("listen for metrics on %s: %w", cfg.Server.MetricsAddr, err)
			}
			log.Info(gctx, "serving Prometheus metrics", logging.String("addr", cfg.Server.MetricsAddr))
			return serveHTTP(gctx, metricsSrv, lis)
		})
	}

	if grpcLis != nil {
		healthSrv := health.NewServer(log)
		g.Go(func() error { return healthSrv.Serve(gctx, grpcLis) })
	}

	err = g.Wait()
	log.Info(context.Background(), "spectrum server stopped")
	return err
}

func serveHTTP(ctx context.Context, srv *http.Server, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		<-errCh
		return nil
	}
}
