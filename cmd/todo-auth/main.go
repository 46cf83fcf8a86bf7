package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/todo-auth/internal/config"
	apihttp "github.com/pribylovaa/todo-auth/internal/http"
	"github.com/pribylovaa/todo-auth/internal/http/middleware"
	"github.com/pribylovaa/todo-auth/internal/pkg/interceptors"
	"github.com/pribylovaa/todo-auth/internal/pkg/token"
	"github.com/pribylovaa/todo-auth/internal/service"
	"github.com/pribylovaa/todo-auth/internal/storage"
	"github.com/pribylovaa/todo-auth/internal/storage/memory"
	"github.com/pribylovaa/todo-auth/internal/storage/mongo"
	"github.com/pribylovaa/todo-auth/internal/storage/postgres"

	"google.golang.org/grpc"
	health "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", slog.String("env", cfg.Env), slog.String("db_driver", cfg.DB.Driver))

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	// Хранилище c таймаутом на подключение и миграции.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 30*time.Second)
	str, err := openStorage(dbCtx, cfg.DB, log)
	dbCancel()
	if err != nil {
		log.Error("storage_open_failed", slog.String("driver", cfg.DB.Driver), slog.String("err", err.Error()))
		os.Exit(1)
	}

	// Кодеки токенов: разные секреты и TTL.
	accessCodec, err := token.New(token.Options{
		Secret: []byte(cfg.Auth.AccessSecret),
		TTL:    cfg.Auth.AccessTokenTTL,
		Issuer: cfg.Auth.Issuer,
	})
	if err != nil {
		log.Error("access_codec_init_failed", slog.String("err", err.Error()))
		str.Close()
		os.Exit(1)
	}

	refreshCodec, err := token.New(token.Options{
		Secret: []byte(cfg.Auth.RefreshSecret),
		TTL:    cfg.Auth.RefreshTokenTTL,
		Issuer: cfg.Auth.Issuer,
	})
	if err != nil {
		log.Error("refresh_codec_init_failed", slog.String("err", err.Error()))
		str.Close()
		os.Exit(1)
	}

	// Сервис.
	srvc := service.New(str,
		service.Tokens{Access: accessCodec, Refresh: refreshCodec},
		service.Options{StrictRefresh: cfg.Auth.StrictRefresh},
	)
	log.Info("service_initialized", slog.Bool("strict_refresh", cfg.Auth.StrictRefresh))

	if cfg.Auth.BootstrapAdmin.Enabled() {
		if err := bootstrapAdmin(rootCtx, srvc, cfg.Auth.BootstrapAdmin, cfg.Timeouts.Service); err != nil {
			log.Error("bootstrap_admin_failed", slog.String("err", err.Error()))
			str.Close()
			os.Exit(1)
		}
	}

	var ready atomic.Bool

	// API-сервер.
	apiSrv := &http.Server{
		Addr: cfg.HTTP.Addr(),
		Handler: apihttp.NewRouter(
			apihttp.Deps{Service: srvc, Verifier: accessCodec, Accounts: str},
			apihttp.Options{
				Logger:  log,
				Timeout: cfg.Timeouts.Service,
				Metrics: middleware.NewHTTPMetrics(prometheus.DefaultRegisterer),
			},
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Служебный листенер.
	opsSrv := &http.Server{
		Addr:              cfg.Ops.Addr(),
		Handler:           opsMux(&ready),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrCh := make(chan error, 3)

	go func() {
		log.Info("ops_listen_start", slog.String("addr", opsSrv.Addr))
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
	}()

	go func() {
		log.Info("http_listen_start", slog.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
	}()

	// Опциональный gRPC-листенер со стандартным health-сервисом.
	var (
		grpcServer *grpc.Server
		hs         *health.Server
	)
	if cfg.GRPC.Enabled {
		grpcServer, hs, err = startGRPC(cfg, log, serveErrCh)
		if err != nil {
			log.Error("grpc_listen_failed", slog.String("addr", cfg.GRPC.Addr()), slog.String("err", err.Error()))
			str.Close()
			os.Exit(1)
		}
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}

	ready.Store(true)

	// Ожидание сигнала завершения или фатальной ошибки листенера.
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		log.Error("serve_failed", slog.String("err", err.Error()))
	}

	// Снимаем ready до остановки листенеров.
	ready.Store(false)
	if hs != nil {
		hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer shutdownCancel()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
		_ = apiSrv.Close()
	}

	if grpcServer != nil {
		stopGRPC(shutdownCtx, grpcServer, log)
	}

	_ = opsSrv.Shutdown(shutdownCtx)

	str.Close()

	log.Info("service_stopped")
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}

// openStorage выбирает реализацию хранилища по db.driver.
// Для postgres после подключения применяются встроенные миграции.
func openStorage(ctx context.Context, cfg config.DBConfig, log *slog.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		m, err := mongo.New(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		log.Info("mongo_connected")

		return m, nil
	case config.DriverPostgres:
		pg, err := postgres.New(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		log.Info("postgres_connected")

		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		log.Info("postgres_migrated")

		return pg, nil
	default:
		log.Warn("memory_storage_in_use", slog.String("note", "accounts are lost on restart"))

		return memory.New(), nil
	}
}

// bootstrapAdmin создаёт администратора из конфигурации, если его ещё нет.
func bootstrapAdmin(ctx context.Context, srvc *service.Service, admin config.BootstrapAdminConfig, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, _, err := srvc.EnsureAdmin(ctx, service.RegisterInput{
		Username: admin.Username,
		Email:    admin.Email,
		Password: admin.Password,
	})

	return err
}

// opsMux - /livez, /healthz и /metrics.
func opsMux(ready *atomic.Bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if ready.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// startGRPC поднимает gRPC-сервер с health-сервисом и интерсепторами.
// Ошибки Serve отправляются в errCh.
func startGRPC(cfg *config.Config, log *slog.Logger, errCh chan<- error) (*grpc.Server, *health.Server, error) {
	listener, err := net.Listen("tcp", cfg.GRPC.Addr())
	if err != nil {
		return nil, nil, err
	}

	grpc_prometheus.EnableHandlingTimeHistogram()

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptors.Recover(log),
			interceptors.UnaryLoggingInterceptor(log),
			interceptors.WithTimeout(cfg.Timeouts.Service),
			grpc_prometheus.UnaryServerInterceptor,
		),
		grpc.ChainStreamInterceptor(
			grpc_prometheus.StreamServerInterceptor,
		),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)

	// Рефлексия - только в local/dev.
	if cfg.Env == envLocal || cfg.Env == envDev {
		reflection.Register(grpcServer)
	}

	grpc_prometheus.Register(grpcServer)

	go func() {
		log.Info("grpc_listen_start", slog.String("addr", cfg.GRPC.Addr()))
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()

	return grpcServer, hs, nil
}

// stopGRPC выполняет GracefulStop, а по истечении ctx - принудительный Stop.
func stopGRPC(ctx context.Context, grpcServer *grpc.Server, log *slog.Logger) {
	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc_stopped")
	case <-ctx.Done():
		log.Warn("grpc_force_stop")
		grpcServer.Stop()
	}
}
