package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/parkerroan/hitledger"
	"github.com/parkerroan/hitledger/broker"
	"github.com/parkerroan/hitledger/clock"
	"github.com/parkerroan/hitledger/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	flag.Parse()

	// Load .env file if it's in the current directory.
	loadEnvFile()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		slog.Error("error loading config", slog.Any("error", err))
		os.Exit(1)
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	var eventBroker broker.Broker = broker.NewLogBroker(logger)
	if cfg.RedisURL != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.RedisURL, // "localhost:6379"
		})
		defer rdb.Close()

		redisBroker := broker.NewRedisBroker(rdb,
			broker.WithStream(cfg.RedisStream),
			broker.WithCappedStream(100000),
			broker.WithLogger(logger),
		)
		g.Go(func() error {
			return redisBroker.Run(ctx)
		})
		eventBroker = redisBroker
	}

	var clk clock.Clock = clock.System{}
	if cfg.NTPServer != "" {
		offset, err := clock.NewNTPOffset(cfg.NTPServer, 5*time.Second)
		if err != nil {
			// Not fatal: the system clock is only off by whatever NTP would have corrected.
			logger.Warn("error querying ntp server, using system clock",
				slog.String("server", cfg.NTPServer),
				slog.Any("error", err),
			)
		} else {
			logger.Info("using ntp corrected clock", slog.Duration("offset", offset.Offset()))
			clk = offset
		}
	}

	reg := prometheus.NewRegistry()
	rl, err := hitledger.NewRateLimiter(
		hitledger.WithHitsPerPeriod(cfg.HitsPerPeriod),
		hitledger.WithPeriod(cfg.Period),
		hitledger.WithMaxClients(cfg.MaxClients),
		hitledger.WithExpireBatch(cfg.ExpireBatch),
		hitledger.WithClock(clk),
		hitledger.WithBroker(eventBroker),
		hitledger.WithMetrics(metrics.NewMetrics(reg)),
		hitledger.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("create rate limiter: %w", err)
	}
	defer rl.Close()

	keyGetter := hitledger.KeyFromRemoteAddr
	if cfg.TrustProxy {
		keyGetter = hitledger.KeyFromForwardedFor
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(rl, keyGetter, reg, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info("listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newRouter serves /healthz and /metrics unlimited and everything else behind
// the rate limiter.
func newRouter(rl *hitledger.RateLimiter, keyGetter func(*http.Request) string, reg *prometheus.Registry, logger *slog.Logger) *mux.Router {
	r := mux.NewRouter()

	// Add the logging middleware first.
	r.Use(LoggingMiddleware(logger))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	hello := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Echo how far ahead the caller's clear time runs.
		var debt time.Duration
		if clearTime, ok := rl.Ledger().ClearTime(keyGetter(r)); ok {
			debt = clearTime.Sub(rl.Now())
		}
		fmt.Fprintf(w, "Hello, World! Tracking %d clients. Your hits clear in %dms.\n",
			rl.Ledger().Len(), debt.Milliseconds())
	})
	r.PathPrefix("/").Handler(hitledger.HTTPMiddleware(rl, keyGetter)(hello))

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code and writes it to the response.
func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

func LoggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK, // Default to 200 OK if WriteHeader is not called.
			}
			started := time.Now()

			next.ServeHTTP(recorder, r)

			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.RequestURI),
				slog.Int("status", recorder.statusCode),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("user_agent", r.UserAgent()),
				slog.Duration("duration", time.Since(started)),
			)
		})
	}
}

func loadEnvFile() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			slog.Error("error loading .env file", slog.Any("error", err))
			os.Exit(1)
		}
	} else if !os.IsNotExist(err) {
		slog.Warn("unexpected error looking for .env file", slog.Any("error", err))
	}
}
