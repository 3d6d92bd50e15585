package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/djlord-it/termrelay/internal/analytics"
	"github.com/djlord-it/termrelay/internal/api"
	"github.com/djlord-it/termrelay/internal/breaker"
	"github.com/djlord-it/termrelay/internal/bus"
	"github.com/djlord-it/termrelay/internal/config"
	"github.com/djlord-it/termrelay/internal/cron"
	"github.com/djlord-it/termrelay/internal/metrics"
	"github.com/djlord-it/termrelay/internal/queue"
	"github.com/djlord-it/termrelay/internal/schedule"
	"github.com/djlord-it/termrelay/internal/scheduler"
	"github.com/djlord-it/termrelay/internal/store/memory"
	"github.com/djlord-it/termrelay/internal/store/postgres"
	"github.com/djlord-it/termrelay/internal/sweeper"
	"github.com/djlord-it/termrelay/internal/target"

	_ "github.com/lib/pq"
)

// cronParserAdapter adapts internal/cron.Parser to schedule.CronParser interface.
type cronParserAdapter struct {
	parser *cron.Parser
}

func (a *cronParserAdapter) Parse(expression string, timezone string) (schedule.CronSchedule, error) {
	sched, err := a.parser.Parse(expression, timezone)
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// persistence is the union of trigger and subscription storage, implemented
// by both the memory and postgres stores.
type persistence interface {
	schedule.Persistence
	bus.Persistence
}

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`termrelay - scheduling and reliable delivery engine for terminal sessions

Usage:
  termrelay <command>

Commands:
  serve      Start the scheduler, delivery queue and HTTP API
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL              PostgreSQL connection string (optional; in-memory store if unset)
  REDIS_ADDR                Redis address for delivery analytics (optional)
  HTTP_ADDR                 HTTP server address (default: ":8080")

  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME     Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")

  TARGET_MODE               Delivery target: "tmux" or "http" (default: "tmux")
  TMUX_BIN                  tmux binary to invoke (default: "tmux")
  TARGET_HTTP_BASE_URL      Session receiver base URL (required when TARGET_MODE=http)

  QUEUE_MAX_ATTEMPTS        Delivery attempts per item (default: "3")
  QUEUE_HISTORY_LIMIT       Delivery log entries kept in memory (default: "500")
  QUEUE_BACKOFF             Comma-separated backoff schedule (default: "0s,2s,10s,30s")

  BUS_MAX_SUBSCRIPTIONS     Live subscriptions per subscriber session (default: "10")

  SWEEP_INTERVAL            Housekeeping interval (default: "5m")
  TRIGGER_RETENTION         Archived trigger retention before hard delete (default: "24h")

  BREAKER_THRESHOLD         Failures before a target circuit opens; 0 disables (default: "5")
  BREAKER_COOLDOWN          Open circuit cooldown (default: "2m")

  ANALYTICS_WINDOW          Outcome counter bucket width (default: "1h")
  ANALYTICS_RETENTION       Outcome counter TTL (default: "168h")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	// Pick the persistence backend.
	var persist persistence
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
			return exitRuntimeError
		}
		defer db.Close()

		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
		db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

		log.Printf("termrelay: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s, max_idle_time=%s)",
			cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)

		if err := db.Ping(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
			return exitRuntimeError
		}

		pgStore := postgres.New(db, cfg.DBOpTimeout)
		if err := pgStore.EnsureSchema(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "failed to ensure schema: %v\n", err)
			return exitRuntimeError
		}
		persist = pgStore
	} else {
		log.Println("termrelay: DATABASE_URL not set; using in-memory store (schedules lost on restart)")
		persist = memory.New()
	}

	// Pick the target adapter.
	var adapter target.Adapter
	switch cfg.TargetMode {
	case "http":
		adapter = target.NewHTTPAdapter(cfg.TargetHTTPBaseURL)
		log.Printf("termrelay: delivering via http (base=%s)", cfg.TargetHTTPBaseURL)
	default:
		adapter = target.NewTmuxAdapter(cfg.TmuxBin)
		log.Printf("termrelay: delivering via tmux (bin=%s)", cfg.TmuxBin)
	}

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("termrelay: metrics enabled (path=%s)", cfg.MetricsPath)
	} else {
		log.Println("termrelay: METRICS_ENABLED not set; metrics disabled")
	}

	q := queue.New(queue.Config{
		MaxAttempts:  cfg.QueueMaxAttempts,
		Backoff:      cfg.QueueBackoff,
		HistoryLimit: cfg.QueueHistoryLimit,
	}, adapter)
	if metricsSink != nil {
		q = q.WithMetrics(metricsSink)
	}

	if cfg.BreakerThreshold > 0 {
		q = q.WithBreaker(breaker.New(cfg.BreakerThreshold, cfg.BreakerCooldown))
		log.Printf("termrelay: circuit breaker enabled (threshold=%d, cooldown=%s)",
			cfg.BreakerThreshold, cfg.BreakerCooldown)
	} else {
		log.Println("termrelay: BREAKER_THRESHOLD=0; circuit breaker disabled")
	}

	// Wire analytics if Redis is configured
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		sink := analytics.NewRedisSink(redisClient, analytics.Config{
			Window:    cfg.AnalyticsWindow,
			Retention: cfg.AnalyticsRetention,
		})
		q = q.WithAnalytics(sink)
		log.Printf("termrelay: analytics enabled (redis=%s)", cfg.RedisAddr)
	} else {
		log.Println("termrelay: REDIS_ADDR not set; analytics disabled")
	}

	store := schedule.New(persist, &cronParserAdapter{parser: cron.NewParser()})
	sched := scheduler.New(q, store)
	if metricsSink != nil {
		sched = sched.WithMetrics(metricsSink)
	}
	store.WithRegistry(sched)

	eventBus := bus.New(q, persist, cfg.BusMaxSubscriptions).WithReminders(store)
	if metricsSink != nil {
		eventBus = eventBus.WithMetrics(metricsSink)
	}

	sweep := sweeper.New(sweeper.Config{
		Interval:         cfg.SweepInterval,
		TriggerRetention: cfg.TriggerRetention,
	}, eventBus, store)
	if metricsSink != nil {
		sweep = sweep.WithMetrics(metricsSink)
	}

	// Restore persisted state before the scheduler starts firing.
	restoreCtx, restoreCancel := context.WithTimeout(context.Background(), 30*time.Second)
	restored, err := store.Restore(restoreCtx)
	if err != nil {
		restoreCancel()
		fmt.Fprintf(os.Stderr, "failed to restore schedules: %v\n", err)
		return exitRuntimeError
	}
	if _, err := eventBus.Restore(restoreCtx); err != nil {
		restoreCancel()
		fmt.Fprintf(os.Stderr, "failed to restore subscriptions: %v\n", err)
		return exitRuntimeError
	}
	restoreCancel()
	log.Printf("termrelay: restored %d schedules", len(restored))

	apiHandler := api.NewHandler(store, q, eventBus)
	if db != nil {
		apiHandler = apiHandler.WithHealthChecker(db)
	}

	mux := http.NewServeMux()
	if metricsSink != nil {
		mux.Handle(cfg.MetricsPath, promhttp.Handler())
	}
	mux.Handle("/", apiHandler)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("termrelay: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("termrelay: http server error: %v", err)
		}
	}()

	// Separate contexts per component to enable ordered shutdown.
	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	sweeperCtx, cancelSweeper := context.WithCancel(context.Background())
	queueCtx, cancelQueue := context.WithCancel(context.Background())

	var schedulerWg, sweeperWg, queueWg sync.WaitGroup

	schedulerWg.Add(1)
	go func() {
		defer schedulerWg.Done()
		sched.Run(schedulerCtx)
	}()

	sweeperWg.Add(1)
	go func() {
		defer sweeperWg.Done()
		sweep.Run(sweeperCtx)
	}()

	queueWg.Add(1)
	go func() {
		defer queueWg.Done()
		q.Run(queueCtx)
	}()

	log.Printf("termrelay: started (http=%s, target=%s)", cfg.HTTPAddr, cfg.TargetMode)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("termrelay: received signal %v, shutting down", received)

	// Phase 1: Stop scheduler (no new deliveries enqueued)
	log.Println("termrelay: stopping scheduler...")
	cancelScheduler()
	schedulerWg.Wait()
	log.Println("termrelay: scheduler stopped")

	// Phase 2: Stop sweeper
	log.Println("termrelay: stopping sweeper...")
	cancelSweeper()
	sweeperWg.Wait()
	log.Println("termrelay: sweeper stopped")

	// Phase 3: Stop queue worker (finishes the in-flight attempt)
	log.Println("termrelay: stopping delivery queue...")
	cancelQueue()
	queueWg.Wait()
	log.Println("termrelay: delivery queue stopped")

	// Phase 4: Stop HTTP server with graceful shutdown
	log.Println("termrelay: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("termrelay: http server shutdown error: %v", err)
	}
	log.Println("termrelay: http server stopped")

	log.Println("termrelay: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("termrelay version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
