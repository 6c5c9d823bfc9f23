package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/la2bots/internal/admin"
	"github.com/udisondev/la2bots/internal/bot"
	"github.com/udisondev/la2bots/internal/config"
	"github.com/udisondev/la2bots/internal/db"
	"github.com/udisondev/la2bots/internal/diag"
	"github.com/udisondev/la2bots/internal/event"
	"github.com/udisondev/la2bots/internal/metrics"
	"github.com/udisondev/la2bots/internal/model"
	"github.com/udisondev/la2bots/internal/world"
)

const BotConfigPath = "config/botserver.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load config FIRST to determine log level
	cfgPath := BotConfigPath
	if p := os.Getenv("LA2BOTS_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadBotServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Configure slog with the per-bot level filter on top
	logLevel := parseLogLevel(cfg.LogLevel)
	filter := diag.NewLevelFilter(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(slog.New(filter))

	// Enable AI debug logging if log level is debug
	bot.EnableDebugLogging(logLevel == slog.LevelDebug)

	slog.Info("la2bots server starting", "log_level", cfg.LogLevel)

	if err := diag.Detector().Configure(cfg.DeadlockDumpDir, cfg.DebugMarkerFile); err != nil {
		return fmt.Errorf("configuring deadlock detector: %w", err)
	}

	// Connect to database
	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	// Run migrations
	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	executor := db.NewAsyncExecutor(database, cfg.DBTimeout, cfg.DBMaxInFlight)
	accounts := db.NewAccountRepository(database, cfg.AutoCreateAccounts)
	characters := db.NewCharacterRepository(database)

	// Core wiring
	table := world.Objects()
	deferred := world.NewDeferredQueue()
	bus := event.NewBus("bots")
	collector := metrics.Default()
	pool := bot.NewPool(cfg.Pool.Min, cfg.Pool.Max)
	priorities := bot.NewPriorityManager(tierConfigs(cfg), collector)
	manager := bot.NewManager(bot.ManagerConfig{
		MaxPopulation:  cfg.MaxPopulation,
		StallThreshold: cfg.StallThreshold,
	}, priorities, bus, collector, pool, table)

	factory := bot.NewFactory(bot.AIDeps{
		Bus:       bus,
		Table:     table,
		Deferred:  deferred,
		Collector: collector,
		Hooks: bot.HostHooks{
			Motion:   &loggingMotion{},
			Teleport: &loggingTeleport{},
		},
	})
	registerSpecialisations(factory, executor, characters, collector)

	entry := bot.NewEntryQueue(cfg.EntryQueue.MaxConcurrent, cfg.EntryQueue.RetryBackoff)
	pipeline := bot.NewLoginPipeline(executor, accounts, entry, manager, pool,
		factory, table, bus, collector, world.IDGenerator(), cfg.EntryQueue.AdmitPerTick)

	// Admin commands
	adminHandler := admin.NewHandler()
	adminHandler.Register(&admin.BotLogCommand{Filter: filter})
	adminHandler.Register(&admin.BotPriorityCommand{Manager: manager, Priority: priorities})
	adminHandler.Register(&admin.BotStatsCommand{
		Manager:   manager,
		Priority:  priorities,
		Collector: collector,
		Bus:       bus,
		Entry:     entry,
		Pool:      pool,
	})
	slog.Info("admin commands registered", "count", adminHandler.CommandCount())

	// Boot the configured roster
	for _, sp := range cfg.Spawns {
		if _, err := pipeline.Spawn(ctx, bot.SpawnRequest{
			Login:       sp.Login,
			Password:    sp.Password,
			CharacterID: sp.CharacterID,
		}); err != nil {
			slog.Error("spawn refused", "login", sp.Login, "err", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	// Tick loop: logins, session updates, deferred events, all on one thread.
	g.Go(func() error {
		slog.Info("starting tick loop", "interval", cfg.TickInterval)
		ticker := time.NewTicker(cfg.TickInterval)
		defer ticker.Stop()

		last := time.Now()
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-ticker.C:
				diff := now.Sub(last)
				last = now
				pipeline.Tick()
				manager.Update(diff)
				deferred.Drain(now)
			}
		}
	})

	// Watchdog: a stalled update means the tick thread is wedged, so the
	// check has to run off-thread.
	stop := make(chan struct{})
	manager.StartWatchdog(cfg.WatchdogInterval, stop)
	pool.StartJanitor(cfg.PoolShrinkInterval, stop)

	// Operator console: //bot-* commands on stdin.
	g.Go(func() error {
		runConsole(gctx, adminHandler)
		return nil
	})

	err = g.Wait()
	close(stop)

	// Bounded drain: finish in-flight logins and database work.
	if !pipeline.DrainTimeout(cfg.DrainTimeout) {
		slog.Warn("abandoning pending logins", "pending", pipeline.PendingLogins())
	}
	if !executor.Shutdown(cfg.DrainTimeout) {
		slog.Warn("abandoning outstanding database work")
	}
	pool.Close()

	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// tierConfigs maps the YAML tier table onto the priority manager's.
func tierConfigs(cfg config.BotServer) [5]bot.TierConfig {
	return [5]bot.TierConfig{
		bot.TierEmergency: {Interval: cfg.Tiers.Emergency.Interval, MaxPopulation: cfg.Tiers.Emergency.MaxPopulation},
		bot.TierHigh:      {Interval: cfg.Tiers.High.Interval, MaxPopulation: cfg.Tiers.High.MaxPopulation},
		bot.TierMedium:    {Interval: cfg.Tiers.Medium.Interval, MaxPopulation: cfg.Tiers.Medium.MaxPopulation},
		bot.TierLow:       {Interval: cfg.Tiers.Low.Interval, MaxPopulation: cfg.Tiers.Low.MaxPopulation},
		bot.TierSuspended: {Interval: 0},
	}
}

// registerSpecialisations installs the default AI constructors. The host
// embedding the bot core replaces these with its class roster; every
// specialisation keeps the periodic save behaviour.
func registerSpecialisations(f *bot.Factory, exec *db.AsyncExecutor,
	characters *db.CharacterRepository, collector *metrics.Collector) {
	idle := func(ai *bot.AI) error {
		s := ai.Session()
		s.AddBehavior(bot.NewPersistBehavior(s, exec, characters, collector, time.Minute))
		return nil
	}
	for classID := int32(0); classID < 8; classID++ {
		f.RegisterClass(classID, idle)
	}
	f.RegisterTagged("idle", idle)
}

// runConsole dispatches //commands typed on stdin at administrator level.
func runConsole(ctx context.Context, h *admin.Handler) {
	inv := admin.Invoker{Name: "console", AccessLevel: 100}
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "//")
		if line == "" {
			continue
		}
		h.Handle(inv, line, func(s string) { fmt.Println(s) })
	}
}

// loggingMotion is the standalone stand-in for the host's motion hook.
type loggingMotion struct{}

func (loggingMotion) MoveToPoint(eid world.EID, dest model.Location) {
	slog.Debug("move issued", "eid", uint64(eid), "x", dest.X, "y", dest.Y, "z", dest.Z)
}

// loggingTeleport is the standalone stand-in for the host's teleport hook.
type loggingTeleport struct{}

func (loggingTeleport) AcknowledgeTeleport(eid world.EID) {
	slog.Debug("teleport acknowledged", "eid", uint64(eid))
}

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
