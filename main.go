package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"dip-trader/internal/api"
	"dip-trader/internal/events"
	"dip-trader/internal/gateway"
	"dip-trader/internal/ingest"
	"dip-trader/internal/journal"
	"dip-trader/internal/monitor"
	"dip-trader/internal/scheduler"
	"dip-trader/internal/session"
	"dip-trader/pkg/config"
	"dip-trader/pkg/db"
	"dip-trader/pkg/logging"
)

const version = "v1.0-dev"

func main() {
	issueFor := flag.String("issue-token", "", "print an API token for the given operator and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of an issued token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logging.Component("main")

	if *issueFor != "" {
		tok, err := api.IssueToken(*issueFor, cfg.JWTSecret, *tokenTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("issue token")
		}
		fmt.Println(tok)
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("session failed")
	}
	log.Info().Msg("shutdown complete")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	overrides, err := config.LoadOverrides(cfg.SymbolOverridesFile)
	if err != nil {
		return fmt.Errorf("symbol overrides: %w", err)
	}
	entries, consumed, err := ingest.LoadFile(cfg.TickerFile)
	if err != nil {
		if len(entries) == 0 {
			return fmt.Errorf("ticker file: %w", err)
		}
		log.Warn().Err(err).Int("loaded", len(entries)).Msg("ticker file has malformed lines")
	}
	fields, err := gateway.ParseTickFields(cfg.TriggerTickFields)
	if err != nil {
		return fmt.Errorf("trigger tick fields: %w", err)
	}
	cancelAt, err := scheduler.ParseTimeOfDay(cfg.CancellationDeadline)
	if err != nil {
		return fmt.Errorf("cancellation deadline: %w", err)
	}
	closeAt, err := scheduler.ParseTimeOfDay(cfg.MarketCloseDeadline)
	if err != nil {
		return fmt.Errorf("market close deadline: %w", err)
	}

	// Venue: paper broker behind the pacing wrapper.
	gwLog := logging.Component("gateway")
	holdings := make([]gateway.Holding, 0, len(cfg.Paper.Holdings))
	for _, h := range cfg.Paper.Holdings {
		holdings = append(holdings, gateway.Holding{Symbol: h.Symbol, Position: h.Position, AverageCost: h.AverageCost})
	}
	paper := gateway.NewPaper(gateway.PaperConfig{
		Account:      cfg.Paper.Account,
		NextValidID:  cfg.Paper.NextOrderID,
		TickInterval: cfg.Paper.TickInterval,
		StepPercent:  cfg.Paper.StepPercent,
		DriftPercent: cfg.Paper.DriftPercent,
		FillLot:      cfg.Paper.FillLot,
		Seed:         cfg.Paper.Seed,
		Holdings:     holdings,
	}, gwLog)
	for _, e := range entries {
		paper.SeedPrice(e.Symbol, e.OpeningPrice)
	}
	paced := gateway.NewPaced(paper, cfg.SubscribeRatePerSec, cfg.SubscribeBurst, gwLog)

	bus := events.NewBus()
	mon := monitor.New()

	ctrl, err := session.New(session.Config{
		Capacity:           cfg.SubscriptionCapacity,
		MaxBatches:         cfg.MaxBatches,
		RotationInterval:   cfg.RotationInterval,
		DefaultThreshold:   cfg.DropThresholdPercent,
		ThresholdOverrides: overrides,
		CapitalPerPosition: cfg.CapitalPerPosition,
		BuyDiscountPercent: cfg.BuyDiscountPercent,
		SellMarkupPercent:  cfg.SellMarkupPercent,
		TriggerFields:      fields,
		StrictInvariants:   cfg.StrictInvariants,
	}, paced,
		session.WithBus(bus),
		session.WithMetrics(mon),
		session.WithLogger(logging.Component("session")),
	)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	sched, err := scheduler.New(scheduler.Config{
		Cancellation: cancelAt,
		MarketClose:  closeAt,
		Location:     cfg.Location(),
	}, ctrl.Tracker().SellLimits(), ctrl,
		scheduler.WithBus(bus),
		scheduler.WithLogger(logging.Component("scheduler")),
	)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	var journalDone <-chan struct{}
	if cfg.EnableJournal {
		database, err := db.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("journal db: %w", err)
		}
		defer database.Close()
		if err := db.ApplyMigrations(database); err != nil {
			return fmt.Errorf("journal migrations: %w", err)
		}
		jr, err := journal.New(ctx, database, ctrl.ID(), cfg.SubscriptionCapacity, cfg.DropThresholdPercent, logging.Component("journal"))
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		journalDone = jr.Start(ctx, bus)
	}

	spawn(func() { paced.Run(ctx) })
	spawn(func() { paper.Run(ctx, ctrl) })

	initial := make([]session.Admission, 0, len(entries))
	for _, e := range entries {
		initial = append(initial, session.Admission{Symbol: e.Symbol, OpeningPrice: e.OpeningPrice})
	}
	ctrl.Start(initial)
	spawn(func() { ctrl.Run(ctx) })

	if err := sched.Arm(ctx); err != nil {
		return fmt.Errorf("arm scheduler: %w", err)
	}

	follower := ingest.NewFollower(cfg.TickerFile, consumed, cfg.TickerPollInterval, logging.Component("ingest"))
	spawn(func() {
		follower.Run(ctx, func(ctx context.Context, e ingest.Entry) error {
			return ctrl.AdmitSymbol(ctx, e.Symbol, e.OpeningPrice)
		})
	})
	spawn(func() { mon.WatchBus(ctx, bus, 5*time.Second) })

	srv := api.NewServer(ctrl, bus, mon, api.SystemMeta{
		Venue:    "paper",
		Capacity: cfg.SubscriptionCapacity,
		Version:  version,
	}, cfg.JWTSecret, logging.Component("api"))
	spawn(func() { srv.Sweep(ctx, 5*time.Minute) })

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Str("session", ctrl.ID()).Msg("api listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		stop()
		log.Error().Err(err).Msg("api server stopped")
	case <-sched.Done():
		log.Info().Msg("end of day actions complete; serving until interrupted")
		select {
		case <-ctx.Done():
		case err := <-serveErr:
			stop()
			log.Error().Err(err).Msg("api server stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("api shutdown")
	}
	wg.Wait()
	if journalDone != nil {
		<-journalDone
	}
	st := ctrl.Status()
	log.Info().
		Int("admitted", st.Admitted).
		Int("live_buys", st.LiveBuys).
		Int("live_sell_limits", st.LiveSellLimits).
		Uint64("bus_dropped", bus.Dropped()).
		Msg("session closed")
	return nil
}
