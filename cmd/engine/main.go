// Package main is the entry point for the trading engine: it loads
// configuration, wires the market registry, calendar, universe selection,
// brokerage model, transaction handler, and dashboard together, then runs
// the engine's periodic selection loop until signaled to stop.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/scranton/coretrader/internal/brokerage"
	"github.com/scranton/coretrader/internal/calendar"
	"github.com/scranton/coretrader/internal/clock"
	"github.com/scranton/coretrader/internal/config"
	"github.com/scranton/coretrader/internal/dashboard"
	"github.com/scranton/coretrader/internal/execution"
	"github.com/scranton/coretrader/internal/feed"
	"github.com/scranton/coretrader/internal/market"
	"github.com/scranton/coretrader/internal/universe"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}

	logger := log.New(os.Stdout, "[ENGINE] ", log.LstdFlags|log.Lshortfile)
	logger.Printf("starting trading engine in %s mode", cfg.Environment.Mode)

	calDB, err := calendar.LoadDatabase(cfg.Market.HoursDatabasePath)
	if err != nil {
		logger.Printf("warning: could not load market-hours database: %v (calendar gating disabled)", err)
	}

	isRegularSession := func() bool {
		if calDB == nil {
			return true
		}
		entry, ok := calDB.Lookup("Equity", cfg.Market.DefaultMarket, "[*]")
		if !ok {
			return true
		}
		return entry.Calendar.IsOpen(time.Now().In(entry.Calendar.Location()), false)
	}

	model := buildBrokerageModel(cfg.Brokerage.Model, isRegularSession)

	symbols, err := resolveUniverseSymbols(cfg.Universe.Symbols, cfg.Market.DefaultMarket)
	if err != nil {
		logger.Printf("failed to resolve universe symbols: %v", err)
		return 1
	}

	minTime, err := cfg.MinimumTimeInUniverseDuration()
	if err != nil {
		logger.Printf("failed to parse universe settings: %v", err)
		return 1
	}

	uni := universe.New(universe.Settings{MinimumTimeInUniverse: minTime}, staticSelector(symbols), nil)

	gateway := newPaperGateway(logger)
	portfolio := newPaperPortfolio()

	cashSyncLocal, err := cfg.CashSyncLocalDuration()
	if err != nil {
		logger.Printf("failed to parse execution settings: %v", err)
		return 1
	}

	handler := execution.New(execution.Config{
		Portfolio:      portfolio,
		Gateway:        gateway,
		BrokerageModel: model,
		Lookup:         securityLookup,
		TimeProvider:   clock.RealTimeProvider{},
		Logger:         logger,
		QueueDepth:     cfg.Execution.QueueDepth,
		CashSyncLocal:  cashSyncLocal,
	})
	gateway.bindHandler(handler)
	handler.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eg, egCtx := errgroup.WithContext(ctx)

	selectionInterval, err := cfg.SelectionIntervalDuration()
	if err != nil {
		logger.Printf("failed to parse universe selection interval: %v", err)
		return 1
	}
	eg.Go(func() error {
		return runSelectionLoop(egCtx, uni, selectionInterval, logger)
	})

	var dashServer *dashboard.Server
	if cfg.Dashboard.Enabled {
		dashLogger := logrus.New()
		if lvl, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
			dashLogger.SetLevel(lvl)
		}
		dashServer = dashboard.NewServer(dashboard.Config{
			Port:      cfg.Dashboard.Port,
			AuthToken: cfg.Dashboard.AuthToken,
		}, handler, uni, dashLogger)

		eg.Go(func() error {
			if err := dashServer.Start(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		logger.Printf("dashboard listening on :%d", cfg.Dashboard.Port)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("shutdown signal received, stopping engine...")
		if dashServer != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = dashServer.Shutdown(shutdownCtx)
		}
		handler.Exit()
		cancel()
	}()

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("engine stopped with error: %v", err)
		return 1
	}

	logger.Println("engine stopped successfully")
	return 0
}

// runSelectionLoop paces universe re-selection with a feed.RateLimit
// heartbeat source, exercising the same enumerator-combinator pipeline the
// live market-data path uses to gate its own cadence.
func runSelectionLoop(ctx context.Context, uni *universe.Universe, interval time.Duration, logger *log.Logger) error {
	heartbeat := feed.SourceFunc(func() (feed.BaseData, bool, error) { return &feed.AuxiliaryData{}, true, nil })
	paced := feed.NewRateLimit(heartbeat, clock.RealTimeProvider{}, interval)

	ticker := time.NewTicker(interval / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			beat, _, err := paced.Advance()
			if err != nil {
				logger.Printf("selection heartbeat error: %v", err)
				continue
			}
			if beat == nil {
				continue
			}
			diff := uni.Select(time.Now().UTC(), nil)
			if len(diff.Added) > 0 || len(diff.Removed) > 0 {
				logger.Printf("universe diff: +%d -%d", len(diff.Added), len(diff.Removed))
			}
		}
	}
}

// staticSelector always selects the same fixed symbol set; dynamic
// selection (volume/volatility driven) is left as the user strategy
// collaborator's responsibility per spec §4.E.
func staticSelector(symbols []market.Symbol) universe.SelectorFunc {
	return func(time.Time, interface{}) universe.SelectionResult {
		return universe.NewSelection(symbols)
	}
}

func resolveUniverseSymbols(tickers []string, marketName string) ([]market.Symbol, error) {
	out := make([]market.Symbol, 0, len(tickers))
	for _, ticker := range tickers {
		id, err := market.GenerateEquity(time.Now(), strings.ToUpper(ticker), marketName)
		if err != nil {
			return nil, err
		}
		out = append(out, market.NewSymbol(id, strings.ToUpper(ticker)))
	}
	return out, nil
}

// securityLookup is the paper-mode SecurityLookup: every equity trades in
// USD with no lot-size constraint. A live deployment would resolve this
// against the brokerage's instrument metadata instead.
func securityLookup(sym market.Symbol) (brokerage.Security, int64) {
	return brokerage.Security{
		Symbol:       sym,
		SecurityType: market.SecurityEquity,
		Currency:     "USD",
	}, 1
}

func buildBrokerageModel(name string, isRegularSession func() bool) brokerage.BrokerageModel {
	switch strings.ToLower(name) {
	case "fxcm":
		return brokerage.NewFXCMBrokerageModel()
	case "oanda":
		return brokerage.NewOandaBrokerageModel()
	case "tradier":
		return brokerage.NewTradierBrokerageModel(isRegularSession)
	default:
		return brokerage.NewDefaultBrokerageModel()
	}
}
