package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gin-gonic/gin"
	"github.com/helinwang/matchdex/pkg/api"
	"github.com/helinwang/matchdex/pkg/config"
	"github.com/helinwang/matchdex/pkg/db"
	"github.com/helinwang/matchdex/pkg/dex"
	"github.com/helinwang/matchdex/pkg/journal"
	"github.com/helinwang/matchdex/pkg/ledger"
	"github.com/helinwang/matchdex/pkg/logging"
	"github.com/helinwang/matchdex/pkg/stream"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

type closer func() error

func runNode(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logging.Install(logger)

	genesis, err := ledger.LoadGenesis(cfg.Engine.Genesis)
	if err != nil {
		return err
	}

	store, err := db.Open(cfg.Storage.Dir)
	if err != nil {
		return err
	}

	closers := []closer{store.Close}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("error closing", "err", err)
			}
		}
	}()

	bank, err := openBank(genesis, store, cfg.Engine.AddressValue())
	if err != nil {
		return err
	}

	sinks := dex.FanOut{dex.LogSink{}}
	var events api.EventStore
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		closers = append(closers, j.Close)
		sinks = append(sinks, j)
		events = j
	}

	if len(cfg.Kafka.Brokers) > 0 {
		p := stream.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Timeout)
		closers = append(closers, p.Close)
		sinks = append(sinks, p)
	}

	e, err := dex.NewEngine(store, bank, dex.Config{
		Address:    cfg.Engine.AddressValue(),
		Owner:      cfg.Engine.OwnerValue(),
		Backend:    cfg.Engine.BackendValue(),
		AdminToken: cfg.Engine.AdminTokenValue(),
		FeeRateBP:  cfg.Engine.FeeRateBP,
	},
		dex.WithAuthorizer(dex.EthSigner{}),
		dex.WithNative(bank.Native()),
		dex.WithTokenMetadata(bank),
		dex.WithAdminRegistry(bank),
		dex.WithEventSink(sinks),
	)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    cfg.HTTP.Listen,
		Handler: api.NewServer(logger, e, events).Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", zap.String("addr", srv.Addr), zap.Stringer("engine", e.Address()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error serving: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

var errUnseededLedger = errors.New("state database holds engine state but no ledger balances")

// openBank builds the bank from genesis and attaches it to store. The
// balances persisted in store win over the genesis ones. A store that
// carries engine state but no balances is refused.
func openBank(genesis *ledger.Genesis, store *db.Badger, custody common.Address) (*ledger.Bank, error) {
	bank, err := genesis.Bank(custody)
	if err != nil {
		return nil, err
	}

	seeded, err := ledger.Seeded(store)
	if err != nil {
		return nil, err
	}

	if !seeded && dex.NewState(store).Initialized() {
		return nil, errUnseededLedger
	}

	err = bank.Persist(store)
	if err != nil {
		return nil, err
	}
	return bank, nil
}

func main() {
	app := cli.NewApp()
	app.Name = "matchdex node"
	app.Usage = "run the order matching engine and its HTTP API"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to the YAML config file, MATCHDEX_* environment variables override it",
		},
	}
	app.Action = runNode

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "node failed with error: %v\n", err)
		os.Exit(1)
	}
}
