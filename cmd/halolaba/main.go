package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/halolaba/halolaba-client/pkg/client"
	"github.com/halolaba/halolaba-client/pkg/config"
	"github.com/halolaba/halolaba-client/pkg/keeper"
	"github.com/halolaba/halolaba-client/pkg/logger"
	"github.com/halolaba/halolaba-client/pkg/netmon"
	"github.com/halolaba/halolaba-client/pkg/notifier"
	"github.com/halolaba/halolaba-client/pkg/remote"
	"github.com/halolaba/halolaba-client/pkg/services"
	"github.com/halolaba/halolaba-client/pkg/syncer"
	"github.com/halolaba/halolaba-client/pkg/syncinfo"
	"github.com/halolaba/halolaba-client/pkg/validate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	opt, err := config.Load(os.Getenv("HALOLABA_CONFIG"))
	if err != nil {
		return err
	}
	log := logger.New(os.Stderr, opt.LogLevel, opt.LogFormat)

	k, err := keeper.New(opt.DatabasePath)
	if err != nil {
		return err
	}
	defer k.Close()

	info, err := syncinfo.NewManager(opt.SyncInfoPath)
	if err != nil {
		return err
	}

	store := remote.NewClient(opt.ServerURL)
	engine := syncer.New(k, store, info, log, opt.SyncMaxAttempts,
		syncer.DefaultEssential(opt.RecentTransactions))

	valid, err := validate.New()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Regained connectivity triggers a drain of the offline queue.
	mon := netmon.New(store, opt.ProbeInterval(), func(ctx context.Context) {
		if err := engine.Drain(ctx); err != nil {
			log.WithError(err).Error("drain after reconnect failed")
		}
	}, log)
	mon.Start(ctx)
	defer mon.Stop()

	// The initial probe only seeds the flag; replay anything queued from
	// a previous offline session before the command runs.
	if mon.Online() {
		if err := engine.Drain(ctx); err != nil {
			log.WithError(err).Warn("startup sync failed")
		}
	}

	svc := services.NewService(k, store, engine, mon, valid, log, opt)

	checks := notifier.New(svc, opt.NotifyInterval(), log)
	checks.Start(ctx)
	defer checks.Stop()

	cli := client.NewCLI(svc, log)
	defer cli.Close()

	return cli.RootCmd().ExecuteContext(ctx)
}
