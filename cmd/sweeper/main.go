// Command sweeper deletes expired sessions and their ledger entries.
//
// Run with -once from cron, or without it as a long-running job that
// sweeps on a fixed interval until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notathome.app/internal/obs"
	"notathome.app/internal/store/pg"
	"notathome.app/internal/sweep"
)

func main() {
	log.SetFlags(0)
	var (
		dsn      = flag.String("dsn", os.Getenv("NAH_PG_DSN"), "PostgreSQL DSN")
		interval = flag.Duration("interval", sweep.DefaultInterval, "time between sweeps")
		once     = flag.Bool("once", false, "run a single sweep and exit")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or NAH_PG_DSN")
	}

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	defer store.Close()

	sweeper := sweep.New(store,
		sweep.WithInterval(*interval),
		sweep.WithLogf(func(format string, args ...any) {
			obs.LogLine("info", fmt.Sprintf(format, args...), nil)
		}),
	)

	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := sweeper.SweepOnce(ctx)
		if err != nil {
			log.Fatalf("sweep: %v", err)
		}
		obs.LogLine("info", "sweep complete", map[string]any{"removed": n})
		return
	}

	stopSweeper := sweeper.Start()
	obs.LogLine("info", "sweeper running", map[string]any{"interval": interval.String()})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	stopSweeper()
	obs.LogLine("info", "stopped", nil)
}
