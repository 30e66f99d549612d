package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/go-echoserver/config"
	"github.com/cyberinferno/go-echoserver/logger"
	"github.com/cyberinferno/go-echoserver/tcpserver"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "echoserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log := logger.NewConsoleLogger(cfg.Name, level)
	defer log.Close()

	server := tcpserver.New(cfg, log)
	if err := server.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-server.Done():
			if err := server.Err(); err != nil {
				return fmt.Errorf("engine stopped: %w", err)
			}
			return errors.New("engine stopped unexpectedly")
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		if !server.Running() {
			return nil
		}

		log.Info("shutting down")
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Stop(stopCtx); err != nil && !errors.Is(err, tcpserver.ErrNotRunning) {
			return err
		}
		return nil
	})

	err = g.Wait()

	snap := server.Stats.Snapshot()
	log.Info("session summary",
		logger.Field{Key: "accepted", Value: snap.Accepted},
		logger.Field{Key: "rejected", Value: snap.Rejected},
		logger.Field{Key: "echoed", Value: snap.Echoed},
		logger.Field{Key: "echoed_bytes", Value: snap.EchoedBytes},
		logger.Field{Key: "read_errors", Value: snap.ReadErrors},
		logger.Field{Key: "write_errors", Value: snap.WriteErrors},
		logger.Field{Key: "closed", Value: snap.Closed},
		logger.Field{Key: "recent", Value: len(server.Stats.Recent())},
	)

	return err
}
