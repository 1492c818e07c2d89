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

	"golang.org/x/sync/errgroup"

	"github.com/edvin/stackd/internal/config"
	"github.com/edvin/stackd/internal/logging"
	"github.com/edvin/stackd/internal/proxy"
)

func main() {
	file := flag.String("f", "stack.yaml", "Path to stack definition YAML file")
	flag.Parse()

	stack, err := config.Load(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if stack.Proxy == nil {
		fmt.Fprintf(os.Stderr, "Error: %s has no proxy section\n", *file)
		os.Exit(1)
	}

	logger := logging.NewLogger(stack.LogLevel, stack.Topology.Name)

	handler, err := proxy.NewHandler(logger, stack.Proxy)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build proxy handler")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prober := proxy.NewProber(logger, handler, stack.Proxy.ProbeInterval, stack.Proxy.ProbeTimeout)

	server := &http.Server{
		Addr:              stack.Proxy.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	adminServer := &http.Server{
		Addr:              stack.Proxy.AdminListen,
		Handler:           proxy.NewAdminRouter(logger, handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("Proxy listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("proxy server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info().Str("addr", adminServer.Addr).Msg("Admin listening")
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return prober.Run(ctx)
	})

	g.Go(func() error {
		handler.RunJanitor(ctx, time.Minute, 10*time.Minute)
		return nil
	})

	// SIGHUP reloads the stack file and swaps the routing generation in
	// place. In-flight requests finish on the old generation.
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				reloaded, err := config.Load(*file)
				if err != nil {
					logger.Error().Err(err).Msg("Reload failed, keeping current config")
					continue
				}
				if reloaded.Proxy == nil {
					logger.Error().Msg("Reload failed, proxy section removed, keeping current config")
					continue
				}
				if err := handler.Update(reloaded.Proxy); err != nil {
					logger.Error().Err(err).Msg("Reload failed, keeping current config")
					continue
				}
				logger.Info().Msg("Config reloaded")
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Proxy shutdown error")
		}
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Admin shutdown error")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("Proxy exited with error")
	}
	logger.Info().Msg("Proxy stopped")
}
