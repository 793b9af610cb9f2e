package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authsync "github.com/zhangweimingit/AuthSyncServer"
	"github.com/zhangweimingit/AuthSyncServer/mysqlstore"
)

func main() {
	var (
		configPath = flag.String("config", "authsyncd.json", "Path to the JSON configuration file")
		listen     = flag.String("listen", "", "Override the configured listen address")
	)
	flag.Parse()

	cfg, err := authsync.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := cfg.ServerOptions()
	opts = append(opts, authsync.WithServerLogger(logger))

	var store *mysqlstore.Store
	if cfg.DBDSN != "" {
		store, err = mysqlstore.Open(cfg.DBDSN)
		if err != nil {
			logger.Error("failed to open record store", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		opts = append(opts, authsync.WithRecordStore(store))
	}

	listener, err := authsync.ListenTCP(cfg.Listen)
	if err != nil {
		logger.Error("failed to listen", "addr", cfg.Listen, "error", err)
		os.Exit(1)
	}
	opts = append(opts, authsync.WithServerListener(listener))

	server := authsync.NewServer(opts...)

	var restSrv *http.Server
	if cfg.RESTListen != "" {
		restSrv = &http.Server{
			Addr:    cfg.RESTListen,
			Handler: authsync.NewRESTHandler(server),
		}
		go func() {
			logger.Info("introspection api listening", "addr", cfg.RESTListen)
			if err := restSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("introspection api failed", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if restSrv != nil {
		restSrv.Shutdown(ctx)
	}
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
		os.Exit(1)
	}
}
