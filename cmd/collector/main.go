package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleetwatch/collector"
)

func main() {
	app, err := collector.Bootstrap()
	if err != nil {
		log.Fatalf("failed to bootstrap collector: %v", err)
	}
	defer app.Close()

	server := &http.Server{
		Addr:           ":" + app.Config.ServerPort,
		Handler:        app.Router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go app.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		app.Log.WithField("port", app.Config.ServerPort).Info("collector listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-sigChan
	app.Log.Info("shutting down collector")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Log.WithField("error", err).Warn("server shutdown error")
	}
}
