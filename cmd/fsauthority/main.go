// Command fsauthority runs the filesystem authority's HTTP tool server:
// path validation and write-with-parents against a fixed allow-list.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashgrove-labs/synapse/internal/config"
	"github.com/ashgrove-labs/synapse/internal/fsauthority"
)

func main() {
	configFlag := flag.String("config", "", "path to fsauthority.yaml")
	addrFlag := flag.String("addr", ":8002", "HTTP listen address")
	flag.Parse()

	cfg := config.Resolve("fsauthority", configFlag)
	if cfg.Debug {
		log.Printf("fsauthority: debug enabled")
	}

	authority, err := fsauthority.New(cfg.AllowListRoots)
	if err != nil {
		log.Fatalf("fsauthority: %v", err)
	}
	log.Printf("fsauthority: allow-list roots: %v", authority.Roots())

	server := fsauthority.NewServer(authority)
	httpServer := &http.Server{
		Addr:         *addrFlag,
		Handler:      server.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("fsauthority: listening on %s", *addrFlag)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("fsauthority: serve: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("fsauthority: received signal %s, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("fsauthority: shutdown error: %v", err)
	}
}
