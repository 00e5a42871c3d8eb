// Command orchestrator runs the research workflow's central coordinator:
// it dispatches the seed search task, fans out extraction work, triggers
// synthesis, and persists the final report.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashgrove-labs/synapse/internal/agent"
	"github.com/ashgrove-labs/synapse/internal/bus"
	"github.com/ashgrove-labs/synapse/internal/config"
	"github.com/ashgrove-labs/synapse/internal/orchestrator"
	"github.com/ashgrove-labs/synapse/internal/toolclient"
)

func main() {
	configFlag := flag.String("config", "", "path to orchestrator.yaml")
	flag.Parse()

	cfg := config.Resolve("orchestrator", configFlag)
	if cfg.Debug {
		log.Printf("orchestrator: debug enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewAMQPBus(cfg.BrokerURL)
	if err := b.Connect(ctx); err != nil {
		log.Fatalf("orchestrator: connect to broker: %v", err)
	}

	tools := toolclient.New(map[string]string{
		"primary_tooling": cfg.PrimaryToolingURL,
		"filesystem":      cfg.FilesystemURL,
	})

	orch := orchestrator.New("orchestrator")
	rt := agent.NewRuntime(orch, b, tools)
	orch.Bind(rt)

	if err := rt.Start(ctx); err != nil {
		log.Fatalf("orchestrator: start: %v", err)
	}
	log.Printf("orchestrator: started, broker=%s", cfg.BrokerURL)

	if cfg.SeedQuery != "" {
		if err := orch.StartResearch(ctx, cfg.SeedQuery); err != nil {
			log.Printf("orchestrator: seed research failed: %v", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("orchestrator: received signal %s, shutting down", sig)
	case <-ctx.Done():
		log.Printf("orchestrator: context cancelled, shutting down")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()

	if err := rt.Stop(stopCtx); err != nil {
		log.Printf("orchestrator: stop error: %v", err)
	}
	if err := b.Disconnect(stopCtx); err != nil {
		log.Printf("orchestrator: disconnect error: %v", err)
	}
	log.Printf("orchestrator: shutdown complete")
}
