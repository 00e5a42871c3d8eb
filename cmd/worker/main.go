// Command worker runs one of the six research-pipeline worker agents,
// selected by --agent-type or the AGENT_TYPE environment variable.
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

	"github.com/ashgrove-labs/synapse/internal/agent"
	"github.com/ashgrove-labs/synapse/internal/bus"
	"github.com/ashgrove-labs/synapse/internal/config"
	"github.com/ashgrove-labs/synapse/internal/toolclient"
	"github.com/ashgrove-labs/synapse/internal/workers"
)

type bindable interface {
	agent.Worker
	Bind(rt *agent.Runtime)
}

func buildWorker(agentType string) (bindable, error) {
	switch agentType {
	case "search":
		return workers.NewSearchWorker("search_agent"), nil
	case "extraction":
		return workers.NewExtractionWorker("extraction_agent"), nil
	case "fact_check":
		return workers.NewFactCheckWorker("fact_checker"), nil
	case "synthesis":
		return workers.NewSynthesisWorker("synthesis_agent"), nil
	case "file_save":
		return workers.NewFileSaveWorker("file_save_agent"), nil
	case "log_sink":
		return workers.NewLogSinkWorker("log_sink"), nil
	default:
		return nil, fmt.Errorf("unknown agent type %q", agentType)
	}
}

func main() {
	configFlag := flag.String("config", "", "path to worker.yaml")
	agentTypeFlag := flag.String("agent-type", "", "one of: search, extraction, fact_check, synthesis, file_save, log_sink")
	flag.Parse()

	agentType := *agentTypeFlag
	if agentType == "" {
		agentType = os.Getenv("AGENT_TYPE")
	}
	if agentType == "" {
		log.Fatal("worker: --agent-type or AGENT_TYPE must be set")
	}

	worker, err := buildWorker(agentType)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}

	cfg := config.Resolve("worker", configFlag)
	if cfg.Debug {
		log.Printf("worker[%s]: debug enabled", agentType)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewAMQPBus(cfg.BrokerURL)
	if err := b.Connect(ctx); err != nil {
		log.Fatalf("worker[%s]: connect to broker: %v", agentType, err)
	}

	tools := toolclient.New(map[string]string{
		"primary_tooling": cfg.PrimaryToolingURL,
		"filesystem":      cfg.FilesystemURL,
	})

	rt := agent.NewRuntime(worker, b, tools)
	worker.Bind(rt)

	if err := rt.Start(ctx); err != nil {
		log.Fatalf("worker[%s]: start: %v", agentType, err)
	}
	log.Printf("worker[%s]: started as %q, broker=%s", agentType, worker.AgentID(), cfg.BrokerURL)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("worker[%s]: received signal %s, shutting down", agentType, sig)
	case <-ctx.Done():
		log.Printf("worker[%s]: context cancelled, shutting down", agentType)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()

	if err := rt.Stop(stopCtx); err != nil {
		log.Printf("worker[%s]: stop error: %v", agentType, err)
	}
	if err := b.Disconnect(stopCtx); err != nil {
		log.Printf("worker[%s]: disconnect error: %v", agentType, err)
	}
	log.Printf("worker[%s]: shutdown complete", agentType)
}
