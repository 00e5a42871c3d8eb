package workers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashgrove-labs/synapse/internal/agent"
	"github.com/ashgrove-labs/synapse/internal/envelope"
)

func TestExtractionWorkerStreamsProgressThenData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, pct := range []int{20, 60, 100} {
			fmt.Fprintf(w, "event: progress\ndata: {\"message\":\"working\",\"percentage\":%d,\"phase\":\"body\"}\n\n", pct)
			flusher.Flush()
		}
		fmt.Fprint(w, "event: result\ndata: {\"url\":\"http://x\",\"title\":\"X\",\"content\":\"hello world\",\"word_count\":2}\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	b, tools := newTestRuntime(t, "extraction_agent", map[string]string{"primary_tooling": server.URL})
	ch := drainOrchestrator(t, b)

	worker := NewExtractionWorker("extraction_agent")
	rt := agent.NewRuntime(worker, b, tools)
	worker.Bind(rt)
	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer rt.Stop(context.Background())

	task, _ := rt.MakeEnvelope("extraction_agent", false, envelope.TaskAssign, envelope.TaskAssignPayload{
		TaskType: "extract_content",
		TaskData: map[string]interface{}{"url": "http://x", "task_id": "t1", "source_description": "seed"},
		Priority: 1,
	})
	task.SenderID = "orchestrator"
	if err := b.Publish(context.Background(), task); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	payload := waitForDataSubmit(t, ch, "extracted_content")
	if ok, _ := payload.Data["extraction_successful"].(bool); !ok {
		t.Fatalf("expected extraction_successful=true, got %v", payload.Data["extraction_successful"])
	}
	if wc, _ := payload.Data["word_count"].(float64); wc != 2 {
		t.Fatalf("expected word_count=2, got %v", payload.Data["word_count"])
	}
}

func TestExtractionWorkerMissingURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("tool should not be called without a URL")
	}))
	defer server.Close()

	b, tools := newTestRuntime(t, "extraction_agent", map[string]string{"primary_tooling": server.URL})
	ch := drainOrchestrator(t, b)

	worker := NewExtractionWorker("extraction_agent")
	rt := agent.NewRuntime(worker, b, tools)
	worker.Bind(rt)
	rt.Start(context.Background())
	defer rt.Stop(context.Background())

	task, _ := rt.MakeEnvelope("extraction_agent", false, envelope.TaskAssign, envelope.TaskAssignPayload{
		TaskType: "extract_content",
		TaskData: map[string]interface{}{"task_id": "t1"},
		Priority: 1,
	})
	task.SenderID = "orchestrator"
	b.Publish(context.Background(), task)

	for {
		env := <-ch
		if env.MsgType != envelope.StatusUpdate {
			continue
		}
		var payload envelope.StatusUpdatePayload
		env.UnmarshalPayload(&payload)
		if payload.Status != "" {
			return
		}
	}
}
