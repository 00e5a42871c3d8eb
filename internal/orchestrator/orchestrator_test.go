package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashgrove-labs/synapse/internal/agent"
	"github.com/ashgrove-labs/synapse/internal/bus"
	"github.com/ashgrove-labs/synapse/internal/envelope"
	"github.com/ashgrove-labs/synapse/internal/toolclient"
)

type recordingAgent struct {
	mu       sync.Mutex
	received []*envelope.Envelope
	ch       chan *envelope.Envelope
}

func newRecordingAgent(b *bus.MemoryBus, id string) *recordingAgent {
	r := &recordingAgent{ch: make(chan *envelope.Envelope, 64)}
	b.SubscribeAgent(id, func(ctx context.Context, env *envelope.Envelope) error {
		r.mu.Lock()
		r.received = append(r.received, env)
		r.mu.Unlock()
		r.ch <- env
		return nil
	})
	return r
}

func (r *recordingAgent) waitForTaskAssign(t *testing.T, taskType string, timeout time.Duration) envelope.TaskAssignPayload {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case env := <-r.ch:
			if env.MsgType != envelope.TaskAssign {
				continue
			}
			var payload envelope.TaskAssignPayload
			if err := env.UnmarshalPayload(&payload); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if payload.TaskType == taskType {
				return payload
			}
		case <-deadline:
			t.Fatalf("timed out waiting for task_type=%s", taskType)
		}
	}
}

func (r *recordingAgent) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

func setupOrchestrator(t *testing.T) (*Orchestrator, *agent.Runtime, *bus.MemoryBus) {
	t.Helper()
	b := bus.NewMemoryBus()
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	orch := New("orchestrator")
	rt := agent.NewRuntime(orch, b, toolclient.New(nil))
	orch.Bind(rt)
	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { rt.Stop(context.Background()) })
	return orch, rt, b
}

func submitDataSubmit(t *testing.T, b *bus.MemoryBus, sender, dataType string, data map[string]interface{}) {
	t.Helper()
	env, err := envelope.Build(sender, "orchestrator", false, envelope.DataSubmit, envelope.DataSubmitPayload{
		DataType: dataType,
		Data:     data,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := b.Publish(context.Background(), env); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestHappyPathDispatchesThroughSave(t *testing.T) {
	orch, _, b := setupOrchestrator(t)

	search := newRecordingAgent(b, "search_agent")
	extraction := newRecordingAgent(b, "extraction_agent")
	synthesis := newRecordingAgent(b, "synthesis_agent")
	fileSave := newRecordingAgent(b, "file_save_agent")

	if err := orch.StartResearch(context.Background(), "Q"); err != nil {
		t.Fatalf("StartResearch: %v", err)
	}
	search.waitForTaskAssign(t, "web_search", time.Second)

	submitDataSubmit(t, b, "search_agent", "search_results", map[string]interface{}{
		"results": []interface{}{
			map[string]interface{}{"url": "u1"},
			map[string]interface{}{"url": "u2"},
			map[string]interface{}{"url": "u3"},
		},
	})

	for i := 0; i < 3; i++ {
		extraction.waitForTaskAssign(t, "extract_content", time.Second)
	}

	submitDataSubmit(t, b, "extraction_agent", "extracted_content", map[string]interface{}{
		"url": "u1", "word_count": 100.0, "extraction_successful": true,
	})
	submitDataSubmit(t, b, "extraction_agent", "extracted_content", map[string]interface{}{
		"url": "u2", "word_count": 100.0, "extraction_successful": true,
	})

	synthesis.waitForTaskAssign(t, "synthesize_research", time.Second)

	submitDataSubmit(t, b, "synthesis_agent", "synthesis_report", map[string]interface{}{
		"report_content": "R", "word_count": 1.0,
	})

	saveTask := fileSave.waitForTaskAssign(t, "save_file", time.Second)
	path, _ := saveTask.TaskData["file_path"].(string)
	if !strings.HasPrefix(path, "output/reports/research_report_") {
		t.Fatalf("unexpected file_path: %s", path)
	}
	content, _ := saveTask.TaskData["content"].(string)
	if content != "R" {
		t.Fatalf("expected content 'R', got %q", content)
	}

	// A third extraction arriving late must not re-trigger synthesis.
	submitDataSubmit(t, b, "extraction_agent", "extracted_content", map[string]interface{}{
		"url": "u3", "word_count": 100.0, "extraction_successful": true,
	})
	time.Sleep(50 * time.Millisecond)
	if got := synthesis.count(); got != 1 {
		t.Fatalf("expected exactly 1 synthesis dispatch, got %d", got)
	}
}

func TestSearchFailureRetriesOnce(t *testing.T) {
	orch, rt, b := setupOrchestrator(t)
	search := newRecordingAgent(b, "search_agent")

	if err := orch.StartResearch(context.Background(), "Q"); err != nil {
		t.Fatalf("StartResearch: %v", err)
	}
	search.waitForTaskAssign(t, "web_search", time.Second)

	failEnv, _ := rt.MakeEnvelope("orchestrator", false, envelope.StatusUpdate, envelope.StatusUpdatePayload{
		Status: "search_failed: boom",
	})
	failEnv.SenderID = "search_agent"
	start := time.Now()
	if err := b.Publish(context.Background(), failEnv); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	search.waitForTaskAssign(t, "web_search", 8*time.Second)
	elapsed := time.Since(start)
	if elapsed < searchRetryDelay {
		t.Fatalf("retry fired too early: %v", elapsed)
	}

	if got := search.count(); got != 2 {
		t.Fatalf("expected exactly 2 search dispatches, got %d", got)
	}
}

func TestExtractionShortfallNeverSynthesizes(t *testing.T) {
	orch, _, b := setupOrchestrator(t)
	synthesis := newRecordingAgent(b, "synthesis_agent")

	if err := orch.StartResearch(context.Background(), "Q"); err != nil {
		t.Fatalf("StartResearch: %v", err)
	}

	submitDataSubmit(t, b, "extraction_agent", "extracted_content", map[string]interface{}{
		"url": "u1", "word_count": 50.0, "extraction_successful": true,
	})

	time.Sleep(100 * time.Millisecond)
	if got := synthesis.count(); got != 0 {
		t.Fatalf("expected no synthesis dispatch, got %d", got)
	}
}
