package workers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashgrove-labs/synapse/internal/agent"
	"github.com/ashgrove-labs/synapse/internal/envelope"
)

func TestFileSaveWorkerHappyPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/tools/validate_path":
			json.NewEncoder(w).Encode(map[string]interface{}{"is_allowed": true})
		case "/tools/save_file":
			json.NewEncoder(w).Encode(map[string]interface{}{"bytes_written": 11})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	b, tools := newTestRuntime(t, "file_save_agent", map[string]string{"filesystem": server.URL})
	ch := drainOrchestrator(t, b)

	worker := NewFileSaveWorker("file_save_agent")
	rt := agent.NewRuntime(worker, b, tools)
	worker.Bind(rt)
	rt.Start(context.Background())
	defer rt.Stop(context.Background())

	task, _ := rt.MakeEnvelope("file_save_agent", false, envelope.TaskAssign, envelope.TaskAssignPayload{
		TaskType: "save_file",
		TaskData: map[string]interface{}{
			"task_id":   "t1",
			"file_path": "output/reports/r.md",
			"content":   "hello world",
		},
		Priority: 1,
	})
	task.SenderID = "orchestrator"
	b.Publish(context.Background(), task)

	payload := waitForDataSubmit(t, ch, "file_save_result")
	if ok, _ := payload.Data["save_successful"].(bool); !ok {
		t.Fatalf("expected save_successful=true")
	}
	if bw, _ := payload.Data["bytes_written"].(float64); bw != 11 {
		t.Fatalf("expected bytes_written=11, got %v", bw)
	}
}

func TestFileSaveWorkerRejectsDisallowedPath(t *testing.T) {
	saveCalled := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/tools/validate_path":
			json.NewEncoder(w).Encode(map[string]interface{}{"is_allowed": false, "reason": "outside allow-list"})
		case "/tools/save_file":
			saveCalled = true
			json.NewEncoder(w).Encode(map[string]interface{}{"bytes_written": 0})
		}
	}))
	defer server.Close()

	b, tools := newTestRuntime(t, "file_save_agent", map[string]string{"filesystem": server.URL})
	ch := drainOrchestrator(t, b)

	worker := NewFileSaveWorker("file_save_agent")
	rt := agent.NewRuntime(worker, b, tools)
	worker.Bind(rt)
	rt.Start(context.Background())
	defer rt.Stop(context.Background())

	task, _ := rt.MakeEnvelope("file_save_agent", false, envelope.TaskAssign, envelope.TaskAssignPayload{
		TaskType: "save_file",
		TaskData: map[string]interface{}{
			"task_id":   "t1",
			"file_path": "/etc/passwd",
			"content":   "x",
		},
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
		if len(payload.Status) >= len("file_save_failed") && payload.Status[:len("file_save_failed")] == "file_save_failed" {
			break
		}
	}

	if saveCalled {
		t.Fatal("save_file must not be called for a disallowed path")
	}
}
