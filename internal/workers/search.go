package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ashgrove-labs/synapse/internal/agent"
	"github.com/ashgrove-labs/synapse/internal/envelope"
	"github.com/ashgrove-labs/synapse/internal/logging"
	"github.com/ashgrove-labs/synapse/internal/toolclient"
)

const defaultMaxResults = 5

// SearchWorker performs web_search tasks against the primary_tooling
// server, per C5.4.5.1.
type SearchWorker struct {
	base
	id  string
	log *logging.Logger
}

// NewSearchWorker constructs a SearchWorker with the given agent id
// (conventionally "search_agent").
func NewSearchWorker(id string) *SearchWorker {
	return &SearchWorker{id: id, log: logging.New(id)}
}

func (w *SearchWorker) AgentID() string { return w.id }

// Bind attaches the worker to its runtime once the runtime exists, since
// the runtime itself depends on the worker at construction.
func (w *SearchWorker) Bind(rt *agent.Runtime) {
	w.base = newBase(rt)
}

func (w *SearchWorker) Handle(ctx context.Context, env *envelope.Envelope) error {
	if env.MsgType != envelope.TaskAssign {
		return nil
	}

	var payload envelope.TaskAssignPayload
	if err := env.UnmarshalPayload(&payload); err != nil {
		return err
	}
	if payload.TaskType != "web_search" {
		return nil
	}

	return w.performSearch(ctx, payload.TaskData)
}

func (w *SearchWorker) performSearch(ctx context.Context, taskData map[string]interface{}) error {
	query, _ := taskData["query"].(string)
	taskID, _ := taskData["task_id"].(string)
	if taskID == "" {
		taskID = "unknown"
	}
	maxResults := defaultMaxResults
	if mr, ok := taskData["max_results"].(float64); ok && mr > 0 {
		maxResults = int(mr)
	}

	if query == "" {
		w.log.Error("no query provided for search task %s", taskID)
		return w.sendErrorStatus(ctx, "search_failed", "no query provided", taskID)
	}

	if err := w.sendStatus(ctx, "searching", progressPtr(10.0), taskID); err != nil {
		return err
	}

	raw, err := w.rt.Tools().Call(ctx, "primary_tooling", "search_web", map[string]interface{}{"query": query}, toolclient.CallOptions{})
	if err != nil {
		errMsg := fmt.Sprintf("web search failed for %q: %v", query, err)
		w.log.Error("%s", errMsg)
		if serr := w.sendErrorStatus(ctx, "search_failed", errMsg, taskID); serr != nil {
			return serr
		}
		return w.sendLog(ctx, "ERROR", errMsg)
	}

	var result struct {
		Results        []map[string]interface{} `json:"results"`
		QueryProcessed string                    `json:"query_processed"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}

	results := result.Results
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}

	if err := w.sendStatus(ctx, "search_complete", progressPtr(100.0), taskID); err != nil {
		return err
	}

	resultsAny := make([]interface{}, len(results))
	for i, r := range results {
		resultsAny[i] = r
	}

	if err := w.sendData(ctx, "search_results", map[string]interface{}{
		"query":           query,
		"query_processed": result.QueryProcessed,
		"results":         resultsAny,
		"result_count":    len(results),
	}, "web_search", taskID); err != nil {
		return err
	}

	return w.sendLog(ctx, "INFO", fmt.Sprintf("web search completed: %q -> %d results", query, len(results)))
}
