// Package orchestrator implements the research workflow's central state
// machine: it fans out search, extraction and synthesis tasks to worker
// agents and persists the final report, per C6.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashgrove-labs/synapse/internal/agent"
	"github.com/ashgrove-labs/synapse/internal/envelope"
	"github.com/ashgrove-labs/synapse/internal/logging"
)

const (
	searchAgentID     = "search_agent"
	extractionAgentID = "extraction_agent"
	synthesisAgentID  = "synthesis_agent"
	fileSaveAgentID   = "file_save_agent"

	maxExtractionFanout = 3
	synthesisThreshold  = 2
	searchRetryDelay    = 5 * time.Second
)

// Orchestrator coordinates one workflow at a time. A fresh StartResearch
// call replaces any prior workflow record.
type Orchestrator struct {
	id  string
	rt  *agent.Runtime
	log *logging.Logger

	mu sync.Mutex
	wf *Workflow
}

// New constructs an Orchestrator with the given agent id (conventionally
// "orchestrator").
func New(id string) *Orchestrator {
	return &Orchestrator{id: id, log: logging.New(id)}
}

func (o *Orchestrator) AgentID() string { return o.id }

// Bind attaches the orchestrator to its runtime once the runtime exists.
func (o *Orchestrator) Bind(rt *agent.Runtime) {
	o.rt = rt
}

// Status returns a snapshot of the current workflow, or the zero value
// if none has started.
func (o *Orchestrator) Status() (Snapshot, bool) {
	o.mu.Lock()
	wf := o.wf
	o.mu.Unlock()
	if wf == nil {
		return Snapshot{}, false
	}
	return wf.snapshot(), true
}

func (o *Orchestrator) currentWorkflow() *Workflow {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.wf
}

// StartResearch initializes a fresh workflow and dispatches the seed
// search task, per §4.6.
func (o *Orchestrator) StartResearch(ctx context.Context, query string) error {
	taskID := uuid.NewString()[:8]

	wf := newWorkflow(query, taskID)
	o.mu.Lock()
	o.wf = wf
	o.mu.Unlock()

	o.log.Info("starting research workflow %q (task %s)", query, taskID)

	if err := o.broadcastLog(ctx, "INFO", fmt.Sprintf("Research workflow started: %q", query)); err != nil {
		return err
	}

	return o.assignSearchTask(ctx, wf, query)
}

func (o *Orchestrator) assignSearchTask(ctx context.Context, wf *Workflow, query string) error {
	return o.dispatch(ctx, searchAgentID, "web_search", map[string]interface{}{
		"query":       query,
		"task_id":     wf.TaskID,
		"max_results": 5,
	}, 1)
}

func (o *Orchestrator) Handle(ctx context.Context, env *envelope.Envelope) error {
	switch env.MsgType {
	case envelope.StatusUpdate:
		var payload envelope.StatusUpdatePayload
		if err := env.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return o.handleStatusUpdate(ctx, env.SenderID, payload)

	case envelope.DataSubmit:
		var payload envelope.DataSubmitPayload
		if err := env.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return o.handleDataSubmission(ctx, env.SenderID, payload)

	default:
		return nil
	}
}

func (o *Orchestrator) handleStatusUpdate(ctx context.Context, senderID string, payload envelope.StatusUpdatePayload) error {
	wf := o.currentWorkflow()
	if wf == nil {
		return nil
	}

	wf.mu.Lock()
	wf.AgentStatus[senderID] = payload.Status
	wf.mu.Unlock()

	o.log.Info("status from %s: %s", senderID, payload.Status)

	if !strings.Contains(strings.ToLower(payload.Status), "failed") {
		return nil
	}

	if err := o.broadcastLog(ctx, "WARNING", fmt.Sprintf("Agent %s failed: %s", senderID, payload.Status)); err != nil {
		return err
	}

	if !strings.Contains(senderID, "search") {
		return nil
	}

	wf.mu.Lock()
	emptyResults := len(wf.SearchResults) == 0
	alreadyRetried := wf.searchRetried
	if emptyResults && !alreadyRetried {
		wf.searchRetried = true
	}
	wf.mu.Unlock()

	if !emptyResults || alreadyRetried {
		return nil
	}

	o.log.Info("retrying search task after failure")
	go o.retrySearchAfterDelay(wf)
	return nil
}

func (o *Orchestrator) retrySearchAfterDelay(wf *Workflow) {
	time.Sleep(searchRetryDelay)
	ctx := context.Background()
	if err := o.assignSearchTask(ctx, wf, wf.Query); err != nil {
		o.log.Error("search retry failed: %v", err)
	}
}

func (o *Orchestrator) handleDataSubmission(ctx context.Context, senderID string, payload envelope.DataSubmitPayload) error {
	wf := o.currentWorkflow()
	if wf == nil {
		return nil
	}

	o.log.Info("received %s from %s", payload.DataType, senderID)

	switch payload.DataType {
	case "search_results":
		return o.handleSearchResults(ctx, wf, payload)
	case "extracted_content":
		return o.handleExtractedContent(ctx, wf, payload)
	case "synthesis_report":
		return o.handleSynthesisReport(ctx, wf, payload)
	default:
		return nil
	}
}

func (o *Orchestrator) handleSearchResults(ctx context.Context, wf *Workflow, payload envelope.DataSubmitPayload) error {
	results, _ := payload.Data["results"].([]interface{})

	wf.mu.Lock()
	for _, r := range results {
		if m, ok := r.(map[string]interface{}); ok {
			wf.SearchResults = append(wf.SearchResults, m)
		}
	}
	wf.mu.Unlock()

	o.log.Info("received %d search results", len(results))

	fanout := results
	if len(fanout) > maxExtractionFanout {
		fanout = fanout[:maxExtractionFanout]
	}

	var wg sync.WaitGroup
	for i, r := range fanout {
		m, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		url, _ := m["url"].(string)
		if url == "" {
			continue
		}

		wg.Add(1)
		go func(idx int, url string) {
			defer wg.Done()
			if err := o.dispatch(ctx, extractionAgentID, "extract_content", map[string]interface{}{
				"url":                url,
				"task_id":            wf.TaskID,
				"source_description": fmt.Sprintf("source_%d", idx+1),
			}, 2); err != nil {
				o.log.Error("failed to assign extraction task for %s: %v", url, err)
			}
		}(i, url)
	}
	wg.Wait()

	return nil
}

func (o *Orchestrator) handleExtractedContent(ctx context.Context, wf *Workflow, payload envelope.DataSubmitPayload) error {
	wf.mu.Lock()
	wf.ExtractedContent = append(wf.ExtractedContent, payload.Data)
	count := len(wf.ExtractedContent)
	shouldDispatch := count >= synthesisThreshold && !wf.synthesisDispatched
	if shouldDispatch {
		wf.synthesisDispatched = true
	}
	wf.mu.Unlock()

	wordCount, _ := payload.Data["word_count"].(float64)
	o.log.Info("received extracted content (%.0f words)", wordCount)

	if !shouldDispatch {
		return nil
	}

	return o.assignSynthesisTask(ctx, wf)
}

func (o *Orchestrator) assignSynthesisTask(ctx context.Context, wf *Workflow) error {
	wf.mu.Lock()
	searchResults := append([]map[string]interface{}(nil), wf.SearchResults...)
	extracted := append([]map[string]interface{}(nil), wf.ExtractedContent...)
	wf.mu.Unlock()

	searchResultsAny := make([]interface{}, len(searchResults))
	for i, r := range searchResults {
		searchResultsAny[i] = r
	}
	extractedAny := make([]interface{}, len(extracted))
	for i, e := range extracted {
		extractedAny[i] = e
	}

	return o.dispatch(ctx, synthesisAgentID, "synthesize_research", map[string]interface{}{
		"query":             wf.Query,
		"search_results":    searchResultsAny,
		"extracted_content": extractedAny,
		"task_id":           wf.TaskID,
		"sources":           extractedAny,
	}, 1)
}

func (o *Orchestrator) handleSynthesisReport(ctx context.Context, wf *Workflow, payload envelope.DataSubmitPayload) error {
	wf.mu.Lock()
	wf.SynthesisReport = payload.Data
	alreadyPersisted := wf.persistDispatched
	if !alreadyPersisted {
		wf.persistDispatched = true
	}
	wf.mu.Unlock()

	wordCount, _ := payload.Data["word_count"].(float64)
	o.log.Info("received synthesis report (%.0f words)", wordCount)

	if alreadyPersisted {
		return nil
	}

	if err := o.assignFileSaveTask(ctx, wf, payload.Data); err != nil {
		return err
	}

	return o.broadcastWorkflowCompletion(ctx, wf)
}

func (o *Orchestrator) assignFileSaveTask(ctx context.Context, wf *Workflow, reportData map[string]interface{}) error {
	filename := fmt.Sprintf("research_report_%s.md", time.Now().UTC().Format("20060102_150405"))
	filePath := "output/reports/" + filename
	content, _ := reportData["report_content"].(string)

	err := o.dispatch(ctx, fileSaveAgentID, "save_file", map[string]interface{}{
		"file_path": filePath,
		"content":   content,
		"task_id":   wf.TaskID,
	}, 1)
	if err != nil {
		return err
	}

	o.log.Info("assigned file save task: %s", filePath)
	return nil
}

func (o *Orchestrator) broadcastWorkflowCompletion(ctx context.Context, wf *Workflow) error {
	duration := time.Since(wf.StartTime).Truncate(time.Second)

	wf.mu.Lock()
	sourceCount := len(wf.ExtractedContent)
	wf.mu.Unlock()

	wordCount, _ := wf.SynthesisReport["word_count"].(float64)

	message := fmt.Sprintf(
		"Research workflow completed successfully! Query: %q | Duration: %s | Sources: %d | Report words: %.0f",
		wf.Query, duration, sourceCount, wordCount)

	return o.broadcastLog(ctx, "INFO", message)
}

func (o *Orchestrator) dispatch(ctx context.Context, receiver, taskType string, taskData map[string]interface{}, priority int) error {
	env, err := o.rt.MakeEnvelope(receiver, false, envelope.TaskAssign, envelope.TaskAssignPayload{
		TaskType: taskType,
		TaskData: taskData,
		Priority: priority,
	})
	if err != nil {
		return err
	}
	return o.rt.Send(ctx, env)
}

func (o *Orchestrator) broadcastLog(ctx context.Context, level, message string) error {
	env, err := o.rt.MakeEnvelope("logs", true, envelope.LogBroadcast, envelope.LogBroadcastPayload{
		Level:     level,
		Message:   message,
		Component: o.id,
	})
	if err != nil {
		return err
	}
	return o.rt.Send(ctx, env)
}
