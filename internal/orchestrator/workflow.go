package orchestrator

import (
	"sync"
	"time"
)

// Workflow is the single in-flight research request record, owned
// exclusively by the Orchestrator. External readers must copy via
// Snapshot rather than hold a reference into live state.
type Workflow struct {
	mu sync.Mutex

	Query     string
	TaskID    string
	StartTime time.Time

	SearchResults    []map[string]interface{}
	ExtractedContent []map[string]interface{}
	SynthesisReport  map[string]interface{}
	AgentStatus      map[string]string

	synthesisDispatched bool
	persistDispatched   bool
	searchRetried       bool
}

func newWorkflow(query, taskID string) *Workflow {
	return &Workflow{
		Query:           query,
		TaskID:          taskID,
		StartTime:       time.Now().UTC(),
		SynthesisReport: map[string]interface{}{},
		AgentStatus:     map[string]string{},
	}
}

// Snapshot is a read-only copy of workflow state for status endpoints.
type Snapshot struct {
	Query                 string
	TaskID                string
	StartTime             time.Time
	SearchResultsCount    int
	ExtractedContentCount int
	SynthesisComplete     bool
	AgentStatus           map[string]string
}

func (wf *Workflow) snapshot() Snapshot {
	wf.mu.Lock()
	defer wf.mu.Unlock()

	status := make(map[string]string, len(wf.AgentStatus))
	for k, v := range wf.AgentStatus {
		status[k] = v
	}

	return Snapshot{
		Query:                 wf.Query,
		TaskID:                wf.TaskID,
		StartTime:             wf.StartTime,
		SearchResultsCount:    len(wf.SearchResults),
		ExtractedContentCount: len(wf.ExtractedContent),
		SynthesisComplete:     len(wf.SynthesisReport) > 0,
		AgentStatus:           status,
	}
}
