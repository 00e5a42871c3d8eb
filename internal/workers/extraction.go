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

// ExtractionWorker pulls raw text content from a URL via a streamed
// browse_and_extract tool call, forwarding progress as it arrives, per
// C5.4.5.2.
type ExtractionWorker struct {
	base
	id  string
	log *logging.Logger
}

func NewExtractionWorker(id string) *ExtractionWorker {
	return &ExtractionWorker{id: id, log: logging.New(id)}
}

func (w *ExtractionWorker) AgentID() string { return w.id }

func (w *ExtractionWorker) Bind(rt *agent.Runtime) {
	w.base = newBase(rt)
}

func (w *ExtractionWorker) Handle(ctx context.Context, env *envelope.Envelope) error {
	if env.MsgType != envelope.TaskAssign {
		return nil
	}

	var payload envelope.TaskAssignPayload
	if err := env.UnmarshalPayload(&payload); err != nil {
		return err
	}
	if payload.TaskType != "extract_content" {
		return nil
	}

	return w.extractFromURL(ctx, payload.TaskData)
}

func (w *ExtractionWorker) extractFromURL(ctx context.Context, taskData map[string]interface{}) error {
	url, _ := taskData["url"].(string)
	taskID, _ := taskData["task_id"].(string)
	if taskID == "" {
		taskID = "unknown"
	}
	sourceDescription, _ := taskData["source_description"].(string)
	if sourceDescription == "" {
		sourceDescription = "unknown_source"
	}

	if url == "" {
		msg := "no URL provided for extraction"
		w.log.Error("%s", msg)
		return w.sendErrorStatus(ctx, "extraction_failed", msg, taskID)
	}

	if err := w.sendStatus(ctx, "extraction_starting", progressPtr(5.0), taskID); err != nil {
		return err
	}

	progress := func(data json.RawMessage) {
		var frame struct {
			Message    string  `json:"message"`
			Percentage float64 `json:"percentage"`
			Phase      string  `json:"phase"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return
		}
		if frame.Message == "" {
			frame.Message = "Processing..."
		}
		if frame.Phase == "" {
			frame.Phase = "unknown"
		}
		status := fmt.Sprintf("extracting_%s: %s", frame.Phase, frame.Message)
		pct := frame.Percentage
		w.sendStatus(ctx, status, &pct, taskID)
	}

	raw, err := w.rt.Tools().Call(ctx, "primary_tooling", "browse_and_extract", map[string]interface{}{"url": url}, toolclient.CallOptions{
		Stream:   true,
		Progress: progress,
	})
	if err != nil {
		errMsg := fmt.Sprintf("failed to extract content from %s: %v", url, err)
		w.log.Error("%s", errMsg)

		if serr := w.sendErrorStatus(ctx, "extraction_failed", errMsg, taskID); serr != nil {
			return serr
		}
		if derr := w.sendData(ctx, "extracted_content", map[string]interface{}{
			"url":                   url,
			"title":                 "Failed extraction from " + url,
			"content":               "",
			"word_count":            0,
			"source_description":    sourceDescription,
			"extraction_successful": false,
			"error_message":         errMsg,
		}, url, taskID); derr != nil {
			return derr
		}
		return w.sendLog(ctx, "ERROR", fmt.Sprintf("content extraction failed: %s - %s", url, errMsg))
	}

	var result struct {
		URL       string `json:"url"`
		Title     string `json:"title"`
		Content   string `json:"content"`
		WordCount int    `json:"word_count"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}
	if result.URL == "" {
		result.URL = url
	}
	if result.Title == "" {
		result.Title = "Content from " + url
	}

	if err := w.sendStatus(ctx, "extraction_complete", progressPtr(100.0), taskID); err != nil {
		return err
	}

	if err := w.sendData(ctx, "extracted_content", map[string]interface{}{
		"url":                   result.URL,
		"title":                 result.Title,
		"content":               result.Content,
		"word_count":            result.WordCount,
		"source_description":    sourceDescription,
		"extraction_successful": true,
	}, url, taskID); err != nil {
		return err
	}

	return w.sendLog(ctx, "INFO", fmt.Sprintf("content extraction complete: %s (%d words)", url, result.WordCount))
}
