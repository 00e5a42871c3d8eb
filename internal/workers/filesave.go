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

// FileSaveWorker writes content to disk via the filesystem authority,
// validating the target path before ever attempting the write, per
// C5.4.5.5.
type FileSaveWorker struct {
	base
	id  string
	log *logging.Logger
}

func NewFileSaveWorker(id string) *FileSaveWorker {
	return &FileSaveWorker{id: id, log: logging.New(id)}
}

func (w *FileSaveWorker) AgentID() string { return w.id }

func (w *FileSaveWorker) Bind(rt *agent.Runtime) {
	w.base = newBase(rt)
}

func (w *FileSaveWorker) Handle(ctx context.Context, env *envelope.Envelope) error {
	if env.MsgType != envelope.TaskAssign {
		return nil
	}

	var payload envelope.TaskAssignPayload
	if err := env.UnmarshalPayload(&payload); err != nil {
		return err
	}
	if payload.TaskType != "save_file" {
		return nil
	}

	return w.saveFileSecurely(ctx, payload.TaskData)
}

func (w *FileSaveWorker) saveFileSecurely(ctx context.Context, taskData map[string]interface{}) error {
	filePath, _ := taskData["file_path"].(string)
	content, _ := taskData["content"].(string)
	taskID, _ := taskData["task_id"].(string)
	if taskID == "" {
		taskID = "unknown"
	}

	if filePath == "" {
		return w.sendErrorStatus(ctx, "file_save_failed", "no file_path provided", taskID)
	}

	validateRaw, err := w.rt.Tools().Call(ctx, "filesystem", "validate_path", map[string]interface{}{"path": filePath}, toolclient.CallOptions{})
	if err != nil {
		errMsg := fmt.Sprintf("path validation failed for %s: %v", filePath, err)
		w.log.Error("%s", errMsg)
		return w.sendErrorStatus(ctx, "file_save_failed", errMsg, taskID)
	}

	var validation struct {
		IsAllowed bool   `json:"is_allowed"`
		Reason    string `json:"reason"`
	}
	if err := json.Unmarshal(validateRaw, &validation); err != nil {
		return err
	}

	if !validation.IsAllowed {
		errMsg := fmt.Sprintf("path not allowed: %s (%s)", filePath, validation.Reason)
		w.log.Error("%s", errMsg)
		if serr := w.sendErrorStatus(ctx, "file_save_failed", errMsg, taskID); serr != nil {
			return serr
		}
		return w.sendLog(ctx, "ERROR", errMsg)
	}

	saveRaw, err := w.rt.Tools().Call(ctx, "filesystem", "save_file", map[string]interface{}{
		"file_path": filePath,
		"content":   content,
	}, toolclient.CallOptions{})
	if err != nil {
		errMsg := fmt.Sprintf("failed to save file %s: %v", filePath, err)
		w.log.Error("%s", errMsg)
		return w.sendErrorStatus(ctx, "file_save_failed", errMsg, taskID)
	}

	var saveResult struct {
		BytesWritten int `json:"bytes_written"`
	}
	if err := json.Unmarshal(saveRaw, &saveResult); err != nil {
		return err
	}

	if err := w.sendData(ctx, "file_save_result", map[string]interface{}{
		"file_path":       filePath,
		"bytes_written":   saveResult.BytesWritten,
		"content_length":  len(content),
		"save_successful": true,
	}, "file_save", taskID); err != nil {
		return err
	}

	return w.sendLog(ctx, "INFO", fmt.Sprintf("file saved: %s (%d bytes)", filePath, saveResult.BytesWritten))
}
