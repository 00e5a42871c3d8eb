package envelope

import (
	"encoding/json"
	"fmt"
)

// TaskAssignPayload instructs a worker to perform a unit of work.
type TaskAssignPayload struct {
	TaskType string                 `json:"task_type"`
	TaskData map[string]interface{} `json:"task_data"`
	Priority int                    `json:"priority"`
}

// StatusUpdatePayload reports a worker's progress on a task. A Status
// containing the substring "failed" signals failure to observers.
type StatusUpdatePayload struct {
	Status   string   `json:"status"`
	Progress *float64 `json:"progress,omitempty"`
	TaskID   string   `json:"task_id,omitempty"`
}

// DataSubmitPayload carries a worker's result back to the orchestrator.
// DataType is a discriminator; Data's shape depends on it.
type DataSubmitPayload struct {
	DataType string                 `json:"data_type"`
	Data     map[string]interface{} `json:"data"`
	Source   string                 `json:"source,omitempty"`
	TaskID   string                 `json:"task_id,omitempty"`
}

var validDataTypes = map[string]bool{
	"search_results":     true,
	"extracted_content":  true,
	"fact_check_results": true,
	"synthesis_report":   true,
	"file_save_result":   true,
	"system_alert":       true,
	"log_report":         true,
	"logger_status":      true,
}

// ValidationRequestPayload asks a fact-checking peer to validate a claim.
type ValidationRequestPayload struct {
	Claim          string `json:"claim"`
	SourceURL      string `json:"source_url,omitempty"`
	ValidationType string `json:"validation_type"`
}

// ValidationResponsePayload answers a ValidationRequestPayload.
type ValidationResponsePayload struct {
	IsValid    bool    `json:"is_valid"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence,omitempty"`
	Source     string  `json:"source,omitempty"`
}

// LogBroadcastPayload is a log line fanned out over the "logs" topic.
type LogBroadcastPayload struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	Component string `json:"component,omitempty"`
}

var validLogLevels = map[string]bool{
	"DEBUG": true, "INFO": true, "WARNING": true, "ERROR": true, "CRITICAL": true,
}

// validatePayload decodes raw into the variant matching msgType and checks
// its per-variant invariants, without requiring the caller to know which
// concrete type to use.
func validatePayload(msgType MsgType, raw json.RawMessage) error {
	switch msgType {
	case TaskAssign:
		var p TaskAssignPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return &ValidationError{Field: "payload", Message: err.Error()}
		}
		if p.TaskType == "" {
			return &ValidationError{Field: "task_type", Message: "must not be empty"}
		}
		if p.Priority < 1 || p.Priority > 5 {
			return &ValidationError{Field: "priority", Message: "must be in 1..5"}
		}
		return nil

	case StatusUpdate:
		var p StatusUpdatePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return &ValidationError{Field: "payload", Message: err.Error()}
		}
		if p.Progress != nil && (*p.Progress < 0 || *p.Progress > 100) {
			return &ValidationError{Field: "progress", Message: "must be in [0, 100]"}
		}
		return nil

	case DataSubmit:
		var p DataSubmitPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return &ValidationError{Field: "payload", Message: err.Error()}
		}
		if !validDataTypes[p.DataType] {
			return &ValidationError{Field: "data_type", Message: fmt.Sprintf("unknown data_type %q", p.DataType)}
		}
		return nil

	case ValidationRequest:
		var p ValidationRequestPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return &ValidationError{Field: "payload", Message: err.Error()}
		}
		if p.Claim == "" {
			return &ValidationError{Field: "claim", Message: "must not be empty"}
		}
		return nil

	case ValidationResponse:
		var p ValidationResponsePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return &ValidationError{Field: "payload", Message: err.Error()}
		}
		if p.Confidence < 0 || p.Confidence > 1 {
			return &ValidationError{Field: "confidence", Message: "must be in [0, 1]"}
		}
		return nil

	case LogBroadcast:
		var p LogBroadcastPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return &ValidationError{Field: "payload", Message: err.Error()}
		}
		if !validLogLevels[p.Level] {
			return &ValidationError{Field: "level", Message: fmt.Sprintf("unknown level %q", p.Level)}
		}
		if p.Message == "" {
			return &ValidationError{Field: "message", Message: "must not be empty"}
		}
		return nil
	}
	return &ValidationError{Field: "msg_type", Message: fmt.Sprintf("unknown type %q", msgType)}
}

// DefaultValidationType is used when ValidationRequestPayload.ValidationType
// is left unset by the caller.
const DefaultValidationType = "fact_check"
