package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ashgrove-labs/synapse/internal/agent"
	"github.com/ashgrove-labs/synapse/internal/envelope"
	"github.com/ashgrove-labs/synapse/internal/logging"
)

const (
	logBufferCapacity   = 1000
	errorSpikeWindow    = 10
	errorSpikeThreshold = 3
)

type logEntry struct {
	Level     string
	Message   string
	Component string
	Time      time.Time
}

type componentActivity struct {
	FirstSeen    time.Time
	LastActivity time.Time
	MessageCount int
	ErrorCount   int
}

// LogSinkWorker subscribes to the "logs" topic, keeps a bounded ring
// buffer of recent entries, tracks per-component activity, and raises a
// system_alert when recent errors spike, per C5.4.5.6.
type LogSinkWorker struct {
	base
	id  string
	log *logging.Logger

	mu            sync.Mutex
	buffer        []logEntry
	countByLevel  map[string]int
	activity      map[string]*componentActivity
	logLevel      string
	alertInFlight bool
}

func NewLogSinkWorker(id string) *LogSinkWorker {
	return &LogSinkWorker{
		id:           id,
		log:          logging.New(id),
		countByLevel: make(map[string]int),
		activity:     make(map[string]*componentActivity),
		logLevel:     "INFO",
	}
}

func (w *LogSinkWorker) AgentID() string  { return w.id }
func (w *LogSinkWorker) Topics() []string { return []string{"logs"} }

func (w *LogSinkWorker) Bind(rt *agent.Runtime) {
	w.base = newBase(rt)
}

func (w *LogSinkWorker) Handle(ctx context.Context, env *envelope.Envelope) error {
	switch env.MsgType {
	case envelope.LogBroadcast:
		var payload envelope.LogBroadcastPayload
		if err := env.UnmarshalPayload(&payload); err != nil {
			return err
		}
		w.record(payload)
		return nil

	case envelope.TaskAssign:
		var payload envelope.TaskAssignPayload
		if err := env.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return w.handleTask(ctx, payload)

	default:
		return nil
	}
}

func (w *LogSinkWorker) record(payload envelope.LogBroadcastPayload) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry := logEntry{Level: payload.Level, Message: payload.Message, Component: payload.Component, Time: time.Now()}
	w.buffer = append(w.buffer, entry)
	if len(w.buffer) > logBufferCapacity {
		w.buffer = w.buffer[len(w.buffer)-logBufferCapacity:]
	}
	w.countByLevel[payload.Level]++

	act, ok := w.activity[payload.Component]
	if !ok {
		act = &componentActivity{FirstSeen: entry.Time}
		w.activity[payload.Component] = act
	}
	act.LastActivity = entry.Time
	act.MessageCount++
	if payload.Level == "ERROR" || payload.Level == "CRITICAL" {
		act.ErrorCount++
	}
}

// Tick checks the most recent entries for an error spike once per
// second, mirroring the original's pattern-analysis pass.
func (w *LogSinkWorker) Tick(ctx context.Context) error {
	w.mu.Lock()
	n := len(w.buffer)
	start := 0
	if n > errorSpikeWindow {
		start = n - errorSpikeWindow
	}
	var severe int
	for _, e := range w.buffer[start:n] {
		if e.Level == "ERROR" || e.Level == "CRITICAL" {
			severe++
		}
	}
	shouldAlert := severe >= errorSpikeThreshold && !w.alertInFlight
	if shouldAlert {
		w.alertInFlight = true
	}
	if severe < errorSpikeThreshold {
		w.alertInFlight = false
	}
	w.mu.Unlock()

	if !shouldAlert {
		return nil
	}

	return w.sendData(ctx, "system_alert", map[string]interface{}{
		"alert_type":   "error_spike",
		"severe_count": severe,
		"window_size":  errorSpikeWindow,
	}, "log_sink", "")
}

func (w *LogSinkWorker) handleTask(ctx context.Context, payload envelope.TaskAssignPayload) error {
	taskID, _ := payload.TaskData["task_id"].(string)

	switch payload.TaskType {
	case "generate_report":
		kind, _ := payload.TaskData["report_type"].(string)
		report := w.generateReport(kind)
		return w.sendData(ctx, "log_report", map[string]interface{}{
			"report_type": kind,
			"report":      report,
		}, "log_sink", taskID)

	case "set_log_level":
		level, _ := payload.TaskData["level"].(string)
		if level != "" {
			w.mu.Lock()
			w.logLevel = level
			w.mu.Unlock()
		}
		return w.sendData(ctx, "logger_status", map[string]interface{}{
			"log_level": level,
		}, "log_sink", taskID)

	case "get_agent_status":
		w.mu.Lock()
		status := make(map[string]interface{}, len(w.activity))
		for component, act := range w.activity {
			status[component] = map[string]interface{}{
				"first_seen":    act.FirstSeen.Format(time.RFC3339Nano),
				"last_activity": act.LastActivity.Format(time.RFC3339Nano),
				"message_count": act.MessageCount,
				"error_count":   act.ErrorCount,
			}
		}
		w.mu.Unlock()
		return w.sendData(ctx, "logger_status", map[string]interface{}{
			"agent_activity": status,
		}, "log_sink", taskID)

	default:
		return nil
	}
}

func (w *LogSinkWorker) generateReport(kind string) map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch kind {
	case "summary":
		return map[string]interface{}{
			"total_entries":   len(w.buffer),
			"counts_by_level": cloneIntMap(w.countByLevel),
		}
	case "agent_activity":
		result := make(map[string]interface{}, len(w.activity))
		for component, act := range w.activity {
			result[component] = map[string]interface{}{
				"message_count": act.MessageCount,
				"error_count":   act.ErrorCount,
			}
		}
		return result
	default: // "detailed"
		entries := make([]map[string]interface{}, len(w.buffer))
		for i, e := range w.buffer {
			entries[i] = map[string]interface{}{
				"level":     e.Level,
				"message":   e.Message,
				"component": e.Component,
				"time":      e.Time.Format(time.RFC3339Nano),
			}
		}
		return map[string]interface{}{
			"entries": entries,
			"summary": fmt.Sprintf("%d entries across %d components", len(w.buffer), len(w.activity)),
		}
	}
}

func cloneIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
