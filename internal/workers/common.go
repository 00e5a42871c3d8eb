// Package workers implements the six concrete research-pipeline agents:
// search, extraction, fact-check, synthesis, file-save, and log-sink.
package workers

import (
	"context"

	"github.com/ashgrove-labs/synapse/internal/agent"
	"github.com/ashgrove-labs/synapse/internal/envelope"
)

// DefaultOrchestratorID is the agent id every worker reports results to,
// per C5's shared convention.
const DefaultOrchestratorID = "orchestrator"

// base bundles the runtime handle and orchestrator-addressed helpers
// shared by every worker, rather than duplicating status/log emission
// per concrete type.
type base struct {
	rt              *agent.Runtime
	orchestratorID  string
}

func newBase(rt *agent.Runtime) base {
	return base{rt: rt, orchestratorID: DefaultOrchestratorID}
}

func (b *base) sendStatus(ctx context.Context, status string, progress *float64, taskID string) error {
	env, err := b.rt.MakeEnvelope(b.orchestratorID, false, envelope.StatusUpdate, envelope.StatusUpdatePayload{
		Status:   status,
		Progress: progress,
		TaskID:   taskID,
	})
	if err != nil {
		return err
	}
	return b.rt.Send(ctx, env)
}

func (b *base) sendErrorStatus(ctx context.Context, prefix, detail, taskID string) error {
	zero := 0.0
	return b.sendStatus(ctx, prefix+": "+detail, &zero, taskID)
}

func (b *base) sendLog(ctx context.Context, level, message string) error {
	env, err := b.rt.MakeEnvelope("logs", true, envelope.LogBroadcast, envelope.LogBroadcastPayload{
		Level:     level,
		Message:   message,
		Component: b.rt.AgentID(),
	})
	if err != nil {
		return err
	}
	return b.rt.Send(ctx, env)
}

func (b *base) sendData(ctx context.Context, dataType string, data map[string]interface{}, source, taskID string) error {
	env, err := b.rt.MakeEnvelope(b.orchestratorID, false, envelope.DataSubmit, envelope.DataSubmitPayload{
		DataType: dataType,
		Data:     data,
		Source:   source,
		TaskID:   taskID,
	})
	if err != nil {
		return err
	}
	return b.rt.Send(ctx, env)
}

func progressPtr(v float64) *float64 { return &v }
