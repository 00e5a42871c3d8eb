package workers

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashgrove-labs/synapse/internal/agent"
	"github.com/ashgrove-labs/synapse/internal/envelope"
	"github.com/ashgrove-labs/synapse/internal/logging"
)

const maxClaimsPerCheck = 5

var claimTriggerWords = []string{
	"proves", "shows", "demonstrates", "indicates", "confirms",
	"because", "therefore", "significantly", "research shows",
}

// FactCheckWorker validates extracted claims against a fixed confidence
// table, per C5.4.5.3. It also answers direct ValidationRequests from
// other agents without going through the orchestrator.
type FactCheckWorker struct {
	base
	id  string
	log *logging.Logger
}

func NewFactCheckWorker(id string) *FactCheckWorker {
	return &FactCheckWorker{id: id, log: logging.New(id)}
}

func (w *FactCheckWorker) AgentID() string { return w.id }

func (w *FactCheckWorker) Bind(rt *agent.Runtime) {
	w.base = newBase(rt)
}

func (w *FactCheckWorker) Handle(ctx context.Context, env *envelope.Envelope) error {
	switch env.MsgType {
	case envelope.TaskAssign:
		var payload envelope.TaskAssignPayload
		if err := env.UnmarshalPayload(&payload); err != nil {
			return err
		}
		if payload.TaskType != "fact_check" {
			return nil
		}
		return w.performFactCheck(ctx, payload.TaskData)

	case envelope.ValidationRequest:
		var payload envelope.ValidationRequestPayload
		if err := env.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return w.handleValidationRequest(ctx, env.SenderID, payload)

	default:
		return nil
	}
}

func (w *FactCheckWorker) handleValidationRequest(ctx context.Context, requester string, payload envelope.ValidationRequestPayload) error {
	confidence, evidence := validateClaim(payload.Claim)

	env, err := w.rt.MakeEnvelope(requester, false, envelope.ValidationResponse, envelope.ValidationResponsePayload{
		IsValid:    confidence >= 0.5,
		Confidence: confidence,
		Evidence:   evidence,
		Source:     payload.SourceURL,
	})
	if err != nil {
		return err
	}
	return w.rt.Send(ctx, env)
}

func (w *FactCheckWorker) performFactCheck(ctx context.Context, taskData map[string]interface{}) error {
	taskID, _ := taskData["task_id"].(string)
	if taskID == "" {
		taskID = "unknown"
	}

	claims := extractClaims(taskData)

	if err := w.sendStatus(ctx, "fact_checking", progressPtr(10.0), taskID); err != nil {
		return err
	}

	type claimResult struct {
		Claim      string  `json:"claim"`
		Confidence float64 `json:"confidence"`
		Evidence   string  `json:"evidence"`
		IsValid    bool    `json:"is_valid"`
	}

	results := make([]claimResult, 0, len(claims))
	var totalConfidence float64
	validCount := 0

	for i, claim := range claims {
		confidence, evidence := validateClaim(claim)
		isValid := confidence >= 0.5
		if isValid {
			validCount++
		}
		totalConfidence += confidence

		results = append(results, claimResult{
			Claim:      claim,
			Confidence: confidence,
			Evidence:   evidence,
			IsValid:    isValid,
		})

		pct := 10.0 + (float64(i+1)/float64(len(claims)))*80.0
		if err := w.sendStatus(ctx, fmt.Sprintf("fact_checking: claim %d/%d", i+1, len(claims)), &pct, taskID); err != nil {
			return err
		}
	}

	overallConfidence := 0.0
	if len(claims) > 0 {
		overallConfidence = totalConfidence / float64(len(claims))
	}

	if err := w.sendStatus(ctx, "fact_check_complete", progressPtr(100.0), taskID); err != nil {
		return err
	}

	resultsAny := make([]interface{}, len(results))
	for i, r := range results {
		resultsAny[i] = map[string]interface{}{
			"claim":      r.Claim,
			"confidence": r.Confidence,
			"evidence":   r.Evidence,
			"is_valid":   r.IsValid,
		}
	}

	return w.sendData(ctx, "fact_check_results", map[string]interface{}{
		"results": resultsAny,
		"summary": map[string]interface{}{
			"total_claims":       len(claims),
			"valid_claims":       validCount,
			"overall_confidence": overallConfidence,
		},
	}, "fact_checker", taskID)
}

// extractClaims mirrors the original's heuristic: use provided claims if
// present, else pull trigger-word sentences (>20 chars) from content, up
// to maxClaimsPerCheck.
func extractClaims(taskData map[string]interface{}) []string {
	if raw, ok := taskData["claims"].([]interface{}); ok && len(raw) > 0 {
		claims := make([]string, 0, len(raw))
		for _, c := range raw {
			if s, ok := c.(string); ok {
				claims = append(claims, s)
			}
		}
		if len(claims) > 0 {
			return claims
		}
	}

	content, _ := taskData["content"].(string)
	if content == "" {
		return nil
	}

	var claims []string
	for _, sentence := range strings.Split(content, ".") {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) <= 20 {
			continue
		}
		lower := strings.ToLower(sentence)
		for _, trigger := range claimTriggerWords {
			if strings.Contains(lower, trigger) {
				claims = append(claims, sentence)
				break
			}
		}
		if len(claims) >= maxClaimsPerCheck {
			break
		}
	}
	return claims
}

// validateClaim is the table-driven confidence heuristic from the
// original implementation: specific domain terms raise confidence above
// a default of 0.65, which every other claim gets.
func validateClaim(claim string) (confidence float64, evidence string) {
	lower := strings.ToLower(claim)

	switch {
	case strings.Contains(lower, "quantum") || strings.Contains(lower, "encryption") || strings.Contains(lower, "cryptography"):
		switch {
		case strings.Contains(lower, "break") || strings.Contains(lower, "obsolete"):
			return 0.92, "consistent with established quantum-cryptanalysis research"
		case strings.Contains(lower, "nist") || strings.Contains(lower, "standard"):
			return 0.88, "aligns with published standardization guidance"
		default:
			return 0.85, "consistent with general cryptography literature"
		}

	case strings.Contains(lower, "algorithm") || strings.Contains(lower, "computer") || strings.Contains(lower, "technology"):
		return 0.80, "consistent with general computing literature"

	default:
		return 0.65, "no strong corroborating signal found"
	}
}
