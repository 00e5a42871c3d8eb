package workers

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashgrove-labs/synapse/internal/agent"
	"github.com/ashgrove-labs/synapse/internal/envelope"
	"github.com/ashgrove-labs/synapse/internal/logging"
)

var synthesisWordSubstitutions = []struct{ from, to string }{
	{"very good", "excellent"},
	{"a lot of", "numerous"},
	{"thing", "element"},
	{"stuff", "content"},
	{"get", "obtain"},
	{"make", "create"},
	{"big", "substantial"},
	{"small", "minimal"},
}

// SynthesisWorker assembles a structured research report from extracted
// sources, per C5.4.5.4.
type SynthesisWorker struct {
	base
	id  string
	log *logging.Logger
}

func NewSynthesisWorker(id string) *SynthesisWorker {
	return &SynthesisWorker{id: id, log: logging.New(id)}
}

func (w *SynthesisWorker) AgentID() string { return w.id }

func (w *SynthesisWorker) Bind(rt *agent.Runtime) {
	w.base = newBase(rt)
}

func (w *SynthesisWorker) Handle(ctx context.Context, env *envelope.Envelope) error {
	if env.MsgType != envelope.TaskAssign {
		return nil
	}

	var payload envelope.TaskAssignPayload
	if err := env.UnmarshalPayload(&payload); err != nil {
		return err
	}
	if payload.TaskType != "synthesize_research" {
		return nil
	}

	return w.synthesize(ctx, payload.TaskData)
}

func (w *SynthesisWorker) synthesize(ctx context.Context, taskData map[string]interface{}) error {
	taskID, _ := taskData["task_id"].(string)
	if taskID == "" {
		taskID = "unknown"
	}
	query, _ := taskData["query"].(string)

	var sources []map[string]interface{}
	if raw, ok := taskData["sources"].([]interface{}); ok {
		for _, s := range raw {
			if m, ok := s.(map[string]interface{}); ok {
				sources = append(sources, m)
			}
		}
	}

	if err := w.sendStatus(ctx, "synthesizing", progressPtr(10.0), taskID); err != nil {
		return err
	}

	introduction := improveText(fmt.Sprintf(
		"This report presents a synthesis of research conducted on the topic of %q, drawing on %d sources.",
		query, len(sources)))
	if err := w.sendStatus(ctx, "synthesizing: introduction", progressPtr(20.0), taskID); err != nil {
		return err
	}

	var analysisBuilder strings.Builder
	for i, src := range sources {
		title, _ := src["title"].(string)
		url, _ := src["url"].(string)
		content, _ := src["content"].(string)
		snippet := content
		if len(snippet) > 400 {
			snippet = snippet[:400]
		}
		analysisBuilder.WriteString(improveText(fmt.Sprintf(
			"Source %d (%s, %s) reports: %s", i+1, title, url, snippet)))
		analysisBuilder.WriteString("\n\n")
	}
	analysis := analysisBuilder.String()
	if err := w.sendStatus(ctx, "synthesizing: analysis", progressPtr(40.0), taskID); err != nil {
		return err
	}

	conclusions := improveText(fmt.Sprintf(
		"Taken together, these sources provide a substantial basis for understanding %q. "+
			"Further investigation would benefit from additional primary sources.", query))
	if err := w.sendStatus(ctx, "synthesizing: conclusions", progressPtr(70.0), taskID); err != nil {
		return err
	}

	methodology := improveText(
		"This report was assembled by aggregating search results, extracting content from each " +
			"source, and validating key claims before synthesis.")
	if err := w.sendStatus(ctx, "synthesizing: methodology", progressPtr(90.0), taskID); err != nil {
		return err
	}

	metadata := fmt.Sprintf("Sources analyzed: %d. Query: %s.", len(sources), query)

	report := fmt.Sprintf(
		"# Research Report: %s\n\n## Introduction\n\n%s\n\n## Analysis\n\n%s\n## Synthesis and Conclusions\n\n%s\n\n## Methodology\n\n%s\n\n## Metadata\n\n%s\n",
		query, introduction, analysis, conclusions, methodology, metadata)

	wordCount := len(strings.Fields(report))

	if err := w.sendStatus(ctx, "synthesis_complete", progressPtr(100.0), taskID); err != nil {
		return err
	}

	if err := w.sendData(ctx, "synthesis_report", map[string]interface{}{
		"report_content":   report,
		"word_count":       wordCount,
		"sections":         []string{"Introduction", "Analysis", "Synthesis and Conclusions", "Methodology", "Metadata"},
		"sources_analyzed": len(sources),
		"query":            query,
	}, "synthesis", taskID); err != nil {
		return err
	}

	return w.sendLog(ctx, "INFO", fmt.Sprintf("synthesis complete: %q (%d words, %d sources)", query, wordCount, len(sources)))
}

// improveText applies the fixed word-substitution table to sentences
// longer than 50 characters, mirroring the original's lightweight
// "improvement" pass.
func improveText(text string) string {
	sentences := strings.Split(text, ". ")
	for i, sentence := range sentences {
		if len(sentence) <= 50 {
			continue
		}
		for _, sub := range synthesisWordSubstitutions {
			sentence = strings.ReplaceAll(sentence, sub.from, sub.to)
		}
		sentences[i] = sentence
	}
	return strings.Join(sentences, ". ")
}
