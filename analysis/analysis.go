// Package analysis rates credit parameters and summarizes the actions a user
// should take to improve them.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.aimuz.me/saathi/llm"
	"go.aimuz.me/saathi/metrics"
)

// Options are the completion settings an analysis completer should use.
var Options = llm.Options{MaxTokens: 1200, Temperature: 0.7}

// ErrNoParameters is returned when there is nothing to analyze.
var ErrNoParameters = errors.New("no parameters to analyze")

// Parameter is one scored credit parameter, 0 to 100.
type Parameter struct {
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	Description string  `json:"description,omitempty"`
}

// Result is the rating of one parameter on a 1 to 5 scale.
type Result struct {
	ParameterName    string `json:"parameter_name"`
	CurrentSituation int    `json:"current_situation"`
	Remark           string `json:"remark"`
}

// Report is the full analysis response.
type Report struct {
	Analysis      []Result `json:"analysis"`
	ActionSummary string   `json:"action_summary"`
}

const systemPrompt = `You are a credit parameter analysis expert. Your role is to analyze individual credit scores and provide encouraging, actionable insights.

For each parameter, you must return ONLY a valid JSON array with this exact structure:
[
  {
    "parameter_name": "parameter_name",
    "current_situation": number_between_1_and_5,
    "remark": "encouraging and actionable remark"
  }
]

Scoring Framework for current_situation:
- Score 80-100: current_situation = 5, remark should be "Excellent performance, maintain and leverage this strength."
- Score 60-79: current_situation = 4, remark should be "Good performance, minor optimizations needed."
- Score 40-59: current_situation = 3, remark should be "Fair performance, focused improvement required."
- Score 20-39: current_situation = 2, remark should be "Needs attention, significant improvement needed."
- Score 0-19: current_situation = 1, remark should be "Critical area, immediate action required."

Always be encouraging, specific, and actionable. Focus on what users can control and improve.
Return ONLY the JSON array, no additional text or formatting.`

const summarySystemPrompt = "You are a financial advisor. Summarize the key actions from credit parameter analysis into concise bullet points."

// Analyzer produces credit parameter reports. A nil completer yields the
// deterministic ratings and summary.
type Analyzer struct {
	completer llm.Completer
	metrics   *metrics.Metrics
}

// New creates an Analyzer.
func New(c llm.Completer, m *metrics.Metrics) *Analyzer {
	return &Analyzer{completer: c, metrics: m}
}

// Analyze rates params and summarizes the resulting actions. It fails only
// when the rating call itself fails; unparseable ratings and a failed
// summary fall back to the deterministic versions.
func (a *Analyzer) Analyze(ctx context.Context, params []Parameter) (Report, error) {
	if len(params) == 0 {
		return Report{}, ErrNoParameters
	}

	results, source, err := a.rate(ctx, params)
	if err != nil {
		return Report{}, err
	}
	a.metrics.RecordAnalysis(source)

	return Report{
		Analysis:      results,
		ActionSummary: a.summarize(ctx, results),
	}, nil
}

func (a *Analyzer) rate(ctx context.Context, params []Parameter) ([]Result, string, error) {
	if a.completer == nil {
		return Fallback(params), "fallback", nil
	}

	reply, usage, err := a.completer.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: ratingPrompt(params)},
	})
	if err != nil {
		return nil, "", fmt.Errorf("analyze parameters: %w", err)
	}
	a.metrics.RecordTokens("analysis", usage.PromptTokens, usage.CompletionTokens)

	results, err := parseResults(reply)
	if err != nil {
		slog.Warn("analysis reply was not valid JSON, using fallback", "error", err)
		return Fallback(params), "fallback", nil
	}
	return results, "model", nil
}

func (a *Analyzer) summarize(ctx context.Context, results []Result) string {
	if a.completer == nil {
		return FallbackSummary(results)
	}

	var remarks strings.Builder
	for i, r := range results {
		if i > 0 {
			remarks.WriteByte('\n')
		}
		fmt.Fprintf(&remarks, "%s: %s", r.ParameterName, r.Remark)
	}
	prompt := "Based on these credit parameter remarks, create a concise action summary in bullet points:\n\n" +
		remarks.String() +
		"\n\nProvide a brief summary of key actions the user should take, focusing on the most impactful improvements. Keep it under 100 words with bullet points."

	reply, usage, err := a.completer.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: summarySystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
	reply = strings.TrimSpace(reply)
	if err != nil || reply == "" {
		slog.Warn("action summary failed, using fallback", "error", err)
		return FallbackSummary(results)
	}
	a.metrics.RecordTokens("analysis", usage.PromptTokens, usage.CompletionTokens)
	return reply
}

func ratingPrompt(params []Parameter) string {
	var b strings.Builder
	b.WriteString("Analyze these credit parameters and return JSON:\n")
	for _, p := range params {
		fmt.Fprintf(&b, "- %s: %g/100", p.Name, p.Score)
		if p.Description != "" {
			fmt.Fprintf(&b, " (%s)", p.Description)
		}
		b.WriteByte('\n')
	}
	b.WriteString("\nReturn the analysis as a JSON array with parameter_name, current_situation (1-5), and remark for each parameter.")
	return b.String()
}

// parseResults decodes a JSON array reply, tolerating a Markdown code fence.
func parseResults(reply string) ([]Result, error) {
	body := stripFence(reply)
	var results []Result
	if err := json.Unmarshal([]byte(body), &results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	if len(results) == 0 {
		return nil, errors.New("decode results: empty array")
	}
	for i := range results {
		results[i].CurrentSituation = min(max(results[i].CurrentSituation, 1), 5)
	}
	return results, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ─────────────────────────────────────────────────────────────────────────────
// Deterministic ratings
// ─────────────────────────────────────────────────────────────────────────────

var bands = []struct {
	min    float64
	level  int
	remark string
}{
	{80, 5, "Excellent performance, maintain and leverage this strength."},
	{60, 4, "Good performance, minor optimizations needed."},
	{40, 3, "Fair performance, focused improvement required."},
	{20, 2, "Needs attention, significant improvement needed."},
}

// ScaleOf maps a 0 to 100 score to the 1 to 5 scale.
func ScaleOf(score float64) int {
	for _, b := range bands {
		if score >= b.min {
			return b.level
		}
	}
	return 1
}

// RemarkFor returns the standard remark for a score.
func RemarkFor(score float64) string {
	for _, b := range bands {
		if score >= b.min {
			return b.remark
		}
	}
	return "Critical area, immediate action required."
}

// Fallback rates params without a model.
func Fallback(params []Parameter) []Result {
	out := make([]Result, len(params))
	for i, p := range params {
		out[i] = Result{
			ParameterName:    p.Name,
			CurrentSituation: ScaleOf(p.Score),
			Remark:           RemarkFor(p.Score),
		}
	}
	return out
}

// FallbackSummary builds the action summary without a model.
func FallbackSummary(results []Result) string {
	var critical, fair []string
	for _, r := range results {
		name := strings.ReplaceAll(r.ParameterName, "_", " ")
		switch {
		case r.CurrentSituation <= 2:
			critical = append(critical, name)
		case r.CurrentSituation == 3:
			fair = append(fair, name)
		}
	}

	var b strings.Builder
	b.WriteString("**Key Actions:**\n")
	if len(critical) > 0 {
		fmt.Fprintf(&b, "• **Priority**: Focus on %s\n", strings.Join(critical, ", "))
	}
	if len(fair) > 0 {
		fmt.Fprintf(&b, "• **Improve**: Work on %s\n", strings.Join(fair, ", "))
	}
	b.WriteString("• **Maintain**: Continue strong performance in excellent parameters")
	return b.String()
}
