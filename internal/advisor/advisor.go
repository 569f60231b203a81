// Package advisor is the assistive language-model layer. It drafts,
// summarizes, and explains on explicit user request only; it never
// writes artifacts, events, or proposals. Structural behavior must not
// depend on it being configured.
package advisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/conviction-cli/internal/model"
	"github.com/sells-group/conviction-cli/pkg/anthropic"
)

// ErrUnavailable is returned when no language-model backend is
// configured.
var ErrUnavailable = eris.New("advisor: no language model configured")

const (
	defaultMaxTokens  = 1024
	draftMaxTokens    = 512
	explainMaxTokens  = 256
	contextLimitChars = 2000
	beliefSnippetLen  = 300
	maxSnapshotTexts  = 5

	systemMessage = "You are a precise, literal assistant. Follow instructions strictly."
)

// temperature stays low so repeated calls drift as little as possible.
var temperature = 0.2

// ChangeAnalysis is the structured output of AnalyzeBeliefChanges.
type ChangeAnalysis struct {
	DeltaSummary      string   `json:"delta_summary"`
	PotentialTensions []string `json:"potential_tensions"`
	QuestionsRaised   []string `json:"questions_raised"`
}

// Advisor wraps a chat model behind task-shaped methods.
type Advisor struct {
	client anthropic.Client
	model  string
}

// New creates an Advisor. A nil client produces an Advisor whose every
// call fails with ErrUnavailable.
func New(client anthropic.Client, model string) *Advisor {
	return &Advisor{client: client, model: model}
}

// Available reports whether a backend is configured.
func (a *Advisor) Available() bool {
	return a != nil && a.client != nil
}

// DraftRefinedBelief rephrases a belief statement for clarity without
// adding factual claims.
func (a *Advisor) DraftRefinedBelief(ctx context.Context, statement string, artifactType model.ReasoningType, snapshotSummary string) (string, error) {
	var b strings.Builder
	b.WriteString(`You are a drafting assistant for an equity research system. Refine this belief into clearer, more precise language.

STRICT RULES:
- Do not introduce new factual claims not present in the original.
- Do not assume unseen data.
- Only rephrase or clarify.
- Preserve the original intent.
- Preserve epistemic tone if present (e.g., "may", "could", "likely") and do not inflate to certainty.
- Do not imply observed evidence unless explicitly stated in the original.

`)
	fmt.Fprintf(&b, "Artifact type: %s\nBelief: %s\n", artifactType, statement)
	if snapshotSummary != "" {
		fmt.Fprintf(&b, "\nReferenced snapshots (ticker + as_of) for context only:\n%s\n", snapshotSummary)
	}
	b.WriteString("\nOutput only the refined belief text, no preamble.")

	return a.call(ctx, b.String(), draftMaxTokens, "draft_belief")
}

// DraftRefinedQuestion rephrases a research question for focus.
func (a *Advisor) DraftRefinedQuestion(ctx context.Context, question, snapshotSummary string) (string, error) {
	var b strings.Builder
	b.WriteString(`You are a drafting assistant. Refine this research question into clearer, more focused language.

STRICT RULES:
- Do not introduce new factual claims. Only rephrase or clarify.
- Preserve epistemic tone if present (e.g., "may", "could") and do not inflate to certainty.
- Do not imply observed evidence unless explicitly stated.

`)
	fmt.Fprintf(&b, "Question: %s\n", question)
	if snapshotSummary != "" {
		fmt.Fprintf(&b, "\nSnapshot context (reference only):\n%s\n", snapshotSummary)
	}
	b.WriteString("\nOutput only the refined question text, no preamble.")

	return a.call(ctx, b.String(), draftMaxTokens, "draft_question")
}

// SuggestSubQuestions proposes 2-4 sub-questions for a research
// question.
func (a *Advisor) SuggestSubQuestions(ctx context.Context, question string) (string, error) {
	prompt := fmt.Sprintf(`You are a research assistant. Given this research question, suggest 2-4 focused sub-questions that would help answer it. Output as a bullet list.
Optional brainstorming only. Do not imply these are required.

Question: %s

Output only the sub-questions, one per line with a leading dash.`, question)

	return a.call(ctx, prompt, defaultMaxTokens, "sub_questions")
}

// SummarizeSnapshots summarizes snapshot metrics in plain language. At
// most five texts are sent.
func (a *Advisor) SummarizeSnapshots(ctx context.Context, snapshotTexts []string) (string, error) {
	if len(snapshotTexts) == 0 {
		return "No snapshots available.", nil
	}
	if len(snapshotTexts) > maxSnapshotTexts {
		snapshotTexts = snapshotTexts[:maxSnapshotTexts]
	}
	prompt := fmt.Sprintf(`You are a research assistant. Summarize the key metrics and context from these equity snapshots in 2-4 sentences. Focus on: revenue, margins, market state, notable changes. Be factual.

Snapshots:
%s

Output only the summary.`, strings.Join(snapshotTexts, "\n---\n"))

	return a.call(ctx, prompt, defaultMaxTokens, "summarize_snapshots")
}

// ExplainProposalTrigger explains in plain language why a proposal
// fired. Factual and structural only.
func (a *Advisor) ExplainProposalTrigger(ctx context.Context, p *model.Proposal) (string, error) {
	snippet := truncateRunes(p.Payload.BeliefText, beliefSnippetLen)
	condType := p.Payload.Condition.Type
	if condType == "" {
		condType = string(p.Type)
	}
	triggeredAt := "unknown"
	if !p.Payload.Condition.TriggeredAt.IsZero() {
		triggeredAt = p.Payload.Condition.TriggeredAt.UTC().Format("2006-01-02T15:04:05Z")
	}

	prompt := fmt.Sprintf(`Explain in 1-3 sentences why this structural proposal was triggered. Be factual and structural only. Do not interpret or recommend.

Proposal type: %s
Condition type: %s
Triggered at: %s
Belief: %s

Output only the explanation.`, p.Type, condType, triggeredAt, snippet)

	return a.call(ctx, prompt, explainMaxTokens, "explain_trigger")
}

// AnalyzeBeliefChanges produces a structured delta analysis between a
// belief's snapshots at last review and since. Output is parsed
// leniently; unparseable responses degrade to a plain summary.
func (a *Advisor) AnalyzeBeliefChanges(ctx context.Context, beliefText, lastReview, previousSummary, newerSummary string) (*ChangeAnalysis, error) {
	if previousSummary == "" {
		previousSummary = "None"
	}
	prompt := fmt.Sprintf(`You are analyzing structural change for an equity research belief. The snapshots below are the ONLY ones referenced by this belief, no other companies.

Produce a structured analysis. Return strictly valid JSON. Do not wrap in code blocks. Do not include commentary. Output only the JSON object with these exact keys:
- delta_summary: string, a 2-4 sentence summary of key metric changes. If no material structural change is evident, explicitly state "No material change detected."
- potential_tensions: array of strings (0-3 items), ways the new data might tension the belief. Empty array if none.
- questions_raised: array of strings (0-3 items), questions the new data raises. Empty array if none.

Do NOT modify the belief. Do NOT recommend actions. Analysis only. If nothing material changed, say so. Do not invent tensions.

Belief: %s
Last review: %s

Previous snapshot metrics (at last review, this belief's referenced snapshots only):
%s

New snapshot metrics (same companies, since last review):
%s
`,
		truncateRunes(beliefText, 500),
		lastReview,
		truncateRunes(previousSummary, contextLimitChars),
		truncateRunes(newerSummary, contextLimitChars),
	)

	raw, err := a.call(ctx, prompt, defaultMaxTokens, "belief_changes")
	if err != nil {
		return nil, err
	}
	return parseChangeAnalysis(raw), nil
}

func (a *Advisor) call(ctx context.Context, prompt string, maxTokens int64, phase string) (string, error) {
	if !a.Available() {
		return "", ErrUnavailable
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		System:      []anthropic.SystemBlock{{Text: systemMessage}},
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", eris.Wrapf(err, "advisor: %s", phase)
	}
	resp.Usage.LogCost(a.model, phase)

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		zap.L().Warn("advisor returned empty response", zap.String("phase", phase))
	}
	return text, nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
