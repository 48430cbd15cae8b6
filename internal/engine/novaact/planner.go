// File: internal/engine/novaact/planner.go
package novaact

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Planner turns an instruction plus the current page observation into the
// next browser action using an LLM.
type Planner struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// Decision is one planner step. Action is one of click, fill, navigate,
// done or refuse.
type Decision struct {
	Action   string `json:"action"`
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
	URL      string `json:"url,omitempty"`
	Thought  string `json:"thought,omitempty"`
	Response string `json:"response,omitempty"`
}

// Observation is a compact snapshot of the current page handed to the
// planner each step.
type Observation struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Elements []string `json:"elements,omitempty"`
}

func NewPlanner(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Planner, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Planner{client: client, model: model, logger: logger}, nil
}

const plannerSystemPrompt = `You drive a web browser one step at a time.
Given an instruction, the current page observation and the steps taken so
far, reply with a single JSON object:
  {"action":"click","selector":"<css selector>","thought":"..."}
  {"action":"fill","selector":"<css selector>","value":"<text>","thought":"..."}
  {"action":"navigate","url":"<absolute url>","thought":"..."}
  {"action":"done","response":"<final answer>","thought":"..."}
  {"action":"refuse","thought":"<why the instruction cannot be performed safely>"}
Use "refuse" when the instruction asks for something harmful, deceptive or
outside the page automation task. Reply with JSON only.`

// NextAction asks the model for the next step.
func (p *Planner) NextAction(ctx context.Context, instruction string, obs Observation, schema string, history []StepRecord) (*Decision, error) {
	prompt, err := buildPrompt(instruction, obs, schema, history)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(plannerSystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("planner request failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, fmt.Errorf("planner returned an empty response")
	}

	var dec Decision
	if err := json.UnmarshalFromString(stripCodeFences(text), &dec); err != nil {
		p.logger.Warn("Planner returned unparseable output.", zap.String("output", text))
		return nil, fmt.Errorf("failed to parse planner decision: %w", err)
	}
	if dec.Action == "" {
		return nil, fmt.Errorf("planner decision is missing an action")
	}
	return &dec, nil
}

func buildPrompt(instruction string, obs Observation, schema string, history []StepRecord) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Instruction: %s\n\n", instruction)

	obsJSON, err := json.MarshalToString(obs)
	if err != nil {
		return "", fmt.Errorf("failed to encode observation: %w", err)
	}
	fmt.Fprintf(&b, "Current page: %s\n", obsJSON)

	if len(history) > 0 {
		b.WriteString("\nSteps taken so far:\n")
		for i, step := range history {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step.Summary())
		}
	}
	if schema != "" {
		fmt.Fprintf(&b, "\nWhen done, shape the response field as JSON matching this schema:\n%s\n", schema)
	}
	return b.String(), nil
}

// stripCodeFences removes a surrounding markdown code fence, which some
// models emit even when asked for bare JSON.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
