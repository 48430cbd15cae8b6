// File: internal/engine/novaact/act.go
package novaact

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/novaact-mcp/internal/engine"
)

// StepRecord is one executed planner step within an act.
type StepRecord struct {
	Action   string `json:"action"`
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
	URL      string `json:"url,omitempty"`
	Thought  string `json:"thought,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Summary renders the step for planner history prompts.
func (s StepRecord) Summary() string {
	var b strings.Builder
	b.WriteString(s.Action)
	switch s.Action {
	case "click":
		fmt.Fprintf(&b, " %q", s.Selector)
	case "fill":
		fmt.Fprintf(&b, " %q with %q", s.Selector, s.Value)
	case "navigate":
		fmt.Fprintf(&b, " to %q", s.URL)
	}
	if s.Error != "" {
		fmt.Fprintf(&b, " (failed: %s)", s.Error)
	}
	return b.String()
}

// Act runs the plan/apply loop for a single instruction until the planner
// declares it done, refuses, or limits are hit.
func (c *Client) Act(ctx context.Context, instruction string, opts engine.ActOptions) (*engine.ActResult, error) {
	if c.page == nil {
		return nil, fmt.Errorf("browser is not started")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.ActTimeout
	}
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = c.cfg.MaxSteps
	}

	actCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.mu.Lock()
	c.actSeq++
	seq := c.actSeq
	c.mu.Unlock()
	actID := uuid.New().String()[:8]

	logger := c.logger.With(zap.String("act_id", actID))
	logger.Info("Starting act.", zap.String("instruction", instruction))

	var steps []StepRecord
	var response string

	for len(steps) < maxSteps {
		obs, err := c.observe(actCtx)
		if err != nil {
			c.writeActLogs(seq, actID, instruction, steps, response)
			return nil, fmt.Errorf("page observation failed: %w", err)
		}

		dec, err := c.planner.NextAction(actCtx, instruction, obs, opts.Schema, steps)
		if err != nil {
			c.writeActLogs(seq, actID, instruction, steps, response)
			return nil, err
		}
		if dec.Thought != "" {
			c.appendLogLine(fmt.Sprintf("think(%q)", dec.Thought))
		}

		if dec.Action == "refuse" {
			steps = append(steps, StepRecord{Action: dec.Action, Thought: dec.Thought})
			c.writeActLogs(seq, actID, instruction, steps, response)
			return nil, &engine.GuardrailError{Instruction: instruction, Reason: dec.Thought}
		}
		if dec.Action == "done" {
			steps = append(steps, StepRecord{Action: dec.Action, Thought: dec.Thought})
			response = dec.Response
			break
		}

		step := StepRecord{
			Action:   dec.Action,
			Selector: dec.Selector,
			Value:    dec.Value,
			URL:      dec.URL,
			Thought:  dec.Thought,
		}
		if err := c.applyStep(actCtx, dec); err != nil {
			// Feed the failure back to the planner instead of aborting;
			// it may pick a different element or give up via done/refuse.
			step.Error = err.Error()
			logger.Debug("Step failed.", zap.String("action", dec.Action), zap.Error(err))
		}
		steps = append(steps, step)
	}

	htmlPath := c.writeActLogs(seq, actID, instruction, steps, response)

	if response == "" && len(steps) >= maxSteps {
		return nil, fmt.Errorf("act exceeded the maximum of %d steps", maxSteps)
	}

	result := &engine.ActResult{
		Response: response,
		Metadata: engine.Metadata{
			SessionID:        c.sessionID,
			ActID:            actID,
			NumStepsExecuted: len(steps),
		},
		HTMLLogPath: htmlPath,
	}
	if opts.Schema != "" && response != "" {
		var parsed map[string]any
		if err := json.UnmarshalFromString(stripCodeFences(response), &parsed); err == nil {
			result.Parsed = parsed
		}
	}

	logger.Info("Act finished.", zap.Int("steps", len(steps)))
	return result, nil
}

func (c *Client) applyStep(ctx context.Context, dec *Decision) error {
	switch dec.Action {
	case "click":
		return c.page.Click(ctx, dec.Selector)
	case "fill":
		return c.page.Fill(ctx, dec.Selector, dec.Value)
	case "navigate":
		return c.page.Navigate(ctx, dec.URL)
	default:
		return fmt.Errorf("planner requested unknown action %q", dec.Action)
	}
}

// collectElementsJS enumerates interactive elements with a usable CSS
// selector and short label, capped to keep the planner prompt small.
const collectElementsJS = `(() => {
	const out = [];
	const nodes = document.querySelectorAll('a, button, input, select, textarea, [role=button]');
	for (const el of nodes) {
		if (out.length >= 40) break;
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) continue;
		let sel = el.tagName.toLowerCase();
		if (el.id) sel += '#' + el.id;
		else if (el.name) sel += '[name="' + el.name + '"]';
		const label = (el.innerText || el.value || el.placeholder || el.getAttribute('aria-label') || '').trim().slice(0, 60);
		out.push(sel + (label ? ' :: ' + label : ''));
	}
	return out;
})()`

func (c *Client) observe(ctx context.Context) (Observation, error) {
	var obs Observation
	err := c.page.run(ctx,
		chromedp.Location(&obs.URL),
		chromedp.Title(&obs.Title),
		chromedp.Evaluate(collectElementsJS, &obs.Elements),
	)
	if err != nil {
		return Observation{}, err
	}
	return obs, nil
}

// writeActLogs persists the HTML and JSON logs for one act, returning the
// HTML path. Log failures are reported but never fail the act.
func (c *Client) writeActLogs(seq int, actID, instruction string, steps []StepRecord, response string) string {
	base := fmt.Sprintf("act_%03d_%s", seq, actID)

	htmlPath := filepath.Join(c.logsDir, base+".html")
	if err := os.WriteFile(htmlPath, []byte(renderActHTML(actID, instruction, steps, response)), 0o644); err != nil {
		c.logger.Warn("Failed to write act HTML log.", zap.Error(err))
		htmlPath = ""
	}

	payload := map[string]any{
		"act_id":      actID,
		"session_id":  c.sessionID,
		"instruction": instruction,
		"steps":       steps,
		"response":    response,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	if data, err := json.MarshalIndent(payload, "", "  "); err == nil {
		jsonPath := filepath.Join(c.logsDir, base+".json")
		if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
			c.logger.Warn("Failed to write act JSON log.", zap.Error(err))
		}
	}
	return htmlPath
}

func renderActHTML(actID, instruction string, steps []StepRecord, response string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>act ")
	b.WriteString(html.EscapeString(actID))
	b.WriteString("</title></head><body>\n")
	fmt.Fprintf(&b, "<h1>Act %s</h1>\n<p class=\"instruction\">%s</p>\n<ol>\n",
		html.EscapeString(actID), html.EscapeString(instruction))
	for _, step := range steps {
		b.WriteString("<li>")
		if step.Thought != "" {
			fmt.Fprintf(&b, "<div class=\"agent-thought\">%s</div>", html.EscapeString(step.Thought))
		}
		fmt.Fprintf(&b, "<div class=\"step\">%s</div>", html.EscapeString(step.Summary()))
		b.WriteString("</li>\n")
	}
	b.WriteString("</ol>\n")
	if response != "" {
		fmt.Fprintf(&b, "<p class=\"response\">%s</p>\n", html.EscapeString(response))
	}
	b.WriteString("</body></html>\n")
	return b.String()
}
