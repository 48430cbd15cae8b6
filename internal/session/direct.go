// File: internal/session/direct.go
package session

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/novaact-mcp/internal/engine"
)

// Direct-action templates. Instructions matching one of these exactly are
// executed as a single page operation, bypassing the planner entirely.
var (
	directClickPattern    = regexp.MustCompile(`(?i)^click element '([^']+)'$`)
	directTypePattern     = regexp.MustCompile(`(?i)^type '([^']*)' into element '([^']+)'$`)
	directNavigatePattern = regexp.MustCompile(`(?i)^navigate to '([^']+)'$`)
)

type directKind string

const (
	directClick    directKind = "click"
	directType     directKind = "type"
	directNavigate directKind = "navigate"
)

// directAction is a recognized fast-path instruction.
type directAction struct {
	kind     directKind
	selector string
	value    string
	url      string
}

// matchDirectAction reports whether the instruction matches one of the
// fast-path templates. Matching is case-insensitive on the template
// words; the quoted payloads are taken verbatim.
func matchDirectAction(instruction string) (*directAction, bool) {
	trimmed := strings.TrimSpace(instruction)

	if m := directClickPattern.FindStringSubmatch(trimmed); m != nil {
		return &directAction{kind: directClick, selector: m[1]}, true
	}
	if m := directTypePattern.FindStringSubmatch(trimmed); m != nil {
		return &directAction{kind: directType, value: m[1], selector: m[2]}, true
	}
	if m := directNavigatePattern.FindStringSubmatch(trimmed); m != nil {
		return &directAction{kind: directNavigate, url: m[1]}, true
	}
	return nil, false
}

// apply executes the fast-path action against the page and returns a
// human-readable summary of what was done.
func (d *directAction) apply(ctx context.Context, page engine.Page) (string, error) {
	switch d.kind {
	case directClick:
		if err := page.Click(ctx, d.selector); err != nil {
			return "", err
		}
		return fmt.Sprintf("Clicked element '%s'", d.selector), nil
	case directType:
		if err := page.Fill(ctx, d.selector, d.value); err != nil {
			return "", err
		}
		return fmt.Sprintf("Typed '%s' into element '%s'", d.value, d.selector), nil
	case directNavigate:
		if err := page.Navigate(ctx, d.url); err != nil {
			return "", err
		}
		return fmt.Sprintf("Navigated to %s", d.url), nil
	default:
		return "", fmt.Errorf("unknown direct action %q", d.kind)
	}
}
