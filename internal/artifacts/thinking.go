// File: internal/artifacts/thinking.go
package artifacts

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// thoughtNodeClass marks reasoning blocks inside engine HTML logs.
const thoughtNodeClass = "agent-thought"

// defaultLinePatterns match reasoning lines in raw engine output. The
// capture group is the thought text.
var defaultLinePatterns = []string{
	`think\("((?:[^"\\]|\\.)*)"\)`,
}

// Extractor pulls agent reasoning out of engine artifacts. Extraction is
// best effort: no matches yields an empty result, never an error.
type Extractor struct {
	patterns []*regexp.Regexp
}

// DebugInfo reports where an extraction found its matches.
type DebugInfo struct {
	Source     string `json:"source"`
	HTMLPath   string `json:"html_path,omitempty"`
	MatchCount int    `json:"match_count"`
}

// NewExtractor compiles the given line patterns, falling back to the
// defaults when none are supplied.
func NewExtractor(patterns ...string) (*Extractor, error) {
	if len(patterns) == 0 {
		patterns = defaultLinePatterns
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid thinking pattern %q: %w", p, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("thinking pattern %q needs a capture group", p)
		}
		compiled = append(compiled, re)
	}
	return &Extractor{patterns: compiled}, nil
}

// Extract collects reasoning from the HTML log first and falls back to the
// raw output lines. Duplicates are removed, order preserved.
func (e *Extractor) Extract(htmlLogPath string, rawLines []string) ([]string, DebugInfo) {
	if htmlLogPath != "" {
		if thoughts := extractFromHTML(htmlLogPath); len(thoughts) > 0 {
			return dedupe(thoughts), DebugInfo{Source: "html_log", HTMLPath: htmlLogPath, MatchCount: len(thoughts)}
		}
	}

	var thoughts []string
	for _, line := range rawLines {
		for _, re := range e.patterns {
			for _, m := range re.FindAllStringSubmatch(line, -1) {
				if t := strings.TrimSpace(unescapeQuotes(m[1])); t != "" {
					thoughts = append(thoughts, t)
				}
			}
		}
	}
	info := DebugInfo{Source: "raw_output", HTMLPath: htmlLogPath, MatchCount: len(thoughts)}
	if len(thoughts) == 0 {
		info.Source = "none"
	}
	return dedupe(thoughts), info
}

func extractFromHTML(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return nil
	}

	var thoughts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, thoughtNodeClass) {
			if t := strings.TrimSpace(nodeText(n)); t != "" {
				thoughts = append(thoughts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return thoughts
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func unescapeQuotes(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	return strings.ReplaceAll(s, `\\`, `\`)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
