// Package markdown derives preview text and tags from note content.
package markdown

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// DefaultSummaryLen is the rune limit used by Parse.
const DefaultSummaryLen = 160

var (
	headingRe  = regexp.MustCompile(`^#{1,6}\s+(.*?)[\s#]*$`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	linkRe     = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`)
	wikilinkRe = regexp.MustCompile(`\[\[([^\]|]*)(?:\|([^\]]*))?\]\]`)
	emphasisRe = regexp.MustCompile("[*`]+|~~")
	listRe     = regexp.MustCompile(`^(?:[-*+]|\d+[.)])\s+(?:\[[ xX]\]\s+)?`)
)

// Result holds what the UI shows about a note besides its raw content.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Heading     string
	Summary     string
	Tags        []string
}

// Parse splits off YAML frontmatter and extracts the first heading, a plain
// text summary and the tags of content.
func Parse(content string) Result {
	fm, body := splitFrontmatter([]byte(content))
	return Result{
		Frontmatter: fm,
		Body:        body,
		Heading:     firstHeading(body),
		Summary:     Summary(body, DefaultSummaryLen),
		Tags:        extractTags(body, fm),
	}
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the body. Without valid frontmatter the entire content is body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}
	after := rest[idx+1+len(delim):]

	var fm map[string]any
	if err := yaml.Unmarshal(rest[:idx], &fm); err != nil {
		return nil, string(data)
	}
	return fm, strings.TrimLeft(string(after), "\n\r")
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if m := headingRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			return m[1]
		}
	}
	return ""
}

// Summary returns the first paragraph of body as plain text, cut to max runes
// with a trailing ellipsis. Headings, code fences and rules are skipped.
func Summary(body string, max int) string {
	var words []string
	inFence := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if trimmed == "" {
			if len(words) > 0 {
				break
			}
			continue
		}
		if headingRe.MatchString(trimmed) || isRule(trimmed) {
			if len(words) > 0 {
				break
			}
			continue
		}
		words = append(words, strings.Fields(plain(trimmed))...)
	}
	return truncate(strings.Join(words, " "), max)
}

func plain(line string) string {
	line = strings.TrimLeft(line, "> ")
	line = listRe.ReplaceAllString(line, "")
	line = wikilinkRe.ReplaceAllStringFunc(line, func(m string) string {
		sub := wikilinkRe.FindStringSubmatch(m)
		if sub[2] != "" {
			return sub[2]
		}
		return sub[1]
	})
	line = linkRe.ReplaceAllString(line, "$1")
	return emphasisRe.ReplaceAllString(line, "")
}

func isRule(line string) bool {
	if len(line) < 3 {
		return false
	}
	for _, c := range []string{"-", "*", "_"} {
		if strings.Trim(line, c+" ") == "" {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimRight(string(r[:max-1]), " ") + "…"
}

// extractTags collects #tags from the body and the frontmatter "tags" list.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	if raw, ok := fm["tags"].([]any); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	}

	inFence := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		for _, m := range tagRe.FindAllStringSubmatch(line, -1) {
			add(m[1])
		}
	}
	return out
}
