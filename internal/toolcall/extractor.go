// Package toolcall implements the Tool-Call Extractor & Argument
// Builder: a permissive scanner over generated text that recognizes
// self-closing <tool_call .../> markup, harvests its attributes, and
// builds the JSON payload a registered tool's dispatch function
// expects. It is deliberately not a conformant XML or JSON parser —
// partial or malformed markup during streaming must not raise errors,
// only be ignored and scanned past.
package toolcall

import (
	"regexp"
	"strconv"
	"strings"
)

// Call is one extracted tool invocation.
type Call struct {
	Name     string
	ArgsJSON string
}

// Error reports a per-call extraction failure: a tag was found but
// could not be turned into a Call. Extraction continues past it.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return e.Reason }

// recognizedAttrs is the fixed set of attribute keys the argument
// builder understands at dispatch time; the registry does not
// introspect a tool's schema to decide this set.
var recognizedAttrs = map[string]bool{
	"expression": true, "value": true, "percentage": true, "operation": true,
	"from": true, "to": true, "amount": true, "duration_seconds": true,
	"label": true, "hour": true, "minute": true, "decimal_places": true,
	"query": true, "name": true, "tags": true, "area": true, "description": true,
}

var tagPattern = regexp.MustCompile(`<tool_call\b([^>]*?)/>`)
var confidencePattern = regexp.MustCompile(`<confidence\b([^>]*?)/>`)
var attrPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*=\s*"([^"]*)"`)
var numericPattern = regexp.MustCompile(`^[+-]?[0-9]+(\.[0-9]+)?$`)

// Extract locates successive self-closing <tool_call .../> occurrences
// in text. Non-self-closing forms are ignored. At most maxCalls are
// returned; additional occurrences are counted in the third return
// value, truncated (callers log it as a "too-many-calls" warning).
func Extract(text string, maxCalls int) (calls []Call, callErrs []error, truncated int) {
	matches := tagPattern.FindAllStringSubmatch(text, -1)
	for i, m := range matches {
		if len(calls) >= maxCalls {
			truncated = len(matches) - i
			break
		}
		attrsRaw := m[1]
		attrs := parseAttrs(attrsRaw)
		name, ok := attrs["name"]
		if !ok || name == "" {
			callErrs = append(callErrs, &Error{Reason: "tool_call missing required \"name\" attribute"})
			continue
		}
		argsJSON := buildArgsJSON(attrs)
		calls = append(calls, Call{Name: name, ArgsJSON: argsJSON})
	}
	return calls, callErrs, truncated
}

// ExtractConfidence locates a self-closing <confidence value="X" />
// occurrence and returns its numeric value clamped into [0,1]. The
// scan is as permissive as Extract's: malformed tags, a missing or
// non-numeric value attribute, and non-self-closing forms are ignored
// rather than reported. The last well-formed occurrence wins, since a
// model that revises its confidence mid-answer means the later value.
// found reports whether any usable occurrence existed, and stripped is
// text with every matched confidence tag removed so the markup never
// reaches the returned response.
func ExtractConfidence(text string) (value float64, found bool, stripped string) {
	stripped = text
	matches := confidencePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0, false, stripped
	}
	for _, m := range matches {
		raw, ok := parseAttrs(m[1])["value"]
		if !ok || !numericPattern.MatchString(raw) {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		value, found = v, true
	}
	if found {
		stripped = strings.TrimSpace(confidencePattern.ReplaceAllString(text, ""))
	}
	return value, found, stripped
}

// parseAttrs extracts name="value" pairs, tolerating arbitrary
// whitespace between attributes.
func parseAttrs(s string) map[string]string {
	out := make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(s, -1) {
		out[m[1]] = m[2]
	}
	return out
}

// buildArgsJSON assembles a JSON object from the recognized attribute
// set, coercing each value to a bare numeric or a quoted string by
// shape. The "name" attribute (the tool's own name, not an argument)
// is excluded.
func buildArgsJSON(attrs map[string]string) string {
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	for key, val := range attrs {
		if key == "name" {
			continue
		}
		if !recognizedAttrs[key] {
			continue
		}
		if !first {
			sb.WriteByte(',')
		}
		first = false
		sb.WriteByte('"')
		sb.WriteString(key)
		sb.WriteString(`":`)
		if numericPattern.MatchString(val) {
			sb.WriteString(val)
		} else {
			sb.WriteString(strconv.Quote(val))
		}
	}
	sb.WriteByte('}')
	return sb.String()
}

// HasOpenTag reports whether the accumulator contains a tool-call or
// confidence tag start that has not yet been closed with "/>" — used
// by the streaming suppression filter to decide whether generation is
// mid-markup.
func HasOpenTag(acc string) bool {
	for _, open := range []string{"<tool_call", "<confidence"} {
		idx := strings.LastIndex(acc, open)
		if idx != -1 && !strings.Contains(acc[idx:], "/>") {
			return true
		}
	}
	return false
}

// partialTagPrefixes are the tails that could still grow into
// "<tool_call" or "<confidence" with more sampled tokens.
var partialTagPrefixes = buildPartialPrefixes("<tool_call", "<confidence")

func buildPartialPrefixes(tags ...string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tag := range tags {
		for i := 1; i <= len(tag); i++ {
			p := tag[:i]
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// IsPartialTagTail reports whether the accumulator's tail is a prefix
// of a recognized tag that hasn't yet committed to being the start of
// markup or something else.
func IsPartialTagTail(acc string) bool {
	for _, p := range partialTagPrefixes {
		if strings.HasSuffix(acc, p) {
			return true
		}
	}
	return false
}
