package registry

import (
	"fmt"
	"strings"
)

const (
	// maxCorrectionsInPrompt and maxPatternsInPrompt bound the number
	// of memory-store entries interpolated into the system prompt, per
	// the "bounded by a small constant, e.g., 5 each" guidance.
	maxCorrectionsInPrompt = 5
	maxPatternsInPrompt    = 5
)

// Platform selects the terseness of the system-prompt preamble. This is
// a design hint, not a functional contract: both variants must still
// cause the model to emit well-formed <tool_call ... /> markup.
type Platform int

const (
	PlatformDesktop Platform = iota
	PlatformMobile
)

const desktopPreamble = `You are the reasoning core of a local, on-device voice assistant.
You answer directly when you can. When the user's request requires an
action or a lookup only a tool can perform, call exactly one tool per
turn using the form below, then wait for its result before continuing.`

const mobilePreamble = `You are an on-device voice assistant. Answer directly when you can.
Call a tool only when the request needs one.`

// toolCallFormatLine documents the wire format a model must produce to
// invoke a tool; interpolated verbatim into the synthesized prompt.
const toolCallFormatLine = `Tool call format: <tool_call name="TOOL_NAME" attr="value" />`

// MemoryPromptEntries is the subset of the Memory Store's corrections
// and patterns the prompt builder needs; kept narrow to avoid an
// import cycle between registry and memstore.
type MemoryPromptEntries interface {
	RecentCorrections(limit int) []string
	RecentPatterns(limit int) []string
}

// BuildSystemPrompt synthesizes the system prompt: the chat template's
// system-open frame, a platform-sensitivity preamble, the enumerated
// tool list, optional USER CORRECTIONS / SUCCESSFUL PATTERNS sections
// drawn from the memory store, a handful of exemplar tool-call lines,
// and the system-close frame.
//
// systemOpen/systemClose are supplied by the caller (the chat template)
// rather than imported directly, keeping registry independent of
// chattemplate.
func BuildSystemPrompt(r *Registry, systemOpen, systemClose string, platform Platform, mem MemoryPromptEntries) string {
	var sb strings.Builder
	sb.WriteString(systemOpen)

	if platform == PlatformMobile {
		sb.WriteString(mobilePreamble)
	} else {
		sb.WriteString(desktopPreamble)
	}
	sb.WriteString("\n\n")

	sb.WriteString("## Available tools\n")
	for _, name := range r.sortedNames() {
		t := r.Find(name)
		if t == nil {
			continue
		}
		fmt.Fprintf(&sb, "- %s — %s\n", t.Name, t.Description)
	}

	if mem != nil {
		if corrections := mem.RecentCorrections(maxCorrectionsInPrompt); len(corrections) > 0 {
			sb.WriteString("\n## USER CORRECTIONS\n")
			for _, c := range corrections {
				sb.WriteString("- ")
				sb.WriteString(c)
				sb.WriteString("\n")
			}
		}
		if patterns := mem.RecentPatterns(maxPatternsInPrompt); len(patterns) > 0 {
			sb.WriteString("\n## SUCCESSFUL PATTERNS\n")
			for _, p := range patterns {
				sb.WriteString("- ")
				sb.WriteString(p)
				sb.WriteString("\n")
			}
		}
	}

	sb.WriteString("\n## Usage\n")
	sb.WriteString(toolCallFormatLine)
	sb.WriteString("\n")
	sb.WriteString(exemplarLines(r))

	sb.WriteString(systemClose)
	return sb.String()
}

// maxExemplars bounds the 1-4 exemplar tool-call lines the data model
// calls for.
const maxExemplars = 4

// exemplarLines returns up to maxExemplars example tool-call lines,
// one per registered tool in registration order, using a tool's
// optimized per-model-family example when SetOptimizedPrompt has
// installed one.
func exemplarLines(r *Registry) string {
	var sb strings.Builder
	n := 0
	for _, t := range r.List() {
		if n >= maxExemplars {
			break
		}
		ex, ok := r.exemplarFor(t.Name)
		if !ok {
			continue
		}
		sb.WriteString(ex)
		sb.WriteString("\n")
		n++
	}
	return sb.String()
}

// exemplarFor returns a tool-call example line for name, preferring an
// optimized example persisted by the Prompt-Optimizer over the generic
// fallback derived from the tool's schema.
func (r *Registry) exemplarFor(name string) (string, bool) {
	r.mu.RLock()
	ex, ok := r.optimizedExamples[name]
	r.mu.RUnlock()
	if ok {
		return ex, true
	}
	t := r.Find(name)
	if t == nil {
		return "", false
	}
	return fmt.Sprintf(`Example: <tool_call name=%q />`, t.Name), true
}

// SetOptimizedPrompt installs the per-tool "example" line the
// Prompt-Optimizer persisted for the running model's family, so the
// next BuildSystemPrompt call uses it in place of the generic fallback.
// The persisted "when" instruction is not stored here.
func (r *Registry) SetOptimizedPrompt(toolName, example string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.optimizedExamples == nil {
		r.optimizedExamples = make(map[string]string)
	}
	r.optimizedExamples[toolName] = example
}
