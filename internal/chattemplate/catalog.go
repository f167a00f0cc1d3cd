// Package chattemplate provides the immutable per-model-family chat
// framing catalog the Governor uses to wrap system, user, and assistant
// turns and to recognize generation stop sequences.
package chattemplate

import "strings"

// Template is an immutable record of the framing tokens for one model
// family. Templates carry no mutable state and are safe to share across
// goroutines.
type Template struct {
	FamilyTag string

	SystemOpen, SystemClose       string
	UserOpen, UserClose           string
	AssistantOpen, AssistantClose string
	ToolResultOpen, ToolResultClose string

	// StopSequences holds at most 8 stop markers; generation halts
	// when the accumulator contains any of these substrings.
	StopSequences []string
}

const maxStopSequences = 8

var catalog = []Template{
	{
		FamilyTag:        "qwen",
		SystemOpen:       "<|im_start|>system\n",
		SystemClose:      "<|im_end|>\n",
		UserOpen:         "<|im_start|>user\n",
		UserClose:        "<|im_end|>\n",
		AssistantOpen:    "<|im_start|>assistant\n",
		AssistantClose:   "<|im_end|>\n",
		ToolResultOpen:   "<tool_result>",
		ToolResultClose:  "</tool_result>",
		StopSequences:    []string{"<|im_end|>", "<|im_start|>", "<|endoftext|>"},
	},
	{
		FamilyTag:        "granite",
		SystemOpen:       "<|start_of_role|>system<|end_of_role|>",
		SystemClose:      "<|end_of_text|>\n",
		UserOpen:         "<|start_of_role|>user<|end_of_role|>",
		UserClose:        "<|end_of_text|>\n",
		AssistantOpen:    "<|start_of_role|>assistant<|end_of_role|>",
		AssistantClose:   "<|end_of_text|>\n",
		ToolResultOpen:   "<tool_result>",
		ToolResultClose:  "</tool_result>",
		StopSequences:    []string{"<|end_of_text|>", "<|start_of_role|>"},
	},
	{
		FamilyTag:        "phi",
		SystemOpen:       "<|system|>\n",
		SystemClose:      "<|end|>\n",
		UserOpen:         "<|user|>\n",
		UserClose:        "<|end|>\n",
		AssistantOpen:    "<|assistant|>\n",
		AssistantClose:   "<|end|>\n",
		ToolResultOpen:   "<tool_result>",
		ToolResultClose:  "</tool_result>",
		StopSequences:    []string{"<|end|>", "<|user|>", "<|system|>"},
	},
	{
		FamilyTag:        "llama-3",
		SystemOpen:       "<|start_header_id|>system<|end_header_id|>\n\n",
		SystemClose:      "<|eot_id|>",
		UserOpen:         "<|start_header_id|>user<|end_header_id|>\n\n",
		UserClose:        "<|eot_id|>",
		AssistantOpen:    "<|start_header_id|>assistant<|end_header_id|>\n\n",
		AssistantClose:   "<|eot_id|>",
		ToolResultOpen:   "<tool_result>",
		ToolResultClose:  "</tool_result>",
		StopSequences:    []string{"<|eot_id|>", "<|end_of_text|>"},
	},
}

const defaultFamily = "qwen"

func init() {
	for _, t := range catalog {
		if len(t.StopSequences) > maxStopSequences {
			panic("chattemplate: " + t.FamilyTag + " exceeds max stop sequences")
		}
	}
}

// Detect returns the family tag whose substring (case-insensitive)
// appears in modelPath, or the default family if none match. Checked
// in catalog order, so list more specific tags first.
func Detect(modelPath string) string {
	lower := strings.ToLower(modelPath)
	for _, t := range catalog {
		tag := t.FamilyTag
		if tag == "llama-3" {
			if strings.Contains(lower, "llama-3") || strings.Contains(lower, "llama3") {
				return tag
			}
			continue
		}
		if strings.Contains(lower, tag) {
			return tag
		}
	}
	return defaultFamily
}

// Get returns the template for familyTag, or for the family detected
// from modelPath when familyTag is "auto" or empty.
func Get(familyTag, modelPath string) *Template {
	tag := familyTag
	if tag == "" || tag == "auto" {
		tag = Detect(modelPath)
	}
	for i := range catalog {
		if catalog[i].FamilyTag == tag {
			return &catalog[i]
		}
	}
	for i := range catalog {
		if catalog[i].FamilyTag == defaultFamily {
			return &catalog[i]
		}
	}
	return nil
}

// HasStopSequence reports whether text contains any of template's stop
// sequences as a substring.
func HasStopSequence(t *Template, text string) bool {
	for _, stop := range t.StopSequences {
		if strings.Contains(text, stop) {
			return true
		}
	}
	return false
}

// FormatSystem wraps content between the template's system-open and
// system-close markers.
func FormatSystem(t *Template, content string) string {
	return t.SystemOpen + content + t.SystemClose
}

// FormatUser wraps content between the template's user-open and
// user-close markers.
func FormatUser(t *Template, content string) string {
	return t.UserOpen + content + t.UserClose
}

// ToolResultPrefix returns the pre-tokenizable prefix framing a tool
// result: user_open followed by the tool-result open marker.
func ToolResultPrefix(t *Template) string {
	return t.UserOpen + t.ToolResultOpen
}

// ToolResultSuffix returns the pre-tokenizable suffix framing a tool
// result: tool-result close, user_close, then assistant_open.
func ToolResultSuffix(t *Template) string {
	return t.ToolResultClose + t.UserClose + t.AssistantOpen
}
