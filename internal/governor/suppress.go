package governor

import (
	"strings"

	"github.com/ethervoxai/governor/internal/chattemplate"
	"github.com/ethervoxai/governor/internal/toolcall"
)

// briefAnswerTokenBudget caps the generation that follows a dispatched
// tool call: once a result has been spliced in, the model's job is a
// short natural-language answer, not another long turn.
const briefAnswerTokenBudget = 32

// stopFragments are token-text fragments that must never reach
// token_cb even outside a recognized tool-call, since they are pieces
// of framing/stop markup the model should not leak to a listener.
var stopFragments = []string{"im_end", "im_start", "|>", "<|", "<", ">", "|"}

// shouldForward implements the streaming filter: a token is forwarded
// to token_cb only if all of the listed conditions hold. acc is the
// accumulator *after* the candidate token has been appended; tokenText
// is the candidate token's own decoded text.
func shouldForward(tpl *chattemplate.Template, acc, tokenText string) bool {
	if toolcall.HasOpenTag(acc) {
		return false
	}
	if toolcall.IsPartialTagTail(acc) {
		return false
	}
	for _, frag := range stopFragments {
		if strings.Contains(tokenText, frag) {
			return false
		}
	}
	if chattemplate.HasStopSequence(tpl, acc) || strings.Contains(acc, "STOP") {
		return false
	}
	return true
}

// shouldStopGeneration implements the stop-sequence detection and the
// hallucination-detection half of the early-stop heuristics: both
// return the index to truncate the accumulator at, and whether to
// stop.
func shouldStopGeneration(tpl *chattemplate.Template, acc string) (truncateAt int, stop bool) {
	if idx := firstStopSequenceIndex(tpl, acc); idx >= 0 {
		return idx, true
	}
	if idx := strings.Index(acc, "<|im_start|>"); idx >= 0 {
		return idx, true
	}
	return 0, false
}

func firstStopSequenceIndex(tpl *chattemplate.Template, acc string) int {
	best := -1
	for _, stop := range tpl.StopSequences {
		if idx := strings.Index(acc, stop); idx >= 0 {
			if best == -1 || idx < best {
				best = idx
			}
		}
	}
	if idx := strings.Index(acc, "STOP"); idx >= 0 {
		if best == -1 || idx < best {
			best = idx
		}
	}
	return best
}

// toolCallEmitted reports whether acc contains a complete self-closing
// tool-call occurrence, used for early-stop heuristic (i).
func toolCallEmitted(acc string) bool {
	idx := strings.Index(acc, "<tool_call")
	if idx == -1 {
		return false
	}
	return strings.Contains(acc[idx:], "/>")
}
