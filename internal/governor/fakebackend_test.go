package governor

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethervoxai/governor/internal/llm"
)

// fakeBackend is a deterministic, scriptable llm.Backend: Tokenize
// maps text to synthetic token ids (each "<...>" marker is one token,
// the rest is split on spaces with each space kept on the following
// word; ids are stable within a single fakeBackend instance), and each
// ResetSampler call loads the next pre-scripted output string, which
// Sample then replays one token per call, ending with the eog token.
type fakeBackend struct {
	vocab    map[string]llm.Token
	words    []string // index -> word, inverse of vocab
	eog      llm.Token
	script   []string // generation outputs, one consumed per ResetSampler call
	scriptAt int
	curWords []llm.Token // tokens of the current script entry, consumed one per Sample call

	decoded []llm.Batch // every Decode call, for assertions
	kvPos   int
}

func newFakeBackend(script ...string) *fakeBackend {
	b := &fakeBackend{vocab: make(map[string]llm.Token), script: script}
	b.eog = b.intern("<eog>")
	return b
}

func (b *fakeBackend) intern(word string) llm.Token {
	if t, ok := b.vocab[word]; ok {
		return t
	}
	t := llm.Token(len(b.words))
	b.vocab[word] = t
	b.words = append(b.words, word)
	return t
}

func (b *fakeBackend) Tokenize(text string) ([]llm.Token, error) {
	if text == "" {
		return nil, nil
	}
	fields := splitKeepingTags(text)
	out := make([]llm.Token, 0, len(fields))
	for _, f := range fields {
		out = append(out, b.intern(f))
	}
	return out, nil
}

// splitKeepingTags splits text into fake vocabulary pieces: "<...>"
// framing markers become one atomic token each, and everything between
// them is split on spaces with the space folded into the *following*
// piece (mirroring the leading-space convention real BPE tokenizers
// use) so that concatenating TokenText results reconstructs the
// original text exactly.
func splitKeepingTags(text string) []string {
	var out []string
	i := 0
	for i < len(text) {
		if text[i] == '<' {
			j := strings.IndexByte(text[i:], '>')
			if j == -1 {
				out = append(out, text[i:])
				break
			}
			out = append(out, text[i:i+j+1])
			i += j + 1
			continue
		}
		start := i
		for i < len(text) && text[i] != '<' {
			i++
		}
		out = append(out, splitRunPreservingSpaces(text[start:i])...)
	}
	return out
}

// splitRunPreservingSpaces splits a tag-free run on spaces, attaching
// each space to the start of the word that follows it.
func splitRunPreservingSpaces(run string) []string {
	var out []string
	var cur strings.Builder
	for i := 0; i < len(run); i++ {
		if run[i] == ' ' {
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			cur.WriteByte(' ')
			continue
		}
		cur.WriteByte(run[i])
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func (b *fakeBackend) TokenText(t llm.Token) string {
	if int(t) < 0 || int(t) >= len(b.words) {
		return ""
	}
	return b.words[t]
}

func (b *fakeBackend) IsEndOfGeneration(t llm.Token) bool { return t == b.eog }

func (b *fakeBackend) Decode(ctx context.Context, batch llm.Batch) error {
	b.decoded = append(b.decoded, batch)
	b.kvPos = batch.StartPos + len(batch.Tokens)
	return nil
}

func (b *fakeBackend) ResetSampler(params llm.SamplerParams) {
	if b.scriptAt < len(b.script) {
		toks, _ := b.Tokenize(b.script[b.scriptAt])
		b.curWords = append(toks, b.eog)
		b.scriptAt++
	} else {
		b.curWords = []llm.Token{b.eog}
	}
}

func (b *fakeBackend) Sample(ctx context.Context) (llm.Token, error) {
	if len(b.curWords) == 0 {
		return b.eog, nil
	}
	tok := b.curWords[0]
	b.curWords = b.curWords[1:]
	return tok, nil
}

func (b *fakeBackend) RemoveRange(fromPos int) error { return nil }

func (b *fakeBackend) ContextSize() int { return 8192 }

// fakeLoader always returns the same pre-built fakeBackend, ignoring
// LoadOptions — model-file mechanics are out of scope for the
// Governor's own tests.
type fakeLoader struct{ backend *fakeBackend }

func (l fakeLoader) Load(ctx context.Context, opts llm.LoadOptions) (llm.Backend, error) {
	return l.backend, nil
}

// failingLoader always errors, for testing LoadModel's error path.
type failingLoader struct{}

func (failingLoader) Load(ctx context.Context, opts llm.LoadOptions) (llm.Backend, error) {
	return nil, fmt.Errorf("fake load failure")
}
