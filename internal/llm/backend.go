// Package llm specifies the interface the Governor consumes from an LLM
// inference backend. The backend itself — token sampling, decode,
// tokenization primitives — is an external collaborator and is not
// implemented in this module; this package only fixes the contract.
package llm

import "context"

// Token is a single vocabulary token id.
type Token int32

// Batch is a contiguous run of tokens to decode into sequence 0 of the
// backend's KV cache, starting at StartPos. RequestLogitsAt names the
// index within Tokens that logits should be computed for (-1 for none);
// the Governor requests logits on the last token of a batch that the
// next sample continues from (the final model-load chunk, a catch-up
// decode, a fed-back sampled token, a tool-result suffix) and passes -1
// for earlier model-load chunks and for a tool result's prefix and body.
type Batch struct {
	Tokens          []Token
	StartPos        int
	RequestLogitsAt int
}

// SamplerParams configures the sampler chain used during generation.
// A fresh chain is initialized at the start of every iteration's
// generation phase.
type SamplerParams struct {
	RepeatPenalty    float64
	FrequencyPenalty float64
	PresencePenalty  float64
	RepeatLastN      int
	Temperature      float64
	Seed             uint32
}

// Backend is the external LLM inference collaborator. Implementations
// wrap a concrete model runtime (e.g. a GGUF/llama.cpp binding); none
// ships in this module.
type Backend interface {
	// Tokenize converts text to a token sequence. Returns an error of
	// kind tokenize-failed on failure.
	Tokenize(text string) ([]Token, error)

	// TokenText returns the text piece a single sampled token decodes to.
	TokenText(t Token) string

	// IsEndOfGeneration reports whether t is the vocabulary's
	// end-of-generation token.
	IsEndOfGeneration(t Token) bool

	// Decode appends batch to sequence 0 of the KV cache. Returns an
	// error of kind decode-failed on failure.
	Decode(ctx context.Context, batch Batch) error

	// ResetSampler (re)initializes the sampler chain for a new
	// generation phase: repetition/frequency/presence penalties with
	// the configured last-N window, then temperature, then a
	// distribution sampler seeded per params.
	ResetSampler(params SamplerParams)

	// Sample draws the next token from the current sampler chain.
	Sample(ctx context.Context) (Token, error)

	// RemoveRange removes KV-cache positions [fromPos, ∞) from
	// sequence 0, used for the per-execute session reset.
	RemoveRange(fromPos int) error

	// ContextSize returns the configured context window in tokens.
	ContextSize() int
}

// LoadOptions configures model load. Fields map directly onto the
// model-load procedure's GPU offload, memory-mapping, KV-cache
// quantization, context window, batch size, threads, and
// flash-attention parameters.
type LoadOptions struct {
	ModelPath        string
	ContextWindow    int
	BatchSize        int
	Threads          int
	GPUOffloadLayers int
	FlashAttention   bool
	KVCacheQuantBits int
	MemoryMapped     bool
}

// Loader constructs a Backend from a model artifact. Kept distinct from
// Backend so test doubles can substitute a fake backend without also
// faking model-loading mechanics.
type Loader interface {
	Load(ctx context.Context, opts LoadOptions) (Backend, error)
}
