package governor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethervoxai/governor/internal/chattemplate"
	"github.com/ethervoxai/governor/internal/llm"
	"github.com/ethervoxai/governor/internal/registry"
	"github.com/ethervoxai/governor/internal/toolcall"
)

// Config mirrors the Governor Config data model: confidence_threshold
// (default 0.85), max_iterations (default 5),
// max_tool_calls_per_iteration (default 10), timeout_seconds (default
// 30), max_tokens_per_response (default 2048).
type Config struct {
	ConfidenceThreshold      float64
	MaxIterations            int
	MaxToolCallsPerIteration int
	TimeoutSeconds           int
	MaxTokensPerResponse     int
}

// DefaultConfig returns the Governor Config defaults named in the data
// model.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold:      0.85,
		MaxIterations:            5,
		MaxToolCallsPerIteration: 10,
		TimeoutSeconds:           30,
		MaxTokensPerResponse:     2048,
	}
}

// Governor owns the KV-cache position counter and drives the LLM
// through the reasoning loop. The zero value is not usable; construct
// with New.
type Governor struct {
	mu sync.Mutex

	config   Config
	registry *registry.Registry
	logger   *slog.Logger
	metrics  *Metrics

	loader  llm.Loader
	backend llm.Backend
	tpl     *chattemplate.Template

	modelPath              string
	systemPromptTokenCount int
	currentKVPos           int
	prefixTokensCached     []llm.Token
	suffixTokensCached     []llm.Token
	lastIterationCount     int

	state State

	executing sync.Mutex // held for the duration of one Execute call

	memPrompt registry.MemoryPromptEntries
}

// New constructs a Governor in state UNINITIALIZED.
func New(logger *slog.Logger) *Governor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Governor{logger: logger, state: StateUninitialized, metrics: newMetrics()}
}

// Init materializes the Governor with either supplied config or
// DefaultConfig, and captures (without mutating) the registry
// reference.
func (g *Governor) Init(cfg *Config, reg *registry.Registry, loader llm.Loader, mem registry.MemoryPromptEntries) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateUninitialized {
		return ErrAlreadyInitialized
	}
	if reg == nil {
		return fmt.Errorf("%w: registry is required", ErrInvalidArgument)
	}

	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}

	g.config = c
	g.registry = reg
	g.loader = loader
	g.memPrompt = mem
	g.currentKVPos = 0
	g.state = StateInitialized
	return nil
}

// LoadModel initializes the LLM backend, loads the model artifact,
// creates an inference context, synthesizes and decodes the system
// prompt, and pre-tokenizes the tool-result framing prefix/suffix.
func (g *Governor) LoadModel(ctx context.Context, modelPath string, platform registry.Platform, opts llm.LoadOptions) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateUninitialized {
		return ErrNotInitialized
	}
	if g.loader == nil {
		return fmt.Errorf("%w: no backend loader configured", ErrInvalidArgument)
	}

	opts.ModelPath = modelPath
	backend, err := g.loader.Load(ctx, opts)
	if err != nil {
		return fmt.Errorf("governor: load model: %w", err)
	}

	tpl := chattemplate.Get("auto", modelPath)
	systemPrompt := registry.BuildSystemPrompt(g.registry, tpl.SystemOpen, tpl.SystemClose, platform, g.memPrompt)

	tokens, err := backend.Tokenize(systemPrompt)
	if err != nil {
		return fmt.Errorf("governor: tokenize system prompt: %w", err)
	}

	const chunkSize = 1024
	pos := 0
	for pos < len(tokens) {
		end := pos + chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		isLastChunk := end == len(tokens)
		requestLogits := -1
		if isLastChunk {
			requestLogits = (end - pos) - 1
		}
		if err := backend.Decode(ctx, llm.Batch{Tokens: tokens[pos:end], StartPos: pos, RequestLogitsAt: requestLogits}); err != nil {
			return fmt.Errorf("governor: decode system prompt: %w", err)
		}
		pos = end
	}

	prefixTokens, err := backend.Tokenize(chattemplate.ToolResultPrefix(tpl))
	if err != nil {
		return fmt.Errorf("governor: tokenize tool-result prefix: %w", err)
	}
	suffixTokens, err := backend.Tokenize(chattemplate.ToolResultSuffix(tpl))
	if err != nil {
		return fmt.Errorf("governor: tokenize tool-result suffix: %w", err)
	}

	g.backend = backend
	g.tpl = tpl
	g.modelPath = modelPath
	g.systemPromptTokenCount = len(tokens)
	g.currentKVPos = len(tokens)
	g.prefixTokensCached = prefixTokens
	g.suffixTokensCached = suffixTokens
	g.state = StateModelLoaded
	return nil
}

// ToolExecutor dispatches a tool call by name against the registry,
// returning ErrToolUnavailable via a *registry.ErrToolUnavailable when
// the tool is not registered.
type ToolExecutor struct {
	Registry *registry.Registry
	DCtx     registry.DispatchContext
}

func (e ToolExecutor) execute(ctx context.Context, name, argsJSON string) (string, error) {
	t := e.Registry.Find(name)
	if t == nil {
		return "", &registry.ErrToolUnavailable{ToolName: name}
	}
	if err := registry.ValidateArgs(t, argsJSON); err != nil {
		e.logValidationWarning(name, err)
	}
	return t.Dispatch(ctx, e.DCtx, argsJSON)
}

func (e ToolExecutor) logValidationWarning(name string, err error) {
	slog.Default().Warn("governor: tool arguments failed schema validation", "tool", name, "error", err)
}

// Execute runs the reasoning loop for one user query: iteratively
// decode, generate, extract tool calls, dispatch, and splice results
// back into the context, until an answer is produced, the iteration
// budget is exhausted, or the timeout fires.
func (g *Governor) Execute(ctx context.Context, userQuery string, dctx registry.DispatchContext, progressCB ProgressCallback, tokenCB TokenCallback) (Status, string, error, ExecutionMetrics) {
	g.mu.Lock()
	state := g.state
	g.mu.Unlock()

	if state != StateModelLoaded && state != StateExecuting {
		if state == StateUninitialized || state == StateInitialized {
			return StatusError, "", ErrNotLoaded, ExecutionMetrics{}
		}
		return StatusError, "", ErrTornDown, ExecutionMetrics{}
	}
	if userQuery == "" {
		return StatusError, "", fmt.Errorf("%w: user_query is required", ErrInvalidArgument), ExecutionMetrics{}
	}

	if !g.executing.TryLock() {
		return StatusError, "", ErrConcurrentExecute, ExecutionMetrics{}
	}
	defer g.executing.Unlock()

	g.mu.Lock()
	g.state = StateExecuting
	backend := g.backend
	tpl := g.tpl
	cfg := g.config
	// Session reset: drop any conversation/tool-call state a prior
	// Execute call left in the KV cache beyond the system prompt.
	_ = backend.RemoveRange(g.systemPromptTokenCount)
	g.currentKVPos = g.systemPromptTokenCount
	g.lastIterationCount = 0
	g.mu.Unlock()

	var finalStatus Status
	var finalMetrics ExecutionMetrics
	defer func() {
		g.mu.Lock()
		g.state = StateModelLoaded
		kvPos := g.currentKVPos
		g.mu.Unlock()
		g.metrics.observeExecution(finalStatus, finalMetrics.IterationCount, kvPos)
	}()

	timer := newIterationTimer(cfg.TimeoutSeconds)
	metrics := ExecutionMetrics{}
	executor := ToolExecutor{Registry: g.registry, DCtx: dctx}

	conversation := tpl.UserOpen + userQuery + tpl.UserClose + tpl.AssistantOpen
	processedLength := 0

	emit := func(p ProgressCallback, ev ProgressEvent) {
		if p != nil {
			p(ev)
		}
	}

	// ret records the final status/metrics for the deferred Prometheus
	// observation before returning, so every exit path is covered
	// without repeating that bookkeeping at each return site.
	ret := func(status Status, response string, err error, m ExecutionMetrics) (Status, string, error, ExecutionMetrics) {
		m.Elapsed = timer.elapsed()
		finalStatus, finalMetrics = status, m
		return status, response, err, m
	}

	for iteration := 0; iteration < cfg.MaxIterations; iteration++ {
		if timer.expired() {
			return ret(StatusTimeout, "", nil, metrics)
		}
		if err := ctx.Err(); err != nil {
			return ret(StatusError, "", err, metrics)
		}

		emit(progressCB, ProgressEvent{Kind: ProgressIterationStart, Message: fmt.Sprintf("iteration %d", iteration)})
		emit(progressCB, ProgressEvent{Kind: ProgressThinking, Message: "generating"})

		if processedLength < len(conversation) {
			tail := conversation[processedLength:]
			tokens, err := backend.Tokenize(tail)
			if err != nil {
				return ret(StatusError, "", fmt.Errorf("tokenize-failed: %w", err), metrics)
			}
			if err := backend.Decode(ctx, llm.Batch{Tokens: tokens, StartPos: g.currentKVPosUnsafe(), RequestLogitsAt: len(tokens) - 1}); err != nil {
				return ret(StatusError, "", fmt.Errorf("decode-failed: %w", err), metrics)
			}
			g.advanceKVPos(len(tokens))
			processedLength = len(conversation)
		}

		acc, sampled, err := g.generate(ctx, backend, tpl, cfg, tokenCB, metrics.ToolCallsMade > 0)
		metrics.GeneratedTokens += sampled
		if err != nil {
			return ret(StatusError, "", err, metrics)
		}

		// Harvest a <confidence value="X"/> tag when the model emits
		// one. The value is informational: it is surfaced on the
		// metrics and compared to the threshold in the progress
		// message, but the success decision still rests on whether
		// tool calls were emitted.
		if conf, ok, remainder := toolcall.ExtractConfidence(acc); ok {
			acc = remainder
			metrics.Confidence = conf
			emit(progressCB, ProgressEvent{
				Kind:    ProgressConfidenceUpdate,
				Message: fmt.Sprintf("confidence %.2f (threshold %.2f)", conf, cfg.ConfidenceThreshold),
			})
		}

		calls, callErrs, truncated := toolcall.Extract(acc, cfg.MaxToolCallsPerIteration)
		if truncated > 0 {
			g.logger.Warn("governor: too-many-calls, extra occurrences ignored", "truncated", truncated)
		}
		metrics.ToolCallsMade += len(calls)
		metrics.IterationCount = iteration + 1
		g.lastIterationCount = metrics.IterationCount

		if len(calls) == 0 && len(callErrs) == 0 {
			emit(progressCB, ProgressEvent{Kind: ProgressComplete, Message: "no tool calls"})
			return ret(StatusSuccess, acc, nil, metrics)
		}

		// A failed extraction or dispatch is textual, not decoded
		// directly into the KV cache: it is appended to conversation
		// and observed uniformly by the next iteration's catch-up
		// decode, per the failure-semantics note that a <tool_error>
		// segment only reaches the cache that way. A successful
		// dispatch's result, by contrast, is spliced straight into the
		// KV cache via the pre-tokenized prefix/suffix framing so the
		// model sees it without a second tokenize pass.
		for _, cerr := range callErrs {
			conversation += fmt.Sprintf("<tool_error>%s</tool_error>", cerr.Error())
		}

		for _, call := range calls {
			emit(progressCB, ProgressEvent{Kind: ProgressToolCall, Message: call.Name})
			result, err := executor.execute(ctx, call.Name, call.ArgsJSON)
			if err != nil {
				emit(progressCB, ProgressEvent{Kind: ProgressToolError, Message: err.Error()})
				conversation += fmt.Sprintf("<tool_error>%s</tool_error>", err.Error())
			} else {
				emit(progressCB, ProgressEvent{Kind: ProgressToolResult, Message: result})
				g.feedToolResult(ctx, backend, fmt.Sprintf("<tool_result>%s</tool_result>", result))
			}
		}

		g.metrics.observeIteration(metrics.ToolCallsMade)
	}

	return ret(StatusTimeout, "", fmt.Errorf("max-iterations-reached: max iterations reached"), metrics)
}

// currentKVPosUnsafe reads currentKVPos without taking g.mu — callers
// within Execute already serialize via the executing lock, since
// registering new tools mid-execution is unsupported and no other
// Execute can be in flight concurrently.
func (g *Governor) currentKVPosUnsafe() int { return g.currentKVPos }

func (g *Governor) advanceKVPos(n int) { g.currentKVPos += n }

// generate runs the sampling loop for one iteration: initializes the
// sampler chain, then samples tokens until max_tokens_per_response,
// end-of-generation, a stop sequence, or an early-stop heuristic.
// toolCallAlreadyMade reports whether a prior iteration of this same
// Execute call dispatched a tool — the answer after tool use is
// expected to be brief, so sampling is cut off shortly past the
// brief-answer budget rather than running to max_tokens_per_response.
func (g *Governor) generate(ctx context.Context, backend llm.Backend, tpl *chattemplate.Template, cfg Config, tokenCB TokenCallback, toolCallAlreadyMade bool) (string, int, error) {
	backend.ResetSampler(llm.SamplerParams{
		RepeatPenalty:    1.1,
		FrequencyPenalty: 0,
		PresencePenalty:  0,
		RepeatLastN:      64,
		Temperature:      0.7,
		Seed:             0,
	})

	var acc strings.Builder
	generated := 0

	for generated < cfg.MaxTokensPerResponse {
		tok, err := backend.Sample(ctx)
		if err != nil {
			return "", generated, fmt.Errorf("decode-failed: sample: %w", err)
		}
		if backend.IsEndOfGeneration(tok) {
			break
		}

		text := backend.TokenText(tok)
		acc.WriteString(text)
		generated++

		if shouldForward(tpl, acc.String(), text) {
			if tokenCB != nil {
				tokenCB(text)
			}
		}

		if truncateAt, stop := shouldStopGeneration(tpl, acc.String()); stop {
			return acc.String()[:truncateAt], generated, g.feedSampledToken(ctx, backend, tok)
		}

		if err := g.feedSampledToken(ctx, backend, tok); err != nil {
			return "", generated, err
		}

		// Early-stop: a complete self-closing tool-call has been
		// emitted, so the remainder of this generation phase is pure
		// waste — stop sampling and let Execute dispatch it.
		if toolCallEmitted(acc.String()) {
			break
		}

		// Early-stop: brief answer after tool use.
		if toolCallAlreadyMade && generated > briefAnswerTokenBudget {
			break
		}
	}

	return acc.String(), generated, nil
}

// feedSampledToken decodes the sampled token into sequence 0 at
// current_kv_pos (requesting logits for it), then advances
// current_kv_pos.
func (g *Governor) feedSampledToken(ctx context.Context, backend llm.Backend, tok llm.Token) error {
	if err := backend.Decode(ctx, llm.Batch{Tokens: []llm.Token{tok}, StartPos: g.currentKVPosUnsafe(), RequestLogitsAt: 0}); err != nil {
		return fmt.Errorf("decode-failed: feed back: %w", err)
	}
	g.advanceKVPos(1)
	return nil
}

// feedToolResult splices a successful tool result into the LLM's
// context without re-tokenizing the conversation so far: decode the
// cached prefix, then tokenize and decode the result text, then
// decode the cached suffix (requesting logits only on its last
// token, since that is where the next generation phase resumes from).
func (g *Governor) feedToolResult(ctx context.Context, backend llm.Backend, wrapped string) {
	_ = backend.Decode(ctx, llm.Batch{Tokens: g.prefixTokensCached, StartPos: g.currentKVPosUnsafe(), RequestLogitsAt: -1})
	g.advanceKVPos(len(g.prefixTokensCached))

	inner := strings.TrimSuffix(strings.TrimPrefix(wrapped, "<tool_result>"), "</tool_result>")
	resultTokens, err := backend.Tokenize(inner)
	if err == nil {
		_ = backend.Decode(ctx, llm.Batch{Tokens: resultTokens, StartPos: g.currentKVPosUnsafe(), RequestLogitsAt: -1})
		g.advanceKVPos(len(resultTokens))
	}

	_ = backend.Decode(ctx, llm.Batch{Tokens: g.suffixTokensCached, StartPos: g.currentKVPosUnsafe(), RequestLogitsAt: len(g.suffixTokensCached) - 1})
	g.advanceKVPos(len(g.suffixTokensCached))
}

// Cleanup tears the Governor down. Valid from any state; idempotent.
func (g *Governor) Cleanup() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = StateTornDown
	return nil
}

// State returns the Governor's current lifecycle state.
func (g *Governor) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// KVPosition returns current_kv_pos, exposed for tests asserting
// KV-position monotonicity.
func (g *Governor) KVPosition() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentKVPos
}

// iterationTimer tracks elapsed wall-clock time against the configured
// timeout, checked at each iteration boundary per the Open Question
// decision to enforce timeout_seconds actively.
type iterationTimer struct {
	start   time.Time
	timeout time.Duration
}

func newIterationTimer(timeoutSeconds int) *iterationTimer {
	return &iterationTimer{start: time.Now(), timeout: time.Duration(timeoutSeconds) * time.Second}
}

func (t *iterationTimer) expired() bool {
	if t.timeout <= 0 {
		return false
	}
	return time.Since(t.start) > t.timeout
}

func (t *iterationTimer) elapsed() time.Duration {
	return time.Since(t.start)
}
