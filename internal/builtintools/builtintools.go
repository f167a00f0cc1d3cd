// Package builtintools registers the small set of tools the
// specification names directly — memory_search, remember, and
// startup_prompt_update — against a Tool Registry. Everything else
// (calculator, timer, time-query, and the rest of the domain tool
// surface) is an external collaborator left for a host binary to
// register.
package builtintools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethervoxai/governor/internal/registry"
)

// memorySearchArgs, rememberArgs, and startupPromptUpdateArgs double as
// both the JSON-decode targets for dispatch and the source structs
// registry.GenerateSchema reflects into each tool's ParametersSchema,
// so the two can never drift apart.
type memorySearchArgs struct {
	Query string `json:"query" jsonschema:"required,description=search text matched against stored memory entries"`
	Limit int    `json:"limit" jsonschema:"description=maximum number of results (default 5)"`
}

type rememberArgs struct {
	Text       string   `json:"text" jsonschema:"required,description=fact or preference to remember"`
	Tags       []string `json:"tags" jsonschema:"description=topical tags"`
	Importance float64  `json:"importance" jsonschema:"description=0.0-1.0 importance score, default 0.5"`
}

type startupPromptUpdateArgs struct {
	Instruction string `json:"instruction" jsonschema:"required,description=instruction to fold into the next system prompt"`
}

// Register adds memory_search, remember, and startup_prompt_update to
// reg. onStartupInstruction receives the instruction text passed to
// startup_prompt_update; a host binary typically stashes it for the
// next LoadModel call. Passing a nil onStartupInstruction still
// registers the tool — it just discards the instruction, which keeps
// the Prompt-Optimizer's canned dispatch from erroring out when no
// system-prompt-rewrite wiring exists yet.
func Register(reg *registry.Registry, onStartupInstruction func(instruction string)) error {
	memorySearchSchema, err := registry.GenerateSchema(&memorySearchArgs{})
	if err != nil {
		return fmt.Errorf("builtintools: %w", err)
	}
	rememberSchema, err := registry.GenerateSchema(&rememberArgs{})
	if err != nil {
		return fmt.Errorf("builtintools: %w", err)
	}
	startupPromptUpdateSchema, err := registry.GenerateSchema(&startupPromptUpdateArgs{})
	if err != nil {
		return fmt.Errorf("builtintools: %w", err)
	}

	if err := reg.Register(&registry.ToolDef{
		Name:               "memory_search",
		Description:        "Search stored conversation memory for relevant past facts or preferences.",
		ParametersSchema:   memorySearchSchema,
		Dispatch:           dispatchMemorySearch,
		Deterministic:      false,
		EstimatedLatencyMS: 5,
	}); err != nil {
		return fmt.Errorf("builtintools: register memory_search: %w", err)
	}

	if err := reg.Register(&registry.ToolDef{
		Name:               "remember",
		Description:        "Store a fact or preference in memory for later recall.",
		ParametersSchema:   rememberSchema,
		Dispatch:           dispatchRemember,
		Deterministic:      false,
		Stateful:           true,
		EstimatedLatencyMS: 5,
	}); err != nil {
		return fmt.Errorf("builtintools: register remember: %w", err)
	}

	if err := reg.Register(&registry.ToolDef{
		Name:               "startup_prompt_update",
		Description:        "Fold an instruction learned during prompt optimization into future system prompts.",
		ParametersSchema:   startupPromptUpdateSchema,
		Dispatch:           dispatchStartupPromptUpdate(onStartupInstruction),
		Deterministic:      true,
		EstimatedLatencyMS: 1,
	}); err != nil {
		return fmt.Errorf("builtintools: register startup_prompt_update: %w", err)
	}

	return nil
}

func dispatchMemorySearch(_ context.Context, dctx registry.DispatchContext, argsJSON string) (string, error) {
	if dctx.Memory == nil {
		return "", fmt.Errorf("memory_search: no memory store configured")
	}

	var args memorySearchArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", fmt.Errorf("memory_search: invalid arguments: %w", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", fmt.Errorf("memory_search: query is required")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 5
	}

	results, err := dctx.Memory.Search(args.Query, nil, limit)
	if err != nil {
		return "", fmt.Errorf("memory_search: %w", err)
	}
	if len(results) == 0 {
		return `{"results":[]}`, nil
	}

	out, err := json.Marshal(struct {
		Results []registry.MemorySearchResult `json:"results"`
	}{Results: results})
	if err != nil {
		return "", fmt.Errorf("memory_search: marshal results: %w", err)
	}
	return string(out), nil
}

func dispatchRemember(_ context.Context, dctx registry.DispatchContext, argsJSON string) (string, error) {
	if dctx.Memory == nil {
		return "", fmt.Errorf("remember: no memory store configured")
	}

	var args rememberArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", fmt.Errorf("remember: invalid arguments: %w", err)
	}
	if strings.TrimSpace(args.Text) == "" {
		return "", fmt.Errorf("remember: text is required")
	}
	importance := args.Importance
	if importance == 0 {
		importance = 0.5
	}

	id, err := dctx.Memory.Add(args.Text, args.Tags, importance, false)
	if err != nil {
		return "", fmt.Errorf("remember: %w", err)
	}
	return fmt.Sprintf(`{"memory_id":%d}`, id), nil
}

func dispatchStartupPromptUpdate(onInstruction func(instruction string)) registry.DispatchFunc {
	return func(_ context.Context, _ registry.DispatchContext, argsJSON string) (string, error) {
		var args startupPromptUpdateArgs
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("startup_prompt_update: invalid arguments: %w", err)
		}
		if onInstruction != nil {
			onInstruction(args.Instruction)
		}
		return "acknowledged", nil
	}
}
