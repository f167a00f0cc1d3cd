// Package promptopt implements the Prompt-Optimizer meta-loop: it
// drives the Governor to interview the running model about its own
// tool-calling style, then persists the answers per model family so a
// later startup's system prompt can be refined with real examples
// instead of generic fallbacks.
package promptopt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethervoxai/governor/internal/registry"
)

// ToolPrompt is one registered tool's optimized instruction/example pair.
type ToolPrompt struct {
	Name    string `json:"name"`
	When    string `json:"when"`
	Example string `json:"example"`
}

// PersistedPrompt is the on-disk document for one model family,
// written to tool_prompts_<family>.json.
type PersistedPrompt struct {
	ModelPath   string       `json:"model_path"`
	GeneratedAt string       `json:"generated_at"`
	Preferences string       `json:"preferences"`
	Tools       []ToolPrompt `json:"tools"`
}

// FamilyName derives the family tag from a model filename: the
// substring up to the first '-' or '.', lowercased.
func FamilyName(modelPath string) string {
	base := filepath.Base(modelPath)
	if idx := strings.IndexAny(base, "-."); idx >= 0 {
		base = base[:idx]
	}
	return strings.ToLower(base)
}

// OutputPath returns the per-family persistence path under dataDir.
func OutputPath(dataDir, family string) string {
	return filepath.Join(dataDir, fmt.Sprintf("tool_prompts_%s.json", family))
}

// questioner is the minimal ask-the-model capability the optimizer
// needs; implemented by an adapter over *governor.Governor in
// cmd/governor so this package never imports governor directly and
// risks a cycle with governor's own test helpers.
type questioner interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Optimizer runs the interview meta-loop: one global style question,
// then a when-question and an example-question per registered tool.
type Optimizer struct {
	model    questioner
	registry *registry.Registry
	dataDir  string
}

// New constructs an Optimizer. model answers a single question with no
// progress streaming (an Execute wrapper that passes nil callbacks);
// reg supplies the set of tools to interview about.
func New(model questioner, reg *registry.Registry, dataDir string) *Optimizer {
	return &Optimizer{model: model, registry: reg, dataDir: dataDir}
}

const startupInstructionTemplate = "Remember to call tools using the documented <tool_call name=\"...\" /> form, and answer directly whenever a tool is not required."

// Run executes the three question classes against the model, persists
// the result, and, if a startup_prompt_update tool is registered,
// dispatches it with a canned startup instruction.
func (o *Optimizer) Run(ctx context.Context, modelPath string) (*PersistedPrompt, error) {
	family := FamilyName(modelPath)

	if err := os.MkdirAll(o.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("promptopt: create data dir: %w", err)
	}

	preferences, err := o.model.Ask(ctx, "In one or two sentences, what instruction style works best for you when being told how and when to call a tool?")
	if err != nil {
		return nil, fmt.Errorf("promptopt: preferences question: %w", err)
	}

	tools := o.registry.List()
	prompts := make([]ToolPrompt, 0, len(tools))
	for _, t := range tools {
		when, err := o.model.Ask(ctx, fmt.Sprintf("In one sentence: when should you call the %q tool?", t.Name))
		if err != nil {
			return nil, fmt.Errorf("promptopt: when-question for %q: %w", t.Name, err)
		}
		example, err := o.model.Ask(ctx, fmt.Sprintf("Write one example <tool_call ... /> invocation of the %q tool.", t.Name))
		if err != nil {
			return nil, fmt.Errorf("promptopt: example-question for %q: %w", t.Name, err)
		}
		prompts = append(prompts, ToolPrompt{Name: t.Name, When: strings.TrimSpace(when), Example: strings.TrimSpace(example)})
		o.registry.SetOptimizedPrompt(t.Name, strings.TrimSpace(example))
	}

	doc := &PersistedPrompt{
		ModelPath:   modelPath,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Preferences: strings.TrimSpace(preferences),
		Tools:       prompts,
	}

	if err := o.persist(family, doc); err != nil {
		return nil, err
	}

	if t := o.registry.Find("startup_prompt_update"); t != nil {
		if _, err := t.Dispatch(ctx, registry.DispatchContext{}, fmt.Sprintf(`{"instruction":%q}`, startupInstructionTemplate)); err != nil {
			return doc, fmt.Errorf("promptopt: startup_prompt_update dispatch: %w", err)
		}
	}

	return doc, nil
}

func (o *Optimizer) persist(family string, doc *PersistedPrompt) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("promptopt: marshal: %w", err)
	}
	path := OutputPath(o.dataDir, family)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("promptopt: write %s: %w", path, err)
	}
	return nil
}

// Load reads the persisted prompt document for modelPath's family from
// dataDir. The second return value reports whether the file existed;
// a missing file is not an error.
func Load(dataDir, modelPath string) (*PersistedPrompt, bool, error) {
	family := FamilyName(modelPath)
	path := OutputPath(dataDir, family)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("promptopt: read %s: %w", path, err)
	}

	var doc PersistedPrompt
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false, fmt.Errorf("promptopt: decode %s: %w", path, err)
	}
	return &doc, true, nil
}

// ApplyTo installs doc's per-tool examples into reg, so the next
// BuildSystemPrompt call uses the optimized wording in place of the
// generic fallback.
func ApplyTo(reg *registry.Registry, doc *PersistedPrompt) {
	for _, tp := range doc.Tools {
		if tp.Example == "" {
			continue
		}
		reg.SetOptimizedPrompt(tp.Name, tp.Example)
	}
}
