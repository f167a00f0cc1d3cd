package memstore

import "github.com/ethervoxai/governor/internal/registry"

// RegistryAccessor adapts a Store to registry.MemoryAccessor, the
// narrow surface tool dispatch functions use to read and write memory
// without the registry package importing memstore directly.
type RegistryAccessor struct {
	Store *Store
}

var _ registry.MemoryAccessor = RegistryAccessor{}

// The Store itself serves the prompt builder's corrections/patterns
// lookups directly.
var _ registry.MemoryPromptEntries = (*Store)(nil)

func (a RegistryAccessor) Add(text string, tags []string, importance float64, isUser bool) (uint64, error) {
	return a.Store.Add(text, tags, importance, isUser)
}

func (a RegistryAccessor) Search(query string, requiredTags []string, limit int) ([]registry.MemorySearchResult, error) {
	results, err := a.Store.Search(query, requiredTags, limit)
	if err != nil {
		return nil, err
	}
	out := make([]registry.MemorySearchResult, len(results))
	for i, r := range results {
		out[i] = registry.MemorySearchResult{
			MemoryID:  r.Entry.MemoryID,
			Text:      r.Entry.Text,
			Tags:      r.Entry.Tags,
			Relevance: r.Relevance,
		}
	}
	return out, nil
}
