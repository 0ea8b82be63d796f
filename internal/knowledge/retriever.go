// Package knowledge defines the fact-retrieval capability injected into
// fact-oriented knowledge sources. Retrieval failures degrade to an empty
// result set; nothing in here may abort an arbitration round.
package knowledge

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Fact is one ranked fact for a category.
type Fact struct {
	Category string  `yaml:"category" json:"category"`
	Content  string  `yaml:"content" json:"content"`
	Rank     float64 `yaml:"rank" json:"rank"`
}

// Retriever returns ranked facts for a category. Implementations must treat
// failure as an empty result, never as a hard error on the turn path.
type Retriever interface {
	Retrieve(ctx context.Context, category string, limit int) ([]Fact, error)
}

// StaticRetriever serves facts loaded once from a YAML file. It is the
// offline implementation used by the simulator and by tests; production
// deployments inject their own retrieval layer.
type StaticRetriever struct {
	byCategory map[string][]Fact
}

// NewStaticRetriever builds a retriever from an in-memory fact list.
func NewStaticRetriever(facts []Fact) *StaticRetriever {
	r := &StaticRetriever{byCategory: make(map[string][]Fact)}
	for _, f := range facts {
		r.byCategory[f.Category] = append(r.byCategory[f.Category], f)
	}
	for cat := range r.byCategory {
		list := r.byCategory[cat]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Rank > list[j].Rank })
	}
	return r
}

// LoadStaticRetriever reads a YAML fact file of the form:
//
//	facts:
//	  - category: price
//	    content: "Plans start at $29/month."
//	    rank: 1.0
func LoadStaticRetriever(path string) (*StaticRetriever, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fact file: %w", err)
	}
	var doc struct {
		Facts []Fact `yaml:"facts"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse fact file: %w", err)
	}
	return NewStaticRetriever(doc.Facts), nil
}

// Retrieve returns up to limit facts for the category, best rank first.
// Unknown categories yield an empty slice.
func (r *StaticRetriever) Retrieve(_ context.Context, category string, limit int) ([]Fact, error) {
	list := r.byCategory[category]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]Fact, limit)
	copy(out, list[:limit])
	return out, nil
}

// NullRetriever always returns no facts. Used when no retrieval layer is
// configured.
type NullRetriever struct{}

// Retrieve implements Retriever.
func (NullRetriever) Retrieve(context.Context, string, int) ([]Fact, error) {
	return nil, nil
}
