package extractor

import (
	"context"
	"fmt"
	"sort"

	"github.com/tributary-data/tributary/internal/config"
	"github.com/tributary-data/tributary/internal/record"
)

// Extractor pulls one source-shaped batch of raw records per run. Extractors
// are independent of each other and mutate no shared state; running them in
// any order yields the same merged result.
type Extractor interface {
	Source() record.Source
	Extract(ctx context.Context) (record.RawBatch, error)
}

// Factory builds an extractor from the run configuration.
type Factory func(cfg *config.Config) (Extractor, error)

var factories = make(map[string]Factory)

func Register(name string, f Factory) {
	factories[name] = f
}

func ForName(name string, cfg *config.Config) (Extractor, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("extractor not found: %s", name)
	}
	return f(cfg)
}

// Names lists the registered extractor names in stable order.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
