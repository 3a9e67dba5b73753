package extraction

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/avoronkov/lab_ingest/internal/domain"
)

type BiomarkerSource interface {
	Biomarkers(ctx context.Context) ([]*domain.Biomarker, error)
}

// Index is a read-through cache over the biomarker reference table, loaded at
// most once per pipeline context. Reads are safe for concurrent use; a race
// to populate on first use is harmless since all racers load the same rows.
type Index struct {
	source BiomarkerSource

	mu     sync.RWMutex
	bySlug map[string]*domain.Biomarker
}

func NewIndex(source BiomarkerSource) *Index {
	return &Index{source: source}
}

// Lookup resolves a normalized marker slug to its canonical definition.
func (i *Index) Lookup(ctx context.Context, slug string) (*domain.Biomarker, bool, error) {
	if err := i.ensureLoaded(ctx); err != nil {
		return nil, false, err
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	bm, ok := i.bySlug[slug]

	return bm, ok, nil
}

// Sample returns up to n biomarkers in stable slug order, used as known-marker
// context for the AI fallback prompt.
func (i *Index) Sample(ctx context.Context, n int) ([]*domain.Biomarker, error) {
	if err := i.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	slugs := make([]string, 0, len(i.bySlug))
	for slug := range i.bySlug {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	if n > len(slugs) {
		n = len(slugs)
	}

	sample := make([]*domain.Biomarker, 0, n)
	for _, slug := range slugs[:n] {
		sample = append(sample, i.bySlug[slug])
	}

	return sample, nil
}

func (i *Index) ensureLoaded(ctx context.Context) error {
	i.mu.RLock()
	loaded := i.bySlug != nil
	i.mu.RUnlock()

	if loaded {
		return nil
	}

	biomarkers, err := i.source.Biomarkers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load biomarkers: %w", err)
	}

	bySlug := make(map[string]*domain.Biomarker, len(biomarkers))
	for _, bm := range biomarkers {
		bySlug[bm.Slug] = bm
	}

	i.mu.Lock()
	if i.bySlug == nil {
		i.bySlug = bySlug
	}
	i.mu.Unlock()

	return nil
}
