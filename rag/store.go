package rag

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
)

// SimilarityFunc scores a stored embedding against a query embedding.
// Higher is more similar.
type SimilarityFunc func(a, b []float32) float64

const (
	SimilarityDot    = "dot"
	SimilarityCosine = "cosine"
)

// DotProduct is the raw inner product. Vectors are not normalized, so larger
// magnitudes score higher.
func DotProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// Cosine is the dot product of the normalized vectors.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SimilarityByName resolves "dot" or "cosine". An empty name selects dot.
func SimilarityByName(name string) (SimilarityFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SimilarityDot:
		return DotProduct, nil
	case SimilarityCosine:
		return Cosine, nil
	default:
		return nil, fmt.Errorf("rag: unknown similarity %q", name)
	}
}

// VectorStore is an ordered collection of entries together with the
// provenance of the build that produced it. Every entry shares one dimension.
type VectorStore struct {
	mu        sync.RWMutex
	sources   []string
	model     string
	dimension int
	entries   []Entry
}

func NewVectorStore(sources []string, model string) *VectorStore {
	return &VectorStore{
		sources: slices.Clone(sources),
		model:   model,
		entries: []Entry{},
	}
}

// Add appends entries in order. The first entry fixes the dimension of the
// store; an entry that does not match it is rejected and nothing is added.
func (s *VectorStore) Add(entries ...Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dim := s.dimension
	for i := range entries {
		n := len(entries[i].Embedding)
		if n == 0 {
			return fmt.Errorf("%w: entry %d has no embedding", ErrDimensionMismatch, i)
		}
		if dim == 0 {
			dim = n
		}
		if n != dim {
			return fmt.Errorf("%w: entry %d has %d values, want %d", ErrDimensionMismatch, i, n, dim)
		}
	}
	for _, e := range entries {
		s.entries = append(s.entries, Entry{
			Chunk:     e.Chunk,
			Embedding: slices.Clone(e.Embedding),
		})
	}
	s.dimension = dim
	return nil
}

func (s *VectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns the entries in store order.
func (s *VectorStore) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries)
}

func (s *VectorStore) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sources)
}

func (s *VectorStore) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// Dimension is zero until the first entry is added.
func (s *VectorStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Search scores every entry against query and returns the topK best, highest
// score first. Equal scores keep store order. A nil sim selects DotProduct.
func (s *VectorStore) Search(query []float32, topK int, sim SimilarityFunc) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}
	if sim == nil {
		sim = DotProduct
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return []SearchResult{}, nil
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d values, store has %d", ErrDimensionMismatch, len(query), s.dimension)
	}
	results := make([]SearchResult, 0, len(s.entries))
	for i, e := range s.entries {
		results = append(results, SearchResult{
			Entry:    e,
			Score:    sim(e.Embedding, query),
			Position: i,
		})
	}
	slices.SortStableFunc(results, func(a, b SearchResult) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}
