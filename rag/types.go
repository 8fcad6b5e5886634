package rag

// Entry is one persisted chunk and its embedding.
type Entry struct {
	Chunk     string
	Embedding []float32
}

// SearchResult is an entry scored against a query embedding.
type SearchResult struct {
	Entry Entry
	Score float64
	// Position is the entry's index in the store.
	Position int
}

// Role tells the embedding provider how the text is going to be used.
type Role string

const (
	RoleDocument Role = "document"
	RoleQuery    Role = "query"
)
