package vectorstore

// Record is a single stored unit: the chunk text, its metadata, and the
// embedding vector computed for it. The caller-supplied ID is the only
// identity; inserting a duplicate ID overwrites the previous record.
type Record struct {
	// ID is the unique record identifier, e.g. "manual.md_3".
	ID string

	// Content is the chunk text.
	Content string

	// Metadata contains additional key-value pairs.
	// Common fields: filename, type, chunk_index.
	Metadata map[string]interface{}

	// Vector is the embedding for Content. Its length must match the
	// store's dimension.
	Vector []float32
}

// SearchResult is a single ranked retrieval hit.
type SearchResult struct {
	// ID is the record identifier.
	ID string

	// Content is the record text content.
	Content string

	// Metadata contains the record metadata.
	Metadata map[string]interface{}

	// Distance is the cosine distance to the query vector. Lower is
	// closer; 0 means identical direction. Result lists are ordered
	// ascending by Distance.
	Distance float32
}
