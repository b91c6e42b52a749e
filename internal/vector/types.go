package vector

// Result is one ranked hit from a collection query. Distance is nil when the
// backend did not report one; lower distance means more relevant.
type Result struct {
	Document   string
	Metadata   map[string]any
	Distance   *float64
	ChunkID    string
	Collection string
}

// Relevance converts distance to a normalized score (1 - distance). Returns
// nil when no distance is present.
func (r Result) Relevance() *float64 {
	if r.Distance == nil {
		return nil
	}
	score := 1 - *r.Distance
	return &score
}
