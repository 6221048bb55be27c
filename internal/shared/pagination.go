package shared

// ListResponse is the envelope returned by every list endpoint.
type ListResponse[T any] struct {
	Count   int `json:"count"`
	Results []T `json:"results"`
}

// NewListResponse builds a ListResponse, never serialising results as null.
func NewListResponse[T any](count int, results []T) ListResponse[T] {
	if results == nil {
		results = []T{}
	}
	return ListResponse[T]{Count: count, Results: results}
}
