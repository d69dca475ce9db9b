package urlparam

// Navigator is the address surface the chat session synchronizes with.
//
// Replace sets the complete query parameter set and replaces the current
// history entry; parameters not present in params are dropped.
type Navigator interface {
	// Get returns the value of key in the current query.
	Get(key string) (string, bool)

	// Replace swaps the current query for params without adding history.
	Replace(params map[string]string)
}
