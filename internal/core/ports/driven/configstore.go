package driven

// ConfigStore holds settings under flat dotted keys such as
// "retrieval.rrf_k". The typed getters return the zero value when a key is
// missing or holds a value of another type; GetFloat widens integers and
// GetStringSlice also splits comma-separated strings.
type ConfigStore interface {
	Get(key string) (any, bool)
	GetString(key string) string
	GetInt(key string) int
	GetFloat(key string) float64
	GetBool(key string) bool
	GetStringSlice(key string) []string

	// Set stores value under key and persists it before returning.
	Set(key string, value any) error

	// Keys lists the stored keys in sorted order.
	Keys() []string
}
