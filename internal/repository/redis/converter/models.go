package converter

// EmbeddingRedisModel представление эмбеддинга в кэше.
type EmbeddingRedisModel struct {
	Vector       []float32 `json:"vector"`
	Shape        []int     `json:"shape"`
	ModelVersion string    `json:"model_version"`
}
