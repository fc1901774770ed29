package queue

const (
	TypeGenerationRun = "generation:run"
)

// GenerationRunPayload identifies the generation record a worker drives.
type GenerationRunPayload struct {
	GenerationID string `json:"generation_id"`
}
