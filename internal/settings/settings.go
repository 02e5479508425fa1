package settings

// Settings is the client-held user configuration. It is persisted as a single
// JSON record in the local state store and read by the session manager (model
// choice) and the upload workflow (chunking hints).
//
// Field names mirror the record the web client wrote, so an existing record
// is picked up as-is.
type Settings struct {
	// AI model settings.
	DefaultModel        string `json:"defaultModel"`
	ResponseTemperature string `json:"responseTemperature"`
	MaxResponseLength   int    `json:"maxResponseLength"`
	StreamResponses     bool   `json:"streamResponses"`

	// Document processing.
	ChunkSize             int    `json:"chunkSize"`
	ChunkOverlap          int    `json:"chunkOverlap"`
	MaxDocumentsRetrieved string `json:"maxDocumentsRetrieved"`
	AutoIndexDocuments    bool   `json:"autoIndexDocuments"`

	// Interface settings.
	Animations   bool `json:"animations"`
	SoundEffects bool `json:"soundEffects"`
	CompactMode  bool `json:"compactMode"`
}

func Defaults() Settings {
	return Settings{
		DefaultModel:          "gemini-2.5-flash-lite",
		ResponseTemperature:   "0.7",
		MaxResponseLength:     2048,
		StreamResponses:       true,
		ChunkSize:             1000,
		ChunkOverlap:          200,
		MaxDocumentsRetrieved: "2",
		AutoIndexDocuments:    true,
		Animations:            true,
		SoundEffects:          false,
		CompactMode:           false,
	}
}
