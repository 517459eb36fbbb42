package models

const (
	GenerationPending   = "pending"
	GenerationCompleted = "completed"
	GenerationDegraded  = "degraded"
	GenerationFailed    = "failed"
)

// MirrorGeneration is one user-facing hairstyle generation request and its
// outcome. Token counts are copied from the provider's usage metadata when
// the backend reports any.
type MirrorGeneration struct {
	JsonModel
	Owner   UserAccount `json:"-"`
	OwnerID uint        `json:"-"`

	Section Section `json:"section"`

	// storage keys, not raw URLs
	InputImageKey  *string `json:"input_image_key"`
	ResultImageKey *string `json:"result_image_key"`
	// set instead of ResultImageKey when the download degraded to the raw
	// provider address
	RemoteResultURL *string `json:"remote_result_url"`

	Prompt *string `gorm:"type:text" json:"prompt"`

	Hairstyle    *string `json:"hairstyle"`
	Color        *string `json:"color"`
	Instructions *string `gorm:"type:text" json:"instructions"`

	// pending, completed, degraded, failed
	Status               string   `json:"status"`
	GenerationErrorKind  *string  `json:"generation_error_kind"`
	GenerationErrorMsg   *string  `json:"generation_error_message"`
	GenerationRetryTimes int      `json:"generation_retry_times"`
	Duration             *float64 `json:"duration"` // seconds

	LLMModel            *string `json:"llm_model"`
	LLMInputTokenCount  *int32  `json:"llm_input_token_count"`
	LLMOutputTokenCount *int32  `json:"llm_output_token_count"`
	LLMTotalTokenCount  *int32  `json:"llm_total_token_count"`
}

// MirrorUsage is the append-only consumption ledger. A row is written for
// every completed provider call, token cost known or not, so attempts stay
// auditable even when nothing was debited.
type MirrorUsage struct {
	JsonModel
	UsageType string `gorm:"default:generation" json:"usage_type"`

	UserAccountID uint        `json:"-"`
	UserAccount   UserAccount `json:"-"`
	GenerationID  *uint       `json:"generation_id"`

	PromptTokens     int `gorm:"default:0" json:"prompt_tokens"`
	CompletionTokens int `gorm:"default:0" json:"completion_tokens"`
	TotalTokens      int `gorm:"default:0" json:"total_tokens"`
}

type GenerateMirrorIn struct {
	Hairstyle    *string `json:"hairstyle" validate:"omitempty,max=500"`
	Color        *string `json:"color" validate:"omitempty,max=500"`
	Instructions *string `json:"instructions" validate:"omitempty,max=2000"`
	Section      string  `json:"section" validate:"omitempty,section"`
}

type GenerateMirrorOut struct {
	GenerationID uint   `json:"generation_id"`
	Status       string `json:"status"`
	ResultURL    string `json:"result_url"`
	Degraded     bool   `json:"degraded"`
	Prompt       string `json:"debug_prompt"`
}

type MirrorHistoryItemOut struct {
	GenerationID uint    `json:"generation_id"`
	Status       string  `json:"status"`
	ResultURL    *string `json:"result_url,omitempty"`
	Hairstyle    *string `json:"hairstyle,omitempty"`
	Color        *string `json:"color,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

type MirrorHistoryOut struct {
	Generations []MirrorHistoryItemOut `json:"generations"`
}

type ChatMessageIn struct {
	Role    string `json:"role" validate:"required,oneof=user ai model"`
	Message string `json:"message" validate:"required,max=4000"`
}

type ChatIn struct {
	Message string          `json:"message" validate:"required,max=4000"`
	History []ChatMessageIn `json:"history" validate:"omitempty,max=40,dive"`
	Section string          `json:"section" validate:"omitempty,section"`
}

type ChatOut struct {
	Reply        string `json:"reply"`
	VisualPrompt string `json:"visual_prompt,omitempty"`
}
