package services

import (
	"context"
	"fmt"

	"mirrorapi/models"
)

type TokenUsage struct {
	PromptTokens     int32 `json:"prompt_tokens"`
	CompletionTokens int32 `json:"completion_tokens"`
	TotalTokens      int32 `json:"total_tokens"`
}

// GenerationResult is the normalized outcome of one provider call: either a
// remote address that still needs an authenticated download, or inline bytes
// ready to persist. Lives only for the duration of one request.
type GenerationResult struct {
	RemoteURL  string
	InlineData []byte
	MIMEType   string
	// any prose the model attached alongside the image
	Text  string
	Usage TokenUsage
}

type GenerationInvoker interface {
	Invoke(ctx context.Context, backend ResolvedBackend, prompt string, image []byte, mimeType string) (*GenerationResult, error)
}

// BackendDispatcher routes one generation call to the variant declared on the
// resolved configuration.
type BackendDispatcher struct {
	ImagePredict   GenerationInvoker
	MultimodalChat GenerationInvoker
}

func NewBackendDispatcher() *BackendDispatcher {
	return &BackendDispatcher{
		ImagePredict:   NewImagePredictBackend(),
		MultimodalChat: &MultimodalChatBackend{},
	}
}

func (d *BackendDispatcher) Invoke(ctx context.Context, backend ResolvedBackend, prompt string, image []byte, mimeType string) (*GenerationResult, error) {
	switch backend.Kind {
	case models.BackendImagePredict:
		return d.ImagePredict.Invoke(ctx, backend, prompt, image, mimeType)
	case models.BackendMultimodalChat:
		return d.MultimodalChat.Invoke(ctx, backend, prompt, image, mimeType)
	default:
		return nil, NewPipelineError(ErrConfigurationMissing,
			fmt.Sprintf("unknown backend kind %q for model %s", backend.Kind, backend.ModelID))
	}
}
