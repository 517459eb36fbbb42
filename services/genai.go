package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultChatModel fills in for advisory sections where the admin never
// picked a model override.
const DefaultChatModel = "gemini-2.0-flash"

// Hard constraints for the image-editing call. The model must only repaint
// hair pixels; identity and clothing stay untouched and the output is an
// image, not prose.
const imageEditSystemInstruction = `You are a professional AI Hairstylist and Image Editor.
Your ONLY task is to modify the hairstyle of the person in the input image.

CRITICAL VISUAL RULES (ZERO TOLERANCE):
1. FACE PRESERVATION: You must NOT modify the user's face, skin tone, facial features, or makeup. The identity must remain 100% identical to the original image.
2. CLOTHING PRESERVATION: You must NOT change the user's clothes, neckline, or accessories.
3. ONLY HAIR: Change ONLY the hair pixels to match the requested style.
4. REALISM: The new hair must blend naturally with the original lighting and head angle.

OUTPUT FORMAT RULES:
- Do NOT speak. Do NOT explain.
- Generate the edited image directly.`

// The domain is cosmetic photo editing of user-submitted portraits; anything
// stricter produces frequent false-positive refusals on ordinary selfies.
func permissiveSafetySettings() []*genai.SafetySetting {
	return []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
	}
}

// MultimodalChatBackend runs one GenerateContent call against the Gemini API
// with the composed prompt and the input photo inline. A reply with neither a
// result address nor inline image bytes is a refusal, not a transient error.
type MultimodalChatBackend struct{}

func newGenAIClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	// fresh client per invocation: admin credential changes apply on the next
	// request without restart
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

func (b *MultimodalChatBackend) Invoke(ctx context.Context, backend ResolvedBackend, prompt string, image []byte, mimeType string) (*GenerationResult, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("no image provided for multimodal generation")
	}
	client, err := newGenAIClient(ctx, backend.APIKey)
	if err != nil {
		return nil, err
	}

	parts := []*genai.Part{
		{Text: prompt},
		{InlineData: &genai.Blob{Data: image, MIMEType: mimeType}},
	}

	result, err := client.Models.GenerateContent(ctx, backend.ModelID,
		[]*genai.Content{{Role: genai.RoleUser, Parts: parts}},
		&genai.GenerateContentConfig{
			CandidateCount: 1,
			Temperature:    floatPointer(1),
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: imageEditSystemInstruction}},
			},
			SafetySettings: permissiveSafetySettings(),
		})
	if err != nil {
		fmt.Println("Error in GenerateContent:", err)
		return nil, fmt.Errorf("%v", err)
	}

	usage := usageFromMetadata(result)
	fmt.Printf("[Gemini] Model %s IT: %d, OT: %d, TOT: %d\n",
		backend.ModelID, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)

	return interpretImageResponse(result, usage)
}

// interpretImageResponse classifies a GenerateContent reply into one of the
// accepted result shapes. PromptFeedback alone is not a refusal: the SDK
// populates it on some successful calls, so only an explicit block reason
// short-circuits before the image shapes are checked.
func interpretImageResponse(result *genai.GenerateContentResponse, usage TokenUsage) (*GenerationResult, error) {
	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		return nil, NewPipelineError(ErrProviderRefusal,
			fmt.Sprintf("prompt blocked: %s", result.PromptFeedback.BlockReasonMessage))
	}

	text := result.Text()

	// shape A: an embedded JSON object carrying the result address
	if url := extractEditedImageURL(text); url != "" {
		fmt.Println("[Gemini] Model returned remote image URL")
		return &GenerationResult{RemoteURL: url, Text: text, Usage: usage}, nil
	}

	// shape B: inline encoded image among the content parts
	if data, dataMIME := firstInlineImage(result); data != nil {
		return &GenerationResult{InlineData: data, MIMEType: dataMIME, Text: text, Usage: usage}, nil
	}

	// neither shape: the model declined. Surface its own explanation.
	detail := strings.TrimSpace(text)
	if detail == "" {
		detail = "model returned no image data and no explanation"
	}
	return nil, NewPipelineError(ErrProviderRefusal, detail)
}

func usageFromMetadata(result *genai.GenerateContentResponse) TokenUsage {
	if result == nil || result.UsageMetadata == nil {
		return TokenUsage{}
	}
	return TokenUsage{
		PromptTokens:     result.UsageMetadata.PromptTokenCount,
		CompletionTokens: result.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      result.UsageMetadata.TotalTokenCount,
	}
}

// extractEditedImageURL probes text for a JSON object with an edited_image
// address, tolerating prose around the braces.
func extractEditedImageURL(text string) string {
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first == -1 || last == -1 || last <= first {
		return ""
	}
	var payload struct {
		EditedImage string `json:"edited_image"`
	}
	if err := json.Unmarshal([]byte(text[first:last+1]), &payload); err != nil {
		return ""
	}
	return payload.EditedImage
}

// GeminiChatBackend drives the conversational advisory flow over the same
// Gemini API. History is replayed as alternating user/model contents.
type GeminiChatBackend struct{}

func (b *GeminiChatBackend) Chat(ctx context.Context, backend ResolvedBackend, systemPrompt string, history []ChatTurn) (string, TokenUsage, error) {
	client, err := newGenAIClient(ctx, backend.APIKey)
	if err != nil {
		return "", TokenUsage{}, err
	}

	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		role := genai.RoleUser
		if turn.Role == "ai" || turn.Role == "model" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Message}},
		})
	}

	result, err := client.Models.GenerateContent(ctx, backend.ModelID, contents,
		&genai.GenerateContentConfig{
			MaxOutputTokens: 1000,
			Temperature:     floatPointer(1),
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: systemPrompt}},
			},
			SafetySettings: permissiveSafetySettings(),
		})
	if err != nil {
		fmt.Println("Error in chat GenerateContent:", err)
		return "", TokenUsage{}, fmt.Errorf("%v", err)
	}

	usage := usageFromMetadata(result)
	fmt.Printf("[GeminiChat] Model %s IT: %d, OT: %d, TOT: %d\n",
		backend.ModelID, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)

	reply := strings.TrimSpace(result.Text())
	if reply == "" {
		return "", usage, NewPipelineError(ErrProviderRefusal, "model returned an empty reply")
	}
	return reply, usage, nil
}

func firstInlineImage(result *genai.GenerateContentResponse) ([]byte, string) {
	if result == nil {
		return nil, ""
	}
	for _, cand := range result.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 &&
				strings.HasPrefix(part.InlineData.MIMEType, "image/") {
				return part.InlineData.Data, part.InlineData.MIMEType
			}
		}
	}
	return nil, ""
}
