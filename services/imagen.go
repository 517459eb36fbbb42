package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultPredictEndpoint = "https://generativelanguage.googleapis.com"

// per-call network bound, retry-free: the predict endpoint either answers or
// the request fails for this generation
const predictCallTimeout = 10 * time.Second

// ImagePredictBackend issues a single predict-style call with the literal
// style prompt and a 1:1 aspect ratio. The input photo is not sent, this
// variant is text-to-image only; the response carries inline encoded bytes.
type ImagePredictBackend struct {
	Endpoint   string
	HTTPClient *http.Client
}

func NewImagePredictBackend() *ImagePredictBackend {
	return &ImagePredictBackend{
		Endpoint:   defaultPredictEndpoint,
		HTTPClient: &http.Client{Timeout: predictCallTimeout},
	}
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	SampleCount int    `json:"sampleCount"`
	AspectRatio string `json:"aspectRatio"`
}

type predictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
	} `json:"predictions"`
	Images []json.RawMessage `json:"images"`
}

func (b *ImagePredictBackend) Invoke(ctx context.Context, backend ResolvedBackend, prompt string, image []byte, mimeType string) (*GenerationResult, error) {
	url := fmt.Sprintf("%s/v1beta/%s:predict?key=%s", b.Endpoint, backend.ModelID, backend.APIKey)

	body, err := json.Marshal(predictRequest{
		Instances:  []predictInstance{{Prompt: prompt}},
		Parameters: predictParameters{SampleCount: 1, AspectRatio: "1:1"},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	fmt.Printf("[Predict] Calling %s model %s\n", b.Endpoint, backend.ModelID)
	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("predict call failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read predict response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("predict call failed: %s (status: %d)", string(respBody), resp.StatusCode)
	}

	var parsed predictResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, WrapPipelineError(ErrUnrecognizedResponseShape, "predict response is not JSON", err)
	}

	encoded := extractPredictImage(parsed)
	if encoded == "" {
		return nil, NewPipelineError(ErrUnrecognizedResponseShape, "predict response format not recognized")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, WrapPipelineError(ErrUnrecognizedResponseShape, "predict image payload is not valid base64", err)
	}

	// this endpoint reports no usage metadata, the budget stays untouched
	return &GenerationResult{
		InlineData: data,
		MIMEType:   "image/png",
	}, nil
}

// extractPredictImage probes the known response shapes in order:
// predictions[0].bytesBase64Encoded, then images[0] as an {image: ...} object
// or a bare base64 string.
func extractPredictImage(parsed predictResponse) string {
	if len(parsed.Predictions) > 0 && parsed.Predictions[0].BytesBase64Encoded != "" {
		return parsed.Predictions[0].BytesBase64Encoded
	}
	if len(parsed.Images) > 0 {
		var wrapped struct {
			Image string `json:"image"`
		}
		if err := json.Unmarshal(parsed.Images[0], &wrapped); err == nil && wrapped.Image != "" {
			return wrapped.Image
		}
		var bare string
		if err := json.Unmarshal(parsed.Images[0], &bare); err == nil {
			return bare
		}
	}
	return ""
}
