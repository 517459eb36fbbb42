package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderSettingsKindExplicit(t *testing.T) {
	settings := ProviderSettings{Model: "models/imagen-3.0-generate-002", Backend: BackendMultimodalChat}
	assert.Equal(t, BackendMultimodalChat, settings.Kind())
}

func TestProviderSettingsKindImagenConvention(t *testing.T) {
	settings := ProviderSettings{Model: "models/imagen-3.0-generate-002"}
	assert.Equal(t, BackendImagePredict, settings.Kind())
}

func TestProviderSettingsKindDefault(t *testing.T) {
	settings := ProviderSettings{Model: "gemini-2.5-flash-image-preview"}
	assert.Equal(t, BackendMultimodalChat, settings.Kind())
}

func TestValidateSectionRaw(t *testing.T) {
	assert.True(t, ValidateSectionRaw("look"))
	assert.True(t, ValidateSectionRaw("advisory"))
	assert.False(t, ValidateSectionRaw("other"))
	assert.False(t, ValidateSectionRaw(""))
	// the alternation is anchored as a whole, not per branch
	assert.False(t, ValidateSectionRaw("lookzzz"))
	assert.False(t, ValidateSectionRaw("myadvisory"))
}
