package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorapi/models"
)

type stubConfigStore struct {
	configs []models.ProviderConfig
	persona *models.PersonaConfig
	err     error
}

func (s *stubConfigStore) ActiveProviderConfigs(ctx context.Context, provider string, section models.Section) ([]models.ProviderConfig, error) {
	return s.configs, s.err
}

func (s *stubConfigStore) PersonaConfig(ctx context.Context, section models.Section) (*models.PersonaConfig, error) {
	return s.persona, nil
}

type recordingAlerter struct {
	messages []string
}

func (r *recordingAlerter) Alert(message string) {
	r.messages = append(r.messages, message)
}

func activeConfig(id uint, apiKey string, model string) models.ProviderConfig {
	config := models.ProviderConfig{
		Provider: ProviderGoogle,
		Section:  models.SectionLook,
		ApiKey:   apiKey,
		IsActive: true,
		Settings: models.ProviderSettings{Model: model},
	}
	config.ID = id
	return config
}

func TestResolveNoActiveConfig(t *testing.T) {
	selector := &BackendSelector{Store: &stubConfigStore{}}

	backend, err := selector.Resolve(context.Background(), models.SectionLook)
	assert.Nil(t, backend)
	assert.True(t, IsKind(err, ErrConfigurationMissing))
}

func TestResolveNoAPIKey(t *testing.T) {
	store := &stubConfigStore{configs: []models.ProviderConfig{activeConfig(1, "", "gemini-2.5-flash-image-preview")}}
	selector := &BackendSelector{Store: store}

	_, err := selector.Resolve(context.Background(), models.SectionLook)
	assert.True(t, IsKind(err, ErrConfigurationMissing))
}

func TestResolveNoModelSelected(t *testing.T) {
	store := &stubConfigStore{configs: []models.ProviderConfig{activeConfig(1, "key", "")}}
	selector := &BackendSelector{Store: store}

	_, err := selector.Resolve(context.Background(), models.SectionLook)
	assert.True(t, IsKind(err, ErrConfigurationMissing))
}

func TestResolveMultimodalChatModel(t *testing.T) {
	store := &stubConfigStore{configs: []models.ProviderConfig{activeConfig(1, "key", "gemini-2.5-flash-image-preview")}}
	selector := &BackendSelector{Store: store}

	backend, err := selector.Resolve(context.Background(), models.SectionLook)
	require.NoError(t, err)
	assert.Equal(t, "key", backend.APIKey)
	assert.Equal(t, "gemini-2.5-flash-image-preview", backend.ModelID)
	assert.Equal(t, models.BackendMultimodalChat, backend.Kind)
}

func TestResolveImagenModelLegacyFallback(t *testing.T) {
	store := &stubConfigStore{configs: []models.ProviderConfig{activeConfig(1, "key", "models/imagen-3.0-generate-002")}}
	selector := &BackendSelector{Store: store}

	backend, err := selector.Resolve(context.Background(), models.SectionLook)
	require.NoError(t, err)
	assert.Equal(t, models.BackendImagePredict, backend.Kind)
}

func TestResolveExplicitBackendWinsOverModelName(t *testing.T) {
	config := activeConfig(1, "key", "models/imagen-3.0-generate-002")
	config.Settings.Backend = models.BackendMultimodalChat
	selector := &BackendSelector{Store: &stubConfigStore{configs: []models.ProviderConfig{config}}}

	backend, err := selector.Resolve(context.Background(), models.SectionLook)
	require.NoError(t, err)
	assert.Equal(t, models.BackendMultimodalChat, backend.Kind)
}

func TestResolveWithDefaultFillsModel(t *testing.T) {
	store := &stubConfigStore{configs: []models.ProviderConfig{activeConfig(1, "key", "")}}
	selector := &BackendSelector{Store: store}

	backend, err := selector.ResolveWithDefault(context.Background(), models.SectionAdvisory, DefaultChatModel)
	require.NoError(t, err)
	assert.Equal(t, DefaultChatModel, backend.ModelID)
	assert.Equal(t, models.BackendMultimodalChat, backend.Kind)
}

func TestResolveWithDefaultStillRequiresCredential(t *testing.T) {
	selector := &BackendSelector{Store: &stubConfigStore{}}

	_, err := selector.ResolveWithDefault(context.Background(), models.SectionAdvisory, DefaultChatModel)
	assert.True(t, IsKind(err, ErrConfigurationMissing))
}

func TestResolveDuplicateActivesPicksFirstAndAlerts(t *testing.T) {
	store := &stubConfigStore{configs: []models.ProviderConfig{
		activeConfig(4, "first-key", "gemini-2.5-flash-image-preview"),
		activeConfig(9, "second-key", "models/imagen-3.0-generate-002"),
	}}
	alerter := &recordingAlerter{}
	selector := &BackendSelector{Store: store, Alerter: alerter}

	backend, err := selector.Resolve(context.Background(), models.SectionLook)
	require.NoError(t, err)
	assert.Equal(t, "first-key", backend.APIKey)
	require.Len(t, alerter.messages, 1)
	assert.Contains(t, alerter.messages[0], "2 active provider configs")
}
