package services

import (
	"context"
	"errors"
	"fmt"

	"mirrorapi/models"

	"github.com/getsentry/sentry-go"
	"gorm.io/gorm"
)

const ProviderGoogle = "google"

// ConfigStore is the durable configuration collaborator. Injected so that
// selection logic is testable against fixtures and so that admin changes are
// picked up on the next request without restart.
type ConfigStore interface {
	ActiveProviderConfigs(ctx context.Context, provider string, section models.Section) ([]models.ProviderConfig, error)
	PersonaConfig(ctx context.Context, section models.Section) (*models.PersonaConfig, error)
}

type GormConfigStore struct {
	DB *gorm.DB
}

func (s *GormConfigStore) ActiveProviderConfigs(ctx context.Context, provider string, section models.Section) ([]models.ProviderConfig, error) {
	var configs []models.ProviderConfig
	err := s.DB.WithContext(ctx).
		Where("provider = ? AND section = ? AND is_active = ?", provider, section, true).
		Order("id").
		Find(&configs).Error
	if err != nil {
		return nil, err
	}
	return configs, nil
}

func (s *GormConfigStore) PersonaConfig(ctx context.Context, section models.Section) (*models.PersonaConfig, error) {
	var persona models.PersonaConfig
	err := s.DB.WithContext(ctx).Where("section = ?", section).Take(&persona).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &persona, nil
}

// ResolvedBackend is everything one generation call needs from configuration.
type ResolvedBackend struct {
	APIKey  string
	ModelID string
	Kind    models.BackendKind
}

type OperatorAlerter interface {
	Alert(message string)
}

type BackendSelector struct {
	Store   ConfigStore
	Alerter OperatorAlerter
}

// Resolve is the strict mode used for the image section: no active
// credential or no admin-selected model fails with ConfigurationMissing.
// Cost and behavior stay admin-controlled, the code never substitutes a
// hardcoded model.
func (s *BackendSelector) Resolve(ctx context.Context, section models.Section) (*ResolvedBackend, error) {
	config, err := s.firstActive(ctx, section)
	if err != nil {
		return nil, err
	}
	if config == nil || config.ApiKey == "" {
		return nil, NewPipelineError(ErrConfigurationMissing,
			fmt.Sprintf("no active API credential for section %q", section))
	}
	if config.Settings.Model == "" {
		return nil, NewPipelineError(ErrConfigurationMissing,
			fmt.Sprintf("no AI model selected for section %q, pick one in the admin panel", section))
	}
	return &ResolvedBackend{
		APIKey:  config.ApiKey,
		ModelID: config.Settings.Model,
		Kind:    config.Settings.Kind(),
	}, nil
}

// ResolveWithDefault is the lenient mode for chat/advisory sections: a
// caller-supplied model id fills in when the admin never chose one. Still
// fails when no credential exists at all.
func (s *BackendSelector) ResolveWithDefault(ctx context.Context, section models.Section, defaultModel string) (*ResolvedBackend, error) {
	config, err := s.firstActive(ctx, section)
	if err != nil {
		return nil, err
	}
	if config == nil || config.ApiKey == "" {
		return nil, NewPipelineError(ErrConfigurationMissing,
			fmt.Sprintf("no active API credential for section %q", section))
	}
	modelID := config.Settings.Model
	settings := config.Settings
	if modelID == "" {
		modelID = defaultModel
		settings = models.ProviderSettings{Model: defaultModel}
	}
	return &ResolvedBackend{
		APIKey:  config.ApiKey,
		ModelID: modelID,
		Kind:    settings.Kind(),
	}, nil
}

func (s *BackendSelector) firstActive(ctx context.Context, section models.Section) (*models.ProviderConfig, error) {
	configs, err := s.Store.ActiveProviderConfigs(ctx, ProviderGoogle, section)
	if err != nil {
		sentry.CaptureException(err)
		return nil, err
	}
	if len(configs) == 0 {
		return nil, nil
	}
	if len(configs) > 1 {
		// non-fatal, but an operator should fix the duplicate actives
		msg := fmt.Sprintf("[Config] %d active provider configs for section %q, using id %v", len(configs), section, configs[0].ID)
		fmt.Println(msg)
		sentry.CaptureMessage(msg)
		if s.Alerter != nil {
			s.Alerter.Alert(msg)
		}
	}
	return &configs[0], nil
}
