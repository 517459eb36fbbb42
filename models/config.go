package models

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator"
)

// Section is the administrative category under which persona and provider
// configuration are maintained independently.
type Section string

const (
	SectionLook     Section = "look"
	SectionAdvisory Section = "advisory"
)

func (s *Section) Scan(value interface{}) error {
	*s = Section(value.(string))
	return nil
}

func (s Section) Value() (string, error) {
	return string(s), nil
}

func ValidateSection(fl validator.FieldLevel) bool {
	return ValidateSectionRaw(fl.Field().String())
}

func ValidateSectionRaw(value string) bool {
	matched, _ := regexp.MatchString("^(look|advisory)$", value)
	return matched
}

// BackendKind distinguishes the two structurally different generation call
// shapes. Stored on the provider config at authoring time; legacy rows that
// never declared a kind are classified by the imagen model-name convention.
type BackendKind string

const (
	BackendImagePredict   BackendKind = "image_predict"
	BackendMultimodalChat BackendKind = "multimodal_chat"
)

type ProviderSettings struct {
	// admin-selected model id, e.g. "gemini-2.5-flash-image-preview" or
	// "models/imagen-3.0-generate-002"
	Model   string      `json:"model"`
	Backend BackendKind `json:"backend,omitempty"`
}

// Kind reports the backend variant for these settings, falling back to the
// legacy substring convention when the admin never picked one explicitly.
func (s ProviderSettings) Kind() BackendKind {
	if s.Backend != "" {
		return s.Backend
	}
	if strings.Contains(s.Model, "imagen") {
		return BackendImagePredict
	}
	return BackendMultimodalChat
}

type ProviderConfig struct {
	JsonModel
	Provider string  `gorm:"index:idx_provider_section" json:"provider"`
	Section  Section `gorm:"index:idx_provider_section" json:"section"`
	Alias    string  `gorm:"default:Default" json:"alias"`
	ApiKey   string  `json:"-"`
	IsActive bool    `gorm:"default:true" json:"is_active"`

	Settings ProviderSettings `gorm:"serializer:json" json:"settings"`
}

// PersonaConfig holds the admin-authored prompt scaffolding for one section.
// Every block is optional; the composer skips empty ones.
type PersonaConfig struct {
	JsonModel
	Section Section `gorm:"uniqueIndex" json:"section"`

	// expert personas, always emitted first when present
	HairstyleSysPrompt *string `gorm:"type:text" json:"hairstyle_sys_prompt"`
	ColorSysPrompt     *string `gorm:"type:text" json:"color_sys_prompt"`

	// ordered look blocks: face (fixed), hairstyle default, color default,
	// final synthesis
	LookSysPrompt1 *string `gorm:"type:text" json:"look_sys_prompt_1"`
	LookSysPrompt2 *string `gorm:"type:text" json:"look_sys_prompt_2"`
	LookSysPrompt3 *string `gorm:"type:text" json:"look_sys_prompt_3"`
	LookSysPrompt4 *string `gorm:"type:text" json:"look_sys_prompt_4"`
}

type ProviderConfigIn struct {
	Provider string           `json:"provider" validate:"required,max=50"`
	Section  string           `json:"section" validate:"required,section"`
	Alias    string           `json:"alias" validate:"omitempty,max=100"`
	ApiKey   string           `json:"api_key" validate:"required,max=255"`
	IsActive *bool            `json:"is_active" validate:"required"`
	Settings ProviderSettings `json:"settings"`
}

type PersonaConfigIn struct {
	Section            string  `json:"section" validate:"required,section"`
	HairstyleSysPrompt *string `json:"hairstyle_sys_prompt" validate:"omitempty,max=8000"`
	ColorSysPrompt     *string `json:"color_sys_prompt" validate:"omitempty,max=8000"`
	LookSysPrompt1     *string `json:"look_sys_prompt_1" validate:"omitempty,max=8000"`
	LookSysPrompt2     *string `json:"look_sys_prompt_2" validate:"omitempty,max=8000"`
	LookSysPrompt3     *string `json:"look_sys_prompt_3" validate:"omitempty,max=8000"`
	LookSysPrompt4     *string `json:"look_sys_prompt_4" validate:"omitempty,max=8000"`
}
