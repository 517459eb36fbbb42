package services

import (
	"strings"

	"mirrorapi/models"
)

// Prompt block literals. The chat scrubber strips these same markers when a
// model leaks them back into a reply, keep the two lists in sync.
const (
	VisualSeparator        = "--- VISUAL TRANSFORMATION ---"
	SelectedHairstyleLabel = "[SELECTED HAIRSTYLE]"
	SelectedColorLabel     = "[SELECTED COLOR]"
	StyleDetailsLabel      = "[STYLE AND OUTFIT DETAILS]"

	// emitted when nothing at all was configured or selected
	DefaultStylePrompt = "Enhance hairstyle professional look"
)

// StyleSelection is what the user picked on the mirror screen. Everything is
// optional; free-text instructions take precedence over unselected category
// defaults.
type StyleSelection struct {
	Hairstyle    string
	Color        string
	Instructions string
}

// ComposePrompt assembles the layered instruction prompt for one generation.
// Pure and deterministic: persona blocks in fixed order, selection literals
// override persona defaults, and any free-text instructions suppress the
// unselected hairstyle/color defaults so the model never receives
// contradictory guidance. Empty blocks contribute nothing.
func ComposePrompt(persona *models.PersonaConfig, sel StyleSelection) string {
	if persona == nil {
		return composeLegacyPrompt(sel)
	}

	var parts []string
	appendBlock := func(block string) {
		if strings.TrimSpace(block) != "" {
			parts = append(parts, block)
		}
	}
	appendOptional := func(block *string) {
		if block != nil {
			appendBlock(*block)
		}
	}

	// expert personas always lead
	appendOptional(persona.HairstyleSysPrompt)
	appendOptional(persona.ColorSysPrompt)

	appendBlock(VisualSeparator)

	// fixed face block
	appendOptional(persona.LookSysPrompt1)

	// hairstyle: selection literal wins; persona default only when the user
	// gave no free-text instructions
	if sel.Hairstyle != "" {
		appendBlock(SelectedHairstyleLabel + "\n" + sel.Hairstyle)
	} else if persona.LookSysPrompt2 != nil && sel.Instructions == "" {
		appendBlock(*persona.LookSysPrompt2)
	}

	// color: same precedence rule
	if sel.Color != "" {
		appendBlock(SelectedColorLabel + "\n" + sel.Color)
	} else if persona.LookSysPrompt3 != nil && sel.Instructions == "" {
		appendBlock(*persona.LookSysPrompt3)
	}

	if sel.Instructions != "" {
		appendBlock(StyleDetailsLabel + "\n" + sel.Instructions)
	}

	// final synthesis block orchestrates face, hair, color and clothes
	appendOptional(persona.LookSysPrompt4)

	return strings.Join(parts, "\n\n")
}

func composeLegacyPrompt(sel StyleSelection) string {
	var parts []string
	if sel.Hairstyle != "" {
		parts = append(parts, sel.Hairstyle)
	}
	if sel.Color != "" {
		parts = append(parts, sel.Color)
	}
	if sel.Instructions != "" {
		parts = append(parts, sel.Instructions)
	}
	if len(parts) == 0 {
		return DefaultStylePrompt
	}
	return strings.Join(parts, ". ")
}
