package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mirrorapi/models"
)

func TestScrubLeakedPersonaPreamble(t *testing.T) {
	reply := "Act as a master hairstylist with 20 years of experience.\n" +
		"I think a layered bob would frame your face nicely!"
	assert.Equal(t, "I think a layered bob would frame your face nicely!", ScrubLeakedInstructions(reply))
}

func TestScrubLeakedInternalLabels(t *testing.T) {
	reply := "Here is my suggestion:\n" +
		"Rules: never change the face\n" +
		"Color Analysis: warm undertone\n" +
		"\n" +
		"Go with a warm chestnut balayage."
	scrubbed := ScrubLeakedInstructions(reply)
	assert.Equal(t, "Here is my suggestion:\n\nGo with a warm chestnut balayage.", scrubbed)
}

func TestScrubLeakedPromptMarkers(t *testing.T) {
	reply := "Try this!\n" + VisualSeparator + "\n" + SelectedHairstyleLabel + "\nLong waves"
	scrubbed := ScrubLeakedInstructions(reply)
	assert.NotContains(t, scrubbed, VisualSeparator)
	assert.NotContains(t, scrubbed, SelectedHairstyleLabel)
	assert.Contains(t, scrubbed, "Long waves")
}

func TestScrubCollapsesBlankRuns(t *testing.T) {
	reply := "First line\n\n\n\nSecond line"
	assert.Equal(t, "First line\n\nSecond line", ScrubLeakedInstructions(reply))
}

func TestScrubCleanReplyUntouched(t *testing.T) {
	reply := "A pixie cut would suit you.\nWant me to render it?"
	assert.Equal(t, reply, ScrubLeakedInstructions(reply))
}

func TestExtractVisualPrompt(t *testing.T) {
	reply := "Great choice! Here is a preview.\n" +
		"[VISUAL_PROMPT]A woman with a copper pixie cut, studio lighting[/VISUAL_PROMPT]\n" +
		"Let me know what you think."
	cleaned, prompt := ExtractVisualPrompt(reply)
	assert.Equal(t, "A woman with a copper pixie cut, studio lighting", prompt)
	assert.NotContains(t, cleaned, "[VISUAL_PROMPT]")
	assert.Contains(t, cleaned, "Great choice!")
	assert.Contains(t, cleaned, "Let me know what you think.")
}

func TestExtractVisualPromptMultiline(t *testing.T) {
	reply := "[VISUAL_PROMPT]\nLine one\nLine two\n[/VISUAL_PROMPT]"
	cleaned, prompt := ExtractVisualPrompt(reply)
	assert.Equal(t, "Line one\nLine two", prompt)
	assert.Empty(t, cleaned)
}

func TestExtractVisualPromptAbsent(t *testing.T) {
	reply := "Just a normal reply"
	cleaned, prompt := ExtractVisualPrompt(reply)
	assert.Equal(t, reply, cleaned)
	assert.Empty(t, prompt)
}

func TestChatSystemPromptUsesPersonaBlocks(t *testing.T) {
	persona := &models.PersonaConfig{
		HairstyleSysPrompt: StrPointer("Hairstylist persona."),
		ColorSysPrompt:     StrPointer("Colorist persona."),
	}
	prompt := chatSystemPrompt(persona)
	assert.Contains(t, prompt, "Hairstylist persona.")
	assert.Contains(t, prompt, "Colorist persona.")
	assert.Contains(t, prompt, visualPromptOpen)
}

func TestChatSystemPromptFallbackPersona(t *testing.T) {
	prompt := chatSystemPrompt(nil)
	assert.Contains(t, prompt, "hairstylist")
	assert.Contains(t, prompt, visualPromptOpen)
}
