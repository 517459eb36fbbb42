package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"mirrorapi/models"
)

// ChatTurn is one prior message in the advisory conversation.
type ChatTurn struct {
	Role    string
	Message string
}

// ChatInvoker is the conversational provider call behind the advisory flow.
type ChatInvoker interface {
	Chat(ctx context.Context, backend ResolvedBackend, systemPrompt string, history []ChatTurn) (string, TokenUsage, error)
}

const visualPromptOpen = "[VISUAL_PROMPT]"
const visualPromptClose = "[/VISUAL_PROMPT]"

// Appended to the persona so the model can hand a ready-to-render prompt to
// the generation pipeline once the user settles on a look.
const visualPromptDirective = `

When the user has decided on a specific look, include a complete image
generation prompt describing it, wrapped exactly between ` + visualPromptOpen + ` and
` + visualPromptClose + `. Do not mention these markers to the user otherwise.`

var visualPromptPattern = regexp.MustCompile(`(?s)\[VISUAL_PROMPT\](.*?)\[/VISUAL_PROMPT\]`)

// Persona preambles and internal field labels that models occasionally echo
// back. Matched lines are dropped from the user-visible reply.
var leakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*(Act as a|You are a|System Instruction|SYSTEM INSTRUCTION).*$`),
	regexp.MustCompile(`(?m)^\s*(Rules:|Identification:|Color Analysis:).*$`),
	regexp.MustCompile(regexp.QuoteMeta(VisualSeparator)),
	regexp.MustCompile(regexp.QuoteMeta(SelectedHairstyleLabel)),
	regexp.MustCompile(regexp.QuoteMeta(SelectedColorLabel)),
	regexp.MustCompile(regexp.QuoteMeta(StyleDetailsLabel)),
}

// ScrubLeakedInstructions strips persona preambles, section separators and
// selection labels out of a model reply, then collapses the leftover blank
// runs.
func ScrubLeakedInstructions(reply string) string {
	for _, pattern := range leakPatterns {
		reply = pattern.ReplaceAllString(reply, "")
	}
	lines := strings.Split(reply, "\n")
	var kept []string
	blank := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if !blank && len(kept) > 0 {
				kept = append(kept, "")
			}
			blank = true
			continue
		}
		blank = false
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// ExtractVisualPrompt pulls the marked image prompt out of a reply, returning
// the cleaned reply and the prompt separately.
func ExtractVisualPrompt(reply string) (string, string) {
	match := visualPromptPattern.FindStringSubmatch(reply)
	if match == nil {
		return reply, ""
	}
	cleaned := visualPromptPattern.ReplaceAllString(reply, "")
	return strings.TrimSpace(cleaned), strings.TrimSpace(match[1])
}

// ChatOrchestrator serves the hairstyle advisory conversation. Backend
// resolution is lenient here: a missing model override falls back to the
// default chat model instead of refusing, since advisory has no per-call
// image cost.
type ChatOrchestrator struct {
	DB       *gorm.DB
	Store    ConfigStore
	Selector *BackendSelector
	Invoker  ChatInvoker
	Quota    *QuotaGuard
}

func NewChatOrchestrator(db *gorm.DB, alerter OperatorAlerter) *ChatOrchestrator {
	store := &GormConfigStore{DB: db}
	return &ChatOrchestrator{
		DB:       db,
		Store:    store,
		Selector: &BackendSelector{Store: store, Alerter: alerter},
		Invoker:  &GeminiChatBackend{},
		Quota:    NewQuotaGuard(db),
	}
}

func (o *ChatOrchestrator) ProcessChat(ctx context.Context, user *models.UserAccount, section models.Section, history []ChatTurn, message string) (*models.ChatOut, error) {
	if err := o.Quota.CheckBudget(ctx, user); err != nil {
		return nil, err
	}

	backend, err := o.Selector.ResolveWithDefault(ctx, section, DefaultChatModel)
	if err != nil {
		return nil, err
	}

	persona, err := o.Store.PersonaConfig(ctx, section)
	if err != nil {
		return nil, err
	}
	systemPrompt := chatSystemPrompt(persona)

	turns := append(append([]ChatTurn{}, history...), ChatTurn{Role: "user", Message: message})

	callCtx, cancel := context.WithTimeout(ctx, backendCallTimeout)
	reply, usage, err := o.Invoker.Chat(callCtx, *backend, systemPrompt, turns)
	cancel()
	if err != nil {
		return nil, err
	}

	if err := o.Quota.Debit(ctx, user, nil, usage); err != nil {
		fmt.Printf("[Chat] Usage debit failed for user %d: %v\n", user.ID, err)
	}

	cleaned, visualPrompt := ExtractVisualPrompt(reply)
	cleaned = ScrubLeakedInstructions(cleaned)
	return &models.ChatOut{Reply: cleaned, VisualPrompt: visualPrompt}, nil
}

func chatSystemPrompt(persona *models.PersonaConfig) string {
	var blocks []string
	if persona != nil {
		if persona.HairstyleSysPrompt != nil && strings.TrimSpace(*persona.HairstyleSysPrompt) != "" {
			blocks = append(blocks, *persona.HairstyleSysPrompt)
		}
		if persona.ColorSysPrompt != nil && strings.TrimSpace(*persona.ColorSysPrompt) != "" {
			blocks = append(blocks, *persona.ColorSysPrompt)
		}
	}
	if len(blocks) == 0 {
		blocks = append(blocks, "You are a friendly professional hairstylist advising a client on styles and colors that suit them.")
	}
	return strings.Join(blocks, "\n\n") + visualPromptDirective
}
