package telegram

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"mirrorapi/models"
)

func EscapeMessage(message string) string {
	r := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return r.Replace(message)
}

// AlertBot pushes operator alerts (misconfiguration, duplicate active
// provider configs) to the admin chats listed in TG_ADMIN_CHAT_IDS.
type AlertBot struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
}

func NewAlertBot() *AlertBot {
	token := os.Getenv("TG_TOKEN")
	if token == "" {
		fmt.Println("TG_TOKEN not set, operator alerts disabled")
		return &AlertBot{}
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		fmt.Println("Error tg bot init:", err)
		return &AlertBot{}
	}

	var chatIDs []int64
	for _, raw := range strings.Split(os.Getenv("TG_ADMIN_CHAT_IDS"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			fmt.Println("Bad TG_ADMIN_CHAT_IDS entry:", raw)
			continue
		}
		chatIDs = append(chatIDs, id)
	}
	return &AlertBot{bot: bot, chatIDs: chatIDs}
}

func (a *AlertBot) Alert(message string) {
	if a.bot == nil || len(a.chatIDs) == 0 {
		fmt.Println("[Alert]", message)
		return
	}
	for _, chatID := range a.chatIDs {
		msg := tgbotapi.NewMessage(chatID, EscapeMessage(message))
		msg.ParseMode = "markdown"
		if _, err := a.bot.Send(msg); err != nil {
			fmt.Println("Error sending operator alert:", err)
		}
	}
}

// RunOpsBot answers /stats with generation and usage counts. Blocking, run
// in its own goroutine.
func RunOpsBot(db *gorm.DB) {
	token := os.Getenv("TG_TOKEN")
	if token == "" {
		return
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		println("Error tg bot init")
		log.Panic(err)
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}
		if update.Message.Command() != "stats" {
			continue
		}

		var total, failed, degraded int64
		db.Model(&models.MirrorGeneration{}).Count(&total)
		db.Model(&models.MirrorGeneration{}).Where("status = ?", models.GenerationFailed).Count(&failed)
		db.Model(&models.MirrorGeneration{}).Where("status = ?", models.GenerationDegraded).Count(&degraded)

		var tokens int64
		db.Model(&models.MirrorUsage{}).Select("coalesce(sum(total_tokens), 0)").Scan(&tokens)

		msg := tgbotapi.NewMessage(update.Message.Chat.ID, fmt.Sprintf(
			"Generations: %d\nFailed: %d\nDegraded: %d\nTokens spent: %d",
			total, failed, degraded, tokens))
		bot.Send(msg)
	}
}
