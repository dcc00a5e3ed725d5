package gateway

import (
	"context"
	"fmt"
	"log"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rahul/vidya/internal/agent"
)

type TelegramGateway struct {
	Bot          *tgbotapi.BotAPI
	Orchestrator *agent.Orchestrator
}

func NewTelegramGateway(token string, orch *agent.Orchestrator) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{
		Bot:          bot,
		Orchestrator: orch,
	}, nil
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}

		log.Printf("[%s] %s", update.Message.From.UserName, update.Message.Text)

		text := update.Message.Text
		if text == "" {
			text = update.Message.Caption
		}

		attachments := tg.collectAttachments(update.Message)

		userID := fmt.Sprintf("tg:%d", update.Message.Chat.ID)
		reply := tg.Orchestrator.HandleTurn(context.Background(), userID, text, attachments)

		for _, ref := range attachments {
			os.Remove(ref.Path)
		}

		msg := tgbotapi.NewMessage(update.Message.Chat.ID, reply.Response)
		tg.Bot.Send(msg)
	}
	return nil
}

// collectAttachments stages document uploads locally. Photos and other
// media have no extractable text, so only documents are staged.
func (tg *TelegramGateway) collectAttachments(msg *tgbotapi.Message) []agent.FileRef {
	if msg.Document == nil {
		return nil
	}

	url, err := tg.Bot.GetFileDirectURL(msg.Document.FileID)
	if err != nil {
		log.Printf("Error resolving file %s: %v", msg.Document.FileName, err)
		return nil
	}
	ref, err := stageFile(url, msg.Document.FileName)
	if err != nil {
		log.Printf("Error staging file %s: %v", msg.Document.FileName, err)
		return nil
	}
	return []agent.FileRef{ref}
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id := 0
	fmt.Sscanf(chatID, "%d", &id)
	if id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(int64(id), text)
	msg.ParseMode = "Markdown"
	_, err := tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
