package gateway

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/bwmarrin/discordgo"
	"github.com/rahul/vidya/internal/agent"
)

type DiscordGateway struct {
	Session      *discordgo.Session
	Orchestrator *agent.Orchestrator
}

func NewDiscordGateway(token string, orch *agent.Orchestrator) (*DiscordGateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	return &DiscordGateway{
		Session:      session,
		Orchestrator: orch,
	}, nil
}

func (dg *DiscordGateway) Start() error {
	dg.Session.AddHandler(dg.onMessage)
	if err := dg.Session.Open(); err != nil {
		return err
	}
	log.Printf("Authorized on account %s", dg.Session.State.User.Username)
	return nil
}

func (dg *DiscordGateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}

	log.Printf("[%s] %s", m.Author.Username, m.Content)

	var attachments []agent.FileRef
	for _, att := range m.Attachments {
		ref, err := stageFile(att.URL, att.Filename)
		if err != nil {
			log.Printf("Error staging file %s: %v", att.Filename, err)
			continue
		}
		attachments = append(attachments, ref)
	}

	userID := fmt.Sprintf("dc:%s", m.ChannelID)
	reply := dg.Orchestrator.HandleTurn(context.Background(), userID, m.Content, attachments)

	for _, ref := range attachments {
		os.Remove(ref.Path)
	}

	if _, err := s.ChannelMessageSend(m.ChannelID, reply.Response); err != nil {
		log.Printf("Error sending reply: %v", err)
	}
}

func (dg *DiscordGateway) Send(chatID string, text string) error {
	_, err := dg.Session.ChannelMessageSend(chatID, text)
	return err
}

func (dg *DiscordGateway) Stop() error {
	return dg.Session.Close()
}
