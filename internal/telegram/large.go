package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// LargeSender uploads files through a self-hosted Bot API server, which
// accepts documents up to 2 GB. The file is streamed from its URL into the
// multipart request without touching disk.
type LargeSender struct {
	bot  *tgbotapi.BotAPI
	http *http.Client
}

// NewLargeSender logs in to the Bot API server at endpoint
// (e.g. http://localhost:8081).
func NewLargeSender(token, endpoint string) (*LargeSender, error) {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, strings.TrimRight(endpoint, "/")+"/bot%s/%s")
	if err != nil {
		return nil, fmt.Errorf("connect local bot api: %w", err)
	}
	return &LargeSender{bot: bot, http: &http.Client{}}, nil
}

func (l *LargeSender) SendDocument(ctx context.Context, chatID int64, url, filename string) error {
	body, err := httpGet(ctx, l.http, url)
	if err != nil {
		return err
	}
	defer body.Close()

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{Name: filename, Reader: body})
	if _, err := l.bot.Send(doc); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	return nil
}
