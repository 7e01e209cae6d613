// Package telegram adapts go-telegram-bot-api to the bot's narrow
// messaging, file source and large-file interfaces.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/maruthi2426/merge-bot/internal/merge"
)

// Attachment is a file carried by an inbound message.
type Attachment struct {
	FileID string
	Name   string
	Size   int64
}

// ExtractFile returns the document, video, audio or voice file of m.
// Missing names fall back to a per-kind default.
func ExtractFile(m *tgbotapi.Message) (Attachment, bool) {
	switch {
	case m == nil:
		return Attachment{}, false
	case m.Document != nil:
		return Attachment{FileID: m.Document.FileID, Name: nameOr(m.Document.FileName, "file.bin"), Size: int64(m.Document.FileSize)}, true
	case m.Video != nil:
		return Attachment{FileID: m.Video.FileID, Name: nameOr(m.Video.FileName, "video.mp4"), Size: int64(m.Video.FileSize)}, true
	case m.Audio != nil:
		return Attachment{FileID: m.Audio.FileID, Name: nameOr(m.Audio.FileName, "audio.m4a"), Size: int64(m.Audio.FileSize)}, true
	case m.Voice != nil:
		return Attachment{FileID: m.Voice.FileID, Name: "voice.ogg", Size: int64(m.Voice.FileSize)}, true
	}
	return Attachment{}, false
}

func nameOr(name, def string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return def
}

// MenuKeyboard lists the merge operations, one per row.
func MenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(merge.Operations))
	for _, op := range merge.Operations {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(op.Label(), op.Tag())))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// Client sends messages and opens files through one bot.
type Client struct {
	bot      *tgbotapi.BotAPI
	fileBase string // format with token and file path
	http     *http.Client
}

// NewClient wraps bot. fileBase is the file download root of the Bot API
// server; empty selects the public one.
func NewClient(bot *tgbotapi.BotAPI, fileBase string) *Client {
	fb := tgbotapi.FileEndpoint
	if fileBase != "" {
		fb = strings.TrimRight(fileBase, "/") + "/file/bot%s/%s"
	}
	return &Client{bot: bot, fileBase: fb, http: &http.Client{}}
}

func (c *Client) SendText(_ context.Context, chatID int64, text string) error {
	_, err := c.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// SendMenu sends text with the operation keyboard.
func (c *Client) SendMenu(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = MenuKeyboard()
	_, err := c.bot.Send(msg)
	return err
}

// EditText replaces the text of a sent message.
func (c *Client) EditText(chatID int64, messageID int, text string) error {
	_, err := c.bot.Send(tgbotapi.NewEditMessageText(chatID, messageID, text))
	return err
}

// AnswerCallback acknowledges a button press. alert shows a modal.
func (c *Client) AnswerCallback(id, text string, alert bool) error {
	cb := tgbotapi.NewCallback(id, text)
	cb.ShowAlert = alert
	_, err := c.bot.Request(cb)
	return err
}

// SendDocumentURL lets the Bot API fetch url itself.
func (c *Client) SendDocumentURL(_ context.Context, chatID int64, url, filename string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileURL(url))
	doc.Caption = filename
	_, err := c.bot.Send(doc)
	return err
}

// Open streams the file behind a file id.
func (c *Client) Open(ctx context.Context, fileID string) (io.ReadCloser, error) {
	f, err := c.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("resolve telegram file: %w", err)
	}
	if f.FilePath == "" {
		return nil, errors.New("telegram returned no file path")
	}
	return httpGet(ctx, c.http, fmt.Sprintf(c.fileBase, c.bot.Token, f.FilePath))
}

func httpGet(ctx context.Context, client *http.Client, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("download status: %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// IsTooManyRequests reports a 429 from the Bot API.
func IsTooManyRequests(err error) bool {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) {
		return ptr.Code == http.StatusTooManyRequests
	}
	var val tgbotapi.Error
	if errors.As(err, &val) {
		return val.Code == http.StatusTooManyRequests
	}
	return false
}
