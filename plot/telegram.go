package plot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/rs/zerolog"
)

// Telegram refuses photos above roughly this size, so bigger charts go out
// as documents.
const maxPhotoSize = 150000

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts every chart to a chat.
type Telegram struct {
	api    sender
	chatID int64
	log    zerolog.Logger
}

func NewTelegram(token string, chatID int64, log zerolog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Telegram{api: api, chatID: chatID, log: log}, nil
}

func (t *Telegram) Render(ctx context.Context, c Chart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	graph, err := DrawChart(c)
	if err != nil {
		return err
	}

	file := tgbotapi.FileBytes{
		Name:  fmt.Sprintf("%s_%s.png", Slug(c.Title), time.Now().Format("20060102-150405")),
		Bytes: graph,
	}

	var msg tgbotapi.Chattable
	if len(graph) < maxPhotoSize {
		photo := tgbotapi.NewPhotoUpload(t.chatID, file)
		photo.Caption = caption(c)
		msg = photo
	} else {
		doc := tgbotapi.NewDocumentUpload(t.chatID, file)
		doc.Caption = caption(c)
		msg = doc
	}

	if _, err := t.api.Send(msg); err != nil {
		t.log.Error().Err(err).Str("chart", c.Title).Msg("telegram send failed")
		return fmt.Errorf("send chart %q: %w", c.Title, err)
	}
	return nil
}

func caption(c Chart) string {
	if c.Subtitle == "" {
		return c.Title
	}
	return c.Title + "\n" + c.Subtitle
}
