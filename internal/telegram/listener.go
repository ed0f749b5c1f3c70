package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// CommandHandler turns a slash command into a reply. An empty reply sends
// nothing.
type CommandHandler func(ctx context.Context, command string) string

// Listen long-polls for updates and answers commands from the configured
// chat. It blocks until ctx is cancelled.
func (b *Bot) Listen(ctx context.Context, handler CommandHandler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	b.log.Infow("listener started", "chat_id", b.chatID)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.log.Infow("listener stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handle(ctx, update, handler)
		}
	}
}

func (b *Bot) handle(ctx context.Context, update tgbotapi.Update, handler CommandHandler) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	if msg.Chat.ID != b.chatID {
		from := ""
		if msg.From != nil {
			from = msg.From.UserName
		}
		b.log.Warnw("ignoring message from unauthorized chat", "chat_id", msg.Chat.ID, "from", from)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	b.log.Infow("command received", "command", text)
	b.Notify(handler(ctx, text))
}
