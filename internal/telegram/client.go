// Package telegram pushes watcher notifications to a single chat and relays
// slash commands from that chat back to the watcher.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"theta_watcher/internal/logger"
)

const (
	queueSize = 100
	// Telegram allows roughly one message per second per chat.
	sendInterval = time.Second
	sendBurst    = 3
)

// botAPI is the subset of *tgbotapi.BotAPI the bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot sends queued messages to one chat and listens for commands from it.
type Bot struct {
	api     botAPI
	chatID  int64
	queue   chan string
	limiter *rate.Limiter
	log     *logger.Logger

	startOnce sync.Once
	done      chan struct{}
}

// New connects to the Bot API. The timeout bounds every HTTP call except
// long-poll reads, which the library extends itself.
func New(token string, chatID int64, timeout time.Duration) (*Bot, error) {
	client := &http.Client{Timeout: timeout + 60*time.Second}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	logger.Infof("Telegram: authorized as @%s", api.Self.UserName)
	return newBot(api, chatID), nil
}

func newBot(api botAPI, chatID int64) *Bot {
	return &Bot{
		api:     api,
		chatID:  chatID,
		queue:   make(chan string, queueSize),
		limiter: rate.NewLimiter(rate.Every(sendInterval), sendBurst),
		log:     logger.With("component", "telegram"),
		done:    make(chan struct{}),
	}
}

// Notify enqueues text for delivery. It never blocks; when the queue is
// full the message is dropped.
func (b *Bot) Notify(text string) {
	if text == "" {
		return
	}
	select {
	case b.queue <- text:
	default:
		b.log.Warnw("queue full, dropping message", "len", len(text))
	}
}

// Start runs the send worker until ctx is cancelled. Messages still queued
// at that point are discarded.
func (b *Bot) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.worker(ctx)
	})
}

// Done is closed when the send worker exits.
func (b *Bot) Done() <-chan struct{} { return b.done }

func (b *Bot) worker(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-b.queue:
			if err := b.limiter.Wait(ctx); err != nil {
				return
			}
			if err := b.send(text); err != nil {
				b.log.Errorw("send failed", "error", err)
			}
		}
	}
}

func (b *Bot) send(text string) error {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		// Unbalanced markdown in a symbol or error string; retry as plain text.
		msg.ParseMode = ""
		if _, err2 := b.api.Send(msg); err2 != nil {
			return fmt.Errorf("telegram: send: %w", err)
		}
	}
	return nil
}
