// Package telegram exposes the agents as a Telegram bot and delivers
// notifications to an operator chat.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/mtzanidakis/studioflow/internal/agent"
	"github.com/mtzanidakis/studioflow/internal/config"
	"github.com/mtzanidakis/studioflow/internal/orchestrator"
	"github.com/mtzanidakis/studioflow/internal/router"
)

// Invoker runs agents, normally an *orchestrator.Orchestrator.
type Invoker interface {
	Invoke(ctx context.Context, name string, payload agent.Payload) orchestrator.Response
	Agents() []agent.Capabilities
}

type Bot struct {
	bot     *telego.Bot
	handler *th.BotHandler
	router  *router.Router
	cfg     config.TelegramConfig
	cancel  context.CancelFunc

	mu      sync.RWMutex
	invoker Invoker
}

func NewBot(cfg config.TelegramConfig, rtr *router.Router, opts ...telego.BotOption) (*Bot, error) {
	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Bot{bot: bot, router: rtr, cfg: cfg}, nil
}

// SetInvoker wires the orchestrator after construction; the orchestrator
// in turn uses the bot's Notifier.
func (b *Bot) SetInvoker(inv Invoker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invoker = inv
}

func (b *Bot) getInvoker() Invoker {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.invoker
}

func (b *Bot) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	updates, err := b.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.bot, updates)
	if err != nil {
		cancel()
		return fmt.Errorf("create handler: %w", err)
	}
	b.handler = handler

	handler.HandleMessage(func(hctx *th.Context, message telego.Message) error {
		go b.handleMessage(ctx, message)
		return nil
	})

	go func() { _ = handler.Start() }()

	<-ctx.Done()
	_ = handler.Stop()
	return nil
}

func (b *Bot) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.handler != nil {
		_ = b.handler.Stop()
	}
}

func (b *Bot) allowed(userID int64) bool {
	return len(b.cfg.AllowFrom) == 0 || slices.Contains(b.cfg.AllowFrom, userID)
}

func (b *Bot) handleMessage(ctx context.Context, msg telego.Message) {
	if msg.From == nil {
		return
	}
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if !b.allowed(userID) {
		slog.Warn("unauthorized telegram user", "user_id", userID, "chat_id", chatID)
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	inv := b.getInvoker()
	if inv == nil {
		_ = b.SendMessage(ctx, chatID, "Not ready yet, try again in a moment.")
		return
	}

	switch command(text) {
	case "start", "help", "agents":
		_ = b.SendMessage(ctx, chatID, helpText(inv.Agents()))
		return
	}

	name, payload, err := b.router.Route(ctx, text)
	if err != nil {
		slog.Error("route telegram message failed", "chat_id", chatID, "error", err)
		_ = b.SendMessage(ctx, chatID, "Sorry, I could not work out which agent should handle that.")
		return
	}
	payload["_source"] = "telegram"

	_ = b.sendChatAction(ctx, chatID, "typing")

	resp := inv.Invoke(ctx, name, payload)
	if err := b.SendMessage(ctx, chatID, formatResponse(resp)); err != nil {
		slog.Error("failed to send telegram message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range chunkMessage(text, 4096) {
		if _, err := b.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), chunk)); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

func (b *Bot) sendChatAction(ctx context.Context, chatID int64, action string) error {
	return b.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), action))
}

// command returns the bot command of text without the slash or bot
// suffix, or "" when text is not a command.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	head, _, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(strings.TrimSpace(head))
}

func helpText(agents []agent.Capabilities) string {
	var sb strings.Builder
	sb.WriteString("Send a message and I will route it, or address an agent directly with @name or /name.\n\nAgents:\n")
	for _, a := range agents {
		fmt.Fprintf(&sb, "/%s - %s\n", a.Name, a.Description)
	}
	return sb.String()
}
