package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mtzanidakis/studioflow/internal/notify"
	"github.com/mtzanidakis/studioflow/internal/orchestrator"
)

// chunkMessage splits a message into chunks that fit within Telegram's message size limit.
func chunkMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		// Try to split at a newline
		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > maxLen/2 {
			cutAt = idx + 1
		}

		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}

	return chunks
}

func formatResponse(resp orchestrator.Response) string {
	if resp.Status != orchestrator.StatusSuccess {
		s := fmt.Sprintf("%s failed (%s): %s", resp.Agent, resp.ErrorKind, resp.ErrorMessage)
		if resp.Remedy != "" {
			s += "\nRemedy: " + resp.Remedy
		}
		return s
	}

	if reply := resp.Result.String("response"); reply != "" {
		return reply
	}
	body, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		body = []byte(fmt.Sprint(resp.Result))
	}
	s := string(body)
	if len(resp.Persisted) > 0 {
		s += fmt.Sprintf("\n\nSaved %d records.", len(resp.Persisted))
	}
	for _, w := range resp.Warnings {
		s += "\nWarning: " + w
	}
	return s
}

// Notifier sends notifications to the configured operator chat.
type Notifier struct {
	bot    *Bot
	chatID int64
}

func (b *Bot) Notifier() *Notifier {
	return &Notifier{bot: b, chatID: b.cfg.NotifyChatID}
}

func (n *Notifier) Name() string { return "telegram" }

func (n *Notifier) Send(ctx context.Context, msg notify.Notification) error {
	if n.chatID == 0 {
		return notify.ErrNotConfigured
	}
	return n.bot.SendMessage(ctx, n.chatID, notify.Text(msg))
}

