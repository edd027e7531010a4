package notifier

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CommandHandler is called when a user command is received.
type CommandHandler func(command string) string

const pollTimeout = 30 // seconds Telegram holds a getUpdates request open

type getUpdates struct {
	Offset         int      `json:"offset"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

type telegramUpdate struct {
	UpdateID int `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// StartPolling begins long-polling for Telegram commands and answers them in the
// configured chat. When ChatID is numeric, messages from any other chat are ignored.
// Blocks until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	offset := 0
	client := &http.Client{Timeout: (pollTimeout + 5) * time.Second, Transport: t.Client.Transport}
	pause := func() {
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
	}
	allowed, restrict := t.allowedChat()

	for ctx.Err() == nil {
		var updates []telegramUpdate
		req := getUpdates{Offset: offset, Timeout: pollTimeout, AllowedUpdates: []string{"message"}}
		if err := t.call(ctx, client, "getUpdates", req, &updates); err != nil {
			if ctx.Err() != nil {
				break
			}
			t.log.Warn().Err(err).Msg("polling request failed")
			pause()
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			if restrict && update.Message.Chat.ID != allowed {
				t.log.Warn().Int64("chat", update.Message.Chat.ID).Msg("ignoring command from unknown chat")
				continue
			}
			cmd := normalizeCommand(update.Message.Text)
			t.log.Info().Str("command", cmd).Msg("received command")
			if reply := handler(cmd); reply != "" {
				if err := t.SendContext(ctx, reply); err != nil {
					t.log.Error().Err(err).Msg("send reply")
				}
			}
		}
	}
	t.log.Info().Msg("telegram polling stopped")
}

func (t *TelegramNotifier) allowedChat() (int64, bool) {
	id, err := strconv.ParseInt(t.ChatID, 10, 64)
	return id, err == nil
}

// normalizeCommand trims the text and drops a "@BotName" suffix from the command word.
func normalizeCommand(text string) string {
	text = strings.TrimSpace(text)
	word, rest, _ := strings.Cut(text, " ")
	if at := strings.IndexByte(word, '@'); at > 0 && strings.HasPrefix(word, "/") {
		word = word[:at]
	}
	if rest == "" {
		return word
	}
	return word + " " + rest
}
