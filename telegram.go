package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// --- Telegram Types ---

type tgUpdate struct {
	UpdateID      int              `json:"update_id"`
	Message       *tgMessage       `json:"message"`
	CallbackQuery *tgCallbackQuery `json:"callback_query"`
}

type tgMessage struct {
	MessageID int     `json:"message_id"`
	From      *tgUser `json:"from"`
	Chat      tgChat  `json:"chat"`
	Text      string  `json:"text"`
}

type tgChat struct {
	ID int64 `json:"id"`
}

type tgCallbackQuery struct {
	ID      string     `json:"id"`
	From    tgUser     `json:"from"`
	Message *tgMessage `json:"message"`
	Data    string     `json:"data"`
}

type tgUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// Inline keyboard types for Telegram Bot API.
type tgInlineKeyboard struct {
	InlineKeyboard [][]tgInlineButton `json:"inline_keyboard"`
}

type tgInlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// --- Polling ---

func (b *Bot) pollLoop(ctx context.Context) {
	offset := 0
	logInfo("telegram bot polling started", "chatID", b.chatID)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		url := fmt.Sprintf("https://api.telegram.org/bot%s/getUpdates?offset=%d&timeout=%d",
			b.token, offset, b.pollTimeout)

		req, _ := http.NewRequestWithContext(ctx, "GET", url, nil)
		resp, err := b.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logError("telegram poll error", "error", err)
			time.Sleep(5 * time.Second)
			continue
		}

		updates, err := decodeUpdates(resp.Body)
		resp.Body.Close()
		if err != nil {
			logWarn("telegram poll decode failed", "error", err)
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1

			if u.CallbackQuery != nil {
				if u.CallbackQuery.Message != nil && u.CallbackQuery.Message.Chat.ID == b.chatID {
					b.handleCallback(ctx, u.CallbackQuery)
				}
				continue
			}

			if u.Message == nil || u.Message.From == nil {
				continue
			}
			// Group traffic, plus private chats with the bot (the member
			// check happens in handleMessage).
			if u.Message.Chat.ID != b.chatID && u.Message.Chat.ID != u.Message.From.ID {
				continue
			}
			b.handleMessage(ctx, u.Message)
		}
	}
}

func decodeUpdates(r io.Reader) ([]tgUpdate, error) {
	var body struct {
		OK     bool       `json:"ok"`
		Result []tgUpdate `json:"result"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return nil, err
	}
	return body.Result, nil
}

// --- Sending ---

func (b *Bot) reply(chatID int64, text string) {
	b.replyWithKeyboard(chatID, text, nil)
}

func (b *Bot) replyWithKeyboard(chatID int64, text string, keyboard [][]tgInlineButton) {
	if b.send != nil {
		b.send(chatID, text, keyboard)
		return
	}
	payload := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	if len(keyboard) > 0 {
		payload["reply_markup"] = tgInlineKeyboard{InlineKeyboard: keyboard}
	}
	b.post("sendMessage", payload)
}

// editMessage rewrites the text of a message the bot already sent, dropping
// any keyboard it carried unless a new one is given.
func (b *Bot) editMessage(chatID int64, messageID int, text string, keyboard [][]tgInlineButton) {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	if len(keyboard) > 0 {
		payload["reply_markup"] = tgInlineKeyboard{InlineKeyboard: keyboard}
	}
	b.post("editMessageText", payload)
}

// post sends one Bot API call, retrying once without Markdown when the API
// rejects the entity parse.
func (b *Bot) post(method string, payload map[string]any) {
	body, _ := json.Marshal(payload)
	url := fmt.Sprintf("https://api.telegram.org/bot%s/%s", b.token, method)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		logError("telegram send error", "method", method, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		respBody, _ := io.ReadAll(resp.Body)
		// Retry without Markdown if parse_mode caused the error.
		if payload["parse_mode"] != nil && strings.Contains(string(respBody), "parse") {
			payload["parse_mode"] = ""
			body2, _ := json.Marshal(payload)
			http.Post(url, "application/json", bytes.NewReader(body2))
		} else {
			logWarn("telegram send non-200", "method", method, "status", resp.StatusCode, "body", truncate(string(respBody), 300))
		}
	}
}

// answerCallback acknowledges a callback query with a short toast message.
func (b *Bot) answerCallback(callbackQueryID, text string) {
	payload := map[string]any{
		"callback_query_id": callbackQueryID,
	}
	if text != "" {
		payload["text"] = text
	}
	body, _ := json.Marshal(payload)
	url := fmt.Sprintf("https://api.telegram.org/bot%s/answerCallbackQuery", b.token)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		logError("telegram answerCallback error", "error", err)
		return
	}
	resp.Body.Close()
}

// isGroupMember reports whether the user currently belongs to the
// configured group.
func (b *Bot) isGroupMember(ctx context.Context, userID int64) bool {
	if b.checkMember != nil {
		return b.checkMember(ctx, userID)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/getChatMember?chat_id=%d&user_id=%d",
		b.token, b.chatID, userID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return false
	}
	resp, err := b.client.Do(req)
	if err != nil {
		logWarn("getChatMember failed", "userID", userID, "error", err)
		return false
	}
	defer resp.Body.Close()

	var body struct {
		OK     bool `json:"ok"`
		Result struct {
			Status string `json:"status"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || !body.OK {
		return false
	}
	switch body.Result.Status {
	case "creator", "administrator", "member":
		return true
	}
	return false
}

// chatAdministrators returns the usernames of the group's admins, skipping
// bots and admins without a username.
func (b *Bot) chatAdministrators(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/getChatAdministrators?chat_id=%d", b.token, b.chatID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getChatAdministrators: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		OK     bool `json:"ok"`
		Result []struct {
			User tgUser `json:"user"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("parse getChatAdministrators: %w", err)
	}
	if !body.OK {
		return nil, fmt.Errorf("getChatAdministrators returned ok=false")
	}

	var names []string
	for _, m := range body.Result {
		if m.User.Username == "" {
			continue
		}
		names = append(names, m.User.Username)
	}
	return names, nil
}

// --- Text Helpers ---

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escapeMarkdown neutralizes user-supplied text inserted into Markdown
// messages. The send path still falls back to plain text if Telegram
// rejects the parse.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
