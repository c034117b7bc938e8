package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// --- Bot ---

// Bot ties the chat transport to the registries and routes every update:
// commands, button presses, and free-text replies to pending prompts.
type Bot struct {
	token       string
	chatID      int64
	pollTimeout int
	client      *http.Client

	cfg      *Config
	tasks    *TaskRegistry
	okrs     *OKRRegistry
	sessions *SessionStore

	// Overridable delivery and membership hooks; nil means the real
	// Telegram API.
	send        func(chatID int64, text string, keyboard [][]tgInlineButton)
	checkMember func(ctx context.Context, userID int64) bool
}

func newBot(cfg *Config, tasks *TaskRegistry, okrs *OKRRegistry, sessions *SessionStore) *Bot {
	return &Bot{
		token:       cfg.Telegram.BotToken,
		chatID:      cfg.Telegram.GroupChatID,
		pollTimeout: cfg.Telegram.pollTimeoutOrDefault(),
		client:      &http.Client{Timeout: time.Duration(cfg.Telegram.pollTimeoutOrDefault()+10) * time.Second},
		cfg:         cfg,
		tasks:       tasks,
		okrs:        okrs,
		sessions:    sessions,
	}
}

const helpText = "*InternBot - Your Startup Accountability Partner*\n\n" +
	"*Commands:*\n" +
	"• `/task [Priority] [Description] -c [Category] -d [YYYY-MM-DD] -a [Assignee]` - Add a new task\n" +
	"  Priority must be P1 (High), P2 (Medium), or P3 (Low)\n" +
	"  Category is optional (default: General)\n" +
	"  Due date is optional in YYYY-MM-DD format\n" +
	"  Assignee is optional (default: yourself)\n" +
	"  Example: `/task P1 Draft investor email -c Partnerships -d 2025-07-05 -a teammate`\n\n" +
	"• `/mytasks` - View your open tasks\n\n" +
	"• `/alltasks` - View all team members' tasks\n\n" +
	"• `/duetasks` - View tasks sorted by due date\n\n" +
	"• `/syncokrs` - Sync OKRs from the sheet\n\n" +
	"*Task Completion:*\n" +
	"When marking a task as done, you'll be prompted to provide a link to your completed work.\n\n" +
	"*Daily Schedule:*\n" +
	"• Morning planning reminder\n" +
	"• Nudge for missing tasks\n" +
	"• Mid-day progress check\n" +
	"• End-of-day summary and OKR updates"

const usernameRequired = "Please set a username in your Telegram settings first."

// --- Message Routing ---

func (b *Bot) handleMessage(ctx context.Context, msg *tgMessage) {
	text := strings.TrimSpace(msg.Text)
	if text == "" || msg.From == nil {
		return
	}
	username := msg.From.Username
	private := msg.Chat.ID != b.chatID

	if strings.HasPrefix(text, "/") {
		// Group members may issue commands from their private chat with
		// the bot; the reply goes back to the chat the command came from.
		if private && !b.isGroupMember(ctx, msg.From.ID) {
			return
		}
		cmd, args := splitCommand(text)
		b.handleCommand(ctx, msg.Chat.ID, username, cmd, args)
		return
	}

	// Pending prompts live in the group chat only.
	if private {
		return
	}
	b.routeFreeText(ctx, username, text)
}

// splitCommand separates "/task@SomeBot args" into ("/task", "args").
func splitCommand(text string) (string, string) {
	cmd := text
	args := ""
	if idx := strings.IndexAny(text, " \t\n"); idx != -1 {
		cmd, args = text[:idx], strings.TrimSpace(text[idx+1:])
	}
	if idx := strings.Index(cmd, "@"); idx != -1 {
		cmd = cmd[:idx]
	}
	return strings.ToLower(cmd), args
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, username, cmd, args string) {
	switch cmd {
	case "/start":
		b.reply(chatID, "👋 Hello! I'm your startup accountability partner. "+
			"I'll help you track tasks and OKRs. Type /help to see what I can do.")

	case "/help":
		b.reply(chatID, helpText)

	case "/task":
		if username == "" {
			b.reply(chatID, usernameRequired)
			return
		}
		b.cmdTask(ctx, chatID, username, args)

	case "/mytasks":
		if username == "" {
			b.reply(chatID, usernameRequired)
			return
		}
		text, keyboard, err := b.tasks.UserTasksMessage(ctx, username)
		if err != nil {
			logError("mytasks failed", "user", username, "error", err)
			b.reply(chatID, "Sorry, something went wrong. Please try again later.")
			return
		}
		b.replyWithKeyboard(chatID, text, keyboard)

	case "/alltasks":
		text, keyboard, err := b.tasks.AllOpenTasksMessage(ctx)
		if err != nil {
			logError("alltasks failed", "error", err)
			b.reply(chatID, "Sorry, something went wrong. Please try again later.")
			return
		}
		b.replyWithKeyboard(chatID, text, keyboard)

	case "/duetasks":
		text, keyboard, err := b.tasks.DueTasksMessage(ctx)
		if err != nil {
			logError("duetasks failed", "error", err)
			b.reply(chatID, "Sorry, something went wrong. Please try again later.")
			return
		}
		b.replyWithKeyboard(chatID, text, keyboard)

	case "/syncokrs":
		n, err := b.okrs.SyncActive(ctx)
		if err != nil {
			logError("okr sync failed", "error", err)
			b.reply(chatID, "❌ Failed to sync OKRs. Please check the sheet.")
			return
		}
		logInfo("okr sync via command", "active", n)
		b.reply(chatID, "✅ OKRs synced successfully!\n\n"+b.okrs.Summary(ctx))

	default:
		b.reply(chatID, "Unknown command. Type /help to see what I can do.")
	}
}

func (b *Bot) cmdTask(ctx context.Context, chatID int64, username, args string) {
	in, err := parseTaskCommand(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	if in.Assignee == "" {
		in.Assignee = username
	}

	t, err := b.tasks.Add(ctx, in)
	if err != nil {
		logError("task add failed", "user", username, "error", err)
		b.reply(chatID, "Sorry, something went wrong. Please try again later.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Task added for @%s:\n", emojiFor(t.Priority), t.Owner)
	fmt.Fprintf(&sb, "*%s* — %s _(%s)_\n", t.Priority, escapeMarkdown(t.Description), escapeMarkdown(t.Category))
	if t.DueDate != "" {
		fmt.Fprintf(&sb, "📅 Due: %s\n", t.DueDate)
	}
	fmt.Fprintf(&sb, "ID: `%s`", t.ID)
	b.reply(chatID, sb.String())
}

// routeFreeText resolves plain messages against the user's pending prompt.
// Text from users with no pending prompt is ignored so normal group chatter
// never triggers the bot.
func (b *Bot) routeFreeText(ctx context.Context, username, text string) {
	if username == "" {
		return
	}
	exp, ok := b.sessions.Get(username)
	if !ok {
		return
	}

	switch exp.kind {
	case expectLink:
		link, ok := evaluateLinkReply(text)
		if !ok {
			// Keep the slot so the user can try again.
			b.reply(b.chatID, "⚠️ Please provide a valid URL starting with http:// or https://\n"+
				"Or type 'none' if there's no link to share.")
			return
		}
		b.sessions.Clear(username)
		b.completeTask(ctx, exp.taskID, link, 0)

	case expectValue:
		// One attempt per prompt: the slot clears whatever the outcome.
		b.sessions.Clear(username)
		_, feedback := b.okrs.RecordProgress(ctx, username, exp.okrID, text)
		b.reply(b.chatID, feedback)
	}
}

// --- Callback Routing ---

func (b *Bot) handleCallback(ctx context.Context, cq *tgCallbackQuery) {
	data := cq.Data
	username := cq.From.Username

	switch {
	case strings.HasPrefix(data, "done:"):
		taskID := strings.TrimPrefix(data, "done:")
		b.answerCallback(cq.ID, "")
		keyboard := [][]tgInlineButton{
			{{Text: "✅ Mark as Done (No Link)", CallbackData: "nolink:" + taskID}},
			{{Text: "📎 Add Link to Completed Work", CallbackData: "addlink:" + taskID}},
		}
		b.replyWithKeyboard(b.chatID, "How would you like to complete this task?", keyboard)

	case strings.HasPrefix(data, "nolink:"):
		taskID := strings.TrimPrefix(data, "nolink:")
		b.answerCallback(cq.ID, "Marking task as done without a link")
		originID := 0
		if cq.Message != nil {
			originID = cq.Message.MessageID
		}
		b.completeTask(ctx, taskID, "", originID)

	case strings.HasPrefix(data, "addlink:"):
		if username == "" {
			b.answerCallback(cq.ID, usernameRequired)
			return
		}
		taskID := strings.TrimPrefix(data, "addlink:")
		b.sessions.Set(username, expectation{kind: expectLink, taskID: taskID})
		b.answerCallback(cq.ID, "")
		b.reply(b.chatID, "📎 Please send a link to your completed work (document, presentation, etc.)")

	case strings.HasPrefix(data, "okr:"):
		if username == "" {
			b.answerCallback(cq.ID, usernameRequired)
			return
		}
		okrID := strings.TrimPrefix(data, "okr:")
		obj := b.okrs.ActiveByID(okrID)
		if obj == nil {
			b.answerCallback(cq.ID, "OKR not found. Please use /syncokrs to refresh.")
			return
		}
		b.sessions.Set(username, expectation{kind: expectValue, okrID: okrID})
		b.answerCallback(cq.ID, "")
		b.reply(b.chatID, fmt.Sprintf("What's the current number for '%s'?", obj.Goal))

	default:
		b.answerCallback(cq.ID, "")
	}
}

// completeTask marks a task done and confirms in chat. When the press came
// from a task-list message, that message is edited to strike through the
// finished task.
func (b *Bot) completeTask(ctx context.Context, taskID, link string, originMessageID int) {
	task, found, err := b.tasks.Get(ctx, taskID)
	ok := false
	if err == nil && found {
		ok, err = b.tasks.MarkDone(ctx, taskID, link)
	}
	if err != nil {
		logError("task completion failed", "id", taskID, "error", err)
		b.reply(b.chatID, "❌ Failed to mark task as done. Please try again.")
		return
	}
	if !ok {
		b.reply(b.chatID, fmt.Sprintf("Task `%s` not found. It may have been removed from the sheet.", taskID))
		return
	}

	var sb strings.Builder
	sb.WriteString("✅ *Task completed successfully!*\n\n")
	fmt.Fprintf(&sb, "📝 *Task:* %s\n", escapeMarkdown(task.Description))
	if link != "" {
		fmt.Fprintf(&sb, "🔗 *Submission:* %s\n", link)
	}
	sb.WriteString("\nGreat job completing this task!")
	b.reply(b.chatID, sb.String())

	if originMessageID != 0 {
		// Rewrite the prompt message so the finished task shows struck
		// through and its buttons disappear.
		b.editMessage(b.chatID, originMessageID, fmt.Sprintf("~%s~ ✅", escapeMarkdown(task.Description)), nil)
	}
}

// --- Scheduled Senders ---

func (b *Bot) sendPlanningReminder(ctx context.Context) {
	b.reply(b.chatID, "☀️ Good morning! It's time to plan our day. "+
		"Add your tasks with `/task [Priority] [Description] -c [Category]`.")
}

// sendDailyNudge pings each group admin who has no task created today.
func (b *Bot) sendDailyNudge(ctx context.Context) {
	admins, err := b.chatAdministrators(ctx)
	if err != nil {
		logError("nudge: admin lookup failed", "error", err)
		return
	}
	idle, err := b.tasks.UsersWithoutTaskToday(ctx, admins)
	if err != nil {
		logError("nudge: task check failed", "error", err)
		return
	}
	for _, username := range idle {
		b.reply(b.chatID, fmt.Sprintf("@%s, you haven't added any tasks for the day yet. What's your top priority?", username))
	}
	logInfo("daily nudge sent", "admins", len(admins), "nudged", len(idle))
}

func (b *Bot) sendMiddayCheckin(ctx context.Context) {
	b.reply(b.chatID, "🕒 Afternoon Check-in! Here's the current status of our open tasks:")
	text, keyboard, err := b.tasks.AllOpenTasksMessage(ctx)
	if err != nil {
		logError("midday checkin failed", "error", err)
		return
	}
	b.replyWithKeyboard(b.chatID, text, keyboard)
}

// sendEODSummary posts the day wrap-up followed by the OKR update keyboard.
func (b *Bot) sendEODSummary(ctx context.Context) {
	summary, err := b.tasks.EndOfDaySummary(ctx)
	if err != nil {
		logError("eod summary failed", "error", err)
	} else {
		b.reply(b.chatID, summary)
	}

	// Refresh active OKRs so the keyboard reflects the sheet as of tonight.
	if _, err := b.okrs.SyncActive(ctx); err != nil {
		logWarn("eod okr sync failed", "error", err)
	}
	text, keyboard := b.okrs.UpdateKeyboard()
	b.replyWithKeyboard(b.chatID, text, keyboard)
}
