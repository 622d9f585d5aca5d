package bot

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"routine-planner/internal/model"
	"routine-planner/internal/repository"
	"routine-planner/internal/service"
)

const (
	cbDonePrefix = "done:"
	cbUndoPrefix = "undo:"
)

const (
	menuLabelToday    = "📋 Today"
	menuLabelUpcoming = "🗓 Upcoming"
	menuLabelOverdue  = "⚠️ Overdue"
	menuLabelStats    = "📈 Stats"
)

// sender is the part of the Telegram API the handlers use.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api       sender
	poller    *tgbotapi.BotAPI
	users     *repository.UserRepository
	instances *service.InstanceService
	reminders *service.ReminderService
	log       *slog.Logger

	// lists remembers the instance ids of the last list shown per chat user, so
	// /done 2 refers to what the user actually saw.
	lists map[int64][]string
	mu    sync.Mutex
}

func New(token string, users *repository.UserRepository, instances *service.InstanceService, reminders *service.ReminderService, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	b := newBot(api, users, instances, reminders, log)
	b.poller = api
	b.log.Info("bot authorized", "account", api.Self.UserName)
	return b, nil
}

func newBot(api sender, users *repository.UserRepository, instances *service.InstanceService, reminders *service.ReminderService, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}
	return &Bot{
		api:       api,
		users:     users,
		instances: instances,
		reminders: reminders,
		log:       log.With("component", "bot"),
		lists:     make(map[int64][]string),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if b.poller == nil {
		return fmt.Errorf("bot has no telegram connection")
	}
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.poller.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.poller.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Warn("handle callback", "err", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Warn("handle message", "err", err)
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	if msg.IsCommand() {
		b.log.Debug("command", "from", msg.From.ID, "command", msg.Command(), "args", msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}
	if handled, err := b.handleMenuAlias(ctx, msg); handled {
		return err
	}
	return b.sendText(msg.Chat.ID, "I did not get that. Try /today or /help.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "today":
		return b.handleToday(ctx, msg)
	case "upcoming":
		return b.handleUpcoming(ctx, msg)
	case "overdue":
		return b.handleOverdue(ctx, msg)
	case "done":
		return b.handleMark(ctx, msg, true)
	case "undo":
		return b.handleMark(ctx, msg, false)
	case "note":
		return b.handleNote(ctx, msg)
	case "stats":
		return b.handleStats(ctx, msg)
	case "report":
		return b.handleReport(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	switch strings.TrimSpace(msg.Text) {
	case menuLabelToday:
		return true, b.handleToday(ctx, msg)
	case menuLabelUpcoming:
		return true, b.handleUpcoming(ctx, msg)
	case menuLabelOverdue:
		return true, b.handleOverdue(ctx, msg)
	case menuLabelStats:
		return true, b.handleStats(ctx, msg)
	default:
		return false, nil
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	user, err := b.users.FindByTelegramID(ctx, msg.From.ID)
	switch {
	case err == nil:
		return b.sendText(msg.Chat.ID, fmt.Sprintf(
			"👋 Hi, %s!\nYou are linked as <b>%s</b> (%s).\n\n%s",
			escape(name), escape(user.ID), user.Role, helpText,
		))
	case model.IsNotFound(err):
		return b.sendText(msg.Chat.ID, notLinkedText(msg.From.ID))
	default:
		return err
	}
}

const helpText = "ℹ️ <b>Commands</b>\n" +
	"• /today — today's routine\n" +
	"• /upcoming [days] — what is coming next (default 7 days)\n" +
	"• /overdue — pending tasks from previous days\n" +
	"• /done &lt;n&gt; — mark item n of the last list done\n" +
	"• /undo &lt;n&gt; — put item n back to pending\n" +
	"• /note &lt;n&gt; &lt;text&gt; — attach a note to item n\n" +
	"• /stats — completion over the last 30 days\n" +
	"• /report — today's digest"

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, helpText)
}

func notLinkedText(chatUserID int64) string {
	return fmt.Sprintf("Your Telegram account is not linked yet.\nAsk your coach to run:\n<code>planner user link &lt;your-id&gt; %d</code>", chatUserID)
}

// resolveUser maps the chat user to a planner user; unlinked users get a hint.
func (b *Bot) resolveUser(ctx context.Context, msg *tgbotapi.Message) (*model.User, error) {
	user, err := b.users.FindByTelegramID(ctx, msg.From.ID)
	if err != nil {
		if model.IsNotFound(err) {
			return nil, b.sendText(msg.Chat.ID, notLinkedText(msg.From.ID))
		}
		return nil, err
	}
	return user, nil
}

func (b *Bot) handleToday(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.resolveUser(ctx, msg)
	if user == nil {
		return err
	}
	items, err := b.instances.ListToday(ctx, user.Actor(), user.ID)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	title := fmt.Sprintf("📋 <b>Today, %s</b>", b.instances.Today())
	return b.sendList(msg.Chat.ID, msg.From.ID, title, "Nothing scheduled for today 🎉", items)
}

func (b *Bot) handleUpcoming(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.resolveUser(ctx, msg)
	if user == nil {
		return err
	}
	days := service.DefaultUpcomingDays
	if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return b.sendText(msg.Chat.ID, "Days must be a positive number, e.g. /upcoming 3")
		}
		days = n
	}
	items, err := b.instances.ListUpcoming(ctx, user.Actor(), user.ID, days)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	return b.sendList(msg.Chat.ID, msg.From.ID, "🗓 <b>Upcoming</b>", "Nothing planned yet.", items)
}

func (b *Bot) handleOverdue(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.resolveUser(ctx, msg)
	if user == nil {
		return err
	}
	items, err := b.instances.ListOverdue(ctx, user.Actor(), user.ID)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	return b.sendList(msg.Chat.ID, msg.From.ID, "⚠️ <b>Overdue</b>", "Nothing overdue 👍", items)
}

func (b *Bot) handleMark(ctx context.Context, msg *tgbotapi.Message, completed bool) error {
	user, err := b.resolveUser(ctx, msg)
	if user == nil {
		return err
	}
	id, ok := b.pick(msg.From.ID, strings.TrimSpace(msg.CommandArguments()))
	if !ok {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Pick a number from the last list, e.g. /%s 1", msg.Command()))
	}
	inst, err := b.instances.ToggleComplete(ctx, user.Actor(), id, completed)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, service.FormatInstance(*inst))
}

func (b *Bot) handleNote(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.resolveUser(ctx, msg)
	if user == nil {
		return err
	}
	ref, text, _ := strings.Cut(strings.TrimSpace(msg.CommandArguments()), " ")
	text = strings.TrimSpace(text)
	id, ok := b.pick(msg.From.ID, ref)
	if !ok || text == "" {
		return b.sendText(msg.Chat.ID, "Usage: /note &lt;n&gt; &lt;text&gt;")
	}
	inst, err := b.instances.AddNote(ctx, user.Actor(), id, text)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, "📝 Saved.\n"+service.FormatInstance(*inst))
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.resolveUser(ctx, msg)
	if user == nil {
		return err
	}
	stats, err := b.instances.CompletionStats(ctx, user.Actor(), user.ID, model.Date{}, model.Date{})
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, formatStats(stats))
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.resolveUser(ctx, msg)
	if user == nil {
		return err
	}
	text, err := b.reminders.DailySummary(ctx, *user)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, text)
}

// SendDailyReports sends a summary to every linked user.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.users.ListLinked(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if user.TelegramID == nil {
			continue
		}
		text, err := b.reminders.DailySummary(ctx, user)
		if err != nil {
			b.log.Warn("build summary", "user_id", user.ID, "err", err)
			continue
		}
		if err := b.sendText(*user.TelegramID, text); err != nil {
			b.log.Warn("send summary", "user_id", user.ID, "err", err)
		}
	}
	return nil
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn("callback ack", "err", err)
	}

	var completed bool
	var id string
	switch {
	case strings.HasPrefix(cb.Data, cbDonePrefix):
		completed, id = true, strings.TrimPrefix(cb.Data, cbDonePrefix)
	case strings.HasPrefix(cb.Data, cbUndoPrefix):
		completed, id = false, strings.TrimPrefix(cb.Data, cbUndoPrefix)
	default:
		return nil
	}

	user, err := b.users.FindByTelegramID(ctx, cb.From.ID)
	if err != nil {
		if model.IsNotFound(err) {
			return b.sendText(cb.Message.Chat.ID, notLinkedText(cb.From.ID))
		}
		return err
	}
	inst, err := b.instances.ToggleComplete(ctx, user.Actor(), id, completed)
	if err != nil {
		return b.sendError(cb.Message.Chat.ID, err)
	}
	return b.sendText(cb.Message.Chat.ID, service.FormatInstance(*inst))
}

func (b *Bot) sendList(chatID, userID int64, title, empty string, items []model.TaskInstance) error {
	b.remember(userID, items)
	if len(items) == 0 {
		return b.sendText(chatID, title+"\n"+empty)
	}
	msg := tgbotapi.NewMessage(chatID, title+"\n\n"+strings.TrimSpace(service.FormatInstanceList(items)))
	msg.ParseMode = tgbotapi.ModeHTML
	if kb, ok := listKeyboard(items); ok {
		msg.ReplyMarkup = kb
	}
	_, err := b.api.Send(msg)
	return err
}

// listKeyboard offers one button per actionable item: complete a pending one, undo a completed one.
func listKeyboard(items []model.TaskInstance) (tgbotapi.InlineKeyboardMarkup, bool) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, inst := range items {
		label := fmt.Sprintf("%d · %s", i+1, shortTitle(inst.Name, 24))
		switch inst.Status {
		case model.StatusPending:
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ "+label, cbDonePrefix+inst.ID)))
		case model.StatusCompleted:
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("↩️ "+label, cbUndoPrefix+inst.ID)))
		}
	}
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

func (b *Bot) remember(userID int64, items []model.TaskInstance) {
	ids := make([]string, len(items))
	for i, inst := range items {
		ids[i] = inst.ID
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists[userID] = ids
}

// pick resolves a 1-based position in the last list shown to userID.
func (b *Bot) pick(userID int64, ref string) (string, bool) {
	n, err := strconv.Atoi(ref)
	if err != nil || n <= 0 {
		return "", false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := b.lists[userID]
	if n > len(ids) {
		return "", false
	}
	return ids[n-1], true
}

func (b *Bot) sendError(chatID int64, err error) error {
	switch {
	case model.IsInvalidTransition(err):
		return b.sendText(chatID, "⛔ This change is not allowed. Missed tasks can only be credited by your coach.")
	case model.IsForbidden(err):
		return b.sendText(chatID, "⛔ You cannot change this task.")
	case model.IsNotFound(err):
		return b.sendText(chatID, "Task not found.")
	case model.IsTransient(err):
		b.log.Error("store unavailable", "err", err)
		return b.sendText(chatID, "The planner is temporarily unavailable, please retry in a moment.")
	default:
		return err
	}
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func formatStats(stats service.CompletionStats) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📈 <b>%s … %s</b>\n", stats.From, stats.To))
	sb.WriteString(fmt.Sprintf("✅ completed: %d\n❌ missed: %d\n⬜ pending: %d\n", stats.Completed, stats.Missed, stats.Pending))
	if stats.Completed+stats.Missed > 0 {
		sb.WriteString(fmt.Sprintf("Completion rate: <b>%.0f%%</b>", stats.CompletionRate*100))
	} else {
		sb.WriteString("Nothing resolved yet.")
	}
	return sb.String()
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelToday),
			tgbotapi.NewKeyboardButton(menuLabelUpcoming),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelOverdue),
			tgbotapi.NewKeyboardButton(menuLabelStats),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func shortTitle(title string, maxLen int) string {
	clean := strings.Join(strings.Fields(title), " ")
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func escape(s string) string {
	return html.EscapeString(s)
}
