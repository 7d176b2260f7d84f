package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"telegram-stock-alert/internal/alert"
	"telegram-stock-alert/internal/database"
	"telegram-stock-alert/internal/session"
	"telegram-stock-alert/internal/types"
	"telegram-stock-alert/lib/helpers"
	"telegram-stock-alert/lib/translation"
)

// NewBot creates new telegram bot
func NewBot(c BotConfig, sessions *session.Manager, mirror *alert.Mirror, charts Charter, quotes Quoter) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(c.Token)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	bot.Debug = c.Debug

	return &Bot{
		Bot:      bot,
		Config:   c,
		sessions: sessions,
		mirror:   mirror,
		charts:   charts,
		quotes:   quotes,
	}, nil
}

// GetUpdatesChannel gets new updates
func (b *Bot) GetUpdatesChannel() (tgbotapi.UpdatesChannel, error) {
	updatesConfig := tgbotapi.NewUpdate(0)
	if b.Config.UpdatesTimeout > 0 {
		updatesConfig.Timeout = b.Config.UpdatesTimeout
	}
	return b.Bot.GetUpdatesChan(updatesConfig), nil
}

// SendMessage sends a telegram message
func (b *Bot) SendMessage(m Message) error {
	msg := tgbotapi.NewMessage(int64(m.ChatID), m.Text)
	msg.ReplyToMessageID = m.MessageID
	msg.DisableWebPagePreview = true
	msg.ParseMode = "MarkdownV2"
	_, err := b.Bot.Send(msg)
	return errors.Wrapf(err, "could not send message: %v", m)
}

// SendText delivers an already-escaped MarkdownV2 notification.
func (b *Bot) SendText(userID int64, text string) error {
	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = "MarkdownV2"
	_, err := b.Bot.Send(msg)
	return errors.Wrapf(err, "could not send text to %d", userID)
}

// SendChart delivers a rendered PNG with a MarkdownV2 caption.
func (b *Bot) SendChart(userID int64, png []byte, caption string) error {
	photo := tgbotapi.NewPhoto(userID, tgbotapi.FileBytes{
		Name:  "chart.png",
		Bytes: png,
	})
	photo.Caption = caption
	photo.ParseMode = "MarkdownV2"
	_, err := b.Bot.Send(photo)
	return errors.Wrapf(err, "could not send chart to %d", userID)
}

// SendTextWithActions delivers a notification with an inline keyboard.
func (b *Bot) SendTextWithActions(userID int64, text string, actions []alert.Action) error {
	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = "MarkdownV2"
	msg.ReplyMarkup = actionKeyboard(actions)
	_, err := b.Bot.Send(msg)
	return errors.Wrapf(err, "could not send actionable text to %d", userID)
}

func actionKeyboard(actions []alert.Action) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, a := range actions {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(a.Label, a.Data),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// HandleUpdate processes Telegram message updates. The returned text, if any,
// is sent back by the caller; flows that need keyboards send themselves and
// return "".
func (b *Bot) HandleUpdate(u tgbotapi.Update) string {
	chatID := u.Message.Chat.ID

	if !u.Message.IsCommand() {
		if b.sessions.Active(chatID) {
			b.sendSessionReply(chatID, b.sessions.Handle(context.Background(), chatID, session.Input{Text: u.Message.Text}))
		}
		return ""
	}

	log.Debugf("received command: %s", u.Message.Command())

	switch u.Message.Command() {
	case "start":
		b.sendMainMenu(chatID)
		return ""
	case "newalert":
		b.sendSessionReply(chatID, b.sessions.Start(chatID))
		return ""
	case "alerts":
		b.HandleAlertListCommand(chatID)
		return ""
	case "cancel":
		if b.sessions.Cancel(chatID) {
			return helpers.EscapeMarkdownV2(translation.Translate("❌ Alert creation cancelled."))
		}
		return helpers.EscapeMarkdownV2(translation.Translate("Nothing to cancel."))
	}

	return helpers.EscapeMarkdownV2(translation.Translate(
		"Commands:\n/newalert - create a stock alert\n/alerts - list your active alerts\n/cancel - abort alert creation"))
}

// HandleCallbackQuery processes inline keyboard presses.
func (b *Bot) HandleCallbackQuery(callbackQuery *tgbotapi.CallbackQuery) {
	data := callbackQuery.Data
	chatID := callbackQuery.Message.Chat.ID
	messageID := callbackQuery.Message.MessageID

	switch {
	case data == "new_alert":
		b.ack(callbackQuery.ID, "")
		b.sendSessionReply(chatID, b.sessions.Start(chatID))

	case data == "main_menu":
		b.sessions.Cancel(chatID)
		b.ack(callbackQuery.ID, "")
		b.deleteMessage(chatID, messageID)
		b.sendMainMenu(chatID)

	case data == "my_alerts":
		b.ack(callbackQuery.ID, "")
		b.HandleAlertListCommand(chatID)

	case data == "send_all_graphs":
		b.ack(callbackQuery.ID, translation.Translate("Rendering charts..."))
		b.sendAllCharts(chatID)

	case strings.HasPrefix(data, "remove_"):
		id, err := strconv.ParseInt(strings.TrimPrefix(data, "remove_"), 10, 64)
		if err != nil {
			b.ack(callbackQuery.ID, translation.Translate("Invalid alert data."))
			return
		}
		if err := database.DeleteAlert(id); err != nil {
			log.Errorf("failed to delete alert %d: %v", id, err)
			b.ack(callbackQuery.ID, translation.Translate("Failed to remove alert. Please try again later."))
			return
		}
		b.mirror.Remove(chatID, id)
		b.ack(callbackQuery.ID, translation.Translate("Alert removed."))
		b.deleteMessage(chatID, messageID)
		b.HandleAlertListCommand(chatID)

	case strings.HasPrefix(data, "keep_"):
		b.ack(callbackQuery.ID, translation.Translate("Alert kept."))
		b.clearKeyboard(chatID, messageID)

	default:
		if b.sessions.Active(chatID) {
			b.ack(callbackQuery.ID, "")
			b.sendSessionReply(chatID, b.sessions.Handle(context.Background(), chatID, session.Input{Callback: data}))
			return
		}
		b.ack(callbackQuery.ID, translation.Translate("Unknown action. Please try again."))
	}
}

// HandleAlertListCommand sends the user's active alerts with per-alert
// remove buttons.
func (b *Bot) HandleAlertListCommand(chatID int64) {
	alerts, err := database.GetAlertsByUserID(chatID)
	if err != nil {
		log.Errorf("failed to fetch alerts for %d: %v", chatID, err)
		b.sendEscaped(chatID, translation.Translate("Could not fetch your alerts. Please try again later."), nil)
		return
	}

	if len(alerts) == 0 {
		b.sendEscaped(chatID, translation.Translate("You have no active alerts."), []alert.Action{
			{Label: "➕ New Alert", Data: "new_alert"},
		})
		return
	}

	var list strings.Builder
	list.WriteString(translation.Translate("🔔 Your active alerts:\n\n"))
	actions := make([]alert.Action, 0, len(alerts)+2)
	for i, a := range alerts {
		list.WriteString(fmt.Sprintf("%d. %s (%s)\n", i+1, describeAlert(a), humanize.Time(a.CreatedAt)))
		actions = append(actions, alert.Action{
			Label: fmt.Sprintf("🗑 Remove #%d", i+1),
			Data:  fmt.Sprintf("remove_%d", a.ID),
		})
	}
	actions = append(actions,
		alert.Action{Label: "📊 Send all charts", Data: "send_all_graphs"},
		alert.Action{Label: "➕ New Alert", Data: "new_alert"},
	)

	b.sendEscaped(chatID, list.String(), actions)
}

func describeAlert(a types.Alert) string {
	switch spec := a.Spec.(type) {
	case types.PriceSpec:
		return fmt.Sprintf("%s price %s %s", a.Ticker, spec.Direction, helpers.FormatPriceUS(spec.Target, false))
	case types.SMASpec:
		return fmt.Sprintf("%s close %s SMA(%d)", a.Ticker, spec.Direction, spec.Period)
	case types.CustomLineSpec:
		return fmt.Sprintf("%s line %s..%s ±%.2f", a.Ticker,
			helpers.FormatDate(spec.Date1), helpers.FormatDate(spec.Date2), spec.Threshold)
	}
	return a.Ticker
}

// sendAllCharts renders and sends a chart for every alert the user has.
func (b *Bot) sendAllCharts(chatID int64) {
	alerts, err := database.GetAlertsByUserID(chatID)
	if err != nil {
		log.Errorf("failed to fetch alerts for %d: %v", chatID, err)
		return
	}
	if len(alerts) == 0 {
		b.sendEscaped(chatID, translation.Translate("You have no active alerts."), nil)
		return
	}

	for _, a := range alerts {
		b.sendAlertChart(chatID, a)
	}
}

// sendAlertChart renders one alert's chart, annotated with the current price.
// Best effort: failures are logged, not surfaced.
func (b *Bot) sendAlertChart(chatID int64, a types.Alert) {
	if b.charts == nil || b.quotes == nil {
		return
	}
	ctx := context.Background()

	closes, err := b.quotes.FetchBatch(ctx, []string{a.Ticker})
	if err != nil {
		log.Errorf("failed to fetch current price for %s: %v", a.Ticker, err)
		return
	}
	current, ok := closes[a.Ticker]
	if !ok {
		log.Errorf("no current price for %s", a.Ticker)
		return
	}

	png, err := b.charts.RenderAlert(ctx, a, current)
	if err != nil {
		log.Errorf("failed to render chart for alert %d: %v", a.ID, err)
		return
	}

	caption := helpers.EscapeMarkdownV2(describeAlert(a))
	if err := b.SendChart(chatID, png, caption); err != nil {
		log.Error("error sending chart:", err)
	}
}

func (b *Bot) sendMainMenu(chatID int64) {
	b.sendEscaped(chatID, translation.Translate(
		"📈 Stock Alert Bot\n\nI watch the market while it is open and ping you when your alerts trigger."),
		[]alert.Action{
			{Label: "➕ New Alert", Data: "new_alert"},
			{Label: "🔔 My Alerts", Data: "my_alerts"},
		})
}

// sendSessionReply delivers a conversation prompt and, when the finished
// alert is a custom line, a preview chart of it.
func (b *Bot) sendSessionReply(chatID int64, reply session.Reply) {
	if reply.Text != "" {
		b.sendEscaped(chatID, reply.Text, reply.Actions)
	}

	if reply.Created != nil && reply.Created.Spec.Kind() == types.KindCustomLine {
		b.sendAlertChart(chatID, *reply.Created)
	}
}

// sendEscaped escapes plain text for MarkdownV2 and attaches a keyboard when
// actions are given.
func (b *Bot) sendEscaped(chatID int64, text string, actions []alert.Action) {
	msg := tgbotapi.NewMessage(chatID, helpers.EscapeMarkdownV2(text))
	msg.ParseMode = "MarkdownV2"
	if len(actions) > 0 {
		msg.ReplyMarkup = actionKeyboard(actions)
	}
	if _, err := b.Bot.Send(msg); err != nil {
		log.Errorf("failed to send message to %d: %v", chatID, err)
	}
}

func (b *Bot) ack(callbackID, text string) {
	if _, err := b.Bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		log.Errorf("failed to answer callback query: %v", err)
	}
}

func (b *Bot) deleteMessage(chatID int64, messageID int) {
	if _, err := b.Bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		log.Error("Failed to delete options message: ", err)
	}
}

func (b *Bot) clearKeyboard(chatID int64, messageID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	if _, err := b.Bot.Request(edit); err != nil {
		log.Errorf("failed to clear keyboard: %v", err)
	}
}
