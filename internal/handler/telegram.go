package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/romanzh1/mood-diary/internal/models"
	"github.com/romanzh1/mood-diary/internal/service"
	"github.com/romanzh1/mood-diary/internal/service/export"
	"github.com/romanzh1/mood-diary/internal/service/reminder"
	"github.com/romanzh1/mood-diary/pkg/utils"
	"go.uber.org/zap"
)

const (
	maxMessageLength = 4096
	historyDays      = 14

	callbackScorePrefix = "score_"
	callbackRate        = "rate"
)

type Service interface {
	RegisterUser(ctx context.Context, identity models.Identity) error
	Now(ctx context.Context, telegramID int64) time.Time

	GetTodayEntry(ctx context.Context, telegramID int64) (*models.MoodEntry, error)
	SaveTodayEntry(ctx context.Context, telegramID int64, score int, note string) (*models.MoodEntry, error)
	GetAllEntries(ctx context.Context, telegramID int64) (models.MonthBucket, error)

	GetSettings(ctx context.Context, telegramID int64) (*models.UserSettings, error)
	SaveSettings(ctx context.Context, telegramID int64, reminderTime, timezone string) (*models.UserSettings, *models.ReminderReport, error)

	BuildExport(ctx context.Context, telegramID int64) (string, error)
}

// Bot is the part of *tgbotapi.BotAPI the handler uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type TelegramHandler struct {
	api       Bot
	service   Service
	webAppURL string
	states    *chatStates
	locks     *chatLocks
	inflight  sync.WaitGroup
}

func NewTelegramHandler(api Bot, service Service, webAppURL string) *TelegramHandler {
	return &TelegramHandler{
		api:       api,
		service:   service,
		webAppURL: webAppURL,
		states:    newChatStates(),
		locks:     newChatLocks(),
	}
}

// Start consumes updates until ctx is cancelled. Each update runs in its own goroutine,
// serialized per chat, so a slow reminder batch only holds up the chat that asked for it.
// Start returns after in-flight updates finish.
func (h *TelegramHandler) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := h.api.GetUpdatesChan(u)

	zap.S().Info("bot started")

	for {
		select {
		case <-ctx.Done():
			h.api.StopReceivingUpdates()
			h.inflight.Wait()
			zap.S().Info("bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				h.inflight.Wait()
				return
			}
			if update.Message == nil && update.CallbackQuery == nil {
				continue
			}
			h.dispatch(ctx, update)
		}
	}
}

func (h *TelegramHandler) dispatch(ctx context.Context, update tgbotapi.Update) {
	chatID := updateChatID(update)

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()

		unlock := h.locks.lock(chatID)
		defer unlock()

		h.handleUpdate(ctx, update)
	}()
}

func updateChatID(update tgbotapi.Update) int64 {
	switch {
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil:
		return update.CallbackQuery.Message.Chat.ID
	default:
		return 0
	}
}

func (h *TelegramHandler) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.From == nil:
		zap.S().Warn("received message from nil user")
	case update.Message != nil && update.Message.IsCommand():
		h.handleCommand(ctx, update.Message)
	case update.Message != nil:
		h.handleTextMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		if update.CallbackQuery.From == nil || update.CallbackQuery.Message == nil {
			zap.S().Warn("received callback without user or message")
			return
		}
		h.handleCallback(ctx, update.CallbackQuery)
	}
}

func (h *TelegramHandler) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		h.handleStart(ctx, message)
	case "rate":
		h.handleRate(ctx, message)
	case "skip":
		h.handleSkip(ctx, message)
	case "today":
		h.handleToday(ctx, message)
	case "history":
		h.handleHistory(ctx, message)
	case "time":
		h.handleTime(ctx, message)
	case "settings":
		h.handleSettings(ctx, message)
	case "export":
		h.handleExport(ctx, message)
	case "app":
		h.handleApp(message)
	case "help":
		h.handleHelp(message)
	default:
		h.sendMessage(message.Chat.ID, "Неизвестная команда. Используй /help")
	}
}

func identityOf(user *tgbotapi.User) models.Identity {
	return models.Identity{
		UserID:    user.ID,
		FirstName: user.FirstName,
		Platform:  models.PlatformUnknown,
	}
}

func (h *TelegramHandler) handleStart(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID

	if err := h.service.RegisterUser(ctx, identityOf(message.From)); err != nil {
		zap.S().Error("register user", zap.Error(err), zap.Int64("telegram_id", userID))
		h.sendMessage(chatID, "Произошла ошибка. Попробуй позже.")
		return
	}

	settings, err := h.service.GetSettings(ctx, userID)
	if err != nil {
		zap.S().Error("get settings", zap.Error(err), zap.Int64("telegram_id", userID))
		h.sendMessage(chatID, "Произошла ошибка. Попробуй позже.")
		return
	}

	if settings.Onboarded {
		h.sendMessage(chatID, fmt.Sprintf("С возвращением, %s! Отметь настроение: /rate", escapeHTML(message.From.FirstName)))
		return
	}

	h.states.set(chatID, chatState{awaiting: awaitingTime})

	text := fmt.Sprintf(`Привет, %s! 👋

Это дневник настроения. Раз в день ты оцениваешь настроение от -5 до +5 и при желании пишешь заметку.
Данные можно выгрузить для анализа командой /export.

Во сколько напоминать о записи? Пришли время в формате <b>ЧЧ:ММ</b>, например <b>%s</b>.`,
		escapeHTML(message.From.FirstName), models.DefaultReminderTime)

	h.sendMessage(chatID, text)
}

func scoreKeyboard() tgbotapi.InlineKeyboardMarkup {
	button := func(score int) tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardButtonData(formatScore(score), callbackScorePrefix+strconv.Itoa(score))
	}

	negative := tgbotapi.NewInlineKeyboardRow()
	positive := tgbotapi.NewInlineKeyboardRow()
	for i := 1; i <= models.MaxScore; i++ {
		negative = append(negative, button(-(models.MaxScore + 1 - i)))
		positive = append(positive, button(i))
	}

	return tgbotapi.NewInlineKeyboardMarkup(
		negative,
		tgbotapi.NewInlineKeyboardRow(button(0)),
		positive,
	)
}

// handleRate shows the score keyboard, or saves at once for "/rate 3 заметка".
func (h *TelegramHandler) handleRate(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	args := strings.TrimSpace(message.CommandArguments())
	if args == "" {
		h.states.clear(chatID)
		h.sendMessageWithKeyboard(chatID, "Как настроение сегодня?", scoreKeyboard())
		return
	}

	scoreRaw, note, _ := strings.Cut(args, " ")
	score, err := strconv.Atoi(scoreRaw)
	if err != nil || score < models.MinScore || score > models.MaxScore {
		h.sendMessage(chatID, "Оценка должна быть числом от -5 до +5, например: /rate 2 выспался")
		return
	}

	h.saveToday(ctx, message.From.ID, chatID, score, strings.TrimSpace(note))
}

func (h *TelegramHandler) handleSkip(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	state := h.states.get(chatID)
	if state.awaiting != awaitingNote {
		h.sendMessage(chatID, "Сейчас нечего пропускать. Отметить настроение: /rate")
		return
	}

	h.saveToday(ctx, message.From.ID, chatID, state.score, "")
}

func (h *TelegramHandler) saveToday(ctx context.Context, userID, chatID int64, score int, note string) {
	h.states.clear(chatID)

	entry, err := h.service.SaveTodayEntry(ctx, userID, score, note)
	if err != nil {
		zap.S().Error("save today entry", zap.Error(err), zap.Int64("telegram_id", userID))
		h.sendMessage(chatID, "Не удалось сохранить запись. Попробуй позже.")
		return
	}

	text := fmt.Sprintf("✅ Сохранено: <b>%s</b>", formatScore(entry.Score))
	if entry.Note != "" {
		text += "\n📝 " + escapeHTML(entry.Note)
	}
	if utf8.RuneCountInString(note) > models.MaxNoteLength {
		text += fmt.Sprintf("\n\nЗаметка сокращена до %d символов.", models.MaxNoteLength)
	}

	h.sendMessage(chatID, text)
}

func (h *TelegramHandler) handleTextMessage(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	text := strings.TrimSpace(message.Text)

	state := h.states.get(chatID)
	switch state.awaiting {
	case awaitingNote:
		h.saveToday(ctx, message.From.ID, chatID, state.score, text)
	case awaitingTime:
		h.saveReminderTime(ctx, message.From.ID, chatID, text, "")
	default:
		h.sendMessage(chatID, "Чтобы отметить настроение, используй /rate. Все команды: /help")
	}
}

func (h *TelegramHandler) handleToday(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID

	entry, err := h.service.GetTodayEntry(ctx, userID)
	if err != nil {
		zap.S().Error("get today entry", zap.Error(err), zap.Int64("telegram_id", userID))
		h.sendMessage(chatID, "Произошла ошибка. Попробуй позже.")
		return
	}

	if entry == nil {
		h.sendMessage(chatID, "Сегодня записи ещё нет. Отметить настроение: /rate")
		return
	}

	text := fmt.Sprintf("Сегодня: <b>%s</b>", formatScore(entry.Score))
	if entry.Note != "" {
		text += "\n📝 " + escapeHTML(entry.Note)
	}
	h.sendMessage(chatID, text)
}

func (h *TelegramHandler) handleHistory(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID

	entries, err := h.service.GetAllEntries(ctx, userID)
	if err != nil {
		zap.S().Error("get all entries", zap.Error(err), zap.Int64("telegram_id", userID))
		h.sendMessage(chatID, "Произошла ошибка. Попробуй позже.")
		return
	}

	h.sendMessage(chatID, formatHistory(entries, h.service.Now(ctx, userID), historyDays))
}

// formatHistory lists the last days ending today, newest first.
func formatHistory(entries models.MonthBucket, now time.Time, days int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📅 <b>Последние %d дней</b>\n", days))

	today := utils.StartOfDay(now)
	for i := range days {
		day := today.AddDate(0, 0, -i)
		line := day.Format("02.01") + ": "

		entry, ok := entries[utils.DateKey(day)]
		if !ok {
			sb.WriteString("\n" + line + "—")
			continue
		}

		line += "<b>" + formatScore(entry.Score) + "</b>"
		if entry.Note != "" {
			line += " 📝 " + escapeHTML(entry.Note)
		}
		sb.WriteString("\n" + line)
	}

	return sb.String()
}

func (h *TelegramHandler) handleTime(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	args := strings.Fields(message.CommandArguments())
	if len(args) == 0 {
		h.states.set(chatID, chatState{awaiting: awaitingTime})
		h.sendMessage(chatID, "Пришли время напоминания в формате <b>ЧЧ:ММ</b>, например <b>20:00</b>.\nМожно указать часовой пояс: /time 20:00 Europe/Moscow")
		return
	}

	timezone := ""
	if len(args) > 1 {
		timezone = args[1]
	}

	h.saveReminderTime(ctx, message.From.ID, chatID, args[0], timezone)
}

func (h *TelegramHandler) saveReminderTime(ctx context.Context, userID, chatID int64, reminderTime, timezone string) {
	settings, report, err := h.service.SaveSettings(ctx, userID, reminderTime, timezone)
	switch {
	case errors.Is(err, reminder.ErrInvalidTime):
		h.states.set(chatID, chatState{awaiting: awaitingTime})
		h.sendMessage(chatID, "Не понял время. Пришли его в формате <b>ЧЧ:ММ</b>, например <b>09:30</b>.")
		return
	case errors.Is(err, service.ErrInvalidTimezone):
		h.sendMessage(chatID, "Неизвестный часовой пояс. Пример: <b>Europe/Moscow</b>")
		return
	case err != nil:
		zap.S().Error("save settings", zap.Error(err), zap.Int64("telegram_id", userID))
		h.sendMessage(chatID, "Не удалось сохранить настройки. Попробуй позже.")
		return
	}

	h.states.clear(chatID)
	h.sendMessage(chatID, fmt.Sprintf("⏰ Напоминание: <b>%s</b>\n%s", settings.ReminderTime, formatReport(report)))
}

func formatReport(report *models.ReminderReport) string {
	switch {
	case report == nil || report.Skipped:
		return "Напоминания сейчас не настроены на сервере, но время сохранено."
	case report.Mode == reminder.ModeCron:
		return "Буду напоминать каждый день."
	case report.Failed > 0:
		return fmt.Sprintf("Запланировано напоминаний: %d, не удалось: %d.", report.Scheduled, report.Failed)
	default:
		return fmt.Sprintf("Запланировано напоминаний: %d.", report.Scheduled)
	}
}

func (h *TelegramHandler) handleSettings(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID

	settings, err := h.service.GetSettings(ctx, userID)
	if err != nil {
		zap.S().Error("get settings", zap.Error(err), zap.Int64("telegram_id", userID))
		h.sendMessage(chatID, "Произошла ошибка. Попробуй позже.")
		return
	}

	timezone := settings.Timezone
	if timezone == "" {
		timezone = "по умолчанию"
	}

	text := fmt.Sprintf(`⚙️ <b>Настройки</b>

Время напоминания: <b>%s</b>
Часовой пояс: <b>%s</b>

Изменить: /time ЧЧ:ММ [часовой пояс]`, settings.ReminderTime, escapeHTML(timezone))

	h.sendMessage(chatID, text)
}

func (h *TelegramHandler) handleExport(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID

	text, err := h.service.BuildExport(ctx, userID)
	if err != nil {
		zap.S().Error("build export", zap.Error(err), zap.Int64("telegram_id", userID))
		h.sendMessage(chatID, "Не удалось подготовить выгрузку. Попробуй позже.")
		return
	}

	delivery, err := export.Deliver(ctx, text, chatClipboard{h: h, chatID: chatID}, chatFile{h: h, chatID: chatID})
	if err != nil {
		zap.S().Error("deliver export", zap.Error(err), zap.Int64("telegram_id", userID))
		h.sendMessage(chatID, "Не удалось отправить выгрузку. Попробуй позже.")
		return
	}

	zap.S().Info("export delivered", zap.Int64("telegram_id", userID), zap.String("delivery", string(delivery)))
}

var errMessageTooLong = errors.New("message is too long")

// chatClipboard posts the export as a plain message, ready to be copied.
type chatClipboard struct {
	h      *TelegramHandler
	chatID int64
}

func (c chatClipboard) Copy(ctx context.Context, text string) error {
	if utf8.RuneCountInString(text) > maxMessageLength {
		return errMessageTooLong
	}

	if _, err := c.h.api.Send(tgbotapi.NewMessage(c.chatID, text)); err != nil {
		return fmt.Errorf("send export message (chat_id: %d): %w", c.chatID, err)
	}
	return nil
}

type chatFile struct {
	h      *TelegramHandler
	chatID int64
}

func (f chatFile) Save(ctx context.Context, name string, content []byte) error {
	doc := tgbotapi.NewDocument(f.chatID, tgbotapi.FileBytes{Name: name, Bytes: content})
	doc.Caption = "Данные для анализа настроения"

	if _, err := f.h.api.Send(doc); err != nil {
		return fmt.Errorf("send export document (chat_id: %d): %w", f.chatID, err)
	}
	return nil
}

func (h *TelegramHandler) handleApp(message *tgbotapi.Message) {
	if h.webAppURL == "" {
		h.sendMessage(message.Chat.ID, "Приложение пока не подключено. Все функции доступны через команды: /help")
		return
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("📊 Открыть дневник", h.webAppURL),
		),
	)
	h.sendMessageWithKeyboard(message.Chat.ID, "Графики и календарь настроения:", keyboard)
}

func (h *TelegramHandler) handleHelp(message *tgbotapi.Message) {
	text := `📔 <b>Дневник настроения</b>

Доступные команды:

/rate - Отметить настроение (-5..+5) и написать заметку
/rate 2 текст - Сразу сохранить оценку с заметкой
/skip - Сохранить оценку без заметки
/today - Запись за сегодня
/history - Последние 14 дней
/time ЧЧ:ММ - Время ежедневного напоминания
/settings - Текущие настройки
/export - Выгрузка данных для анализа в ИИ
/app - Открыть приложение с графиками
/help - Справка`

	h.sendMessage(message.Chat.ID, text)
}

func (h *TelegramHandler) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	data := callback.Data
	chatID := callback.Message.Chat.ID

	switch {
	case data == callbackRate:
		h.states.clear(chatID)
		h.sendMessageWithKeyboard(chatID, "Как настроение сегодня?", scoreKeyboard())
	case strings.HasPrefix(data, callbackScorePrefix):
		h.handleScoreSelection(chatID, strings.TrimPrefix(data, callbackScorePrefix))
	default:
		zap.S().Warn("unknown callback data", zap.String("data", data), zap.Int64("user_id", callback.From.ID))
		h.sendMessage(chatID, "Неизвестная команда. Используй /help для списка доступных команд.")
	}

	callbackConfig := tgbotapi.NewCallback(callback.ID, "")
	if _, err := h.api.Request(callbackConfig); err != nil {
		zap.S().Error("send callback answer", zap.Error(err), zap.String("callback_id", callback.ID))
	}
}

func (h *TelegramHandler) handleScoreSelection(chatID int64, raw string) {
	score, err := strconv.Atoi(raw)
	if err != nil {
		zap.S().Warn("parse score callback", zap.Error(err), zap.String("data", raw))
		return
	}
	score = models.ClampScore(score)

	h.states.set(chatID, chatState{awaiting: awaitingNote, score: score})
	h.sendMessage(chatID, fmt.Sprintf("Оценка <b>%s</b>. Напиши заметку о дне или нажми /skip", formatScore(score)))
}

// SendReminder delivers a reminder with a shortcut to the score keyboard.
func (h *TelegramHandler) SendReminder(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Отметить настроение", callbackRate),
		),
	)

	if _, err := h.api.Send(msg); err != nil {
		return fmt.Errorf("send reminder (chat_id: %d): %w", chatID, err)
	}
	return nil
}

func formatScore(score int) string {
	if score > 0 {
		return "+" + strconv.Itoa(score)
	}
	return strconv.Itoa(score)
}

func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}

func (h *TelegramHandler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := h.api.Send(msg); err != nil {
		zap.S().Error("send message", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

func (h *TelegramHandler) sendMessageWithKeyboard(chatID int64, text string, keyboard interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = keyboard
	if _, err := h.api.Send(msg); err != nil {
		zap.S().Error("send message with keyboard", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}
