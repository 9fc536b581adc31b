package bot

import (
	"context"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/yourname/dolgi-bot/internal/config"
	"github.com/yourname/dolgi-bot/internal/debt"
	"github.com/yourname/dolgi-bot/internal/store"
)

type Handler struct {
	api      *tgbotapi.BotAPI
	cfg      config.Config
	store    store.Store
	engine   *debt.Engine
	sessions *sessions
}

func NewHandler(api *tgbotapi.BotAPI, cfg config.Config, s store.Store, e *debt.Engine) *Handler {
	return &Handler{api: api, cfg: cfg, store: s, engine: e, sessions: newSessions()}
}

// Кнопки главного меню.
const (
	btnAdd      = "➕ Добавить долг"
	btnList     = "📋 Мои долги"
	btnRepay    = "💰 Погасить"
	btnEdit     = "✏️ Изменить"
	btnDelete   = "🗑 Удалить"
	btnHistory  = "📜 История"
	btnSettings = "⚙️ Настройки"
	btnHelp     = "❓ Помощь"
)

func mainMenu() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnAdd),
			tgbotapi.NewKeyboardButton(btnList),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnRepay),
			tgbotapi.NewKeyboardButton(btnEdit),
			tgbotapi.NewKeyboardButton(btnDelete),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnHistory),
			tgbotapi.NewKeyboardButton(btnSettings),
			tgbotapi.NewKeyboardButton(btnHelp),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		h.HandleCallback(ctx, upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}

	msg := upd.Message
	// работаем только в личке
	if !msg.Chat.IsPrivate() {
		return
	}
	userID := msg.From.ID

	// Каждый контакт обновляет @username и подхватывает долги, записанные
	// на это имя до первого появления пользователя в боте.
	if err := h.engine.LinkOnContact(ctx, userID, msg.From.UserName); err != nil {
		log.Printf("link on contact %d: %v", userID, err)
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		h.sessions.drop(userID)
		h.handleCommand(ctx, userID, text)
		return
	}

	switch text {
	case btnAdd:
		h.startAdd(ctx, userID)
		return
	case btnList:
		h.sessions.drop(userID)
		h.showDebts(ctx, userID)
		return
	case btnRepay:
		h.startPick(ctx, userID, stepRepayPick)
		return
	case btnEdit:
		h.startPick(ctx, userID, stepEditPick)
		return
	case btnDelete:
		h.startPick(ctx, userID, stepDeletePick)
		return
	case btnHistory:
		h.sessions.drop(userID)
		h.showHistory(ctx, userID, 0)
		return
	case btnSettings:
		h.sessions.drop(userID)
		h.showSettings(ctx, userID)
		return
	case btnHelp:
		h.sessions.drop(userID)
		h.reply(userID, helpText)
		return
	}

	if sess, ok := h.sessions.get(userID); ok {
		h.handleSessionInput(ctx, userID, sess, text)
		return
	}

	h.reply(userID, "Не понял. Используйте меню или /help.")
}

func (h *Handler) HandleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	// обязательно отвечаем Telegram
	defer h.api.Request(tgbotapi.NewCallback(q.ID, ""))

	if q.Message == nil {
		return
	}
	userID := q.From.ID
	data := q.Data

	switch {
	case data == "noop":
		return
	case data == "cancel_operation":
		h.sessions.drop(userID)
		h.reply(userID, "Действие отменено.")
		return
	case strings.HasPrefix(data, "debt_"):
		res, err := h.engine.HandleAction(ctx, userID, data)
		if err != nil {
			log.Printf("action %q for %d: %v", data, userID, err)
			h.reply(userID, "Произошла внутренняя ошибка. Попробуйте позже.")
			return
		}
		h.reply(userID, res.Message)
		return
	case strings.HasPrefix(data, "wz_"):
		h.handleWizardCallback(ctx, userID, data)
		return
	case strings.HasPrefix(data, "set_"):
		h.handleSettingsCallback(ctx, q, data)
		return
	case strings.HasPrefix(data, "history_"):
		page := parsePage(data)
		h.showHistory(ctx, userID, page)
		return
	}
}

func (h *Handler) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := h.api.Send(msg); err != nil {
		log.Printf("reply to %d: %v", chatID, err)
	}
}

func (h *Handler) replyKb(chatID int64, text string, kb interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = kb
	if _, err := h.api.Send(msg); err != nil {
		log.Printf("reply to %d: %v", chatID, err)
	}
}
