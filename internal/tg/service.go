package tg

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caraka15/taiko-bot/internal/schedule"
	"github.com/caraka15/taiko-bot/internal/storage"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	cbStatus  = "status"
	cbHistory = "history"
	cbRun     = "run"

	historyLimit = 10
)

// RunControl is satisfied by *schedule.Scheduler.
type RunControl interface {
	Request(source string) error
	Running() bool
	NextRun() time.Time
}

type Service struct {
	bot    *tgbot.Bot
	chatID int64

	repo  storage.Repository
	sched RunControl

	mode string
	loc  *time.Location
}

func NewService(
	b *tgbot.Bot,
	chatID int64,
	repo storage.Repository,
	sched RunControl,
	mode string,
	loc *time.Location,
) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{
		bot:    b,
		chatID: chatID,
		repo:   repo,
		sched:  sched,
		mode:   mode,
		loc:    loc,
	}
	s.registerHandlers()
	return s
}

func (s *Service) registerHandlers() {
	s.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypeExact, s.onStart)
	s.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/status", tgbot.MatchTypeExact, s.onStatus)
	s.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/history", tgbot.MatchTypeExact, s.onHistory)
	s.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/run", tgbot.MatchTypeExact, s.onRun)

	s.bot.RegisterHandler(tgbot.HandlerTypeCallbackQueryData, cbStatus, tgbot.MatchTypeExact, s.onCbStatus)
	s.bot.RegisterHandler(tgbot.HandlerTypeCallbackQueryData, cbHistory, tgbot.MatchTypeExact, s.onCbHistory)
	s.bot.RegisterHandler(tgbot.HandlerTypeCallbackQueryData, cbRun, tgbot.MatchTypeExact, s.onCbRun)
}

// Notify sends an HTML message to the configured chat.
func (s *Service) Notify(ctx context.Context, text string) error {
	_, err := s.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    s.chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	log.Printf("[tg] report sent to chat %d", s.chatID)
	return nil
}

func mainMenu() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "Status", CallbackData: cbStatus},
				{Text: "History", CallbackData: cbHistory},
			},
			{
				{Text: "Run now", CallbackData: cbRun},
			},
		},
	}
}

func (s *Service) onStart(ctx context.Context, b *tgbot.Bot, upd *models.Update) {
	if upd.Message == nil {
		return
	}
	_, _ = b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:      upd.Message.Chat.ID,
		Text:        fmt.Sprintf("Taiko farming bot, mode %s.\n\nChoose an action:", s.mode),
		ReplyMarkup: mainMenu(),
	})
}

func (s *Service) onStatus(ctx context.Context, b *tgbot.Bot, upd *models.Update) {
	if upd.Message == nil {
		return
	}
	s.sendStatus(ctx, b, upd.Message.Chat.ID)
}

func (s *Service) onHistory(ctx context.Context, b *tgbot.Bot, upd *models.Update) {
	if upd.Message == nil {
		return
	}
	s.sendHistory(ctx, b, upd.Message.Chat.ID)
}

func (s *Service) onRun(ctx context.Context, b *tgbot.Bot, upd *models.Update) {
	if upd.Message == nil {
		return
	}
	s.requestRun(ctx, b, upd.Message.Chat.ID)
}

func (s *Service) onCbStatus(ctx context.Context, b *tgbot.Bot, upd *models.Update) {
	if chatID, ok := s.callbackChat(ctx, b, upd); ok {
		s.sendStatus(ctx, b, chatID)
	}
}

func (s *Service) onCbHistory(ctx context.Context, b *tgbot.Bot, upd *models.Update) {
	if chatID, ok := s.callbackChat(ctx, b, upd); ok {
		s.sendHistory(ctx, b, chatID)
	}
}

func (s *Service) onCbRun(ctx context.Context, b *tgbot.Bot, upd *models.Update) {
	if chatID, ok := s.callbackChat(ctx, b, upd); ok {
		s.requestRun(ctx, b, chatID)
	}
}

func (s *Service) callbackChat(ctx context.Context, b *tgbot.Bot, upd *models.Update) (int64, bool) {
	cb := upd.CallbackQuery
	if cb == nil || cb.Message.Type == models.MaybeInaccessibleMessageTypeInaccessibleMessage {
		return 0, false
	}
	_ = s.answerCallback(ctx, b, cb.ID)
	return cb.Message.Message.Chat.ID, true
}

func (s *Service) sendStatus(ctx context.Context, b *tgbot.Bot, chatID int64) {
	_, _ = b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   FormatStatus(s.mode, s.sched.Running(), s.sched.NextRun(), s.loc),
	})
}

func (s *Service) sendHistory(ctx context.Context, b *tgbot.Bot, chatID int64) {
	runs, err := s.repo.ListRuns(ctx, historyLimit)
	if err != nil {
		_, _ = b.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID: chatID,
			Text:   fmt.Sprintf("Failed to read history: %v", err),
		})
		return
	}

	text := "History is empty."
	if len(runs) > 0 {
		text = FormatHistory(runs, s.loc)
	}
	_, _ = b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
}

func (s *Service) requestRun(ctx context.Context, b *tgbot.Bot, chatID int64) {
	// запуск разрешён только из чата отчётов
	if chatID != s.chatID {
		_, _ = b.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID: chatID,
			Text:   "Not allowed from this chat.",
		})
		return
	}

	text := "✅ Run requested."
	if err := s.sched.Request("telegram"); err != nil {
		if errors.Is(err, schedule.ErrBusy) {
			text = "⏳ A run is already in progress."
		} else {
			text = fmt.Sprintf("Run request failed: %v", err)
		}
	}
	_, _ = b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
}

func (s *Service) answerCallback(ctx context.Context, b *tgbot.Bot, callbackID string) error {
	_, err := b.AnswerCallbackQuery(ctx, &tgbot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
	})
	return err
}
