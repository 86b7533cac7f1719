package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/camuig/bbma-trader/internal/config"
	"github.com/camuig/bbma-trader/internal/execution"
	"github.com/camuig/bbma-trader/internal/journal"
	"github.com/camuig/bbma-trader/internal/lifecycle"
	"github.com/camuig/bbma-trader/internal/logger"
	"github.com/camuig/bbma-trader/internal/news"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts trade events to a chat. A disabled notifier drops everything.
type Notifier struct {
	bot     sender
	chatID  int64
	symbol  string
	enabled bool
	logger  *logger.Logger
}

func NewNotifier(cfg *config.Config, log *logger.Logger) *Notifier {
	if !cfg.Telegram.Enabled {
		return &Notifier{enabled: false, logger: log}
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		log.Error("failed to create telegram bot", "error", err)
		return &Notifier{enabled: false, logger: log}
	}

	log.Info("telegram bot connected", "username", bot.Self.UserName)

	return &Notifier{
		bot:     bot,
		chatID:  cfg.Telegram.ChatID,
		symbol:  cfg.Symbol,
		enabled: true,
		logger:  log,
	}
}

func (n *Notifier) PositionOpened(p lifecycle.Position) {
	emoji := "🟢"
	if p.Side == execution.SideSell {
		emoji = "🔴"
	}
	n.send(fmt.Sprintf("%s *%s* %s\nEntry: %.5f\nVolume: %g\nSL: %.5f\nTP: %.5f",
		emoji, p.Side, n.symbol, p.EntryPrice, p.Volume, p.StopLoss, p.TakeProfit))
}

func (n *Notifier) EntryRejected(side execution.Side, err error) {
	n.send(fmt.Sprintf("⚠️ *%s rejected* %s\n%v", side, n.symbol, err))
}

func (n *Notifier) LevelsAdjusted(p lifecycle.Position) {
	n.send(fmt.Sprintf("✏️ *Levels updated* %s\nSL: %.5f\nTP: %.5f", n.symbol, p.StopLoss, p.TakeProfit))
}

func (n *Notifier) PositionClosed(p lifecycle.Position, rec journal.TradeRecord, profit float64) {
	emoji := "🔻"
	if rec.Result == journal.Win {
		emoji = "💰"
	}
	n.send(fmt.Sprintf("%s *Closed* %s %s\nEntry: %.5f\nProfit: %.2f (%s)",
		emoji, p.Side, n.symbol, p.EntryPrice, profit, rec.Result))
}

func (n *Notifier) NotifyNews(events []news.Item) {
	if len(events) == 0 {
		return
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📰 *High-impact news*, holding %s\n", n.symbol))
	for _, e := range events {
		sb.WriteString("- " + e.String() + "\n")
	}
	n.send(strings.TrimSuffix(sb.String(), "\n"))
}

func (n *Notifier) NotifyError(context string, err error) {
	n.send(fmt.Sprintf("⚠️ *Error* [%s]\n%v", context, err))
}

func (n *Notifier) NotifyStatus(message string) {
	n.send(message)
}

func (n *Notifier) send(text string) {
	if !n.enabled {
		return
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error("send telegram message", "error", err)
	}
}
