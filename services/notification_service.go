package services

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"arm_shn/logger"
	"arm_shn/models"
)

// Notifier сообщает о событиях, требующих внимания механиков
type Notifier interface {
	MechanicReportCreated(report *models.MechanicReport) error
}

// messageSender часть Bot API, используемая для отправки сообщений
type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier отправляет уведомления в чат Telegram
type TelegramNotifier struct {
	sender messageSender
	chatID int64
	logger *zap.Logger
	sent   chan error

	inflight sync.WaitGroup
}

// NewTelegramNotifier создает уведомитель и авторизует бота
func NewTelegramNotifier(token string, chatID int64, log *zap.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram бота: %w", err)
	}
	bot.Debug = false

	log = logger.OrNop(log)
	log.Info("Telegram бот авторизован", zap.String("username", bot.Self.UserName))
	return newTelegramNotifier(bot, chatID, log), nil
}

func newTelegramNotifier(sender messageSender, chatID int64, log *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{sender: sender, chatID: chatID, logger: logger.OrNop(log)}
}

// MechanicReportCreated отправляет сообщение о новом отчете механика.
// Отправка выполняется в фоне, ошибки пишутся в лог.
func (n *TelegramNotifier) MechanicReportCreated(report *models.MechanicReport) error {
	msg := tgbotapi.NewMessage(n.chatID, FormatMechanicReportMessage(report))
	msg.ParseMode = tgbotapi.ModeHTML

	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		_, err := n.sender.Send(msg)
		if err != nil {
			n.logger.Error("ошибка отправки уведомления", zap.Uint("mechanic_report_id", report.ID), zap.Error(err))
		}
		if n.sent != nil {
			n.sent <- err
		}
	}()
	return nil
}

// Close ждет отправки уже поставленных уведомлений, но не дольше, чем позволяет ctx
func (n *TelegramNotifier) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FormatMechanicReportMessage формирует текст уведомления об отчете механика
func FormatMechanicReportMessage(report *models.MechanicReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(report.Title))
	if report.Station != nil {
		fmt.Fprintf(&b, "Станция: %s\n", html.EscapeString(report.Station.Name))
	}
	if report.KipReportID != nil {
		fmt.Fprintf(&b, "Отчет КИП: №%d\n", *report.KipReportID)
	}
	fmt.Fprintf(&b, "Приборов: %d", len(report.Devices))
	for _, d := range report.Devices {
		name := d.Name
		if name == "" {
			name = fmt.Sprintf("#%d", d.ID)
		}
		fmt.Fprintf(&b, "\n• %s", html.EscapeString(name))
		if d.InventoryNumber != "" {
			fmt.Fprintf(&b, " (инв. %s)", html.EscapeString(d.InventoryNumber))
		}
	}
	return b.String()
}

// notifyAll сообщает о созданных отчетах, ошибки только логируются
func notifyAll(n Notifier, log *zap.Logger, reports []models.MechanicReport) {
	if n == nil {
		return
	}
	for i := range reports {
		if err := n.MechanicReportCreated(&reports[i]); err != nil {
			log.Warn("не удалось отправить уведомление", zap.Uint("mechanic_report_id", reports[i].ID), zap.Error(err))
		}
	}
}
