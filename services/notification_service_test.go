package services

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arm_shn/models"
)

type fakeSender struct {
	messages chan tgbotapi.MessageConfig
	err      error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.messages <- msg
	}
	return tgbotapi.Message{}, f.err
}

func testReport() *models.MechanicReport {
	kipID := uint(3)
	return &models.MechanicReport{
		ID:          5,
		Title:       "КИП №3 <Ботаническая>",
		Station:     &models.Station{Name: "Ботаническая"},
		KipReportID: &kipID,
		Devices: []models.Device{
			{ID: 1, Name: "1СП", InventoryNumber: "100"},
			{ID: 2},
		},
	}
}

func TestFormatMechanicReportMessage(t *testing.T) {
	text := FormatMechanicReportMessage(testReport())

	assert.Contains(t, text, "<b>КИП №3 &lt;Ботаническая&gt;</b>")
	assert.Contains(t, text, "Станция: Ботаническая")
	assert.Contains(t, text, "Отчет КИП: №3")
	assert.Contains(t, text, "Приборов: 2")
	assert.Contains(t, text, "• 1СП (инв. 100)")
	assert.Contains(t, text, "• #2")
}

func TestTelegramNotifier(t *testing.T) {
	t.Run("Сообщение уходит в чат", func(t *testing.T) {
		sender := &fakeSender{messages: make(chan tgbotapi.MessageConfig, 1)}
		n := newTelegramNotifier(sender, 42, nil)
		n.sent = make(chan error, 1)

		require.NoError(t, n.MechanicReportCreated(testReport()))

		select {
		case msg := <-sender.messages:
			assert.Equal(t, int64(42), msg.ChatID)
			assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
		case <-time.After(time.Second):
			t.Fatal("сообщение не отправлено")
		}
		assert.NoError(t, <-n.sent)
	})

	t.Run("Ошибка отправки не возвращается вызывающему", func(t *testing.T) {
		sender := &fakeSender{messages: make(chan tgbotapi.MessageConfig, 1), err: errors.New("сеть недоступна")}
		n := newTelegramNotifier(sender, 42, nil)
		n.sent = make(chan error, 1)

		require.NoError(t, n.MechanicReportCreated(testReport()))
		assert.EqualError(t, <-n.sent, "сеть недоступна")
	})

	t.Run("Close ждет отправки", func(t *testing.T) {
		sender := &fakeSender{messages: make(chan tgbotapi.MessageConfig)}
		n := newTelegramNotifier(sender, 42, nil)
		require.NoError(t, n.MechanicReportCreated(testReport()))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, n.Close(ctx), context.DeadlineExceeded)

		<-sender.messages
		assert.NoError(t, n.Close(context.Background()))
	})

	t.Run("Close без отправок", func(t *testing.T) {
		n := newTelegramNotifier(&fakeSender{}, 42, nil)
		assert.NoError(t, n.Close(context.Background()))
	})
}

type recordingNotifier struct {
	reports []uint
}

func (r *recordingNotifier) MechanicReportCreated(report *models.MechanicReport) error {
	r.reports = append(r.reports, report.ID)
	return nil
}

func TestDispatchNotifies(t *testing.T) {
	env := newTestEnv(t)
	notifier := &recordingNotifier{}
	env.kip.Notifier = notifier
	env.f.Place(env.f.Rack(env.station, "12"), "34")
	d := env.stockDevice("D1")

	_, report := env.dispatchOne(t, env.line(d, env.station, "12-34"))
	assert.Equal(t, []uint{report.ID}, notifier.reports)
}
