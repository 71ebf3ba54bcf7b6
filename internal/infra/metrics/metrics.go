package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TrialsActivated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torrbot_trials_activated_total",
		Help: "Активированные пробные периоды.",
	})

	PaymentsConfirmed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torrbot_payments_confirmed_total",
		Help: "Подтверждённые администратором платежи по каналам.",
	}, []string{"channel"})

	PaymentsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torrbot_payments_rejected_total",
		Help: "Отклонённые администратором платежи.",
	})

	AccountsRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torrbot_accounts_revoked_total",
		Help: "Учётные записи, удалённые по истечении пробного периода.",
	})

	RemindersSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torrbot_reminders_sent_total",
		Help: "Отправленные напоминания об истечении подписки.",
	})

	ProvisionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torrbot_provision_errors_total",
		Help: "Ошибки применения учётных данных на TorrServer.",
	})
)
