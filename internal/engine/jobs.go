package engine

import (
	"context"
	"fmt"

	"github.com/rutils/torrbot/internal/infra/metrics"
	"github.com/rutils/torrbot/internal/scheduler"
)

// HandleJob — обработчик планировщика.
func (e *Engine) HandleJob(ctx context.Context, job scheduler.Job) {
	switch job.Kind {
	case scheduler.KindRemind:
		e.handleRemind(ctx, job)
	case scheduler.KindRevoke:
		e.handleRevoke(ctx, job)
	default:
		e.log.Error("неизвестный тип задачи", "job", job.ID, "kind", job.Kind)
	}
}

func (e *Engine) handleRemind(ctx context.Context, job scheduler.Job) {
	// продление заменяет задачу, но на всякий случай сверяемся с базой
	acc, err := e.store.Get(ctx, job.Login)
	if err != nil {
		e.log.Error("напоминание: чтение учётки", "login", job.Login, "err", err)
		return
	}
	if !acc.Active(e.clock()) || job.TelegramID == 0 {
		return
	}

	e.notify.Notify(job.TelegramID, fmt.Sprintf(
		"⚠️ Напоминание: ваша подписка истекает через 3 дня (дата истечения: %s).\n"+
			"Продлите подписку, чтобы продолжить пользоваться сервисом.",
		job.ExpiresAt.Format("2006-01-02 15:04:05"),
	))
	metrics.RemindersSent.Inc()
	e.log.Info("напоминание отправлено", "login", job.Login)
}

// handleRevoke удаляет пробную учётку по истечении срока. Берёт тот же
// мьютекс, что и переходы движка: revoke, сработавший одновременно с
// продлением, перечитывает срок и уступает.
func (e *Engine) handleRevoke(ctx context.Context, job scheduler.Job) {
	e.mu.Lock()

	acc, err := e.store.Get(ctx, job.Login)
	if err != nil {
		e.mu.Unlock()
		e.log.Error("revoke: чтение учётки", "login", job.Login, "err", err)
		return
	}
	if acc == nil {
		e.mu.Unlock()
		return
	}
	if acc.Active(e.clock()) {
		// учётку успели продлить — удалять нечего
		e.mu.Unlock()
		return
	}

	if _, err := e.store.Delete(ctx, job.Login); err != nil {
		e.mu.Unlock()
		e.log.Error("revoke: удаление учётки", "login", job.Login, "err", err)
		return
	}
	e.mu.Unlock()

	e.deprovision(ctx, job.Login)
	metrics.AccountsRevoked.Inc()
	e.log.Info("пробная учётная запись удалена по сроку", "login", job.Login)
}

// Rehydrate пересобирает очередь задач из таблицы accounts после
// рестарта: очередь — производная от хранилища, отдельно она не
// сохраняется. Просроченные revoke сработают сразу, просроченные
// напоминания планировщик отбрасывает.
func (e *Engine) Rehydrate(ctx context.Context) error {
	list, err := e.store.List(ctx)
	if err != nil {
		return err
	}
	for _, acc := range list {
		if acc.IsTrial {
			e.jobs.Schedule(scheduler.Job{
				ID:         scheduler.RevokeJobID(acc.Login),
				FireAt:     acc.ExpiresAt,
				Kind:       scheduler.KindRevoke,
				Login:      acc.Login,
				TelegramID: acc.TelegramID,
			})
			continue
		}
		e.jobs.Schedule(scheduler.Job{
			ID:         scheduler.RemindJobID(acc.Login),
			FireAt:     acc.ExpiresAt.Add(-ReminderLead),
			Kind:       scheduler.KindRemind,
			Login:      acc.Login,
			TelegramID: acc.TelegramID,
			ExpiresAt:  acc.ExpiresAt,
		})
	}
	e.log.Info("очередь задач восстановлена из базы", "accounts", len(list))
	return nil
}
