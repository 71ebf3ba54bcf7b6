package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Kind string

const (
	// KindRemind — напоминание «подписка истекает через 3 дня».
	KindRemind Kind = "remind"
	// KindRevoke — удаление пробной учётной записи по истечении срока.
	KindRevoke Kind = "revoke"
)

// Job — плоское описание отложенного действия. Никаких замыканий:
// после рестарта очередь целиком пересобирается из таблицы accounts.
type Job struct {
	ID         string
	FireAt     time.Time
	Kind       Kind
	Login      string
	TelegramID int64
	ExpiresAt  time.Time
}

func RemindJobID(login string) string { return "remind:" + login }
func RevokeJobID(login string) string { return "revoke:" + login }

// Handler вызывается ровно один раз на сработавшую задачу.
type Handler func(ctx context.Context, job Job)

// Scheduler — одноразовые задачи по дате, ключ задачи заменяет
// предыдущую с тем же ID. Очередь живёт только в памяти.
type Scheduler struct {
	log   *slog.Logger
	clock func() time.Time

	mu      sync.Mutex
	jobs    map[string]Job
	handler Handler
	wake    chan struct{}
}

func New(log *slog.Logger) *Scheduler {
	return &Scheduler{
		log:   log,
		clock: time.Now,
		jobs:  make(map[string]Job),
		wake:  make(chan struct{}, 1),
	}
}

// SetHandler задаёт обработчик до запуска Run.
func (s *Scheduler) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Schedule ставит задачу, заменяя существующую с тем же ID.
// Просроченное напоминание молча отбрасывается: «за 3 дня до» в прошлом
// смысла не имеет. Просроченный revoke срабатывает немедленно.
func (s *Scheduler) Schedule(job Job) {
	now := s.clock()
	if job.Kind == KindRemind && !job.FireAt.After(now) {
		s.log.Debug("просроченное напоминание пропущено", "job", job.ID, "fire_at", job.FireAt)
		s.mu.Lock()
		delete(s.jobs, job.ID)
		s.mu.Unlock()
		s.poke()
		return
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	s.poke()
}

// Cancel снимает задачу; отсутствующий ID — не ошибка. Задачу, чей
// обработчик уже выполняется, Cancel не прерывает: она уже изъята из
// очереди и второй раз не сработает.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
	s.poke()
}

// CancelFor снимает обе задачи логина.
func (s *Scheduler) CancelFor(login string) {
	s.Cancel(RemindJobID(login))
	s.Cancel(RevokeJobID(login))
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run — единственный цикл диспетчеризации. Возвращается по ctx,
// дождавшись завершения текущего обработчика.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		job, ok, wait := s.peek()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
			}
			continue
		}

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-s.wake:
				timer.Stop()
				continue
			case <-timer.C:
			}
		}

		if fired, taken := s.take(job.ID); taken {
			s.log.Info("задача сработала", "job", fired.ID, "kind", fired.Kind)
			if h := s.handlerFn(); h != nil {
				h(ctx, fired)
			}
		}
	}
}

// peek возвращает ближайшую задачу и сколько до неё ждать.
func (s *Scheduler) peek() (Job, bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next Job
	found := false
	for _, j := range s.jobs {
		if !found || j.FireAt.Before(next.FireAt) {
			next = j
			found = true
		}
	}
	if !found {
		return Job{}, false, 0
	}
	return next, true, next.FireAt.Sub(s.clock())
}

// take изымает задачу, если она всё ещё в очереди и уже наступила.
func (s *Scheduler) take(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.FireAt.After(s.clock()) {
		return Job{}, false
	}
	delete(s.jobs, id)
	return j, true
}

func (s *Scheduler) handlerFn() Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

// Pending — число задач в очереди (для логов и тестов).
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
