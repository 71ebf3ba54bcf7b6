package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rutils/torrbot/internal/domain/accounts"
	"github.com/rutils/torrbot/internal/domain/claims"
	"github.com/rutils/torrbot/internal/infra/metrics"
	"github.com/rutils/torrbot/internal/password"
	"github.com/rutils/torrbot/internal/scheduler"
)

const (
	// TrialDuration — длительность пробного периода.
	TrialDuration = 8 * time.Hour
	// ReminderLead — за сколько до истечения отправляется напоминание.
	ReminderLead = 3 * 24 * time.Hour
	// DefaultAdminCreateDays — срок по умолчанию для /admin_create.
	DefaultAdminCreateDays = 30
)

// Тарифная сетка: сумма перевода (руб. по СБП или USDT в кошельке) → дни.
var tariffDays = map[int]int{
	100: 30, 1: 30,
	300: 90, 3: 90,
	600: 180, 6: 180,
}

// DaysForAmount возвращает количество дней подписки по сумме.
func DaysForAmount(amount int) (int, error) {
	d, ok := tariffDays[amount]
	if !ok {
		return 0, ErrUnknownAmount
	}
	return d, nil
}

var (
	ErrAlreadyActive = errors.New("engine: подписка уже активна")
	ErrTrialUsed     = errors.New("engine: пробный период уже использован")
	ErrUnknownAmount = errors.New("engine: неизвестная сумма тарифа")
	ErrNotFound      = errors.New("engine: учётная запись не найдена")
	ErrExists        = errors.New("engine: учётная запись уже существует")
	ErrNotAdmin      = errors.New("engine: операция доступна только администратору")
)

type AccountStore interface {
	Get(ctx context.Context, login string) (*accounts.Account, error)
	Upsert(ctx context.Context, a accounts.Account) error
	Delete(ctx context.Context, login string) (bool, error)
	List(ctx context.Context) ([]accounts.Account, error)
}

type TrialTracker interface {
	HasUsed(ctx context.Context, telegramID int64) (bool, error)
	MarkUsed(ctx context.Context, telegramID int64) error
}

type ClaimStore interface {
	Create(ctx context.Context, telegramID int64, username string, amount int, channel claims.Channel) (*claims.Claim, error)
	Get(ctx context.Context, id string) (*claims.Claim, error)
	Decide(ctx context.Context, id string, status claims.Status) (*claims.Claim, error)
}

type Provisioner interface {
	Apply(ctx context.Context, login, pass string) error
	Remove(ctx context.Context, login string) error
}

// Notifier — доставка текста пользователю. Ошибки доставки глотает
// реализация: заблокированный бот не влияет на состояние подписки.
type Notifier interface {
	Notify(telegramID int64, text string)
}

type JobQueue interface {
	Schedule(job scheduler.Job)
	Cancel(id string)
	CancelFor(login string)
}

// Grant — результат выдачи или продления учётной записи.
type Grant struct {
	Login     string
	Password  string
	ExpiresAt time.Time
}

// Status — снимок состояния подписки для пользователя.
type Status struct {
	Active    bool
	Login     string
	Password  string
	ExpiresAt time.Time
	IsTrial   bool
}

// Engine — владелец состояния подписок. Все переходы
// «прочитал-решил-записал» выполняются под одним мьютексом, чтобы два
// одновременных подтверждения или настигший продление revoke не
// потеряли обновление. Провижининг и уведомления — после записи,
// best effort.
type Engine struct {
	log     *slog.Logger
	store   AccountStore
	trials  TrialTracker
	claims  ClaimStore
	prov    Provisioner
	notify  Notifier
	jobs    JobQueue
	adminID int64

	clock func() time.Time
	mu    sync.Mutex
}

func New(log *slog.Logger, store AccountStore, trials TrialTracker, cl ClaimStore,
	prov Provisioner, notify Notifier, jobs JobQueue, adminID int64) *Engine {

	return &Engine{
		log:     log,
		store:   store,
		trials:  trials,
		claims:  cl,
		prov:    prov,
		notify:  notify,
		jobs:    jobs,
		adminID: adminID,
		clock:   time.Now,
	}
}

// RequestTrial активирует пробный период на 8 часов.
func (e *Engine) RequestTrial(ctx context.Context, telegramID int64) (*Grant, error) {
	login := accounts.LoginForID(telegramID)

	e.mu.Lock()
	now := e.clock()

	acc, err := e.store.Get(ctx, login)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if acc.Active(now) {
		e.mu.Unlock()
		return nil, ErrAlreadyActive
	}

	used, err := e.trials.HasUsed(ctx, telegramID)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if used {
		e.mu.Unlock()
		return nil, ErrTrialUsed
	}

	pass, err := password.Generate(password.DefaultLength)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	expiresAt := now.Add(TrialDuration)

	if err := e.store.Upsert(ctx, accounts.Account{
		Login:      login,
		TelegramID: telegramID,
		Password:   pass,
		ExpiresAt:  expiresAt,
		IsTrial:    true,
	}); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if err := e.trials.MarkUsed(ctx, telegramID); err != nil {
		e.mu.Unlock()
		return nil, err
	}

	e.jobs.Schedule(scheduler.Job{
		ID:         scheduler.RevokeJobID(login),
		FireAt:     expiresAt,
		Kind:       scheduler.KindRevoke,
		Login:      login,
		TelegramID: telegramID,
	})
	e.mu.Unlock()

	e.provision(ctx, login, pass)
	metrics.TrialsActivated.Inc()
	e.log.Info("пробный период активирован", "login", login, "expires_at", expiresAt)

	return &Grant{Login: login, Password: pass, ExpiresAt: expiresAt}, nil
}

// CreateClaim регистрирует заявку на оплату. Сумма проверяется сразу,
// до обращения администратора.
func (e *Engine) CreateClaim(ctx context.Context, telegramID int64, username string, amount int, channel claims.Channel) (*claims.Claim, error) {
	if _, err := DaysForAmount(amount); err != nil {
		return nil, err
	}
	return e.claims.Create(ctx, telegramID, username, amount, channel)
}

// GetClaim возвращает заявку по ID (nil, если такой нет).
func (e *Engine) GetClaim(ctx context.Context, id string) (*claims.Claim, error) {
	return e.claims.Get(ctx, id)
}

// ConfirmClaim — решение администратора «оплата пришла». Заявка
// гасится ровно один раз; повтор возвращает claims.ErrAlreadyDecided
// и подписку не продлевает.
func (e *Engine) ConfirmClaim(ctx context.Context, adminID int64, claimID string) (*Grant, *claims.Claim, error) {
	if adminID != e.adminID {
		return nil, nil, ErrNotAdmin
	}

	cl, err := e.claims.Decide(ctx, claimID, claims.StatusConfirmed)
	if err != nil {
		return nil, nil, err
	}

	days, err := DaysForAmount(cl.Amount)
	if err != nil {
		return nil, cl, err
	}

	grant, err := e.extend(ctx, cl.TelegramID, days)
	if err != nil {
		return nil, cl, err
	}

	metrics.PaymentsConfirmed.WithLabelValues(string(cl.Channel)).Inc()
	e.log.Info("платёж подтверждён",
		"login", grant.Login, "amount", cl.Amount, "channel", cl.Channel, "expires_at", grant.ExpiresAt)
	return grant, cl, nil
}

// extend продлевает (или создаёт) платную учётную запись.
// База отсчёта — максимум из текущего срока и «сейчас»: продление
// никогда не укорачивает и не дарит меньше тарифа.
func (e *Engine) extend(ctx context.Context, telegramID int64, days int) (*Grant, error) {
	login := accounts.LoginForID(telegramID)

	e.mu.Lock()
	now := e.clock()

	acc, err := e.store.Get(ctx, login)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}

	base := now
	if acc != nil && acc.ExpiresAt.After(now) {
		base = acc.ExpiresAt
	}
	expiresAt := base.Add(time.Duration(days) * 24 * time.Hour)

	pass := ""
	if acc != nil {
		pass = acc.Password
	}
	if pass == "" {
		if pass, err = password.Generate(password.DefaultLength); err != nil {
			e.mu.Unlock()
			return nil, err
		}
	}

	if err := e.store.Upsert(ctx, accounts.Account{
		Login:      login,
		TelegramID: telegramID,
		Password:   pass,
		ExpiresAt:  expiresAt,
		IsTrial:    false,
	}); err != nil {
		e.mu.Unlock()
		return nil, err
	}

	// пробный revoke больше не нужен: учётка стала платной
	e.jobs.Cancel(scheduler.RevokeJobID(login))
	e.jobs.Schedule(scheduler.Job{
		ID:         scheduler.RemindJobID(login),
		FireAt:     expiresAt.Add(-ReminderLead),
		Kind:       scheduler.KindRemind,
		Login:      login,
		TelegramID: telegramID,
		ExpiresAt:  expiresAt,
	})
	e.mu.Unlock()

	e.provision(ctx, login, pass)
	return &Grant{Login: login, Password: pass, ExpiresAt: expiresAt}, nil
}

// RejectClaim — решение администратора «перевода не было».
func (e *Engine) RejectClaim(ctx context.Context, adminID int64, claimID string) (*claims.Claim, error) {
	if adminID != e.adminID {
		return nil, ErrNotAdmin
	}
	cl, err := e.claims.Decide(ctx, claimID, claims.StatusRejected)
	if err != nil {
		return nil, err
	}
	metrics.PaymentsRejected.Inc()
	e.log.Info("платёж отклонён", "telegram_id", cl.TelegramID, "amount", cl.Amount)
	return cl, nil
}

// AdminDelete удаляет учётную запись и снимает её задачи.
// Пометка об использованном пробном периоде остаётся навсегда.
func (e *Engine) AdminDelete(ctx context.Context, adminID int64, login string) (int64, error) {
	if adminID != e.adminID {
		return 0, ErrNotAdmin
	}

	e.mu.Lock()
	deleted, err := e.store.Delete(ctx, login)
	if err != nil {
		e.mu.Unlock()
		return 0, err
	}
	if !deleted {
		e.mu.Unlock()
		return 0, ErrNotFound
	}
	e.jobs.CancelFor(login)
	e.mu.Unlock()

	e.deprovision(ctx, login)
	e.log.Info("подписка удалена администратором", "login", login)
	return accounts.IDForLogin(login), nil
}

// AdminCreate заводит учётную запись вручную. Пустой пароль — сгенерировать,
// days <= 0 — срок по умолчанию.
func (e *Engine) AdminCreate(ctx context.Context, adminID int64, login, pass string, days int) (*Grant, error) {
	if adminID != e.adminID {
		return nil, ErrNotAdmin
	}
	if days <= 0 {
		days = DefaultAdminCreateDays
	}

	e.mu.Lock()
	now := e.clock()

	acc, err := e.store.Get(ctx, login)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if acc != nil {
		e.mu.Unlock()
		return nil, ErrExists
	}

	if pass == "" {
		if pass, err = password.Generate(password.DefaultLength); err != nil {
			e.mu.Unlock()
			return nil, err
		}
	}
	expiresAt := now.Add(time.Duration(days) * 24 * time.Hour)

	if err := e.store.Upsert(ctx, accounts.Account{
		Login:      login,
		TelegramID: accounts.IDForLogin(login),
		Password:   pass,
		ExpiresAt:  expiresAt,
		IsTrial:    false,
	}); err != nil {
		e.mu.Unlock()
		return nil, err
	}

	e.jobs.Schedule(scheduler.Job{
		ID:         scheduler.RemindJobID(login),
		FireAt:     expiresAt.Add(-ReminderLead),
		Kind:       scheduler.KindRemind,
		Login:      login,
		TelegramID: accounts.IDForLogin(login),
		ExpiresAt:  expiresAt,
	})
	e.mu.Unlock()

	e.provision(ctx, login, pass)
	e.log.Info("учётная запись создана вручную", "login", login, "expires_at", expiresAt)
	return &Grant{Login: login, Password: pass, ExpiresAt: expiresAt}, nil
}

// GetStatus — только чтение; запись с истёкшим сроком считается отсутствующей.
func (e *Engine) GetStatus(ctx context.Context, telegramID int64) (*Status, error) {
	login := accounts.LoginForID(telegramID)
	acc, err := e.store.Get(ctx, login)
	if err != nil {
		return nil, err
	}
	if !acc.Active(e.clock()) {
		return &Status{Active: false, Login: login}, nil
	}

	return &Status{
		Active:    true,
		Login:     acc.Login,
		Password:  acc.Password,
		ExpiresAt: acc.ExpiresAt,
		IsTrial:   acc.IsTrial,
	}, nil
}

// ListAccounts — перечисление для администратора (/delete_subscription, /export).
func (e *Engine) ListAccounts(ctx context.Context) ([]accounts.Account, error) {
	return e.store.List(ctx)
}

// provision применяет учётные данные к TorrServer. Запись в базе уже
// зафиксирована, поэтому ошибка не откатывает состояние: предупреждаем
// администратора и оставляем на ручную сверку.
func (e *Engine) provision(ctx context.Context, login, pass string) {
	if err := e.prov.Apply(ctx, login, pass); err != nil {
		metrics.ProvisionErrors.Inc()
		e.log.Error("провижининг не удался", "login", login, "err", err)
		e.notify.Notify(e.adminID, fmt.Sprintf("⚠️ Не удалось применить учётные данные %s на TorrServer: %v", login, err))
	}
}

func (e *Engine) deprovision(ctx context.Context, login string) {
	if err := e.prov.Remove(ctx, login); err != nil {
		metrics.ProvisionErrors.Inc()
		e.log.Error("снятие учётки не удалось", "login", login, "err", err)
		e.notify.Notify(e.adminID, fmt.Sprintf("⚠️ Не удалось убрать %s с TorrServer: %v", login, err))
	}
}
