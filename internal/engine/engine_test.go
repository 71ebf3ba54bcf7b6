package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rutils/torrbot/internal/domain/accounts"
	"github.com/rutils/torrbot/internal/domain/claims"
	"github.com/rutils/torrbot/internal/scheduler"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

/*** ФЕЙКИ ***/

type fakeStore struct {
	mu sync.Mutex
	m  map[string]accounts.Account
}

func newFakeStore() *fakeStore { return &fakeStore{m: map[string]accounts.Account{}} }

func (s *fakeStore) Get(_ context.Context, login string) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.m[login]
	if !ok {
		return nil, nil
	}
	cp := a
	return &cp, nil
}

func (s *fakeStore) Upsert(_ context.Context, a accounts.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[a.Login] = a
	return nil
}

func (s *fakeStore) Delete(_ context.Context, login string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[login]
	delete(s.m, login)
	return ok, nil
}

func (s *fakeStore) List(_ context.Context) ([]accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]accounts.Account, 0, len(s.m))
	for _, a := range s.m {
		out = append(out, a)
	}
	return out, nil
}

type fakeTrials struct {
	mu  sync.Mutex
	set map[int64]bool
}

func newFakeTrials() *fakeTrials { return &fakeTrials{set: map[int64]bool{}} }

func (t *fakeTrials) HasUsed(_ context.Context, id int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.set[id], nil
}

func (t *fakeTrials) MarkUsed(_ context.Context, id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.set[id] = true
	return nil
}

type fakeClaims struct {
	mu  sync.Mutex
	seq int
	m   map[string]claims.Claim
}

func newFakeClaims() *fakeClaims { return &fakeClaims{m: map[string]claims.Claim{}} }

func (f *fakeClaims) Create(_ context.Context, telegramID int64, username string, amount int, channel claims.Channel) (*claims.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	c := claims.Claim{
		ID:         fmt.Sprintf("claim-%08d", f.seq),
		TelegramID: telegramID,
		Username:   username,
		Amount:     amount,
		Channel:    channel,
		Status:     claims.StatusPending,
	}
	f.m[c.ID] = c
	return &c, nil
}

func (f *fakeClaims) Get(_ context.Context, id string) (*claims.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.m[id]
	if !ok {
		return nil, nil
	}
	cp := c
	return &cp, nil
}

func (f *fakeClaims) Decide(_ context.Context, id string, status claims.Status) (*claims.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.m[id]
	if !ok || c.Status != claims.StatusPending {
		return nil, claims.ErrAlreadyDecided
	}
	c.Status = status
	f.m[id] = c
	cp := c
	return &cp, nil
}

type fakeProv struct {
	mu        sync.Mutex
	applied   map[string]string
	removed   []string
	failApply bool
}

func newFakeProv() *fakeProv { return &fakeProv{applied: map[string]string{}} }

func (p *fakeProv) Apply(_ context.Context, login, pass string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failApply {
		return fmt.Errorf("restart failed")
	}
	p.applied[login] = pass
	return nil
}

func (p *fakeProv) Remove(_ context.Context, login string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.applied, login)
	p.removed = append(p.removed, login)
	return nil
}

type fakeNotify struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func newFakeNotify() *fakeNotify { return &fakeNotify{sent: map[int64][]string{}} }

func (n *fakeNotify) Notify(id int64, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[id] = append(n.sent[id], text)
}

func (n *fakeNotify) count(id int64) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent[id])
}

type fakeJobs struct {
	mu        sync.Mutex
	jobs      map[string]scheduler.Job
	cancelled []string
}

func newFakeJobs() *fakeJobs { return &fakeJobs{jobs: map[string]scheduler.Job{}} }

func (j *fakeJobs) Schedule(job scheduler.Job) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jobs[job.ID] = job
}

func (j *fakeJobs) Cancel(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.jobs, id)
	j.cancelled = append(j.cancelled, id)
}

func (j *fakeJobs) CancelFor(login string) {
	j.Cancel(scheduler.RemindJobID(login))
	j.Cancel(scheduler.RevokeJobID(login))
}

func (j *fakeJobs) get(id string) (scheduler.Job, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	return job, ok
}

type world struct {
	eng    *Engine
	store  *fakeStore
	trials *fakeTrials
	claims *fakeClaims
	prov   *fakeProv
	notify *fakeNotify
	jobs   *fakeJobs
	now    time.Time
}

const adminID int64 = 999

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{
		store:  newFakeStore(),
		trials: newFakeTrials(),
		claims: newFakeClaims(),
		prov:   newFakeProv(),
		notify: newFakeNotify(),
		jobs:   newFakeJobs(),
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	w.eng = New(newNoopLogger(), w.store, w.trials, w.claims, w.prov, w.notify, w.jobs, adminID)
	w.eng.clock = func() time.Time { return w.now }
	return w
}

/*** ПРОБНЫЙ ПЕРИОД ***/

func TestRequestTrial(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	grant, err := w.eng.RequestTrial(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "User42", grant.Login)
	assert.Equal(t, w.now.Add(TrialDuration), grant.ExpiresAt)
	assert.Len(t, grant.Password, 12)

	acc, err := w.store.Get(ctx, "User42")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.True(t, acc.IsTrial)
	assert.Equal(t, int64(42), acc.TelegramID)

	// пробная учётка применена к TorrServer и стоит на удаление
	assert.Equal(t, grant.Password, w.prov.applied["User42"])
	job, ok := w.jobs.get(scheduler.RevokeJobID("User42"))
	require.True(t, ok)
	assert.Equal(t, scheduler.KindRevoke, job.Kind)
	assert.Equal(t, grant.ExpiresAt, job.FireAt)
}

func TestRequestTrial_SecondCallRejected(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	_, err := w.eng.RequestTrial(ctx, 42)
	require.NoError(t, err)

	// подписка ещё активна
	_, err = w.eng.RequestTrial(ctx, 42)
	assert.ErrorIs(t, err, ErrAlreadyActive)

	list, _ := w.store.List(ctx)
	assert.Len(t, list, 1)
}

func TestRequestTrial_UsedFlagSurvivesRevoke(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	grant, err := w.eng.RequestTrial(ctx, 42)
	require.NoError(t, err)

	// срок вышел, revoke сработал
	w.now = grant.ExpiresAt.Add(time.Second)
	job, _ := w.jobs.get(scheduler.RevokeJobID("User42"))
	w.eng.HandleJob(ctx, job)

	acc, err := w.store.Get(ctx, "User42")
	require.NoError(t, err)
	assert.Nil(t, acc)

	st, err := w.eng.GetStatus(ctx, 42)
	require.NoError(t, err)
	assert.False(t, st.Active)

	// право на пробный период одноразовое, даже после удаления учётки
	_, err = w.eng.RequestTrial(ctx, 42)
	assert.ErrorIs(t, err, ErrTrialUsed)
}

/*** ТАРИФЫ ***/

func TestDaysForAmount(t *testing.T) {
	tests := []struct {
		amount  int
		days    int
		wantErr bool
	}{
		{100, 30, false},
		{1, 30, false},
		{300, 90, false},
		{3, 90, false},
		{600, 180, false},
		{6, 180, false},
		{200, 0, true},
		{0, 0, true},
		{-100, 0, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("amount=%d", tt.amount), func(t *testing.T) {
			days, err := DaysForAmount(tt.amount)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.days, days)
		})
	}
}

func TestCreateClaim_UnknownAmount(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	_, err := w.eng.CreateClaim(ctx, 7, "user", 250, claims.ChannelSBP)
	assert.ErrorIs(t, err, ErrUnknownAmount)
	assert.Empty(t, w.claims.m)
}

/*** ПОДТВЕРЖДЕНИЕ ОПЛАТЫ ***/

func TestConfirmClaim_NewAccount(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	cl, err := w.eng.CreateClaim(ctx, 7, "user7", 300, claims.ChannelSBP)
	require.NoError(t, err)

	grant, decided, err := w.eng.ConfirmClaim(ctx, adminID, cl.ID)
	require.NoError(t, err)
	assert.Equal(t, claims.StatusConfirmed, decided.Status)
	assert.Equal(t, "User7", grant.Login)
	assert.Equal(t, w.now.Add(90*24*time.Hour), grant.ExpiresAt)

	acc, _ := w.store.Get(ctx, "User7")
	require.NotNil(t, acc)
	assert.False(t, acc.IsTrial)

	// напоминание за 3 дня до истечения
	job, ok := w.jobs.get(scheduler.RemindJobID("User7"))
	require.True(t, ok)
	assert.Equal(t, grant.ExpiresAt.Add(-ReminderLead), job.FireAt)
}

func TestConfirmClaim_ExtensionIsMonotonic(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	cl1, _ := w.eng.CreateClaim(ctx, 7, "user7", 300, claims.ChannelSBP)
	grant1, _, err := w.eng.ConfirmClaim(ctx, adminID, cl1.ID)
	require.NoError(t, err)

	// продление до истечения: база — текущий срок, не «сейчас»
	cl2, _ := w.eng.CreateClaim(ctx, 7, "user7", 100, claims.ChannelWallet)
	grant2, _, err := w.eng.ConfirmClaim(ctx, adminID, cl2.ID)
	require.NoError(t, err)
	assert.Equal(t, grant1.ExpiresAt.Add(30*24*time.Hour), grant2.ExpiresAt)

	// пароль при продлении сохраняется
	assert.Equal(t, grant1.Password, grant2.Password)
}

func TestConfirmClaim_ExpiredBaseIsNow(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	require.NoError(t, w.store.Upsert(ctx, accounts.Account{
		Login:      "User7",
		TelegramID: 7,
		Password:   "oldpass12345",
		ExpiresAt:  w.now.Add(-24 * time.Hour),
	}))

	cl, _ := w.eng.CreateClaim(ctx, 7, "user7", 100, claims.ChannelSBP)
	grant, _, err := w.eng.ConfirmClaim(ctx, adminID, cl.ID)
	require.NoError(t, err)
	assert.Equal(t, w.now.Add(30*24*time.Hour), grant.ExpiresAt)
	assert.Equal(t, "oldpass12345", grant.Password)
}

func TestConfirmClaim_ReplayRejected(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	cl, _ := w.eng.CreateClaim(ctx, 7, "user7", 300, claims.ChannelSBP)
	grant, _, err := w.eng.ConfirmClaim(ctx, adminID, cl.ID)
	require.NoError(t, err)

	// повторное подтверждение не продлевает ещё раз
	_, _, err = w.eng.ConfirmClaim(ctx, adminID, cl.ID)
	assert.ErrorIs(t, err, claims.ErrAlreadyDecided)

	acc, _ := w.store.Get(ctx, "User7")
	require.NotNil(t, acc)
	assert.Equal(t, grant.ExpiresAt, acc.ExpiresAt)
}

func TestConfirmClaim_NotAdmin(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	cl, _ := w.eng.CreateClaim(ctx, 7, "user7", 300, claims.ChannelSBP)
	_, _, err := w.eng.ConfirmClaim(ctx, 12345, cl.ID)
	assert.ErrorIs(t, err, ErrNotAdmin)

	acc, _ := w.store.Get(ctx, "User7")
	assert.Nil(t, acc)
}

func TestConfirmClaim_ConcurrentLosesNothing(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	cl1, _ := w.eng.CreateClaim(ctx, 7, "user7", 100, claims.ChannelSBP)
	cl2, _ := w.eng.CreateClaim(ctx, 7, "user7", 300, claims.ChannelSBP)

	var wg sync.WaitGroup
	wg.Add(2)
	for _, id := range []string{cl1.ID, cl2.ID} {
		go func(id string) {
			defer wg.Done()
			_, _, err := w.eng.ConfirmClaim(ctx, adminID, id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	// оба продления применились в каком-то порядке: 30 + 90 дней от «сейчас»
	acc, err := w.store.Get(ctx, "User7")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, w.now.Add(120*24*time.Hour), acc.ExpiresAt)
}

func TestConfirmClaim_TrialBecomesPaid(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	grant, err := w.eng.RequestTrial(ctx, 42)
	require.NoError(t, err)

	cl, _ := w.eng.CreateClaim(ctx, 42, "user42", 100, claims.ChannelWallet)
	paid, _, err := w.eng.ConfirmClaim(ctx, adminID, cl.ID)
	require.NoError(t, err)

	// revoke снят, база — срок пробного периода
	_, ok := w.jobs.get(scheduler.RevokeJobID("User42"))
	assert.False(t, ok)
	assert.Equal(t, grant.ExpiresAt.Add(30*24*time.Hour), paid.ExpiresAt)

	acc, _ := w.store.Get(ctx, "User42")
	require.NotNil(t, acc)
	assert.False(t, acc.IsTrial)
}

func TestRejectClaim(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	cl, _ := w.eng.CreateClaim(ctx, 7, "user7", 100, claims.ChannelSBP)

	decided, err := w.eng.RejectClaim(ctx, adminID, cl.ID)
	require.NoError(t, err)
	assert.Equal(t, claims.StatusRejected, decided.Status)

	// состояние не менялось
	acc, _ := w.store.Get(ctx, "User7")
	assert.Nil(t, acc)

	// и подтвердить отклонённую заявку уже нельзя
	_, _, err = w.eng.ConfirmClaim(ctx, adminID, cl.ID)
	assert.ErrorIs(t, err, claims.ErrAlreadyDecided)
}

/*** АДМИНИСТРАТОР ***/

func TestAdminDelete(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	_, err := w.eng.RequestTrial(ctx, 42)
	require.NoError(t, err)

	telegramID, err := w.eng.AdminDelete(ctx, adminID, "User42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), telegramID)

	acc, _ := w.store.Get(ctx, "User42")
	assert.Nil(t, acc)
	_, ok := w.jobs.get(scheduler.RevokeJobID("User42"))
	assert.False(t, ok)
	assert.Contains(t, w.prov.removed, "User42")

	// повторное удаление — «уже удалён», без новых мутаций
	_, err = w.eng.AdminDelete(ctx, adminID, "User42")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdminDelete_NotAdmin(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	_, err := w.eng.AdminDelete(ctx, 12345, "User42")
	assert.ErrorIs(t, err, ErrNotAdmin)
}

func TestAdminCreate(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	grant, err := w.eng.AdminCreate(ctx, adminID, "backdoor", "secret", 0)
	require.NoError(t, err)
	assert.Equal(t, "secret", grant.Password)
	assert.Equal(t, w.now.Add(30*24*time.Hour), grant.ExpiresAt)

	// существующий логин не перезаписываем
	_, err = w.eng.AdminCreate(ctx, adminID, "backdoor", "", 10)
	assert.ErrorIs(t, err, ErrExists)
}

func TestAdminCreate_GeneratesPassword(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	grant, err := w.eng.AdminCreate(ctx, adminID, "User55", "", 7)
	require.NoError(t, err)
	assert.Len(t, grant.Password, 12)
	assert.Equal(t, w.now.Add(7*24*time.Hour), grant.ExpiresAt)

	acc, _ := w.store.Get(ctx, "User55")
	require.NotNil(t, acc)
	assert.Equal(t, int64(55), acc.TelegramID)
}

/*** СТАТУС ***/

func TestGetStatus(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	st, err := w.eng.GetStatus(ctx, 42)
	require.NoError(t, err)
	assert.False(t, st.Active)

	grant, _ := w.eng.RequestTrial(ctx, 42)

	st, err = w.eng.GetStatus(ctx, 42)
	require.NoError(t, err)
	assert.True(t, st.Active)
	assert.True(t, st.IsTrial)
	assert.Equal(t, grant.Password, st.Password)

	// истёкшая запись считается отсутствующей, даже если строка на месте
	w.now = grant.ExpiresAt.Add(time.Second)
	st, err = w.eng.GetStatus(ctx, 42)
	require.NoError(t, err)
	assert.False(t, st.Active)
}

/*** ЗАДАЧИ ПЛАНИРОВЩИКА ***/

func TestHandleRevoke_RenewalWins(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	grant, _ := w.eng.RequestTrial(ctx, 42)
	staleJob := scheduler.Job{
		ID:     scheduler.RevokeJobID("User42"),
		FireAt: grant.ExpiresAt,
		Kind:   scheduler.KindRevoke,
		Login:  "User42",
	}

	// учётку успели продлить — revoke перечитывает срок и уступает
	cl, _ := w.eng.CreateClaim(ctx, 42, "user42", 100, claims.ChannelSBP)
	_, _, err := w.eng.ConfirmClaim(ctx, adminID, cl.ID)
	require.NoError(t, err)

	w.now = grant.ExpiresAt.Add(time.Second)
	w.eng.HandleJob(ctx, staleJob)

	acc, _ := w.store.Get(ctx, "User42")
	assert.NotNil(t, acc)
}

func TestHandleRemind(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	cl, _ := w.eng.CreateClaim(ctx, 7, "user7", 100, claims.ChannelSBP)
	grant, _, err := w.eng.ConfirmClaim(ctx, adminID, cl.ID)
	require.NoError(t, err)

	job, ok := w.jobs.get(scheduler.RemindJobID("User7"))
	require.True(t, ok)

	w.now = grant.ExpiresAt.Add(-ReminderLead)
	w.eng.HandleJob(ctx, job)
	assert.Equal(t, 1, w.notify.count(7))
}

func TestHandleRemind_SkippedWhenInactive(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	cl, _ := w.eng.CreateClaim(ctx, 7, "user7", 100, claims.ChannelSBP)
	_, _, err := w.eng.ConfirmClaim(ctx, adminID, cl.ID)
	require.NoError(t, err)

	job, _ := w.jobs.get(scheduler.RemindJobID("User7"))

	// учётку удалили до срабатывания
	_, err = w.eng.AdminDelete(ctx, adminID, "User7")
	require.NoError(t, err)

	w.eng.HandleJob(ctx, job)
	assert.Equal(t, 0, w.notify.count(7))
}

/*** ВОССТАНОВЛЕНИЕ ПОСЛЕ РЕСТАРТА ***/

func TestRehydrate(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	require.NoError(t, w.store.Upsert(ctx, accounts.Account{
		Login: "User1", TelegramID: 1, Password: "p1",
		ExpiresAt: w.now.Add(-time.Hour), IsTrial: true,
	}))
	require.NoError(t, w.store.Upsert(ctx, accounts.Account{
		Login: "User2", TelegramID: 2, Password: "p2",
		ExpiresAt: w.now.Add(30 * 24 * time.Hour),
	}))

	require.NoError(t, w.eng.Rehydrate(ctx))

	// просроченный пробный — на удаление, платный — на напоминание
	revoke, ok := w.jobs.get(scheduler.RevokeJobID("User1"))
	require.True(t, ok)
	assert.Equal(t, scheduler.KindRevoke, revoke.Kind)

	remind, ok := w.jobs.get(scheduler.RemindJobID("User2"))
	require.True(t, ok)
	assert.Equal(t, w.now.Add(27*24*time.Hour), remind.FireAt)
}

/*** ПРОВИЖИНИНГ ***/

func TestProvisionFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.prov.failApply = true

	grant, err := w.eng.RequestTrial(ctx, 42)
	require.NoError(t, err)

	// запись осталась, администратор предупреждён
	acc, _ := w.store.Get(ctx, "User42")
	require.NotNil(t, acc)
	assert.Equal(t, grant.Password, acc.Password)
	assert.GreaterOrEqual(t, w.notify.count(adminID), 1)
}
