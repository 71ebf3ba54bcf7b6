package torrserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const restartTimeout = 15 * time.Second

// Adapter применяет учётные данные к TorrServer: ведёт его файл
// пользователей (JSON логин→пароль) и дёргает команду перезапуска.
// Ошибки здесь не откатывают уже записанное состояние подписки —
// учётка пользователю принадлежит, расхождение чинится повторным
// применением или руками.
type Adapter struct {
	usersFile  string
	restartCmd string
	log        *slog.Logger

	mu sync.Mutex // сериализует read-modify-write файла
}

func New(usersFile, restartCmd string, log *slog.Logger) *Adapter {
	return &Adapter{usersFile: usersFile, restartCmd: restartCmd, log: log}
}

// Apply добавляет или обновляет логин и перезапускает TorrServer.
func (a *Adapter) Apply(ctx context.Context, login, password string) error {
	if err := a.update(func(creds map[string]string) {
		creds[login] = password
	}); err != nil {
		return fmt.Errorf("torrserver: обновление файла пользователей: %w", err)
	}
	return a.restart(ctx)
}

// Remove убирает логин и перезапускает TorrServer.
func (a *Adapter) Remove(ctx context.Context, login string) error {
	if err := a.update(func(creds map[string]string) {
		delete(creds, login)
	}); err != nil {
		return fmt.Errorf("torrserver: обновление файла пользователей: %w", err)
	}
	return a.restart(ctx)
}

func (a *Adapter) update(mutate func(map[string]string)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	creds := map[string]string{}
	raw, err := os.ReadFile(a.usersFile)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &creds); err != nil {
			return fmt.Errorf("разбор %s: %w", a.usersFile, err)
		}
	case os.IsNotExist(err):
		// первый запуск, файла ещё нет
	default:
		return err
	}

	mutate(creds)

	out, err := json.MarshalIndent(creds, "", "    ")
	if err != nil {
		return err
	}
	// пишем во временный файл и переименовываем, чтобы TorrServer
	// не увидел полузаписанный JSON
	tmp := a.usersFile + ".tmp"
	if err := os.MkdirAll(filepath.Dir(a.usersFile), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, a.usersFile)
}

func (a *Adapter) restart(ctx context.Context) error {
	if strings.TrimSpace(a.restartCmd) == "" {
		return nil
	}
	parts := strings.Fields(a.restartCmd)

	ctx, cancel := context.WithTimeout(ctx, restartTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		a.log.Error("перезапуск TorrServer не удался", "cmd", a.restartCmd, "out", string(out), "err", err)
		return fmt.Errorf("torrserver: перезапуск: %w", err)
	}
	a.log.Info("TorrServer перезапущен")
	return nil
}
