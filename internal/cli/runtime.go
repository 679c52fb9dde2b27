package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"auto-claimer/internal/app"
	"auto-claimer/internal/claim"
	"auto-claimer/internal/config"
	"auto-claimer/internal/driver"
	"auto-claimer/internal/store"
)

// runtime wires the long-lived collaborators of one command invocation.
type runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	store      *store.Store
	supervisor *driver.Supervisor
	app        *app.App
	closeLog   func() error
}

// newRuntime builds the collaborators. Console receives human-readable log
// records; nil sends them to the log file only.
func newRuntime(configDir string, console io.Writer) (*runtime, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg := config.Load()

	dir, err := resolveConfigDir(configDir, cfg)
	if err != nil {
		return nil, err
	}
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel, console)

	st := store.New(dir, logger)
	sup := driver.New(driver.Options{
		Binary:       cfg.DriverBinary,
		ReadyTimeout: cfg.DriverReadyTimeout,
		Logger:       logger,
	})
	exec := claim.NewExecutor(cfg.Endpoint, logger)
	exec.ChromeArgs = cfg.ChromeArgs()

	return &runtime{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		supervisor: sup,
		app:        app.New(st, sup, exec, logger),
		closeLog:   closeLog,
	}, nil
}

func (r *runtime) Close() {
	r.supervisor.Shutdown()
	_ = r.closeLog()
}

// lockConfigDir takes the instance lock a claim holds for its whole batch.
func (r *runtime) lockConfigDir() (store.InstanceLock, error) {
	lock, err := store.AcquireInstanceLock(r.store.Dir())
	if err != nil {
		return store.InstanceLock{}, err
	}
	if owner, ok := lock.Reclaimed(); ok {
		r.logger.Warn("reclaimed stale instance lock", "dir", r.store.Dir(), "previous_owner", owner.String())
	}
	return lock, nil
}

// withUpdateLock runs fn under the instance lock so accounts and settings are
// never rewritten while a claim batch is reading them.
func (r *runtime) withUpdateLock(fn func() error) error {
	lock, err := r.lockConfigDir()
	if err != nil {
		if errors.Is(err, store.ErrLocked) {
			return fmt.Errorf("%w: %w", app.ErrBatchRunning, err)
		}
		return err
	}
	err = fn()
	if releaseErr := lock.Release(); releaseErr != nil && err == nil {
		err = releaseErr
	}
	return err
}

func resolveConfigDir(flagValue string, cfg config.Config) (string, error) {
	if dir := strings.TrimSpace(flagValue); dir != "" {
		return dir, nil
	}
	if dir := strings.TrimSpace(cfg.ConfigDir); dir != "" {
		return dir, nil
	}
	return store.DefaultDir()
}
