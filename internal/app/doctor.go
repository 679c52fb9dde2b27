package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"auto-claimer/internal/driver"
	"auto-claimer/internal/store"
)

type DoctorOptions struct {
	DriverBinary string
	// StartDriver also launches the driver once and waits for it to report
	// ready.
	StartDriver bool
}

type DoctorResult struct {
	OK     bool          `json:"ok"`
	Checks []DoctorCheck `json:"checks"`
}

type DoctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func (a *App) Doctor(ctx context.Context, opts DoctorOptions) DoctorResult {
	checks := make([]DoctorCheck, 0, 4)

	dep := driver.DependencyStatus(opts.DriverBinary)
	checks = append(checks, DoctorCheck{
		Name:    "dependency:" + dep.Binary,
		OK:      dep.Found,
		Message: dependencyMessage(dep),
	})

	dirOK, dirMessage := ensureWritableDir(a.store.Dir())
	checks = append(checks, DoctorCheck{
		Name:    "directory:config",
		OK:      dirOK,
		Message: dirMessage,
	})

	accounts := a.Accounts()
	checks = append(checks, DoctorCheck{
		Name:    "accounts",
		OK:      len(accounts) > 0,
		Message: fmt.Sprintf("%d stored", len(accounts)),
	})

	if opts.StartDriver && dep.Found {
		check := DoctorCheck{Name: "driver:start", OK: true}
		port, err := a.ports.EnsureRunning(ctx)
		if err != nil {
			check.OK = false
			check.Message = err.Error()
		} else {
			check.Message = fmt.Sprintf("ready on port %d", port)
		}
		checks = append(checks, check)
	}

	ok := true
	for _, c := range checks {
		if !c.OK {
			ok = false
			break
		}
	}
	return DoctorResult{OK: ok, Checks: checks}
}

func dependencyMessage(dep driver.DependencyReport) string {
	if dep.Found {
		return dep.Binary + " found at " + dep.Path
	}
	return dep.Binary + " not found on PATH"
}

func ensureWritableDir(path string) (bool, string) {
	if strings.TrimSpace(path) == "" {
		return false, "empty path"
	}
	if err := store.Mkdir(path); err != nil {
		return false, err.Error()
	}
	f, err := os.CreateTemp(path, "auto-claimer-check-*.tmp")
	if err != nil {
		return false, err.Error()
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return true, path + " writable"
}
