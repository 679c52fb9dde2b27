package cli

import (
	"os"
	"path/filepath"
	"testing"

	"auto-claimer/internal/app"
	"auto-claimer/internal/driver"
	"auto-claimer/internal/model"
	"auto-claimer/internal/store"

	"github.com/stretchr/testify/require"
)

// testEnv points configuration at a scratch directory and returns the
// config dir commands will use.
func testEnv(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	configDir := filepath.Join(tmp, "config")
	t.Setenv("AUTO_CLAIMER_CONFIG_DIR", configDir)
	t.Setenv("AUTO_CLAIMER_LOG_FILE", filepath.Join(tmp, "claimer.log"))
	t.Setenv("AUTO_CLAIMER_DRIVER", "fake-chromedriver")
	return configDir
}

func installFakeDriver(t *testing.T) {
	t.Helper()
	bin := t.TempDir()
	script := "#!/usr/bin/env bash\nexec sleep 300\n"
	require.NoError(t, os.WriteFile(filepath.Join(bin, "fake-chromedriver"), []byte(script), 0o755))
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestHarnessAccountsLifecycle(t *testing.T) {
	dir := testEnv(t)
	st := store.New(dir, nil)

	require.NoError(t, Run([]string{"accounts", "add", "--email", "a@example.com", "--password", "pw-a"}))
	require.NoError(t, Run([]string{"accounts", "add", "--email", "b@example.com", "--password", "pw-b"}))
	require.NoError(t, Run([]string{"accounts", "add", "--email", "a@example.com", "--password", "pw-a2"}))
	require.Equal(t, []model.Account{
		{Email: "b@example.com", Password: "pw-b"},
		{Email: "a@example.com", Password: "pw-a2"},
	}, st.LoadAccounts())

	require.NoError(t, Run([]string{"accounts", "list", "--json"}))

	require.NoError(t, Run([]string{"accounts", "remove", "--email", "B@example.com"}))
	require.Equal(t, []model.Account{{Email: "a@example.com", Password: "pw-a2"}}, st.LoadAccounts())
	require.Error(t, Run([]string{"accounts", "remove", "--email", "missing@example.com"}))

	require.NoError(t, Run([]string{"accounts", "clear", "--yes"}))
	require.Empty(t, st.LoadAccounts())
}

func TestHarnessAccountsSetFromFile(t *testing.T) {
	dir := testEnv(t)
	st := store.New(dir, nil)
	tmp := t.TempDir()

	wrapped := filepath.Join(tmp, "wrapped.json")
	require.NoError(t, os.WriteFile(wrapped, []byte(`{"accounts":[{"email":"x@example.com","password":"1"},{"email":"","password":"2"}]}`), 0o600))
	require.NoError(t, Run([]string{"accounts", "set", "--file", wrapped}))
	require.Equal(t, []model.Account{{Email: "x@example.com", Password: "1"}}, st.LoadAccounts())

	bare := filepath.Join(tmp, "bare.json")
	require.NoError(t, os.WriteFile(bare, []byte(`[{"email":"y@example.com","password":"3"},{"email":"z@example.com","password":"4"}]`), 0o600))
	require.NoError(t, Run([]string{"accounts", "set", "--file", bare}))
	require.Len(t, st.LoadAccounts(), 2)

	broken := filepath.Join(tmp, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"accounts":`), 0o600))
	require.Error(t, Run([]string{"accounts", "set", "--file", broken}))
	require.Len(t, st.LoadAccounts(), 2)

	require.Error(t, Run([]string{"accounts", "set"}))
}

func TestHarnessSettings(t *testing.T) {
	dir := testEnv(t)
	st := store.New(dir, nil)

	require.NoError(t, Run([]string{"settings", "show"}))
	require.NoError(t, Run([]string{"settings", "set", "--concurrency", "4"}))
	require.Equal(t, 4, st.LoadSettings().Concurrency)

	require.Error(t, Run([]string{"settings", "set", "--concurrency", "0"}))
	require.Equal(t, 4, st.LoadSettings().Concurrency)
}

func TestHarnessDoctor(t *testing.T) {
	testEnv(t)
	require.Error(t, Run([]string{"doctor"}))

	installFakeDriver(t)
	require.NoError(t, Run([]string{"accounts", "add", "--email", "a@example.com", "--password", "pw"}))
	require.NoError(t, Run([]string{"doctor", "--json"}))
}

func TestHarnessClaimRequiresDriver(t *testing.T) {
	testEnv(t)
	err := Run([]string{"claim", "--no-tui"})
	require.ErrorIs(t, err, driver.ErrDriverNotFound)
}

func TestHarnessClaimEmptyBatch(t *testing.T) {
	dir := testEnv(t)
	installFakeDriver(t)

	require.NoError(t, Run([]string{"claim", "--no-tui"}))
	require.NoError(t, Run([]string{"claim", "--json"}))
	require.NoDirExists(t, filepath.Join(dir, ".claim.lock"))
}

func TestHarnessClaimRefusesSecondInstance(t *testing.T) {
	dir := testEnv(t)
	installFakeDriver(t)

	lock, err := store.AcquireInstanceLock(dir)
	require.NoError(t, err)
	defer func() { _ = lock.Release() }()

	err = Run([]string{"claim", "--no-tui"})
	require.ErrorIs(t, err, store.ErrLocked)
}

func TestHarnessMutatorsRefuseWhileClaimRuns(t *testing.T) {
	dir := testEnv(t)
	st := store.New(dir, nil)
	require.NoError(t, Run([]string{"accounts", "add", "--email", "a@example.com", "--password", "pw-a"}))
	require.NoError(t, Run([]string{"settings", "set", "--concurrency", "2"}))

	file := filepath.Join(t.TempDir(), "accounts.json")
	require.NoError(t, os.WriteFile(file, []byte(`[{"email":"x@example.com","password":"x"}]`), 0o600))

	lock, err := store.AcquireInstanceLock(dir)
	require.NoError(t, err)
	defer func() { _ = lock.Release() }()

	for _, args := range [][]string{
		{"accounts", "add", "--email", "x@example.com", "--password", "pw"},
		{"accounts", "set", "--file", file},
		{"accounts", "remove", "--email", "a@example.com"},
		{"accounts", "clear", "--yes"},
		{"settings", "set", "--concurrency", "5"},
	} {
		err := Run(args)
		require.ErrorIs(t, err, app.ErrBatchRunning, "%v", args)
		require.ErrorIs(t, err, store.ErrLocked, "%v", args)
	}
	require.Equal(t, []model.Account{{Email: "a@example.com", Password: "pw-a"}}, st.LoadAccounts())
	require.Equal(t, 2, st.LoadSettings().Concurrency)
	require.NoError(t, Run([]string{"accounts", "list"}))

	require.NoError(t, lock.Release())
	require.NoError(t, Run([]string{"settings", "set", "--concurrency", "5"}))
	require.Equal(t, 5, st.LoadSettings().Concurrency)
	require.NoDirExists(t, filepath.Join(dir, ".claim.lock"))
}

func TestHarnessClaimRejectsNegativeConcurrency(t *testing.T) {
	testEnv(t)
	require.Error(t, Run([]string{"claim", "--concurrency", "-2"}))
}

func TestRunUnknownCommand(t *testing.T) {
	require.Error(t, Run([]string{"bogus"}))
	require.NoError(t, Run([]string{"help"}))
	require.NoError(t, Run(nil))
}
