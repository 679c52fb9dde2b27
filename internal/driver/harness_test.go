package driver

import (
	"os"
	"path/filepath"
	"testing"
)

// installFakeDriver writes a chromedriver stand-in onto PATH.
func installFakeDriver(t *testing.T, script string) string {
	t.Helper()
	fakeBin := filepath.Join(t.TempDir(), "bin")
	if err := os.MkdirAll(fakeBin, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(fakeBin, "chromedriver")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", fakeBin+":"+os.Getenv("PATH"))
	return path
}

const sleepingDriver = `#!/usr/bin/env bash
exec sleep 300
`
