package driver

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const DefaultBinary = "chromedriver"

var (
	ErrDriverNotFound = errors.New("browser driver not found")
	ErrDriverSpawn    = errors.New("browser driver failed to start")
)

type DependencyReport struct {
	Binary string `json:"binary"`
	Found  bool   `json:"found"`
	Path   string `json:"path,omitempty"`
}

func DependencyStatus(binary string) DependencyReport {
	binary = binaryOrDefault(binary)
	report := DependencyReport{Binary: binary}
	if path, err := exec.LookPath(binary); err == nil {
		report.Found = true
		report.Path = path
	}
	return report
}

// CheckDependency is the startup precondition: without the driver binary no
// batch can run.
func CheckDependency(binary string) error {
	report := DependencyStatus(binary)
	if !report.Found {
		return fmt.Errorf("%w: %s is not installed or not on PATH", ErrDriverNotFound, report.Binary)
	}
	return nil
}

func binaryOrDefault(binary string) string {
	if b := strings.TrimSpace(binary); b != "" {
		return b
	}
	return DefaultBinary
}
