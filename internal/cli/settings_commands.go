package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"auto-claimer/internal/model"
)

func runSettings(args []string) error {
	if len(args) == 0 {
		printSettingsUsage()
		return nil
	}
	switch args[0] {
	case "show":
		return runSettingsShow(args[1:])
	case "set":
		return runSettingsSet(args[1:])
	case "help", "-h", "--help":
		printSettingsUsage()
		return nil
	default:
		printSettingsUsage()
		return fmt.Errorf("unknown settings subcommand %q", args[0])
	}
}

func runSettingsShow(args []string) error {
	fs := flag.NewFlagSet("settings show", flag.ContinueOnError)
	configDir := fs.String("config-dir", "", "config directory (default: user config dir)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := newRuntime(*configDir, os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	settings := rt.app.Settings()
	if *jsonOut {
		return printJSON(map[string]any{
			"path":     rt.store.SettingsPath(),
			"settings": settings,
		})
	}
	fmt.Printf("settings: %s\n", rt.store.SettingsPath())
	fmt.Printf("concurrency: %d\n", settings.Concurrency)
	return nil
}

func runSettingsSet(args []string) error {
	fs := flag.NewFlagSet("settings set", flag.ContinueOnError)
	configDir := fs.String("config-dir", "", "config directory (default: user config dir)")
	concurrency := fs.Int("concurrency", -1, "parallel browser sessions (>=1, -1 keeps current)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := newRuntime(*configDir, os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	if *concurrency != -1 && *concurrency <= 0 {
		return errors.New("--concurrency must be >= 1")
	}
	var settings model.Settings
	err = rt.withUpdateLock(func() error {
		settings = rt.app.Settings()
		if *concurrency != -1 {
			settings.Concurrency = *concurrency
		}
		return rt.app.SetSettings(settings)
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]model.Settings{"settings": settings})
	}
	fmt.Printf("updated settings in %s\n", rt.store.SettingsPath())
	fmt.Printf("concurrency: %d\n", settings.Concurrency)
	return nil
}

func printSettingsUsage() {
	fmt.Println("usage: auto-claimer settings <show|set> [flags]")
	fmt.Println()
	fmt.Println("  show  print the saved settings")
	fmt.Println("  set   update settings (--concurrency N)")
}
