package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"auto-claimer/internal/app"
)

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	configDir := fs.String("config-dir", "", "config directory (default: user config dir)")
	startDriver := fs.Bool("start-driver", false, "also launch the browser driver once")
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

	res := rt.app.Doctor(context.Background(), app.DoctorOptions{
		DriverBinary: rt.cfg.DriverBinary,
		StartDriver:  *startDriver,
	})
	if *jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		for _, c := range res.Checks {
			status := "ok"
			if !c.OK {
				status = "fail"
			}
			fmt.Printf("%s: %s (%s)\n", c.Name, status, c.Message)
		}
	}
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	if !*jsonOut {
		fmt.Println("doctor: all checks passed")
	}
	return nil
}
