package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"auto-claimer/internal/driver"
	"auto-claimer/internal/model"
	"auto-claimer/internal/store"
	"auto-claimer/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/olekukonko/tablewriter"
)

func runClaim(args []string) (err error) {
	fs := flag.NewFlagSet("claim", flag.ContinueOnError)
	concurrency := fs.Int("concurrency", 0, "parallel browser sessions (0 = saved setting)")
	configDir := fs.String("config-dir", "", "config directory (default: user config dir)")
	noTUI := fs.Bool("no-tui", false, "print progress lines instead of the dashboard")
	jsonOut := fs.Bool("json", false, "print every job state as one JSON line")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *concurrency < 0 {
		return errors.New("--concurrency must be >= 1 (0 uses the saved setting)")
	}

	useTUI := !*noTUI && !*jsonOut && stdinIsTTY()
	var console io.Writer = os.Stderr
	if useTUI {
		console = nil
	}
	rt, err := newRuntime(*configDir, console)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := driver.CheckDependency(rt.cfg.DriverBinary); err != nil {
		return err
	}

	lock, err := rt.lockConfigDir()
	if err != nil {
		if errors.Is(err, store.ErrLocked) {
			return fmt.Errorf("another claim is running against this config directory: %w", err)
		}
		return err
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		if r := recover(); r != nil {
			rt.supervisor.Shutdown()
			panic(r)
		}
	}()

	accounts := rt.app.Accounts()
	if useTUI {
		return claimWithDashboard(ctx, rt, accounts, *concurrency)
	}

	results, err := rt.app.StartClaim(ctx, ui.NewLinePublisher(os.Stdout, *jsonOut), *concurrency)
	if err != nil {
		return err
	}
	res := <-results
	if !*jsonOut {
		printClaimSummary(res.State, accounts)
	}
	return res.Err
}

func claimWithDashboard(ctx context.Context, rt *runtime, accounts []model.Account, concurrency int) error {
	p := tea.NewProgram(ui.NewDashboard(accounts), tea.WithAltScreen())
	results, err := rt.app.StartClaim(ctx, ui.NewProgramPublisher(p), concurrency)
	if err != nil {
		return err
	}

	final, runErr := p.Run()
	if runErr != nil {
		rt.logger.Warn("dashboard stopped", "error", runErr)
	}
	if dash, ok := final.(ui.Dashboard); ok && dash.Detached() {
		fmt.Println("dashboard closed; waiting for the running batch to finish...")
	}

	res := <-results
	printClaimSummary(res.State, accounts)
	return res.Err
}

func printClaimSummary(state model.JobState, accounts []model.Account) {
	t := state.Tally()
	fmt.Printf("claim finished: %d claimed, %d failed, %d total\n", t.Succeeded, t.Failed, state.Total)
	if len(state.Statuses) > 0 {
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"#", "account", "status"})
		table.SetAutoFormatHeaders(false)
		for i, st := range state.Statuses {
			email := fmt.Sprintf("account #%d", i+1)
			if i < len(accounts) {
				email = accounts[i].Email
			}
			table.Append([]string{strconv.Itoa(i + 1), email, st.String()})
		}
		table.Render()
	}
	if t.Failed > 0 {
		fmt.Println("failed accounts are left as they were; rerun claim to retry them")
	}
}
