package cli

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"auto-claimer/internal/model"
	"auto-claimer/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/olekukonko/tablewriter"
	"github.com/tidwall/gjson"
)

type accountView struct {
	Index int    `json:"index"`
	Email string `json:"email"`
}

func runAccounts(args []string) error {
	if len(args) == 0 {
		printAccountsUsage()
		return nil
	}
	switch args[0] {
	case "list":
		return runAccountsList(args[1:])
	case "set":
		return runAccountsSet(args[1:])
	case "add":
		return runAccountsAdd(args[1:])
	case "remove":
		return runAccountsRemove(args[1:])
	case "clear":
		return runAccountsClear(args[1:])
	case "help", "-h", "--help":
		printAccountsUsage()
		return nil
	default:
		printAccountsUsage()
		return fmt.Errorf("unknown accounts subcommand %q", args[0])
	}
}

func runAccountsList(args []string) error {
	fs := flag.NewFlagSet("accounts list", flag.ContinueOnError)
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

	accounts := rt.app.Accounts()
	views := make([]accountView, len(accounts))
	for i, a := range accounts {
		views[i] = accountView{Index: i + 1, Email: a.Email}
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"path":     rt.store.AccountsPath(),
			"accounts": views,
		})
	}

	fmt.Printf("accounts: %s\n", rt.store.AccountsPath())
	if len(views) == 0 {
		fmt.Println("(none)")
		return nil
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "email"})
	table.SetAutoFormatHeaders(false)
	for _, v := range views {
		table.Append([]string{strconv.Itoa(v.Index), v.Email})
	}
	table.Render()
	return nil
}

func runAccountsSet(args []string) error {
	fs := flag.NewFlagSet("accounts set", flag.ContinueOnError)
	configDir := fs.String("config-dir", "", "config directory (default: user config dir)")
	file := fs.String("file", "", `JSON file: [{"email":..,"password":..}] or {"accounts":[...]}`)
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := strings.TrimSpace(*file)
	if path == "" {
		return errors.New("--file is required")
	}

	accounts, err := readAccountsFile(path)
	if err != nil {
		return err
	}

	rt, err := newRuntime(*configDir, os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.withUpdateLock(func() error { return rt.app.SetAccounts(accounts) }); err != nil {
		return err
	}
	fmt.Printf("stored %d accounts in %s\n", len(model.NormalizeAccounts(accounts)), rt.store.AccountsPath())
	return nil
}

// readAccountsFile accepts a bare array or the stored document shape.
func readAccountsFile(path string) ([]model.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("parse accounts file %s: invalid JSON", path)
	}
	list := gjson.ParseBytes(data)
	if wrapped := list.Get("accounts"); list.IsObject() && wrapped.Exists() {
		list = wrapped
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("parse accounts file %s: expected an array of accounts", path)
	}

	var accounts []model.Account
	if err := json.Unmarshal([]byte(list.Raw), &accounts); err != nil {
		return nil, fmt.Errorf("parse accounts file %s: %w", path, err)
	}
	return accounts, nil
}

func runAccountsAdd(args []string) error {
	fs := flag.NewFlagSet("accounts add", flag.ContinueOnError)
	configDir := fs.String("config-dir", "", "config directory (default: user config dir)")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	account := model.Account{Email: strings.TrimSpace(*email), Password: *password}
	if account.Email == "" || account.Password == "" {
		if !stdinIsTTY() {
			return errors.New("--email and --password are required")
		}
		entered, ok, err := promptAccount()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("cancelled")
			return nil
		}
		account = entered
	}

	rt, err := newRuntime(*configDir, os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.withUpdateLock(func() error { return rt.app.AddAccount(account) }); err != nil {
		return err
	}
	fmt.Printf("stored account %s (%d total)\n", account.Email, len(rt.app.Accounts()))
	return nil
}

func promptAccount() (model.Account, bool, error) {
	final, err := tea.NewProgram(ui.NewAccountForm()).Run()
	if err != nil {
		return model.Account{}, false, err
	}
	form, ok := final.(ui.AccountForm)
	if !ok || !form.Submitted() {
		return model.Account{}, false, nil
	}
	account, err := form.Account()
	if err != nil {
		return model.Account{}, false, err
	}
	return account, true, nil
}

func runAccountsRemove(args []string) error {
	fs := flag.NewFlagSet("accounts remove", flag.ContinueOnError)
	configDir := fs.String("config-dir", "", "config directory (default: user config dir)")
	email := fs.String("email", "", "account email to remove")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	target := strings.TrimSpace(*email)
	if target == "" {
		return errors.New("--email is required")
	}

	rt, err := newRuntime(*configDir, os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	var kept []model.Account
	err = rt.withUpdateLock(func() error {
		current := rt.app.Accounts()
		kept = make([]model.Account, 0, len(current))
		for _, a := range current {
			if !strings.EqualFold(a.Email, target) {
				kept = append(kept, a)
			}
		}
		if len(kept) == len(current) {
			return fmt.Errorf("account %s not found", target)
		}
		return rt.app.SetAccounts(kept)
	})
	if err != nil {
		return err
	}
	fmt.Printf("removed account %s (%d left)\n", target, len(kept))
	return nil
}

func runAccountsClear(args []string) error {
	fs := flag.NewFlagSet("accounts clear", flag.ContinueOnError)
	configDir := fs.String("config-dir", "", "config directory (default: user config dir)")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*yes {
		ok, err := promptConfirm("remove every stored account? [y/N] ")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("cancelled")
			return nil
		}
	}

	rt, err := newRuntime(*configDir, os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.withUpdateLock(func() error { return rt.app.SetAccounts([]model.Account{}) }); err != nil {
		return err
	}
	fmt.Println("cleared stored accounts")
	return nil
}

func printAccountsUsage() {
	fmt.Println("usage: auto-claimer accounts <list|set|add|remove|clear> [flags]")
	fmt.Println()
	fmt.Println("  list    show stored account emails")
	fmt.Println("  set     replace the stored list from a JSON file (--file)")
	fmt.Println("  add     add or update one account (--email, --password; prompts on a TTY)")
	fmt.Println("  remove  remove one account (--email)")
	fmt.Println("  clear   remove every account (--yes skips the prompt)")
}
