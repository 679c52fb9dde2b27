package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "claim":
		return runClaim(args[1:])
	case "accounts":
		return runAccounts(args[1:])
	case "settings":
		return runSettings(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("auto-claimer: claim the daily credit bonus for a list of accounts")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  auto-claimer doctor")
	fmt.Println("  auto-claimer accounts add --email <email> --password <password>")
	fmt.Println("  auto-claimer claim")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  claim     run one claim batch over every stored account")
	fmt.Println("  accounts  list/set/add/remove/clear stored accounts")
	fmt.Println("  settings  show/update the saved worker count")
	fmt.Println("  doctor    check the browser driver and the config directory")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - Every command accepts --config-dir; AUTO_CLAIMER_CONFIG_DIR sets the default")
	fmt.Println("  - AUTO_CLAIMER_* variables may also be placed in a .env file")
}
