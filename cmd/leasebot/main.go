package main

import (
	"fmt"
	"os"
	"strings"
)

const version = "0.1.0-dev"

// Global flags, set by parseGlobalFlags before the command runs.
var (
	globalDBPath     string
	globalBackendURL string
	globalStore      string
	globalLogLevel   string
	globalConfigPath string
	globalEnvFile    string
	globalVerbose    bool
)

func main() {
	args := parseGlobalFlags(os.Args[1:])
	if len(args) < 1 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch args[0] {
	case "chat":
		err = runChat(args[1:])
	case "mcp":
		err = runMCP(args[1:])
	case "seed":
		err = runSeed(args[1:])
	case "leads":
		err = runLeads(args[1:])
	case "messages":
		err = runMessages(args[1:])
	case "stats":
		err = runStats(args[1:])
	case "config":
		err = runConfig(args[1:])
	case "version", "--version", "-v":
		fmt.Printf("leasebot %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseGlobalFlags strips global flags from args, in either "--flag value"
// or "--flag=value" form, and returns what is left.
func parseGlobalFlags(args []string) []string {
	valued := map[string]*string{
		"--db":        &globalDBPath,
		"--backend":   &globalBackendURL,
		"--store":     &globalStore,
		"--log-level": &globalLogLevel,
		"--config":    &globalConfigPath,
		"--env-file":  &globalEnvFile,
	}

	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--verbose" {
			globalVerbose = true
			continue
		}
		name, value, hasValue := strings.Cut(arg, "=")
		dst, ok := valued[name]
		if !ok {
			rest = append(rest, arg)
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				rest = append(rest, arg)
				continue
			}
			i++
			value = args[i]
		}
		*dst = value
	}
	return rest
}

func printUsage() {
	fmt.Printf(`leasebot %s - Conversational leasing intake

Usage:
  leasebot [global flags] <command> [arguments]

Commands:
  chat                Talk to the leasing agent on stdin/stdout
  mcp                 Serve the leasing tools over MCP (stdio)
  seed <file.yaml>    Load properties into the local catalog
  leads               List persisted leads
  messages <lead-id>  Show a lead's conversation log
  stats               Show local database statistics
  config              Print the resolved configuration
  version             Print version

Chat Flags:
  --session <id>      Resume or name the session (default: random)

Leads Flags:
  --status <status>   Only leads in this status (NEW, QUALIFIED, ...)
  --limit <n>         Maximum rows (default: 50)
  --json              JSON output

Global Flags:
  --db <path>         SQLite database (default: ~/.leasebot/leasebot.db)
  --backend <url>     Leasing backend API; the local database is used without it
  --store <kind>      Session store: memory or redis
  --log-level <lvl>   debug, info, warn or error
  --config <path>     Config file (default: ~/.leasebot/config.yaml)
  --env-file <path>   Dotenv file (default: ./.env when present)
  --verbose           Shorthand for --log-level debug
  -h, --help          Show this help message
  -v, --version       Print version
`, version)
}
