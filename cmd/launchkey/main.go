package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	// --- NOUNS ---
	case "callback":
		return runCallbackNoun(args)
	case "auth":
		return runAuthNoun(args)
	case "user":
		return runUserNoun(args)
	case "service":
		return runServiceNoun(args)
	case "config":
		return runConfigNoun(args)

	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: launchkey version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		return printJSON(info)
	}

	fmt.Printf("launchkey %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalized
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`launchkey - multi-factor authentication gateway

Usage:
  launchkey <noun> <action> [flags]

Core Resources (Nouns):
  callback  Callback endpoint and journal
  auth      Authentication requests
  user      White-label users
  service   Remote service health
  config    Configuration and keys

Callback Commands:
  callback serve    Host the callback endpoint in foreground
  callback recent   List recently handled callbacks

Auth Commands:
  auth request      Start an auth request for a user
  auth poll         Fetch and verify the result of an auth request

User Commands:
  user create       Create a white-label user and print its pairing code

Service Commands:
  service ping      Show the service clock and public key fingerprint

Config Commands:
  config check      Validate configuration and load keys

General:
  version           Show version information
  help              Show this help message

Every action accepts --config (default $LAUNCHKEY_CONFIG or ./launchkey.yaml).
Use 'launchkey <noun> help' for resource-specific flags.
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

// dispatchNoun routes args[0] to one of actions. Help tokens print usage.
func dispatchNoun(noun string, args []string, actions map[string]func([]string) int, usage string) int {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: launchkey %s <action>\nActions: %s\n", noun, usage)
		return 1
	}
	if isHelpToken(args[0]) {
		fmt.Printf("Usage: launchkey %s <action>\nActions: %s\n", noun, usage)
		return 0
	}

	run, ok := actions[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown %s action: %s\n", noun, args[0])
		return 1
	}
	return run(args[1:])
}

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}
