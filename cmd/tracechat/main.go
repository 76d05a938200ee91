package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"tracechat/internal/adapter/tui/uxerror"
	"tracechat/internal/domain"
	"tracechat/internal/infra/config"
)

func main() {
	args := os.Args[1:]
	cmd := "chat"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	flags, rest, err := parseFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\nRun 'tracechat --help' for usage information.\n", err)
		os.Exit(2)
	}
	if flags.Help {
		cmd = "help"
	}

	switch cmd {
	case "help":
		showUsage()
	case "chat":
		exitOn("chat", runChat(flags))
	case "ask":
		if len(rest) == 0 {
			fmt.Fprintln(os.Stderr, `Usage: tracechat ask "<question>"`)
			os.Exit(2)
		}
		exitOn("ask", runAsk(flags, strings.Join(rest, " ")))
	case "replay":
		if len(rest) != 1 {
			fmt.Fprintln(os.Stderr, "Usage: tracechat replay <capture.sse>")
			os.Exit(2)
		}
		exitOn("replay", runReplay(flags, rest[0]))
	case "doctor":
		exitOn("doctor", runDoctor(flags))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'tracechat --help' for usage information.\n", cmd)
		os.Exit(1)
	}
}

func exitOn(cmd string, err error) {
	if err == nil {
		return
	}
	if !errSilent(err) {
		fmt.Fprintln(os.Stderr, exitMessage(cmd, err))
	}
	os.Exit(1)
}

// exitMessage formats a fatal error. Config problems get recovery hints.
func exitMessage(cmd string, err error) string {
	if errors.Is(err, domain.ErrConfigLoad) {
		return cmd + ": " + uxerror.Humanize(err).Render()
	}
	return fmt.Sprintf("%s: %v", cmd, err)
}

func showUsage() {
	fmt.Println(`tracechat - terminal client for streaming agent traces

USAGE:
    tracechat [COMMAND] [FLAGS]

COMMANDS:
    chat               Interactive chat (default)
    ask "<question>"   Stream one answer to stdout and exit
    replay <file>      Play a recorded SSE capture to stdout
    doctor             Check the config and the backend
    help               Show this help message

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file (default: ~/.tracechat/config.yaml)
    --kb ID            Knowledge base sent with each message
    --files IDS        Comma-separated file ids sent with each message
    --memory           Ask the backend to use conversation memory
    --locale CODE      UI language (en, zh)
    --replay FILE      chat: serve answers from a recorded capture
    --pace DURATION    replay: delay between capture lines (e.g. 20ms)

CONFIGURATION:
    Environment: TRACECHAT_* variables override the config file
    Secrets: enc: values are decrypted with TRACECHAT_CONFIG_KEY

EXAMPLES:
    tracechat
    tracechat ask "How many rows are in sales.xlsx?" --kb sales
    tracechat replay testdata/parallel.sse --pace 20ms
    tracechat chat --replay testdata/parallel.sse`)
}

// cliFlags holds the optional command-line flags shared by every command.
type cliFlags struct {
	Help       bool
	ConfigPath string
	KBID       string
	Files      string
	Memory     bool
	Locale     string
	ReplayPath string
	Pace       time.Duration
}

// parseFlags extracts flags from args and returns the remaining positional
// arguments. Flags take their value either as the next argument or after =.
func parseFlags(args []string) (cliFlags, []string, error) {
	var flags cliFlags
	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") && arg != "-h" {
			rest = append(rest, arg)
			continue
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		takeValue := func() (string, error) {
			if hasValue {
				return value, nil
			}
			if i+1 >= len(args) {
				return "", fmt.Errorf("flag --%s needs a value", name)
			}
			i++
			return args[i], nil
		}

		var err error
		switch name {
		case "h", "help":
			flags.Help = true
		case "memory":
			flags.Memory = true
		case "config":
			flags.ConfigPath, err = takeValue()
		case "kb":
			flags.KBID, err = takeValue()
		case "files":
			flags.Files, err = takeValue()
		case "locale":
			flags.Locale, err = takeValue()
		case "replay":
			flags.ReplayPath, err = takeValue()
		case "pace":
			var v string
			if v, err = takeValue(); err == nil {
				flags.Pace, err = time.ParseDuration(v)
			}
		default:
			err = fmt.Errorf("unknown flag: %s", arg)
		}
		if err != nil {
			return cliFlags{}, nil, err
		}
	}
	return flags, rest, nil
}

func configPath(flags cliFlags) string {
	if flags.ConfigPath != "" {
		return flags.ConfigPath
	}
	if p := os.Getenv("TRACECHAT_CONFIG"); p != "" {
		return p
	}
	return config.DefaultPath()
}

// loadConfig reads the config file and applies the request flags on top.
func loadConfig(flags cliFlags) (*config.Config, error) {
	cfg, err := config.Load(configPath(flags))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if flags.KBID != "" {
		cfg.Backend.KBID = flags.KBID
	}
	if flags.Files != "" {
		cfg.Backend.FileIDs = nil
		for _, id := range strings.Split(flags.Files, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.Backend.FileIDs = append(cfg.Backend.FileIDs, id)
			}
		}
	}
	if flags.Memory {
		cfg.Backend.UseMemory = true
	}
	if flags.Locale != "" {
		cfg.Render.Locale = flags.Locale
	}
	return cfg, nil
}
