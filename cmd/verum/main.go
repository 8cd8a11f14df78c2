// verum - Multi-modal evidence forensics and integrity sealing
//
//	verum analyze -image photo.jpg -audio call.wav   Analyze evidence
//	verum seal <file> -case CASE-1 -meta k=v          Seal a file
//	verum verify <file> <seal.json>                    Verify a file against its seal
//	verum footer <seal.json>                           Print a seal's document footer
//	verum compare-speakers a.wav b.wav                 Compare two voices
//	verum ledger <action>                              Query the custody ledger
//	verum config <action>                              Manage configuration
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"verum/internal/config"
	"verum/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// errUsage marks errors already explained by a usage message.
var errUsage = errors.New("usage")

// cli is the state shared by every command.
type cli struct {
	ctx        context.Context
	stdout     io.Writer
	stderr     io.Writer
	configPath string
}

type command func(c *cli, args []string) error

var commands = map[string]command{
	"analyze":          cmdAnalyze,
	"seal":             cmdSeal,
	"verify":           cmdVerify,
	"footer":           cmdFooter,
	"compare-speakers": cmdCompareSpeakers,
	"ledger":           cmdLedger,
	"config":           cmdConfig,
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verum", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file (default: auto-detect)")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if fs.NArg() < 1 {
		usage(stderr)
		return 2
	}

	name := fs.Arg(0)
	switch name {
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", name)
		usage(stderr)
		return 2
	}

	c := &cli{ctx: ctx, stdout: stdout, stderr: stderr, configPath: *configPath}
	if err := cmd(c, fs.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `verum - Multi-modal evidence forensics and integrity sealing

USAGE:
    verum [-config path] <command> [options]

COMMANDS:
    analyze                     Analyze image, video frames, audio and documents
    seal <file>                 Seal a file and record it in the custody ledger
    verify <file> <seal.json>   Verify a file against its seal
    footer <seal.json>          Print the human-readable seal footer
    compare-speakers <a> <b>    Compare the voices in two WAV recordings
    ledger <action>             list, find, get, stats or verify the ledger
    config <action>             init, show or validate configuration
    help                        Show this help message

EXAMPLES:
    verum analyze -image scene.jpg -frames ./frames -audio call.wav -document statement.pdf
    verum seal statement.pdf -case CASE-2024-017 -meta officer="J. Doe" -o statement.seal.json
    verum verify statement.pdf statement.seal.json
    verum ledger list -case CASE-2024-017`)
}

// loadConfig loads the configuration named by -config, the first config
// file found, or the defaults.
func (c *cli) loadConfig() (*config.Config, error) {
	path := c.configPath
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// logger builds a logger from cfg. Console output goes to the command's
// stderr so it never mixes with results.
func (c *cli) logger(cfg *config.Config) (*logging.Logger, error) {
	lc, err := cfg.Logging.LoggerConfig("verum")
	if err != nil {
		return nil, err
	}
	if lc.Output == "stdout" || lc.Output == "stderr" {
		lc.Writer = c.stderr
	}
	return logging.New(lc)
}

// newFlagSet returns a flag set that reports errors to the command's stderr.
func (c *cli) newFlagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "Usage: verum %s\n", synopsis)
		fs.PrintDefaults()
	}
	return fs
}

// parse parses args, allowing flags after positional arguments.
func parse(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, errUsage
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

// kvFlag collects repeated key=value flags.
type kvFlag map[string]string

func (f kvFlag) String() string {
	pairs := make([]string, 0, len(f))
	for k, v := range f {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (f kvFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	f[k] = v
	return nil
}
