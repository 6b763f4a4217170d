package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/vk/gridcrawl/internal/app"
)

// defaultRequestTimeout applies when -request-timeout is not given.
const defaultRequestTimeout = 10 * time.Second

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// varsFlag collects repeated -var name=value flags.
type varsFlag map[string]string

func (v varsFlag) String() string {
	pairs := make([]string, 0, len(v))
	for name, value := range v {
		pairs = append(pairs, name+"="+value)
	}
	return strings.Join(pairs, ",")
}

func (v varsFlag) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return errors.New("expected name=value")
	}
	v[name] = value
	return nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("gridcrawl", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
GridCrawl - A dependency-aware concurrent page crawler.

Usage:
  gridcrawl [options] [PLAN_PATH]

Arguments:
  PLAN_PATH
    Path to a single .hcl/.yaml plan file or a directory of plan files.

Options:
`)
		flagSet.PrintDefaults()
	}

	vars := varsFlag{}
	planFlag := flagSet.String("plan", "", "Path to the plan file or directory.")
	pFlag := flagSet.String("p", "", "Path to the plan file or directory (shorthand).")
	flagSet.Var(vars, "var", "Set a plan variable as name=value. May be repeated.")
	workersFlag := flagSet.Int("workers", 5, "Maximum number of pages fetched at once.")
	fetcherFlag := flagSet.String("fetcher", app.FetcherSimulated, "Fetcher to use. Options: 'simulated' or 'http'.")
	onFailureFlag := flagSet.String("on-failure", "continue", "What happens to dependents of a failed page. Options: 'continue' or 'skip'.")
	timeoutFlag := flagSet.Duration("request-timeout", defaultRequestTimeout, "Timeout for each HTTP request.")
	rateFlag := flagSet.Float64("rate", 0, "Maximum HTTP requests per second. 0 is unlimited.")
	burstFlag := flagSet.Int("burst", 1, "Requests allowed to exceed -rate at once.")
	insecureFlag := flagSet.Bool("insecure", false, "Skip TLS certificate verification.")
	eventsURLFlag := flagSet.String("events-url", "", "Socket.IO server receiving progress events. Empty is disabled.")
	eventsNSFlag := flagSet.String("events-namespace", "/", "Socket.IO namespace for progress events.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	outputFlag := flagSet.String("output", app.OutputText, "Report format. Options: 'text' or 'json'.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *planFlag != "" {
		path = *planFlag
	} else if *pFlag != "" {
		path = *pFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Plan path determined.", "path", path)

	if path == "" {
		slog.Debug("No plan path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		PlanPath:           path,
		Vars:               maps.Clone(vars),
		Workers:            *workersFlag,
		Fetcher:            strings.ToLower(*fetcherFlag),
		OnFailure:          strings.ToLower(*onFailureFlag),
		RequestTimeout:     *timeoutFlag,
		RateLimit:          *rateFlag,
		Burst:              *burstFlag,
		InsecureSkipVerify: *insecureFlag,
		EventsURL:          *eventsURLFlag,
		EventsNamespace:    *eventsNSFlag,
		HealthcheckPort:    *healthPortFlag,
		LogFormat:          logFormat,
		LogLevel:           logLevel,
		Output:             strings.ToLower(*outputFlag),
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
