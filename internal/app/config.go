package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/vk/gridcrawl/internal/scheduler"
)

// Fetcher names accepted by Config.Fetcher.
const (
	FetcherSimulated = "simulated"
	FetcherHTTP      = "http"
)

// Report formats accepted by Config.Output.
const (
	OutputText = "text"
	OutputJSON = "json"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PlanPath string            // .hcl/.yaml file or directory
	Vars     map[string]string // plan variable overrides

	Workers   int
	Fetcher   string
	OnFailure string

	// HTTP fetcher only.
	RequestTimeout     time.Duration
	RateLimit          float64
	Burst              int
	InsecureSkipVerify bool

	EventsURL       string
	EventsNamespace string

	HealthcheckPort int
	LogFormat       string
	LogLevel        string
	Output          string
}

// NewConfig fills defaults and validates cfg. All problems are reported at once.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Fetcher == "" {
		cfg.Fetcher = FetcherSimulated
	}
	if cfg.OnFailure == "" {
		cfg.OnFailure = scheduler.BestEffort.String()
	}
	if cfg.Output == "" {
		cfg.Output = OutputText
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.EventsNamespace == "" {
		cfg.EventsNamespace = "/"
	}
	if cfg.Burst == 0 {
		cfg.Burst = 1
	}

	var errs []error
	if cfg.PlanPath == "" {
		errs = append(errs, errors.New("PlanPath is a required configuration field and cannot be empty"))
	}
	if cfg.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be a positive integer, got %d", cfg.Workers))
	}
	switch cfg.Fetcher {
	case FetcherSimulated, FetcherHTTP:
	default:
		errs = append(errs, fmt.Errorf("invalid fetcher %q: must be %q or %q", cfg.Fetcher, FetcherSimulated, FetcherHTTP))
	}
	if _, err := ParseFailurePolicy(cfg.OnFailure); err != nil {
		errs = append(errs, err)
	}
	if cfg.RequestTimeout < 0 {
		errs = append(errs, errors.New("request timeout must not be negative"))
	}
	if cfg.RateLimit < 0 {
		errs = append(errs, errors.New("rate must not be negative"))
	}
	if cfg.Burst < 0 {
		errs = append(errs, errors.New("burst must not be negative"))
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort))
	}
	switch cfg.Output {
	case OutputText, OutputJSON:
	default:
		errs = append(errs, fmt.Errorf("invalid output %q: must be %q or %q", cfg.Output, OutputText, OutputJSON))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseFailurePolicy maps a command-line policy name to a scheduler policy.
func ParseFailurePolicy(name string) (scheduler.FailurePolicy, error) {
	switch name {
	case scheduler.BestEffort.String():
		return scheduler.BestEffort, nil
	case scheduler.SkipDependents.String():
		return scheduler.SkipDependents, nil
	default:
		return 0, fmt.Errorf("invalid failure policy %q: must be %q or %q",
			name, scheduler.BestEffort.String(), scheduler.SkipDependents.String())
	}
}
