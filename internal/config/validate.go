package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/flowchat/gateway/internal/core"
)

// startOrder lists module IDs in the order they must be loaded: the
// approval gate first (the gateway and scheduler resolve it as a
// service), the scheduler next, the HTTP surface last.
var startOrder = []string{"hitl.gate", "cron.scheduler", "gateway.http"}

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures modules are present, checks
// that all referenced module IDs exist in the registry, and validates
// worker and upstream endpoint URLs.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: invalid log level %q", cfg.Log.Level))
	}
	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: invalid log format %q", cfg.Log.Format))
	}

	errs = append(errs, validateWorkers(&cfg.Workers)...)

	if cfg.Upstream.URL != "" {
		if err := checkURL("upstream.url", cfg.Upstream.URL); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func validateWorkers(w *WorkersConfig) []error {
	var errs []error

	named := []struct {
		field string
		url   string
	}{
		{"workers.query.url", w.Query.URL},
		{"workers.mutation.url", w.Mutation.URL},
		{"workers.document.url", w.Document.URL},
		{"workers.storage.url", w.Storage.URL},
		{"workers.email.url", w.Email.URL},
	}
	for _, n := range named {
		if n.url == "" {
			continue
		}
		if err := checkURL(n.field, n.url); err != nil {
			errs = append(errs, err)
		}
	}

	if w.Query.URL != "" && w.Query.Key == "" {
		errs = append(errs, errors.New("config: workers.query.url is set but workers.query.key is empty"))
	}

	return errs
}

func checkURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: %s: invalid URL %q", field, raw)
	}
	return nil
}

// Resolve returns the configured module IDs in load order: the fixed
// startOrder entries first, then any remaining modules sorted by ID.
func Resolve(cfg *Config) []string {
	var ids []string
	for _, id := range startOrder {
		if _, ok := cfg.Modules[id]; ok {
			ids = append(ids, id)
		}
	}

	var rest []string
	for id := range cfg.Modules {
		if !slices.Contains(ids, id) {
			rest = append(rest, id)
		}
	}
	slices.Sort(rest)

	return append(ids, rest...)
}
