package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/asreval/internal/align"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown keys are rejected. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers %d must not be negative", cfg.Workers))
	}

	// Alignment
	if _, err := align.ParseVariant(cfg.Alignment.Variant); err != nil {
		errs = append(errs, fmt.Errorf("alignment.variant %q is invalid; valid values: default, external", cfg.Alignment.Variant))
	}
	p := cfg.Alignment.Penalties
	for _, w := range []struct {
		name string
		v    *int
	}{
		{"insertion", p.Insertion},
		{"deletion", p.Deletion},
		{"substitution", p.Substitution},
	} {
		if w.v != nil && *w.v < 0 {
			errs = append(errs, fmt.Errorf("alignment.penalties.%s %d must not be negative", w.name, *w.v))
		}
	}
	for i, k := range cfg.Alignment.TypeBKinds {
		if !k.IsEvent() {
			errs = append(errs, fmt.Errorf("alignment.type_b_kinds[%d] %q is not an event kind", i, k))
		}
	}

	// Evaluator
	if cfg.FilterOptions().StopWords && len(cfg.Evaluator.StopWordList) == 0 {
		slog.Warn("evaluator.stop_words is false but evaluator.stop_word_list is empty; no words will be removed")
	}

	// Corpus
	if cfg.Corpus.ReferenceDir != "" && cfg.Corpus.HypothesisDir == "" {
		errs = append(errs, errors.New("corpus.hypothesis_dir is required when corpus.reference_dir is set"))
	}
	seen := make(map[string]int, len(cfg.Corpus.Files))
	for i, f := range cfg.Corpus.Files {
		if f == "" {
			errs = append(errs, fmt.Errorf("corpus.files[%d] is empty", i))
			continue
		}
		if prev, ok := seen[f]; ok {
			errs = append(errs, fmt.Errorf("corpus.files[%d] %q is a duplicate of corpus.files[%d]", i, f, prev))
		}
		seen[f] = i
	}

	// Report
	if cfg.Report.ConfusionsTop < 0 {
		errs = append(errs, fmt.Errorf("report.confusions_top %d must not be negative", cfg.Report.ConfusionsTop))
	}
	if cfg.Report.OutputDir == "" && cfg.Corpus.ReferenceDir != "" {
		slog.Warn("report.output_dir is empty; no report files will be written")
	}

	return errors.Join(errs...)
}
