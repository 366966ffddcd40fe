// Package config provides the configuration schema and loader of asreval.
package config

import (
	"log/slog"
	"runtime"

	"github.com/MrWong99/asreval/internal/align"
	"github.com/MrWong99/asreval/internal/filter"
	"github.com/MrWong99/asreval/pkg/types"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to a slog level. Unknown and empty values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration. It is typically loaded from a YAML file
// using [Load] or [LoadFromReader].
type Config struct {
	LogLevel LogLevel `yaml:"log_level"`

	// Workers bounds the alignments running at once across the whole corpus.
	// Zero uses GOMAXPROCS.
	Workers int `yaml:"workers"`

	Alignment AlignmentConfig `yaml:"alignment"`
	Evaluator EvaluatorConfig `yaml:"evaluator"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Report    ReportConfig    `yaml:"report"`
	Store     StoreConfig     `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
}

// AlignmentConfig selects the aligner variant and its weights.
type AlignmentConfig struct {
	// Variant is "default" or "external".
	Variant string `yaml:"variant"`

	// Penalties override individual edit weights. Unset weights keep the
	// SCTK defaults.
	Penalties PenaltiesConfig `yaml:"penalties"`

	// TypeBKinds lists the token kinds excluded from lexical matching, by
	// name ("vocal", "incident", "gap"...). Empty keeps the defaults.
	TypeBKinds []types.TokenKind `yaml:"type_b_kinds"`
}

// PenaltiesConfig holds optional edit weights. A correct match always costs
// the same as its diagonal predecessor, so it has no weight of its own.
type PenaltiesConfig struct {
	Insertion    *int `yaml:"insertion"`
	Deletion     *int `yaml:"deletion"`
	Substitution *int `yaml:"substitution"`
}

// EvaluatorConfig selects which token categories are scored. Each toggle
// reads "evaluate X": false removes the category (or folds it away) before
// alignment. Unset toggles take the defaults: punctuation is not evaluated;
// diacritics, elisions and stop words are.
type EvaluatorConfig struct {
	Punctuation *bool `yaml:"punctuation"`
	Diacritics  *bool `yaml:"diacritics"`
	Elisions    *bool `yaml:"elisions"`
	StopWords   *bool `yaml:"stop_words"`

	// StopWordList maps a language code to the stop words removed when
	// StopWords is false.
	StopWordList map[string][]string `yaml:"stop_word_list"`
}

func evaluated(toggle *bool, def bool) bool {
	if toggle == nil {
		return def
	}
	return *toggle
}

// Options converts the toggles into filter normalisations.
func (e EvaluatorConfig) Options() filter.Options {
	return filter.Options{
		Punctuation:  !evaluated(e.Punctuation, false),
		Diacritics:   !evaluated(e.Diacritics, true),
		Elisions:     !evaluated(e.Elisions, true),
		StopWords:    !evaluated(e.StopWords, true),
		StopWordList: e.StopWordList,
	}
}

// CorpusConfig locates the transcriptions to compare.
type CorpusConfig struct {
	ReferenceDir  string `yaml:"reference_dir"`
	HypothesisDir string `yaml:"hypothesis_dir"`

	// Files restricts the run to these recordings. Empty evaluates every
	// reference transcription found in ReferenceDir.
	Files []string `yaml:"files"`
}

// ReportConfig controls the files written after a run.
type ReportConfig struct {
	// OutputDir receives the backtraces, the corpus report, and the
	// confusion table. Empty skips writing.
	OutputDir string `yaml:"output_dir"`

	// ConfusionsTop limits the confusion table. Zero writes every pair.
	ConfusionsTop int `yaml:"confusions_top"`
}

// StoreConfig selects where run snapshots are kept.
type StoreConfig struct {
	// PostgresDSN enables the PostgreSQL store. Empty keeps runs in memory.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ServerConfig holds the settings of the re-slicing API.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// WorkerCount returns the configured worker bound or GOMAXPROCS.
func (c *Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// AlignConfig builds the aligner configuration. c must have passed
// [Validate].
func (c *Config) AlignConfig() align.Config {
	cfg := align.DefaultConfig()
	if v, err := align.ParseVariant(c.Alignment.Variant); err == nil {
		cfg.Variant = v
	}
	p := c.Alignment.Penalties
	for _, o := range []struct {
		src *int
		dst *int
	}{
		{p.Insertion, &cfg.Penalties.Insertion},
		{p.Deletion, &cfg.Penalties.Deletion},
		{p.Substitution, &cfg.Penalties.Substitution},
	} {
		if o.src != nil {
			*o.dst = *o.src
		}
	}
	if len(c.Alignment.TypeBKinds) > 0 {
		cfg.TypeB = append([]types.TokenKind(nil), c.Alignment.TypeBKinds...)
	}
	return cfg
}

// FilterOptions returns the token filter settings.
func (c *Config) FilterOptions() filter.Options {
	return c.Evaluator.Options()
}
