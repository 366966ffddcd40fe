package config

import "slices"

// ConfigDiff describes what changed between two configs as seen by a
// running re-slicing server.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// Restart lists the changed keys that only take effect after a restart.
	Restart []string

	// Ignored lists changed keys that only affect evaluation runs.
	Ignored []string
}

// Changed reports whether any key differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.Restart) > 0 || len(d.Ignored) > 0
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.Restart = append(d.Restart, "server.listen_addr")
	}
	if old.Store.PostgresDSN != new.Store.PostgresDSN {
		d.Restart = append(d.Restart, "store.postgres_dsn")
	}

	if old.Workers != new.Workers {
		d.Ignored = append(d.Ignored, "workers")
	}
	if old.AlignConfig().Variant != new.AlignConfig().Variant ||
		old.AlignConfig().Penalties != new.AlignConfig().Penalties ||
		!slices.Equal(old.AlignConfig().TypeB, new.AlignConfig().TypeB) {
		d.Ignored = append(d.Ignored, "alignment")
	}
	if !evaluatorEqual(old.Evaluator, new.Evaluator) {
		d.Ignored = append(d.Ignored, "evaluator")
	}
	if old.Corpus.ReferenceDir != new.Corpus.ReferenceDir ||
		old.Corpus.HypothesisDir != new.Corpus.HypothesisDir ||
		!slices.Equal(old.Corpus.Files, new.Corpus.Files) {
		d.Ignored = append(d.Ignored, "corpus")
	}
	if old.Report != new.Report {
		d.Ignored = append(d.Ignored, "report")
	}
	return d
}

func evaluatorEqual(a, b EvaluatorConfig) bool {
	ao, bo := a.Options(), b.Options()
	if ao.Punctuation != bo.Punctuation || ao.Diacritics != bo.Diacritics ||
		ao.Elisions != bo.Elisions || ao.StopWords != bo.StopWords {
		return false
	}
	if len(a.StopWordList) != len(b.StopWordList) {
		return false
	}
	for lang, words := range a.StopWordList {
		other, ok := b.StopWordList[lang]
		if !ok || !slices.Equal(words, other) {
			return false
		}
	}
	return true
}
