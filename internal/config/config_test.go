package config_test

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/asreval/internal/align"
	"github.com/MrWong99/asreval/internal/config"
	"github.com/MrWong99/asreval/internal/evaluate"
	"github.com/MrWong99/asreval/internal/filter"
	"github.com/MrWong99/asreval/internal/observe"
	"github.com/MrWong99/asreval/pkg/types"
)

const sampleYAML = `
log_level: debug
workers: 4

alignment:
  variant: external
  penalties:
    substitution: 1
  type_b_kinds: [vocal, gap]

evaluator:
  punctuation: true
  diacritics: false
  stop_words: false
  stop_word_list:
    fr: [le, la, les]

corpus:
  reference_dir: ./ref
  hypothesis_dir: ./hyp
  files: [rec1, rec2]

report:
  output_dir: ./out
  confusions_top: 25

store:
  postgres_dsn: postgres://localhost/asreval

server:
  listen_addr: ":8080"
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.LogLevel != config.LogDebug || cfg.LogLevel.Level() != slog.LevelDebug {
		t.Errorf("log_level = %q", cfg.LogLevel)
	}
	if cfg.WorkerCount() != 4 {
		t.Errorf("WorkerCount = %d, want 4", cfg.WorkerCount())
	}
	if cfg.Corpus.ReferenceDir != "./ref" || len(cfg.Corpus.Files) != 2 {
		t.Errorf("corpus = %+v", cfg.Corpus)
	}
	if cfg.Report.ConfusionsTop != 25 || cfg.Store.PostgresDSN == "" || cfg.Server.ListenAddr != ":8080" {
		t.Errorf("report/store/server = %+v %+v %+v", cfg.Report, cfg.Store, cfg.Server)
	}

	want := align.Config{
		Variant:   align.VariantExternal,
		Penalties: align.Penalties{Correct: 0, Insertion: 1, Deletion: 1, Substitution: 1},
		TypeB:     []types.TokenKind{types.KindVocal, types.KindGap},
	}
	if diff := cmp.Diff(want, cfg.AlignConfig()); diff != "" {
		t.Errorf("AlignConfig mismatch (-want +got):\n%s", diff)
	}

	wantFilter := filter.Options{
		Diacritics:   true,
		StopWords:    true,
		StopWordList: map[string][]string{"fr": {"le", "la", "les"}},
	}
	if diff := cmp.Diff(wantFilter, cfg.FilterOptions()); diff != "" {
		t.Errorf("FilterOptions mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if diff := cmp.Diff(align.DefaultConfig(), cfg.AlignConfig()); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
	if cfg.WorkerCount() != runtime.GOMAXPROCS(0) {
		t.Errorf("WorkerCount = %d", cfg.WorkerCount())
	}
	if cfg.LogLevel.Level() != slog.LevelInfo {
		t.Errorf("empty log level maps to %v", cfg.LogLevel.Level())
	}
	if diff := cmp.Diff(filter.Options{Punctuation: true}, cfg.FilterOptions()); diff != "" {
		t.Errorf("default FilterOptions mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterOptions_PunctuationScoring(t *testing.T) {
	t.Parallel()

	ref := types.Utterance{ID: "u1", Language: "en", Tokens: []types.Token{
		{Word: "hello"},
		{Word: ".", Kind: types.KindPunctuation},
	}}
	hyp := []types.Token{{Word: "hello"}}

	tests := []struct {
		name    string
		yaml    string
		wantRef int
		wantWER float64
	}{
		{name: "default drops punctuation", yaml: "", wantRef: 1, wantWER: 0},
		{name: "punctuation evaluated", yaml: "evaluator:\n  punctuation: true\n", wantRef: 2, wantWER: 0.5},
		{name: "punctuation not evaluated", yaml: "evaluator:\n  punctuation: false\n", wantRef: 1, wantWER: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err != nil {
				t.Fatalf("LoadFromReader: %v", err)
			}
			reader := sdkmetric.NewManualReader()
			mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
			m, err := observe.NewMetrics(mp)
			if err != nil {
				t.Fatalf("NewMetrics: %v", err)
			}
			e := evaluate.New(
				evaluate.WithAlignment(cfg.AlignConfig()),
				evaluate.WithFilter(filter.New(cfg.FilterOptions())),
				evaluate.WithMetrics(m),
			)
			um, err := e.EvaluateUtterance(context.Background(), ref, hyp)
			if err != nil {
				t.Fatalf("EvaluateUtterance: %v", err)
			}
			got := um.OverallText.Totals
			if got.RefLen != tt.wantRef || got.WER != tt.wantWER {
				t.Errorf("ref_len = %d, WER = %v; want %d, %v", got.RefLen, got.WER, tt.wantRef, tt.wantWER)
			}
		})
	}
}

func TestLoadFromReader_UnknownKey(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("evaluator:\n  apocopes: true\n"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "apocopes") {
		t.Errorf("error should name the key, got: %v", err)
	}
}

func TestLoadFromReader_UnknownTokenKind(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("alignment:\n  type_b_kinds: [laughter]\n"))
	if err == nil || !strings.Contains(err.Error(), "laughter") {
		t.Errorf("err = %v, want unknown token kind", err)
	}
}
