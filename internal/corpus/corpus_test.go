package corpus_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/asreval/internal/corpus"
	"github.com/MrWong99/asreval/pkg/types"
)

const referenceYAML = `
name: interview_01
utterances:
  - id: u1
    language: fr
    note: overlap
    speaker: spk1
    start: 0.5
    end: 2
    tokens:
      - word: bonjour
        start: 0.5
        end: 0.9
      - kind: vocal
        events:
          - type: vocal
            properties: {desc: laugh}
      - word: ","
        kind: punctuation
  - id: u2
    language: en
    tokens:
      - word: hello
        events:
          - type: foreign
`

const hypothesisJSON = `{
  "name": "interview_01",
  "utterances": [
    {"id": "u2", "tokens": [{"word": "hallo"}]},
    {"id": "u9", "tokens": [{"word": "stray"}]}
  ]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestDecodeTranscription(t *testing.T) {
	t.Parallel()

	tr, err := corpus.DecodeTranscription(strings.NewReader(referenceYAML))
	if err != nil {
		t.Fatalf("DecodeTranscription: %v", err)
	}
	if tr.Name != "interview_01" {
		t.Errorf("Name = %q", tr.Name)
	}
	if len(tr.Utterances) != 2 {
		t.Fatalf("len(Utterances) = %d, want 2", len(tr.Utterances))
	}

	u := tr.Utterances[0]
	if u.Language != "fr" || u.Note != "overlap" || u.SpeakerID != "spk1" {
		t.Errorf("utterance meta = %+v", u)
	}
	if u.Start != 500*time.Millisecond || u.End != 2*time.Second {
		t.Errorf("utterance times = %v..%v", u.Start, u.End)
	}

	want := []types.Token{
		{Word: "bonjour", Start: 500 * time.Millisecond, End: 900 * time.Millisecond},
		{Kind: types.KindVocal, Events: []types.Event{{Type: types.EventVocal, Properties: map[string]string{"desc": "laugh"}}}},
		{Word: ",", Kind: types.KindPunctuation},
	}
	if diff := cmp.Diff(want, u.Tokens); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeTranscription_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "unknown field",
			input:   "name: x\nspeakers: []\n",
			wantErr: "decode transcription",
		},
		{
			name:    "missing id",
			input:   "utterances:\n  - language: fr\n",
			wantErr: "id is required",
		},
		{
			name:    "duplicate id",
			input:   "utterances:\n  - id: a\n  - id: a\n",
			wantErr: `duplicate id "a"`,
		},
		{
			name:    "unknown token kind",
			input:   "utterances:\n  - id: a\n    tokens:\n      - kind: sneeze\n",
			wantErr: "unknown token kind",
		},
		{
			name:    "end before start",
			input:   "utterances:\n  - id: a\n    start: 2\n    end: 1\n",
			wantErr: "before start",
		},
		{
			name:    "event without type",
			input:   "utterances:\n  - id: a\n    tokens:\n      - word: x\n        events:\n          - properties: {a: b}\n",
			wantErr: "event type is required",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := corpus.DecodeTranscription(strings.NewReader(tc.input))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestDecodeTranscription_Empty(t *testing.T) {
	t.Parallel()

	tr, err := corpus.DecodeTranscription(strings.NewReader(""))
	if err != nil {
		t.Fatalf("DecodeTranscription: %v", err)
	}
	if len(tr.Utterances) != 0 {
		t.Errorf("len(Utterances) = %d, want 0", len(tr.Utterances))
	}
}

func TestFilePair_Utterances(t *testing.T) {
	t.Parallel()

	ref, err := corpus.DecodeTranscription(strings.NewReader(referenceYAML))
	if err != nil {
		t.Fatalf("decode reference: %v", err)
	}
	hyp, err := corpus.DecodeTranscription(strings.NewReader(hypothesisJSON))
	if err != nil {
		t.Fatalf("decode hypothesis: %v", err)
	}

	pairs, unmatched := corpus.FilePair{Name: "interview_01", Reference: ref, Hypothesis: hyp}.Utterances()
	if len(pairs) != 2 {
		t.Fatalf("len(pairs) = %d, want 2", len(pairs))
	}
	if pairs[0].Reference.ID != "u1" || pairs[0].Hypothesis != nil {
		t.Errorf("pairs[0] = %+v, want u1 with empty hypothesis", pairs[0])
	}
	if pairs[1].Reference.ID != "u2" || len(pairs[1].Hypothesis) != 1 || pairs[1].Hypothesis[0].Word != "hallo" {
		t.Errorf("pairs[1] = %+v, want u2 with hallo", pairs[1])
	}
	if diff := cmp.Diff([]string{"u9"}, unmatched); diff != "" {
		t.Errorf("unmatched mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	refDir, hypDir := t.TempDir(), t.TempDir()
	writeFile(t, refDir, "interview_01.yaml", referenceYAML)
	writeFile(t, refDir, "b.yml", "utterances:\n  - id: x\n    tokens: [{word: oui}]\n")
	writeFile(t, refDir, "README.txt", "not a transcription")
	writeFile(t, hypDir, "interview_01.json", hypothesisJSON)

	names, err := corpus.Discover(refDir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if diff := cmp.Diff([]string{"b", "interview_01"}, names); diff != "" {
		t.Errorf("Discover mismatch (-want +got):\n%s", diff)
	}

	pairs, err := corpus.Load(refDir, hypDir, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("len(pairs) = %d, want 2", len(pairs))
	}

	b := pairs[0]
	if b.Name != "b" || b.Reference.Name != "b" {
		t.Errorf("pairs[0] names = %q/%q, want b", b.Name, b.Reference.Name)
	}
	if len(b.Hypothesis.Utterances) != 0 {
		t.Errorf("missing hypothesis file should load empty, got %d utterances", len(b.Hypothesis.Utterances))
	}
	if got := len(pairs[1].Hypothesis.Utterances); got != 2 {
		t.Errorf("interview_01 hypothesis utterances = %d, want 2", got)
	}
}

func TestLoad_MissingReference(t *testing.T) {
	t.Parallel()

	_, err := corpus.Load(t.TempDir(), t.TempDir(), []string{"nope"})
	if !errors.Is(err, corpus.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
