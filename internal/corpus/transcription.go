package corpus

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/asreval/pkg/types"
)

// TranscriptionFile is the on-disk form of a canonical transcription. JSON
// documents are accepted too, as YAML is a superset of JSON.
//
// Example:
//
//	name: interview_01
//	utterances:
//	  - id: u1
//	    language: fr
//	    note: overlap
//	    speaker: spk1
//	    start: 0.42
//	    end: 2.1
//	    tokens:
//	      - word: bonjour
//	      - kind: vocal
//	        events:
//	          - type: vocal
//	            properties: {desc: laugh}
type TranscriptionFile struct {
	Name       string          `yaml:"name"`
	Utterances []UtteranceFile `yaml:"utterances"`
}

// UtteranceFile is one utterance of a [TranscriptionFile]. Times are seconds.
type UtteranceFile struct {
	ID       string      `yaml:"id"`
	Language string      `yaml:"language"`
	Note     string      `yaml:"note"`
	Speaker  string      `yaml:"speaker"`
	Start    float64     `yaml:"start"`
	End      float64     `yaml:"end"`
	Tokens   []TokenFile `yaml:"tokens"`
}

// TokenFile is one token of an [UtteranceFile]. An omitted kind is a word.
type TokenFile struct {
	Word   string          `yaml:"word"`
	Kind   types.TokenKind `yaml:"kind"`
	Start  float64         `yaml:"start"`
	End    float64         `yaml:"end"`
	Events []EventFile     `yaml:"events"`
}

// EventFile is one event attached to a [TokenFile].
type EventFile struct {
	Type       string            `yaml:"type"`
	Properties map[string]string `yaml:"properties"`
}

// Extensions lists the file extensions recognised as transcriptions, in
// lookup order.
var Extensions = []string{".yaml", ".yml", ".json"}

// LoadTranscription reads and parses a transcription file from disk. When the
// document has no name, the file name without extension is used.
func LoadTranscription(path string) (*types.Transcription, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open transcription %q: %w", path, err)
	}
	defer f.Close()

	tr, err := DecodeTranscription(f)
	if err != nil {
		return nil, fmt.Errorf("corpus: parse transcription %q: %w", path, err)
	}
	if tr.Name == "" {
		tr.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return tr, nil
}

// DecodeTranscription parses a transcription from r and validates it.
// The reader is consumed entirely; the caller is responsible for closing it.
func DecodeTranscription(r io.Reader) (*types.Transcription, error) {
	var tf TranscriptionFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&tf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("corpus: decode transcription: %w", err)
	}
	if err := tf.Validate(); err != nil {
		return nil, err
	}
	return tf.Transcription(), nil
}

// Validate checks that utterance IDs are present and unique. Unrecognised
// event types are accepted and logged, since they still form their own
// event-tag slice.
func (tf *TranscriptionFile) Validate() error {
	var errs []error
	seen := make(map[string]struct{}, len(tf.Utterances))
	for i, u := range tf.Utterances {
		if u.ID == "" {
			errs = append(errs, fmt.Errorf("corpus: utterances[%d]: id is required", i))
			continue
		}
		if _, dup := seen[u.ID]; dup {
			errs = append(errs, fmt.Errorf("corpus: utterances[%d]: duplicate id %q", i, u.ID))
		}
		seen[u.ID] = struct{}{}
		if u.End < u.Start {
			errs = append(errs, fmt.Errorf("corpus: utterance %q: end %.3f before start %.3f", u.ID, u.End, u.Start))
		}
		for j, tok := range u.Tokens {
			for _, ev := range tok.Events {
				if ev.Type == "" {
					errs = append(errs, fmt.Errorf("corpus: utterance %q: tokens[%d]: event type is required", u.ID, j))
				} else if !types.EventType(strings.ToLower(ev.Type)).IsValid() {
					slog.Warn("corpus: unrecognised event type", "utterance", u.ID, "type", ev.Type)
				}
			}
		}
	}
	return errors.Join(errs...)
}

// Transcription converts tf into the token model.
func (tf *TranscriptionFile) Transcription() *types.Transcription {
	tr := &types.Transcription{
		Name:       tf.Name,
		Utterances: make([]types.Utterance, len(tf.Utterances)),
	}
	for i, u := range tf.Utterances {
		tokens := make([]types.Token, len(u.Tokens))
		for j, tok := range u.Tokens {
			tokens[j] = types.Token{
				Word:   tok.Word,
				Kind:   tok.Kind,
				Start:  seconds(tok.Start),
				End:    seconds(tok.End),
				Events: events(tok.Events),
			}
		}
		tr.Utterances[i] = types.Utterance{
			ID:        u.ID,
			Language:  u.Language,
			Note:      u.Note,
			SpeakerID: u.Speaker,
			Start:     seconds(u.Start),
			End:       seconds(u.End),
			Tokens:    tokens,
		}
	}
	return tr
}

func events(in []EventFile) []types.Event {
	if len(in) == 0 {
		return nil
	}
	out := make([]types.Event, len(in))
	for i, e := range in {
		out[i] = types.Event{Type: types.EventType(e.Type), Properties: e.Properties}
	}
	return out
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
