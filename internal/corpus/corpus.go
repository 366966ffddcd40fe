// Package corpus loads reference and hypothesis transcriptions and pairs them
// for evaluation.
//
// A corpus is two directories holding one transcription per recording under
// the same base name. Utterances are paired by ID in reference order; a
// reference utterance with no hypothesis counterpart is scored against an
// empty hypothesis.
package corpus

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MrWong99/asreval/pkg/types"
)

// ErrNotFound is returned when no transcription file exists for a name.
var ErrNotFound = errors.New("corpus: transcription not found")

// UtterancePair is a reference utterance and the hypothesis tokens recognised
// for it.
type UtterancePair struct {
	Reference  types.Utterance
	Hypothesis []types.Token
}

// FilePair is the reference and hypothesis transcription of one recording.
type FilePair struct {
	Name       string
	Reference  *types.Transcription
	Hypothesis *types.Transcription
}

// Utterances pairs the utterances of p by ID, in reference order. Hypothesis
// utterances without a reference counterpart are returned by ID in
// unmatched, in hypothesis order.
func (p FilePair) Utterances() (pairs []UtterancePair, unmatched []string) {
	hyp := make(map[string][]types.Token)
	if p.Hypothesis != nil {
		for _, u := range p.Hypothesis.Utterances {
			hyp[u.ID] = u.Tokens
		}
	}

	refIDs := make(map[string]struct{})
	if p.Reference != nil {
		pairs = make([]UtterancePair, 0, len(p.Reference.Utterances))
		for _, u := range p.Reference.Utterances {
			refIDs[u.ID] = struct{}{}
			pairs = append(pairs, UtterancePair{Reference: u, Hypothesis: hyp[u.ID]})
		}
	}

	if p.Hypothesis != nil {
		for _, u := range p.Hypothesis.Utterances {
			if _, ok := refIDs[u.ID]; !ok {
				unmatched = append(unmatched, u.ID)
			}
		}
	}
	return pairs, unmatched
}

// Find returns the path of the transcription called name in dir, trying
// every entry of [Extensions] in order.
func Find(dir, name string) (string, error) {
	for _, ext := range Extensions {
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("corpus: stat %q: %w", path, err)
		}
	}
	return "", fmt.Errorf("%w: %q in %q", ErrNotFound, name, dir)
}

// Discover lists the transcription names found in dir, sorted.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("corpus: read dir %q: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if !slices.Contains(Extensions, ext) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ext)
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Load reads the file pairs named by names from refDir and hypDir. When names
// is empty every transcription in refDir is loaded. A missing hypothesis file
// is logged and treated as empty so every reference word counts as deleted.
func Load(refDir, hypDir string, names []string) ([]FilePair, error) {
	if len(names) == 0 {
		var err error
		if names, err = Discover(refDir); err != nil {
			return nil, err
		}
	}

	pairs := make([]FilePair, 0, len(names))
	for _, name := range names {
		p, err := LoadPair(refDir, hypDir, name)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

// LoadPair reads the reference and hypothesis transcription of one recording.
func LoadPair(refDir, hypDir, name string) (FilePair, error) {
	refPath, err := Find(refDir, name)
	if err != nil {
		return FilePair{}, err
	}
	ref, err := LoadTranscription(refPath)
	if err != nil {
		return FilePair{}, err
	}

	hyp := &types.Transcription{Name: name}
	hypPath, err := Find(hypDir, name)
	switch {
	case errors.Is(err, ErrNotFound):
		slog.Warn("corpus: no hypothesis, scoring against empty output", "file", name)
	case err != nil:
		return FilePair{}, err
	default:
		if hyp, err = LoadTranscription(hypPath); err != nil {
			return FilePair{}, err
		}
	}

	return FilePair{Name: name, Reference: ref, Hypothesis: hyp}, nil
}
