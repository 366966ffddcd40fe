// Package types defines the token model shared by every asreval package.
//
// A reference corpus (hand-curated) and a hypothesis corpus (produced by a
// speech-to-text service) are both expressed as [Transcription] values made of
// [Utterance]s, which in turn hold ordered [Token]s. Tokens may carry stacked
// linguistic [Event]s such as vocal noises, gaps, or foreign speech.
//
// Values are produced by an external canonicaliser and treated as immutable
// once they reach the aligner.
package types

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// TokenKind classifies a token. Event-descriptor kinds denote a synthetic
// placeholder that stands for the event itself rather than a spoken word.
type TokenKind int

const (
	// KindWord is an ordinary spoken word.
	KindWord TokenKind = iota

	// KindPunctuation is a punctuation mark.
	KindPunctuation

	// KindVocal is a vocal-noise placeholder (laughter, cough, …).
	KindVocal

	// KindIncident is a non-vocal incident placeholder (door slam, …).
	KindIncident

	// KindGap is a gap placeholder for untranscribed audio.
	KindGap
)

var kindNames = [...]string{
	KindWord:        "word",
	KindPunctuation: "punctuation",
	KindVocal:       "vocal",
	KindIncident:    "incident",
	KindGap:         "gap",
}

// String returns the lower-case name of k.
func (k TokenKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("TokenKind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalText implements [encoding.TextMarshaler].
func (k TokenKind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindNames) {
		return nil, fmt.Errorf("types: invalid token kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler]. An empty value decodes
// to [KindWord].
func (k *TokenKind) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	if s == "" {
		*k = KindWord
		return nil
	}
	for i, name := range kindNames {
		if name == s {
			*k = TokenKind(i)
			return nil
		}
	}
	return fmt.Errorf("types: unknown token kind %q", s)
}

// IsEvent reports whether k is an event-descriptor kind.
func (k TokenKind) IsEvent() bool {
	return k == KindVocal || k == KindIncident || k == KindGap
}

// DefaultTypeB lists the token kinds that replace the word slot with an event
// placeholder. Tokens of these kinds are kept out of lexical matching.
var DefaultTypeB = []TokenKind{KindVocal, KindIncident, KindGap}

// EventType names a linguistic event category. Values are lower-case and are
// used verbatim as event-tag keys in metrics output.
type EventType string

const (
	EventUnknown  EventType = "unknown"
	EventForeign  EventType = "foreign"
	EventUnclear  EventType = "unclear"
	EventVocal    EventType = "vocal"
	EventShift    EventType = "shift"
	EventIncident EventType = "incident"
	EventGap      EventType = "gap"
	EventDel      EventType = "del"
	EventOverlap  EventType = "overlap"
	EventNote     EventType = "note"
	EventDistinct EventType = "distinct"
)

// IsValid reports whether e is a recognised event type.
func (e EventType) IsValid() bool {
	switch e {
	case EventUnknown, EventForeign, EventUnclear, EventVocal, EventShift,
		EventIncident, EventGap, EventDel, EventOverlap, EventNote, EventDistinct:
		return true
	}
	return false
}

// IsTypeA reports whether e annotates an existing word without replacing it.
func (e EventType) IsTypeA() bool {
	switch e {
	case EventUnclear, EventDel, EventForeign, EventDistinct:
		return true
	}
	return false
}

// Event is a linguistic annotation attached to a token.
type Event struct {
	Type       EventType
	Properties map[string]string
}

// String renders e as type[key=value;key=value] with keys in sorted order.
func (e Event) String() string {
	keys := make([]string, 0, len(e.Properties))
	for k := range e.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(e.Type))
	b.WriteByte('[')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(e.Properties[k])
	}
	b.WriteByte(']')
	return b.String()
}

// Token is one element of an utterance. An empty Word means the word is
// absent, which is the case for pure event markers and for the sentinel side
// of insertions and deletions.
type Token struct {
	Word   string
	Kind   TokenKind
	Start  time.Duration
	End    time.Duration
	Events []Event
}

// HasEvents reports whether t carries at least one event.
func (t Token) HasEvents() bool {
	return len(t.Events) > 0
}

// IsKind reports whether t's kind is one of kinds.
func (t Token) IsKind(kinds []TokenKind) bool {
	return slices.Contains(kinds, t.Kind)
}

// Utterance is a contiguous stretch of speech by one speaker. Reference and
// hypothesis utterances are matched by equal ID.
type Utterance struct {
	ID        string
	Language  string
	Note      string
	SpeakerID string
	Start     time.Duration
	End       time.Duration
	Tokens    []Token
}

// Transcription is the canonical transcription of one recording.
type Transcription struct {
	// Name identifies the recording (typically the file name without extension).
	Name string

	Utterances []Utterance
}
