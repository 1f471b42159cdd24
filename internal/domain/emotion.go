package domain

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Emotion is one of the canonical check-in emotions. Values are stored
// lower-case in the database and on the wire.
type Emotion string

const (
	EmotionJoy       Emotion = "joy"
	EmotionCalm      Emotion = "calm"
	EmotionSadness   Emotion = "sadness"
	EmotionAnger     Emotion = "anger"
	EmotionFear      Emotion = "fear"
	EmotionAnxiety   Emotion = "anxiety"
	EmotionHope      Emotion = "hope"
	EmotionGratitude Emotion = "gratitude"
)

// Emotions lists the canonical values in display order.
var Emotions = []Emotion{
	EmotionJoy,
	EmotionCalm,
	EmotionSadness,
	EmotionAnger,
	EmotionFear,
	EmotionAnxiety,
	EmotionHope,
	EmotionGratitude,
}

// emotionAliases maps registered synonyms to their canonical emotion.
// Only registered aliases normalize; everything else is rejected.
var emotionAliases = map[string]Emotion{
	"happy": EmotionJoy, "glad": EmotionJoy, "excited": EmotionJoy, "cheerful": EmotionJoy,
	"relaxed": EmotionCalm, "peaceful": EmotionCalm, "content": EmotionCalm,
	"sad": EmotionSadness, "down": EmotionSadness, "lonely": EmotionSadness,
	"angry": EmotionAnger, "mad": EmotionAnger, "frustrated": EmotionAnger, "annoyed": EmotionAnger,
	"scared": EmotionFear, "afraid": EmotionFear,
	"anxious": EmotionAnxiety, "worried": EmotionAnxiety, "stressed": EmotionAnxiety, "nervous": EmotionAnxiety,
	"hopeful": EmotionHope, "optimistic": EmotionHope,
	"grateful": EmotionGratitude, "thankful": EmotionGratitude,
}

var foldCaser = cases.Fold()

// ParseEmotion normalizes raw input (case-insensitive, trimmed) to a canonical
// emotion. The boolean is false for unrecognized input; callers must treat
// that as a validation failure rather than substituting a default.
func ParseEmotion(raw string) (Emotion, bool) {
	key := foldCaser.String(strings.TrimSpace(raw))
	if key == "" {
		return "", false
	}
	for _, e := range Emotions {
		if string(e) == key {
			return e, true
		}
	}
	e, ok := emotionAliases[key]
	return e, ok
}

// DisplayName returns the title-cased label ("Joy").
func (e Emotion) DisplayName() string {
	if e == "" {
		return ""
	}
	return strings.ToUpper(string(e[:1])) + string(e[1:])
}

// Aliases returns the registered synonyms for e, sorted.
func (e Emotion) Aliases() []string {
	out := make([]string, 0, 4)
	for alias, target := range emotionAliases {
		if target == e {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}
