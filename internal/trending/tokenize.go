package trending

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

const (
	// MinNoteRunes is the shortest note that is tokenized at all.
	MinNoteRunes = 5
	// MinTokenRunes drops very short tokens.
	MinTokenRunes = 3
	// MaxTermsPerNote caps the number of terms one note can contribute.
	MaxTermsPerNote = 24
)

var fold = cases.Fold()

// Tokenize folds case, strips punctuation, splits on whitespace, and drops
// short tokens and stop words. Order is kept; Terms removes duplicates.
func Tokenize(note string) []string {
	toks := tokens(note)
	if len(toks) == 0 {
		return nil
	}
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.text
	}
	return out
}

// token is a kept word and its index among all words of the note.
type token struct {
	text string
	pos  int
}

func tokens(note string) []token {
	if utf8.RuneCountInString(strings.TrimSpace(note)) < MinNoteRunes {
		return nil
	}
	words := strings.FieldsFunc(fold.String(note), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
	out := make([]token, 0, len(words))
	for i, w := range words {
		w = strings.Trim(w, "'")
		w = strings.ReplaceAll(w, "'", "")
		if utf8.RuneCountInString(w) < MinTokenRunes || isStopWord(w) {
			continue
		}
		out = append(out, token{text: w, pos: i})
	}
	return out
}

// Terms returns the distinct keywords and two-word phrases of a note, at
// most MaxTermsPerNote. A phrase joins two kept words that were neighbours
// in the note; a dropped stop word or short word between them breaks it.
func Terms(note string) []string {
	toks := tokens(note)
	if len(toks) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(toks)*2)
	out := make([]string, 0, len(toks)*2)
	add := func(term string) bool {
		if _, dup := seen[term]; dup {
			return true
		}
		if len(out) >= MaxTermsPerNote {
			return false
		}
		seen[term] = struct{}{}
		out = append(out, term)
		return true
	}
	for _, tok := range toks {
		if !add(tok.text) {
			return out
		}
	}
	for i := 0; i+1 < len(toks); i++ {
		a, b := toks[i], toks[i+1]
		if b.pos != a.pos+1 || a.text == b.text {
			continue
		}
		if !add(a.text + " " + b.text) {
			break
		}
	}
	return out
}
