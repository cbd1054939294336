package policy

import (
	"regexp"
	"strings"
)

// Token lists for the batch text classifiers. These are tunable
// approximations of conversational Portuguese (plus common English), not
// a parser; they only need to be right often enough.

var greetings = map[string]bool{
	"oi": true, "oie": true, "olá": true, "ola": true, "opa": true,
	"eae": true, "e aí": true, "e ai": true, "eaí": true, "fala": true,
	"salve": true, "bom dia": true, "boa tarde": true,
	"hey": true, "hi": true, "hello": true, "yo": true,
}

var closures = map[string]bool{
	"tchau": true, "flw": true, "falou": true, "vlw": true, "valeu": true,
	"até mais": true, "ate mais": true, "até logo": true, "ate logo": true,
	"fui": true, "abraço": true, "abraços": true, "bye": true, "gn": true,
	"good night": true, "até": true, "ate": true,
}

var fillers = map[string]bool{
	"hm": true, "hmm": true, "hum": true, "uhm": true, "ah": true,
	"eh": true, "ata": true, "aham": true, "uhum": true, "pse": true,
	"po": true, "pô": true, "eita": true, "oxe": true, "vish": true,
	"slk": true, "mds": true, "aff": true, "ué": true, "ue": true,
	"ok": true, "blz": true, "top": true, "nice": true,
}

// trailingDanglers are conjunctions/prepositions that signal an
// unfinished sentence when they end the text.
var trailingDanglers = map[string]bool{
	"e": true, "mas": true, "ou": true, "que": true, "de": true,
	"do": true, "da": true, "para": true, "pra": true, "com": true,
	"sem": true, "por": true, "porque": true, "então": true, "entao": true,
	"tipo": true, "se": true, "quando": true, "como": true, "no": true,
	"na": true, "um": true, "uma": true, "meu": true, "minha": true,
	"and": true, "but": true, "or": true, "so": true, "because": true,
	"with": true, "to": true, "of": true, "the": true, "a": true,
	"my": true, "in": true, "for": true,
}

var laughterPattern = regexp.MustCompile(`^(?:k{2,}|(?:ha){2,}h?|(?:he){2,}h?|(?:rs){1,}r?|lol+|lmao)$`)

const shortFragmentLen = 12

// normalizeText lower-cases, trims, and strips trailing exclamation and
// period runs so "Oi!!" matches the greeting list.
func normalizeText(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	return strings.TrimRight(t, "!. ")
}

// IsGreeting reports whether the text is a known greeting.
func IsGreeting(text string) bool {
	return greetings[normalizeText(text)]
}

// IsClosure reports whether the text is a known conversation closer.
func IsClosure(text string) bool {
	return closures[normalizeText(text)]
}

// IsNoise reports whether the text is laughter-only or a single filler
// token: content the engine should never reply to by itself.
func IsNoise(text string) bool {
	t := normalizeText(text)
	if t == "" {
		return false
	}
	words := strings.Fields(t)
	if len(words) == 1 {
		w := strings.Trim(words[0], "?,;")
		if laughterPattern.MatchString(w) || fillers[w] {
			return true
		}
	}
	// Multi-token laughter ("kkk kkkk kk") is still laughter.
	allLaughter := true
	for _, w := range words {
		if !laughterPattern.MatchString(strings.Trim(w, "?,;")) {
			allLaughter = false
			break
		}
	}
	return allLaughter
}

// IsDanglingFragment reports whether the text looks like an unfinished
// thought: trailing conjunction/preposition, unmatched open punctuation,
// or a very short non-greeting, non-closure phrase.
func IsDanglingFragment(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	if hasTerminalPunct(t) {
		return false
	}
	if unmatchedOpen(t) {
		return true
	}

	words := strings.Fields(strings.ToLower(t))
	if len(words) > 0 {
		last := strings.Trim(words[len(words)-1], ",;:")
		if trailingDanglers[last] {
			return true
		}
	}

	if len([]rune(t)) < shortFragmentLen && !IsGreeting(t) && !IsClosure(t) && !IsNoise(t) {
		return true
	}
	return false
}

// IsComplete reports whether the text reads as a finished utterance:
// a question, terminal punctuation, enough length, or a known closure.
func IsComplete(text string, minLen int) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	if strings.Contains(t, "?") {
		return true
	}
	if hasTerminalPunct(t) {
		return true
	}
	if len([]rune(t)) >= minLen {
		return true
	}
	return IsClosure(t)
}

func hasTerminalPunct(t string) bool {
	return strings.HasSuffix(t, ".") || strings.HasSuffix(t, "!") ||
		strings.HasSuffix(t, "?") || strings.HasSuffix(t, "…")
}

// unmatchedOpen reports unbalanced opening brackets or an odd number of
// plain quotes.
func unmatchedOpen(t string) bool {
	pairs := []struct{ open, close rune }{
		{'(', ')'}, {'[', ']'}, {'{', '}'},
	}
	for _, p := range pairs {
		opens, closes := 0, 0
		for _, r := range t {
			switch r {
			case p.open:
				opens++
			case p.close:
				closes++
			}
		}
		if opens > closes {
			return true
		}
	}
	quotes := strings.Count(t, `"`)
	return quotes%2 == 1
}
