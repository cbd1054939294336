package topics

import (
	"strings"
	"unicode"

	"github.com/tsawler/prose/v3"
)

// stopwords covers Portuguese plus common English function words. The
// list is a tunable approximation, not a parser.
var stopwords = map[string]bool{
	// Portuguese
	"a": true, "as": true, "o": true, "os": true, "um": true, "uma": true,
	"de": true, "do": true, "da": true, "dos": true, "das": true,
	"em": true, "no": true, "na": true, "nos": true, "nas": true,
	"por": true, "para": true, "pra": true, "com": true, "sem": true,
	"que": true, "quem": true, "qual": true, "quando": true, "onde": true,
	"como": true, "mas": true, "mais": true, "menos": true, "muito": true,
	"pouco": true, "isso": true, "isto": true, "esse": true, "essa": true,
	"este": true, "esta": true, "aquele": true, "aquela": true,
	"ele": true, "ela": true, "eles": true, "elas": true, "voce": true,
	"você": true, "eu": true, "nós": true, "meu": true,
	"minha": true, "seu": true, "sua": true, "ser": true, "estar": true,
	"ter": true, "fazer": true, "vai": true, "foi": true, "era": true,
	"tem": true, "tinha": true, "está": true, "são": true,
	"não": true, "nao": true, "sim": true, "já": true, "ja": true,
	"ainda": true, "então": true, "entao": true, "também": true,
	"tambem": true, "aqui": true, "ali": true, "lá": true, "la": true,
	"bem": true, "mal": true, "só": true, "so": true, "até": true,
	"ate": true, "depois": true, "antes": true, "agora": true,
	"hoje": true, "ontem": true, "amanhã": true, "amanha": true,
	"gente": true, "coisa": true, "tipo": true, "mano": true, "cara": true,
	// English
	"the": true, "and": true, "but": true, "for": true, "with": true,
	"that": true, "this": true, "these": true, "those": true, "from": true,
	"have": true, "has": true, "had": true, "was": true, "were": true,
	"are": true, "is": true, "be": true, "been": true, "will": true,
	"would": true, "could": true, "should": true, "about": true,
	"just": true, "like": true, "what": true, "when": true, "where": true,
	"who": true, "why": true, "how": true, "you": true, "your": true,
	"they": true, "them": true, "their": true, "there": true, "here": true,
	"not": true, "yes": true, "yeah": true, "nah": true, "really": true,
	"very": true, "some": true, "any": true, "all": true, "can": true,
	"cant": true, "dont": true, "its": true, "into": true, "then": true,
	"than": true, "also": true, "too": true, "now": true, "know": true,
	"think": true, "thing": true, "stuff": true, "going": true, "got": true,
}

// skipTags are POS tags that never yield topic keywords. Tagging quality
// degrades on Portuguese text, so the tag filter is advisory and the
// stopword list does the real work.
var skipTags = map[string]bool{
	"DT": true, "IN": true, "CC": true, "TO": true, "UH": true,
	"MD": true, "PRP": true, "PRP$": true, "WDT": true, "WP": true,
	"WRB": true, "EX": true, "PDT": true, "RP": true,
}

const minKeywordLen = 4

// ExtractKeywords tokenizes text and returns the lower-cased content
// words: alphabetic tokens above the minimum length that are neither
// stopwords nor function-word POS tags.
func ExtractKeywords(text string) []string {
	doc, err := prose.NewDocument(text)
	if err != nil {
		return fieldsKeywords(text)
	}

	seen := make(map[string]bool)
	var keywords []string
	for _, tok := range doc.Tokens() {
		if skipTags[tok.Tag] {
			continue
		}
		w := normalizeWord(tok.Text)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	return keywords
}

// fieldsKeywords is the degraded path when tokenization fails: plain
// whitespace splitting through the same word filter.
func fieldsKeywords(text string) []string {
	seen := make(map[string]bool)
	var keywords []string
	for _, raw := range strings.Fields(text) {
		w := normalizeWord(raw)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	return keywords
}

func normalizeWord(raw string) string {
	w := strings.ToLower(strings.TrimFunc(raw, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}))
	if len([]rune(w)) < minKeywordLen {
		return ""
	}
	if stopwords[w] {
		return ""
	}
	for _, r := range w {
		if !unicode.IsLetter(r) {
			return ""
		}
	}
	return w
}
