package address

import (
	"regexp"
	"strings"

	"github.com/papo-dev/papo/internal/types"
)

var mentionPattern = regexp.MustCompile(`<@!?[0-9]+>`)

// Detector classifies inbound messages as direct (explicitly addressed to
// the bot) or ambient. It is a stateless function of the message plus the
// bot's known identity; no per-author state lives here.
type Detector struct {
	botID string
	names []string // lower-cased name-call aliases
}

// NewDetector creates a detector for the given bot identity.
// names are aliases recognized as a name-call ("papo", a nickname, etc).
func NewDetector(botID string, names []string) *Detector {
	d := &Detector{botID: botID}
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			d.names = append(d.names, n)
		}
	}
	return d
}

// Result is the classification of one message.
type Result struct {
	Direct   bool   // mention, reply-to-bot, or name-call
	NameCall bool   // the text addressed the bot by name
	Cleaned  string // text with mention markup and leading name-call stripped
}

// Classify resolves the address flags and cleaned text for a message.
func (d *Detector) Classify(m types.Message) Result {
	cleaned := strings.TrimSpace(mentionPattern.ReplaceAllString(m.Text, ""))
	nameCall := d.calledByName(cleaned)
	if nameCall {
		cleaned = d.stripLeadingName(cleaned)
	}
	return Result{
		Direct:   m.Mentioned || m.ReplyToBot || nameCall,
		NameCall: nameCall,
		Cleaned:  cleaned,
	}
}

// AddressesOther reports whether the text mentions a user other than the
// bot. Used to spot an active author turning to talk to someone else.
func (d *Detector) AddressesOther(text string) bool {
	for _, m := range mentionPattern.FindAllString(text, -1) {
		if !strings.Contains(m, d.botID) {
			return true
		}
	}
	return false
}

// calledByName reports whether the text addresses the bot by one of its
// names as a standalone word.
func (d *Detector) calledByName(text string) bool {
	lower := strings.ToLower(text)
	for _, name := range d.names {
		idx := strings.Index(lower, name)
		for idx >= 0 {
			before := idx == 0 || !isWordByte(lower[idx-1])
			end := idx + len(name)
			after := end >= len(lower) || !isWordByte(lower[end])
			if before && after {
				return true
			}
			next := strings.Index(lower[idx+1:], name)
			if next < 0 {
				break
			}
			idx += 1 + next
		}
	}
	return false
}

// stripLeadingName removes a leading "name," / "name:" vocative so the
// decision heuristics see only the actual content.
func (d *Detector) stripLeadingName(text string) string {
	lower := strings.ToLower(text)
	for _, name := range d.names {
		if !strings.HasPrefix(lower, name) {
			continue
		}
		rest := text[len(name):]
		trimmed := strings.TrimLeft(rest, " \t,:;-")
		if rest == "" || len(trimmed) < len(rest) || strings.HasPrefix(rest, " ") {
			return strings.TrimSpace(trimmed)
		}
	}
	return text
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_'
}
