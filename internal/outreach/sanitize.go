package outreach

import (
	"regexp"
	"strings"
)

// Placeholder tokens the model is known to emit when it does not have real
// contact details. They are stripped whether or not a real value exists.
var emailPlaceholders = []string{
	"[Recruiter Email]",
	"[Recruiter's Email]",
}

var linkedinPlaceholders = []string{
	"[LinkedIn URL]",
	"[LinkedIn Profile URL]",
	"[Your LinkedIn Profile URL]",
}

// deniedPhrases is the fixed deny-list of stock phrases removed in place
// from every field.
var deniedPhrases = []string{
	"I hope this email finds you well.",
	"I hope this message finds you well.",
	"I hope you are doing well.",
	"To whom it may concern,",
	"Please do not hesitate to reach out.",
	"at your earliest convenience",
	"I would be remiss if I did not",
	"In today's fast-paced world,",
}

// leakSignals mark sentences that reference personalization context. Such
// context belongs in the first-touch messages only; a follow-up sentence
// carrying one of these is dropped.
var leakSignals = []string{
	"i noticed",
	"i came across",
	"i saw that",
	"i recently read",
	"your recent post",
	"your recent announcement",
	"congratulations on",
}

var (
	toLine       = regexp.MustCompile(`(?m)^To:\s?[^\n]*\n?`)
	linkedinLine = regexp.MustCompile(`(?m)^LinkedIn:\s?[^\n]*\n?`)
	multiSpace   = regexp.MustCompile(`[ \t]{2,}`)
	multiBlank   = regexp.MustCompile(`\n{3,}`)
)

// fixContactEmail normalizes the recruiter email's address line: bracket
// placeholders and model-written To: lines are removed, and exactly one
// To: line is prepended when a real address exists.
func fixContactEmail(text, email string) string {
	text = stripAll(text, emailPlaceholders)
	text = toLine.ReplaceAllString(text, "")
	text = tidy(text)
	if email == "" {
		return text
	}
	return "To: " + email + "\n" + text
}

// fixLinkedInURL is the symmetric rule for the DM's profile line.
func fixLinkedInURL(text, url string) string {
	text = stripAll(text, linkedinPlaceholders)
	text = linkedinLine.ReplaceAllString(text, "")
	text = tidy(text)
	if url == "" {
		return text
	}
	return "LinkedIn: " + url + "\n" + text
}

// stripAddressLines removes To: and LinkedIn: lines from fields that must
// never carry them.
func stripAddressLines(text string) string {
	text = toLine.ReplaceAllString(text, "")
	text = linkedinLine.ReplaceAllString(text, "")
	return tidy(text)
}

// removeDeniedPhrases deletes deny-listed phrases in place, leaving the rest
// of the sentence intact.
func removeDeniedPhrases(text string) string {
	for _, phrase := range deniedPhrases {
		for {
			idx := indexFold(text, phrase)
			if idx < 0 {
				break
			}
			text = text[:idx] + text[idx+len(phrase):]
		}
	}
	return tidy(text)
}

// removeLeakSentences drops whole sentences that reference personalization
// context, keeping the rest of the message.
func removeLeakSentences(text string) string {
	paragraphs := strings.Split(text, "\n")
	for i, p := range paragraphs {
		sentences := splitSentences(p)
		var kept []string
		for _, s := range sentences {
			if containsLeakSignal(s) {
				continue
			}
			kept = append(kept, s)
		}
		paragraphs[i] = strings.Join(kept, " ")
	}
	return tidy(strings.Join(paragraphs, "\n"))
}

func containsLeakSignal(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, signal := range leakSignals {
		if strings.Contains(lower, signal) {
			return true
		}
	}
	return false
}

// splitSentences breaks a paragraph on terminal punctuation. Good enough
// for generated prose; abbreviations are rare in this register.
func splitSentences(paragraph string) []string {
	var sentences []string
	var current strings.Builder
	runes := []rune(paragraph)
	for i, r := range runes {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			atEnd := i == len(runes)-1
			if atEnd || runes[i+1] == ' ' {
				s := strings.TrimSpace(current.String())
				if s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func stripAll(text string, tokens []string) string {
	for _, tok := range tokens {
		for {
			idx := indexFold(text, tok)
			if idx < 0 {
				break
			}
			text = text[:idx] + text[idx+len(tok):]
		}
	}
	return text
}

// indexFold is a case-insensitive strings.Index.
func indexFold(s, substr string) int {
	return strings.Index(strings.ToLower(s), strings.ToLower(substr))
}

// tidy collapses the whitespace damage left by phrase removal.
func tidy(text string) string {
	text = multiSpace.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
		lines[i] = strings.TrimLeft(lines[i], " ")
	}
	text = strings.Join(lines, "\n")
	text = multiBlank.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
