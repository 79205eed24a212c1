package outreach

import (
	"regexp"
	"strings"
)

// MessageKind selects the salutation register for one generated field.
type MessageKind string

const (
	// KindEmail covers the recruiter email and both follow-ups.
	KindEmail MessageKind = "email"
	// KindLinkedIn covers the LinkedIn DM.
	KindLinkedIn MessageKind = "linkedin"
)

// salutationLine matches a greeting line the model may have produced,
// including the broken "Dear ," and "Hi ," forms.
var salutationLine = regexp.MustCompile(`^(Dear|Hi|Hello|Hey)\b[^\n]{0,80}?[,:]?\s*$`)

// ComputeSalutation returns the greeting for a message kind. Email-register
// messages address the contact formally; the DM is casual. Without a contact
// name the generic fallback is used.
func ComputeSalutation(contactName string, kind MessageKind) string {
	first := firstName(contactName)
	if kind == KindLinkedIn {
		if first == "" {
			return "Hi there,"
		}
		return "Hi " + first + ","
	}
	if first == "" {
		return "Dear Hiring Manager,"
	}
	return "Dear " + first + ","
}

// firstName extracts the leading name token, dropping common titles.
func firstName(full string) string {
	fields := strings.Fields(strings.TrimSpace(full))
	for _, f := range fields {
		switch strings.ToLower(strings.TrimSuffix(f, ".")) {
		case "mr", "mrs", "ms", "dr", "prof":
			continue
		}
		return strings.Trim(f, ",.")
	}
	return ""
}

// applySalutation forces the message to open with the computed greeting. A
// greeting line the model produced, malformed or not, is replaced rather
// than stacked under the correct one.
func applySalutation(text, salutation string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return salutation
	}
	if salutationLine.MatchString(strings.TrimSpace(lines[0])) {
		lines[0] = salutation
		return strings.Join(lines, "\n")
	}
	return salutation + "\n\n" + strings.Join(lines, "\n")
}
