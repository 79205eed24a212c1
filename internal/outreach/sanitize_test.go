package outreach

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeSalutation(t *testing.T) {
	tests := []struct {
		name    string
		contact string
		kind    MessageKind
		want    string
	}{
		{"email with name", "Jane Smith", KindEmail, "Dear Jane,"},
		{"email without name", "", KindEmail, "Dear Hiring Manager,"},
		{"linkedin with name", "Jane Smith", KindLinkedIn, "Hi Jane,"},
		{"linkedin without name", "", KindLinkedIn, "Hi there,"},
		{"title dropped", "Dr. Maria Lopez", KindEmail, "Dear Maria,"},
		{"single name", "Priya", KindLinkedIn, "Hi Priya,"},
		{"whitespace only", "   ", KindEmail, "Dear Hiring Manager,"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeSalutation(tt.contact, tt.kind))
		})
	}
}

func TestApplySalutationRepairsBrokenGreeting(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"broken dear with space", "Dear ,\n\nI am reaching out.", "Dear Jane,\n\nI am reaching out."},
		{"broken dear no space", "Dear,\n\nI am reaching out.", "Dear Jane,\n\nI am reaching out."},
		{"broken hi", "Hi ,\n\nQuick note.", "Dear Jane,\n\nQuick note."},
		{"wrong name replaced", "Dear Hiring Team,\n\nBody.", "Dear Jane,\n\nBody."},
		{"no greeting prepended", "I wanted to follow up.", "Dear Jane,\n\nI wanted to follow up."},
		{"empty message", "", "Dear Jane,"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, applySalutation(tt.in, "Dear Jane,"))
		})
	}
}

func TestApplySalutationKeepsBody(t *testing.T) {
	in := "Hello there,\nFirst paragraph.\n\nSecond paragraph."
	got := applySalutation(in, "Hi Jane,")
	assert.True(t, strings.HasPrefix(got, "Hi Jane,\n"))
	assert.Contains(t, got, "First paragraph.")
	assert.Contains(t, got, "Second paragraph.")
	assert.NotContains(t, got, "Hello there,")
}

func TestFixContactEmailWithAddress(t *testing.T) {
	body := "Dear Jane,\n\nPlease send details to [Recruiter Email] when you can."
	got := fixContactEmail(body, "a@b.com")

	assert.True(t, strings.HasPrefix(got, "To: a@b.com\n"))
	assert.NotContains(t, got, "[Recruiter Email]")
	assert.Equal(t, 1, strings.Count(got, "To: "))
}

func TestFixContactEmailNeverDuplicates(t *testing.T) {
	body := "To: old@example.com\nDear Jane,\n\nBody."
	got := fixContactEmail(body, "a@b.com")

	assert.True(t, strings.HasPrefix(got, "To: a@b.com\n"))
	assert.NotContains(t, got, "old@example.com")
	assert.Equal(t, 1, strings.Count(got, "To: "))
}

func TestFixContactEmailWithoutAddress(t *testing.T) {
	body := "To: [Recruiter's Email]\nDear Hiring Manager,\n\nBody."
	got := fixContactEmail(body, "")

	assert.NotContains(t, got, "To:")
	assert.NotContains(t, got, "[Recruiter Email]")
	assert.NotContains(t, got, "[Recruiter's Email]")
	assert.Contains(t, got, "Dear Hiring Manager,")
}

func TestFixLinkedInURL(t *testing.T) {
	body := "Hi Jane,\n\nMy profile: [Your LinkedIn Profile URL]."
	got := fixLinkedInURL(body, "https://linkedin.com/in/jane")

	assert.True(t, strings.HasPrefix(got, "LinkedIn: https://linkedin.com/in/jane\n"))
	assert.NotContains(t, got, "[Your LinkedIn Profile URL]")
	assert.Equal(t, 1, strings.Count(got, "LinkedIn: "))
}

func TestFixLinkedInURLWithoutURL(t *testing.T) {
	body := "LinkedIn: [LinkedIn URL]\nHi there,\n\nBody."
	got := fixLinkedInURL(body, "")

	assert.NotContains(t, got, "LinkedIn:")
	assert.NotContains(t, got, "[LinkedIn URL]")
}

func TestStripAddressLines(t *testing.T) {
	body := "To: someone@example.com\nLinkedIn: https://linkedin.com/in/x\nDear Jane,\n\nBody."
	got := stripAddressLines(body)
	assert.NotContains(t, got, "To:")
	assert.NotContains(t, got, "LinkedIn:")
	assert.Contains(t, got, "Dear Jane,")
}

func TestRemoveDeniedPhrases(t *testing.T) {
	body := "Dear Jane,\n\nI hope this email finds you well. I lead backend projects and would value a conversation at your earliest convenience."
	got := removeDeniedPhrases(body)

	assert.NotContains(t, got, "finds you well")
	assert.NotContains(t, got, "earliest convenience")
	assert.Contains(t, got, "I lead backend projects")
}

func TestRemoveLeakSentences(t *testing.T) {
	body := "Dear Jane,\n\nI wanted to follow up on my application. I noticed your recent post about the platform launch. Happy to share more detail any time."
	got := removeLeakSentences(body)

	assert.NotContains(t, got, "I noticed")
	assert.NotContains(t, got, "recent post")
	assert.Contains(t, got, "I wanted to follow up on my application.")
	assert.Contains(t, got, "Happy to share more detail any time.")
}

func TestRemoveLeakSentencesKeepsCleanMessage(t *testing.T) {
	body := "Dear Jane,\n\nJust checking in on my application. Thanks for your time."
	assert.Equal(t, body, removeLeakSentences(body))
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"two sentences", "One thing. Another thing.", []string{"One thing.", "Another thing."}},
		{"question and exclamation", "Really? Yes!", []string{"Really?", "Yes!"}},
		{"trailing fragment", "Done. And then", []string{"Done.", "And then"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitSentences(tt.in))
		})
	}
}
