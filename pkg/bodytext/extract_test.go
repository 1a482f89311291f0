package bodytext

import (
	"strings"
	"testing"
)

func TestCleanStripsQuotedReply(t *testing.T) {
	body := "On Tue, Jan 2 wrote:\n> original text\nMy new reply"
	if got := Clean(body); got != "My new reply" {
		t.Errorf("Clean() = %q, want %q", got, "My new reply")
	}
}

func TestCleanKeepsBottomPostedReply(t *testing.T) {
	body := "> what time works for you?\nTomorrow at 3pm works.\n> let me know\nSee you then."
	got := Clean(body)
	if strings.Contains(got, "what time") || strings.Contains(got, "let me know") {
		t.Errorf("quoted lines leaked: %q", got)
	}
	if !strings.Contains(got, "Tomorrow at 3pm works.") || !strings.Contains(got, "See you then.") {
		t.Errorf("unquoted content lost: %q", got)
	}
}

func TestCleanHTML(t *testing.T) {
	body := `<html><head><style>.x{color:red}</style></head><body>
<p>Hi there,</p>
<div>Can you send the invoice?</div>
<script>alert("nope")</script>
</body></html>`
	got := Clean(body)
	if !strings.Contains(got, "Hi there,") || !strings.Contains(got, "Can you send the invoice?") {
		t.Errorf("content lost: %q", got)
	}
	if strings.Contains(got, "alert") || strings.Contains(got, "color:red") {
		t.Errorf("script/style leaked: %q", got)
	}
}

func TestCleanOriginalMessageSeparator(t *testing.T) {
	body := "Thanks, that fixed it.\n\n-----Original Message-----\n> From: someone\n> the whole history"
	got := Clean(body)
	if got == "" || strings.Contains(got, "Original Message") || strings.Contains(got, "whole history") {
		t.Errorf("Clean() = %q", got)
	}
	if !strings.HasPrefix(got, "Thanks, that fixed it.") {
		t.Errorf("reply lost: %q", got)
	}
}

func TestCleanEmpty(t *testing.T) {
	cases := []string{"", "   \n\t\n", "> only quoted\n> lines here"}
	for _, body := range cases {
		if got := Clean(body); got != "" {
			t.Errorf("Clean(%q) = %q, want empty", body, got)
		}
	}
}

func TestCollapseBlankLines(t *testing.T) {
	body := "first\n\n\n\nsecond"
	got := Clean(body)
	if got != "first\n\nsecond" {
		t.Errorf("Clean() = %q, want single blank line", got)
	}
}

func TestCleanPlainTextPassthrough(t *testing.T) {
	body := "Just a normal message.\nNothing special about it."
	if got := Clean(body); got != body {
		t.Errorf("Clean() = %q, want unchanged", got)
	}
}
