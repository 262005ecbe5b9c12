package mailer

import "testing"

func TestFromAddress(t *testing.T) {
	got := FromAddress(42, TokenOpts{Domain: "loads.example.com"})
	if got != "dispatch+42@loads.example.com" {
		t.Errorf("FromAddress = %q", got)
	}

	got = FromAddress(7, TokenOpts{Domain: "loads.example.com", LocalPart: "rates"})
	if got != "rates+7@loads.example.com" {
		t.Errorf("FromAddress with local part = %q", got)
	}
}

func TestTagSubject(t *testing.T) {
	got := TagSubject("Re: Load TS-123", 77)
	if got != "Re: Load TS-123 [NEG:77]" {
		t.Errorf("TagSubject = %q", got)
	}

	// Already tagged: no double token.
	if again := TagSubject(got, 77); again != got {
		t.Errorf("TagSubject re-applied = %q, want unchanged", again)
	}

	if got := TagSubject("", 5); got != "[NEG:5]" {
		t.Errorf("TagSubject empty = %q", got)
	}
}

func TestBuildEnvelope_AllThreeLayers(t *testing.T) {
	env := BuildEnvelope(42, "broker@example.com", "Re: Load TS-123", "body", TokenOpts{
		Domain: "loads.example.com",
	})

	if env.From != "dispatch+42@loads.example.com" {
		t.Errorf("From = %q, missing address-tag layer", env.From)
	}
	if env.Headers[HeaderNegotiationID] != "42" {
		t.Errorf("header = %q, missing header layer", env.Headers[HeaderNegotiationID])
	}
	if env.Subject != "Re: Load TS-123 [NEG:42]" {
		t.Errorf("Subject = %q, missing subject-token layer", env.Subject)
	}
}
