package handlers

import "testing"

func TestValidateOffer(t *testing.T) {
	valid := offerPayload{
		Name:        "Intro call",
		AmountCents: 4900,
		Currency:    "usd",
		Active:      true,
	}
	if msg := validateOffer(valid); msg != "" {
		t.Fatalf("valid offer rejected: %s", msg)
	}

	cases := []struct {
		name   string
		mutate func(*offerPayload)
	}{
		{"missing name", func(p *offerPayload) { p.Name = "  " }},
		{"amount below minimum", func(p *offerPayload) { p.AmountCents = 49 }},
		{"negative amount", func(p *offerPayload) { p.AmountCents = -1 }},
		{"bad currency", func(p *offerPayload) { p.Currency = "dollars" }},
		{"empty currency", func(p *offerPayload) { p.Currency = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := valid
			tc.mutate(&p)
			if msg := validateOffer(p); msg == "" {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestWithQueryParam(t *testing.T) {
	if got := withQueryParam("https://x.test/return", "state", "a b"); got != "https://x.test/return?state=a+b" {
		t.Fatalf("unexpected url: %s", got)
	}
	if got := withQueryParam("https://x.test/return?ok=1", "state", "tok"); got != "https://x.test/return?ok=1&state=tok" {
		t.Fatalf("unexpected url: %s", got)
	}
}

func TestNewReturnToken(t *testing.T) {
	a := newReturnToken()
	b := newReturnToken()
	if a == "" || a == b {
		t.Fatalf("tokens should be non-empty and unique: %q %q", a, b)
	}
	if len(a) != 22 {
		t.Fatalf("expected 22 url-safe chars for 16 bytes, got %d", len(a))
	}
}
