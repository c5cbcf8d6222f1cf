package handlers

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestValidateSubmission(t *testing.T) {
	valid := submitRequest{
		LinkID:       "l1",
		Token:        "tok",
		CustomerName: "Ada",
		Rating:       5,
		Body:         "Great session.",
	}
	if msg := validateSubmission(valid); msg != "" {
		t.Fatalf("valid submission rejected: %s", msg)
	}

	cases := []struct {
		name   string
		mutate func(*submitRequest)
	}{
		{"missing link", func(r *submitRequest) { r.LinkID = " " }},
		{"missing token", func(r *submitRequest) { r.Token = "" }},
		{"missing name", func(r *submitRequest) { r.CustomerName = "" }},
		{"rating too low", func(r *submitRequest) { r.Rating = 0 }},
		{"rating too high", func(r *submitRequest) { r.Rating = 6 }},
		{"empty body", func(r *submitRequest) { r.Body = "   " }},
		{"body too long", func(r *submitRequest) { r.Body = strings.Repeat("x", maxBodyLength+1) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			if msg := validateSubmission(req); msg == "" {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLinkTokenRoundtrip(t *testing.T) {
	token, err := newLinkToken()
	if err != nil {
		t.Fatalf("newLinkToken: %v", err)
	}
	if len(token) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(token))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(token)); err != nil {
		t.Fatalf("token should verify against its own hash: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(token+"x")); err == nil {
		t.Fatalf("tampered token should not verify")
	}
}

func TestLinkLimitForTier(t *testing.T) {
	cases := []struct {
		tier string
		want int64
	}{
		{"free", 1},
		{"", 1},
		{"unknown", 1},
		{"starter", 10},
		{"Pro", 100},
	}
	for _, tc := range cases {
		if got := linkLimitForTier(tc.tier); got != tc.want {
			t.Fatalf("linkLimitForTier(%q) = %d, want %d", tc.tier, got, tc.want)
		}
	}
}
