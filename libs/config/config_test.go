package config

import "testing"

func TestString(t *testing.T) {
	t.Setenv("CFG_TEST_STR", "value")
	if got := String("CFG_TEST_STR", "fallback"); got != "value" {
		t.Fatalf("got %q", got)
	}
	if got := String("CFG_TEST_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("got %q", got)
	}
}

func TestRequiredString(t *testing.T) {
	t.Setenv("CFG_TEST_REQ", "x")
	if _, err := RequiredString("CFG_TEST_REQ"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := RequiredString("CFG_TEST_REQ_MISSING"); err == nil {
		t.Fatalf("expected error for missing key")
	}
}

func TestPort(t *testing.T) {
	t.Setenv("CFG_TEST_PORT", "8080")
	if got, err := Port("CFG_TEST_PORT", "9090"); err != nil || got != "8080" {
		t.Fatalf("got %q, err %v", got, err)
	}
	t.Setenv("CFG_TEST_PORT", "not-a-port")
	if _, err := Port("CFG_TEST_PORT", "9090"); err == nil {
		t.Fatalf("expected error for non-numeric port")
	}
	t.Setenv("CFG_TEST_PORT", "70000")
	if _, err := Port("CFG_TEST_PORT", "9090"); err == nil {
		t.Fatalf("expected error for out-of-range port")
	}
}
