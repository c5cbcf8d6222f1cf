package main

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestParseList(t *testing.T) {
	got := parseList(" GET, POST ,,OPTIONS ")
	want := []string{"GET", "POST", "OPTIONS"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got := parseList(""); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestRegisterProxyMatchesPrefixAndChildren(t *testing.T) {
	mux := http.NewServeMux()
	hit := ""
	registerProxy(mux, "/api/v1/public", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hit = "public"
	}))
	registerProxy(mux, "/api/v1/public/checkout", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hit = "checkout"
	}))

	cases := []struct {
		path string
		want string
	}{
		{"/api/v1/public/slots", "public"},
		{"/api/v1/public", "public"},
		{"/api/v1/public/checkout", "checkout"},
	}
	for _, tc := range cases {
		hit = ""
		req := httptest.NewRequest(http.MethodGet, "http://example.com"+tc.path, nil)
		mux.ServeHTTP(httptest.NewRecorder(), req)
		if hit != tc.want {
			t.Fatalf("path %s dispatched to %q, want %q", tc.path, hit, tc.want)
		}
	}
}
