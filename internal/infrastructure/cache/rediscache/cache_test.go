package rediscache

import "testing"

func TestEscapeGlob(t *testing.T) {
	got := escapeGlob(`bs:context:acme*[1]?\`)
	want := `bs:context:acme\*\[1\]\?\\`
	if got != want {
		t.Fatalf("escapeGlob() = %q, want %q", got, want)
	}
}
