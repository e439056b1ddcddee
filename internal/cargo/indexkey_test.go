package cargo

import (
	"testing"
	"time"
)

func TestIndexKeyToIndexURLTable(t *testing.T) {
	tests := []struct{ name, want string }{
		{"", ""},
		{"a", "1/a"},
		{"ab", "2/ab"},
		{"abc", "3/a/abc"},
		{"abcd", "ab/cd/abcd"},
		{"serde_json", "se/rd/serde_json"},
	}

	for _, tc := range tests {
		k := NewIndexKey(tc.name)
		if got := k.ToIndexURL(); got != tc.want {
			t.Errorf("NewIndexKey(%q).ToIndexURL() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestIndexKeyFromIndexURLRoundTrip(t *testing.T) {
	for _, name := range []string{"a", "ab", "abc", "abcd", "serde_json"} {
		url := NewIndexKey(name).ToIndexURL()

		got, ok := IndexKeyFromIndexURL(url)
		if !ok {
			t.Fatalf("IndexKeyFromIndexURL(%q) failed to parse", url)
		}
		if got.Name() != name {
			t.Errorf("round trip mismatch for %q: got name %q", url, got.Name())
		}
	}
}

func TestIndexKeyFromIndexURLRejects(t *testing.T) {
	rejects := []string{
		"",
		"abc",
		"a/bc",
		"a/b/c/d",
		"config.json",
		"3.json/a/abc",
		"x/a",
		"9/a",
	}

	for _, in := range rejects {
		if _, ok := IndexKeyFromIndexURL(in); ok {
			t.Errorf("IndexKeyFromIndexURL(%q) unexpectedly accepted", in)
		}
	}
}

func TestIndexKeyFromIndexURLAcceptsUnvalidatedShardPrefix(t *testing.T) {
	// The shard prefix is not verified to match the name: this is
	// deliberate (see Open Question in the proxy's design notes).
	tests := []struct{ in, name string }{
		{"3/a/abc", "abc"},
		{"xx/yy/serde", "serde"},
		{"ab/cd/abcd", "abcd"},
	}

	for _, tc := range tests {
		got, ok := IndexKeyFromIndexURL(tc.in)
		if !ok {
			t.Fatalf("IndexKeyFromIndexURL(%q) failed to parse", tc.in)
		}
		if got.Name() != tc.name {
			t.Errorf("IndexKeyFromIndexURL(%q).Name() = %q, want %q", tc.in, got.Name(), tc.name)
		}
	}
}

func TestIndexKeyEquivalent(t *testing.T) {
	now := time.Now()

	a := NewIndexKey("serde")
	a.SetETag(`"e1"`)

	b := NewIndexKey("serde")
	b.SetETag(`"e1"`)
	if !a.Equivalent(b) {
		t.Error("expected matching ETags to be equivalent")
	}

	c := NewIndexKey("serde")
	c.SetETag(`"e2"`)
	if a.Equivalent(c) {
		t.Error("expected differing ETags to not be equivalent")
	}

	d := NewIndexKey("serde")
	if a.Equivalent(d) {
		t.Error("a missing validator on one side must never match")
	}

	e := NewIndexKey("serde")
	e.SetLastModified(now)
	f := NewIndexKey("serde")
	f.SetLastModified(now)
	if !e.Equivalent(f) {
		t.Error("expected matching Last-Modified to be equivalent")
	}

	if e.Equivalent(d) {
		t.Error("mtime-only entry must not match a bare entry")
	}
}

func TestIndexKeyExpired(t *testing.T) {
	now := time.Now()

	bare := NewIndexKey("serde")
	if !bare.Expired(now, time.Hour) {
		t.Error("an entry with no refresh instant is always expired")
	}

	fresh := NewIndexKey("serde")
	fresh.Touch(now)
	if fresh.Expired(now.Add(time.Minute), time.Hour) {
		t.Error("entry within TTL should not be expired")
	}
	if !fresh.Expired(now.Add(2*time.Hour), time.Hour) {
		t.Error("entry past TTL should be expired")
	}
}
