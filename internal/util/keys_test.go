package util

import "testing"

func TestKey(t *testing.T) {
	if got := Key("app", "item", "x"); got != "app:item:x" {
		t.Fatalf("got %q", got)
	}
	if got := Key("", "item", "x"); got != "item:x" {
		t.Fatalf("got %q", got)
	}
}

// hashTag mirrors Redis Cluster key hashing: the part between the first
// "{" and the next "}" when it is non-empty, otherwise the whole key.
func hashTag(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] != '{' {
			continue
		}
		for j := i + 1; j < len(key); j++ {
			if key[j] == '}' {
				if j == i+1 {
					return key
				}
				return key[i+1 : j]
			}
		}
		return key
	}
	return key
}

func TestTaggedKeysShareHashTag(t *testing.T) {
	if got := Tagged("app", "x", "type"); got != "app:{x}:type" {
		t.Fatalf("got %q", got)
	}
	for _, id := range []string{"x", "a}b", "{y}", "with:colon", "é"} {
		want := hashTag(Tagged("app", id, "type"))
		for _, kind := range []string{"item", "hash", "rev", "events"} {
			if got := hashTag(Tagged("app", id, kind)); got != want {
				t.Fatalf("id %q: %s tag %q, type tag %q", id, kind, got, want)
			}
		}
	}
}
