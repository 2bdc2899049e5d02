package fingerprint

import (
	"strings"
	"testing"
)

func TestHashIsDeterministic(t *testing.T) {
	t.Parallel()

	first := Hash([]byte("paper set A"))
	second := Hash([]byte("paper set A"))
	if first != second {
		t.Fatalf("digest not deterministic: %q vs %q", first, second)
	}
}

func TestHashKnownVector(t *testing.T) {
	t.Parallel()

	// SHA-256 of the empty string.
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Hash(nil); got != want {
		t.Fatalf("empty digest = %q, want %q", got, want)
	}
}

func TestHashIsFixedWidthLowercaseHex(t *testing.T) {
	t.Parallel()

	digest := HashString("VACANCY: v-1\nSET: B\n")
	if len(digest) != Size {
		t.Fatalf("digest length = %d, want %d", len(digest), Size)
	}
	if digest != strings.ToLower(digest) {
		t.Fatalf("digest is not lowercase: %q", digest)
	}
	for _, r := range digest {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			t.Fatalf("digest contains non-hex character %q", r)
		}
	}
}

func TestDistinctContentYieldsDistinctDigests(t *testing.T) {
	t.Parallel()

	if Hash([]byte("set A")) == Hash([]byte("set B")) {
		t.Fatal("different content produced identical digests")
	}
}
