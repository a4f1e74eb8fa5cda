package identity

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestDigestKey_OrderInsensitive(t *testing.T) {
	id := uuid.MustParse("6f1c8a52-3b8e-4b7e-9a51-0c2f7d1e4a10")

	a := DigestKey(id, []string{"996001", "996002", " 996003 "})
	b := DigestKey(id, []string{"996003", "996001", "996002"})
	if a != b {
		t.Fatalf("expected same key regardless of order, got %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(a))
	}
}

func TestDigestKey_DiffersBySearchAndSet(t *testing.T) {
	id1 := uuid.New()
	id2 := uuid.New()

	if DigestKey(id1, []string{"1"}) == DigestKey(id2, []string{"1"}) {
		t.Fatalf("different searches must not share a digest key")
	}
	if DigestKey(id1, []string{"1"}) == DigestKey(id1, []string{"1", "2"}) {
		t.Fatalf("different listing sets must not share a digest key")
	}
}

func TestArchiveKey(t *testing.T) {
	id := uuid.MustParse("6f1c8a52-3b8e-4b7e-9a51-0c2f7d1e4a10")
	key := ArchiveKey("/digests/", id, "abcdef")
	want := "digests/6f1c8a52-3b8e-4b7e-9a51-0c2f7d1e4a10/ab/abcdef.html"
	if key != want {
		t.Fatalf("expected %s, got %s", want, key)
	}
	if !strings.HasPrefix(ArchiveKey("", id, "ff00"), id.String()+"/ff/") {
		t.Fatalf("unexpected unprefixed key %s", ArchiveKey("", id, "ff00"))
	}
}
