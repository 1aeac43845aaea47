package core

import "testing"

func TestNormalizeMACEquivalentForms(t *testing.T) {
	want := "AA:BB:CC:DD:EE:FF"
	for _, in := range []string{"AA:BB:CC:DD:EE:FF", "aa-bb-cc-dd-ee-ff", "AABBCCDDEEFF", "aabb.ccdd.eeff", " aa:bb:cc:dd:ee:ff "} {
		if got := NormalizeMAC(in); got != want {
			t.Fatalf("NormalizeMAC(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeMACIdempotent(t *testing.T) {
	for _, in := range []string{"d4:ca:6d:9e:f8:a0", "D4CA6D9EF8A0", "not-a-mac", "", "12345"} {
		once := NormalizeMAC(in)
		if twice := NormalizeMAC(once); twice != once {
			t.Fatalf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizeMACLeavesNonHexAlone(t *testing.T) {
	if got := NormalizeMAC("zzzzzzzzzzzz"); got != "ZZZZZZZZZZZZ" {
		t.Fatalf("unexpected %q", got)
	}
	if got := NormalizeMAC("AABBCCDDEE"); got != "AABBCCDDEE" {
		t.Fatalf("short input should not get colons, got %q", got)
	}
}
