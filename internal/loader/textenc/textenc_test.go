package textenc

import (
	"testing"

	"golang.org/x/text/encoding/charmap"
)

// encodeAsDoubleEncodedCP1251 simulates the bug: encode want as CP1251 bytes,
// then pack each adjacent byte pair into a UTF-16LE code unit, as if a buggy
// exporter had mis-decoded the byte stream.
func encodeAsDoubleEncodedCP1251(t *testing.T, want string) string {
	t.Helper()
	cp1251, err := charmap.Windows1251.NewEncoder().String(want)
	if err != nil {
		t.Fatalf("encode cp1251: %v", err)
	}
	b := []byte(cp1251)
	if len(b)%2 != 0 {
		b = append(b, 0)
	}
	runes := make([]rune, 0, len(b)/2)
	for i := 0; i < len(b); i += 2 {
		runes = append(runes, rune(b[i])|rune(b[i+1])<<8)
	}
	return string(runes)
}

func TestNormalizeRepairsDoubleEncodedCP1251(t *testing.T) {
	want := "Привет, как дела?"
	garbled := encodeAsDoubleEncodedCP1251(t, want)
	if garbled == want {
		t.Fatalf("test fixture did not actually garble the text")
	}
	got := Normalize(garbled)
	if got != want {
		t.Errorf("Normalize(%q) = %q, want %q", garbled, got, want)
	}
}

func TestNormalizeLeavesPlainTextAlone(t *testing.T) {
	for _, s := range []string{"hello world", "", "emoji 🎉 test", "日本語"} {
		if got := Normalize(s); got != s {
			t.Errorf("Normalize(%q) = %q, want unchanged", s, got)
		}
	}
}

func TestEnsureUTF8ReplacesInvalidBytes(t *testing.T) {
	invalid := string([]byte{'a', 0xff, 'b'})
	got := EnsureUTF8(invalid)
	if got == invalid {
		t.Errorf("EnsureUTF8 left invalid UTF-8 unchanged")
	}
	if len(got) == 0 {
		t.Errorf("EnsureUTF8 returned empty string")
	}
}
