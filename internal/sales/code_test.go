package sales

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestGeneratePickupCodeShape(t *testing.T) {
	seen := make(map[string]struct{}, 2000)
	for i := 0; i < 2000; i++ {
		code, err := GeneratePickupCode()
		if err != nil {
			t.Fatalf("GeneratePickupCode: %v", err)
		}
		if !IsPickupCode(code) {
			t.Fatalf("code %q does not match XXXX-XXXX-XXXX", code)
		}
		if strings.ContainsAny(code, "0O1I") {
			t.Fatalf("code %q contains an ambiguous symbol", code)
		}
		if _, dup := seen[code]; dup {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = struct{}{}
	}
}

func TestRandomCodesMapsBytesOntoAlphabet(t *testing.T) {
	src := bytes.NewReader([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11})
	code, err := NewRandomCodes(src).Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if code != "ABCD-EFGH-JKLM" {
		t.Fatalf("unexpected code %q", code)
	}

	src = bytes.NewReader(bytes.Repeat([]byte{255}, 12))
	code, _ = NewRandomCodes(src).Generate()
	if code != "9999-9999-9999" {
		t.Fatalf("unexpected code %q", code)
	}
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestRandomCodesSurfacesSourceErrors(t *testing.T) {
	if _, err := NewRandomCodes(brokenReader{}).Generate(); err == nil {
		t.Fatal("expected error from broken source")
	}
}

func TestAlphabetHasThirtyTwoUnambiguousSymbols(t *testing.T) {
	if len(PickupCodeAlphabet) != 32 {
		t.Fatalf("alphabet has %d symbols", len(PickupCodeAlphabet))
	}
	for _, r := range "0O1I" {
		if strings.ContainsRune(PickupCodeAlphabet, r) {
			t.Fatalf("alphabet contains %q", r)
		}
	}
}

func TestNormalizePickupCode(t *testing.T) {
	cases := map[string]string{
		"  abcd-efgh-jklm ": "ABCD-EFGH-JKLM",
		"ABCD-EFGH-JKLM":    "ABCD-EFGH-JKLM",
		"":                  "",
	}
	for in, want := range cases {
		if got := NormalizePickupCode(in); got != want {
			t.Fatalf("NormalizePickupCode(%q) = %q, want %q", in, got, want)
		}
	}
	for _, bad := range []string{"ABCD-EFGH-JKL0", "ABCDEFGHJKLM", "abcd-efgh-jklm", "ABCD-EFGH-JKLM-"} {
		if IsPickupCode(bad) {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
