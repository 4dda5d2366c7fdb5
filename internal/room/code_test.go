package room

import (
	"strings"
	"testing"
)

func TestGenerateCodeShape(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode: %v", err)
		}
		if len(code) != CodeLength {
			t.Fatalf("expected %d chars, got %q", CodeLength, code)
		}
		for _, r := range code {
			if !strings.ContainsRune(codeAlphabet, r) {
				t.Fatalf("code %q contains %q outside the alphabet", code, r)
			}
		}
	}
}

func TestCodeAlphabetExcludesAmbiguousSymbols(t *testing.T) {
	for _, banned := range "IO01" {
		if strings.ContainsRune(codeAlphabet, banned) {
			t.Fatalf("alphabet must not contain %q", banned)
		}
	}
	if len(codeAlphabet) != 32 {
		t.Fatalf("expected 32 symbols, got %d", len(codeAlphabet))
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("  ab2c3d \n"); got != "AB2C3D" {
		t.Fatalf("normalize: got %q", got)
	}
}

func TestValidateCode(t *testing.T) {
	cases := []struct {
		code string
		ok   bool
	}{
		{"ABCDEF", true},
		{"AB23XZ", true},
		{"ABCDE", false},   // too short
		{"ABCDEFG", false}, // too long
		{"ABCDE0", false},  // 0 excluded
		{"ABCDEI", false},  // I excluded
		{"abcdef", false},  // not normalized
		{"", false},
	}
	for _, c := range cases {
		err := ValidateCode(c.code)
		if c.ok && err != nil {
			t.Errorf("ValidateCode(%q) = %v, want nil", c.code, err)
		}
		if !c.ok && err != ErrInvalidCode {
			t.Errorf("ValidateCode(%q) = %v, want ErrInvalidCode", c.code, err)
		}
	}
}
