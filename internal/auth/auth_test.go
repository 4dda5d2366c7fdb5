package auth

import (
	"strings"
	"testing"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("hog-line-violation")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("unexpected hash format: %s", hash)
	}

	ok, err := VerifyPassword("hog-line-violation", hash)
	if err != nil || !ok {
		t.Fatalf("correct password rejected: ok=%v err=%v", ok, err)
	}
	ok, err = VerifyPassword("wrong", hash)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if ok {
		t.Fatal("wrong password accepted")
	}
}

func TestHashesAreSalted(t *testing.T) {
	h1, err := HashPassword("same")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashPassword("same")
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Fatal("two hashes of the same password are identical; salt missing")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	if _, err := VerifyPassword("x", "not-a-hash"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	token, err := CreateToken("7f9c34ad-0000-4000-8000-000000000001")
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	sub, err := VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if sub != "7f9c34ad-0000-4000-8000-000000000001" {
		t.Fatalf("wrong subject: %s", sub)
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	token, err := CreateToken("p-a")
	if err != nil {
		t.Fatal(err)
	}
	tampered := token + "A"
	if _, err := VerifyToken(tampered); err == nil {
		t.Fatal("tampered token accepted")
	}
}
