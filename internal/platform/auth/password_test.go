package auth

import "testing"

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("pass001")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "pass001" {
		t.Fatal("hash must not equal the password")
	}
	if !CheckPassword(hash, "pass001") {
		t.Error("expected password to match")
	}
	if CheckPassword(hash, "pass002") {
		t.Error("expected wrong password to fail")
	}
	if CheckPassword("not-a-hash", "pass001") {
		t.Error("expected malformed hash to fail")
	}
}

func TestHashPassword_Empty(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Error("expected error for empty password")
	}
}
