package crypto

import "testing"

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if err := CheckPassword(hash, "secret"); err != nil {
		t.Fatalf("expected password to match")
	}
	if err := CheckPassword(hash, "wrong"); err == nil {
		t.Fatalf("expected password mismatch")
	}
}

func TestTokenHashStable(t *testing.T) {
	token, err := NewToken()
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if HashToken(token) != HashToken(token) {
		t.Fatalf("expected hash to be deterministic")
	}
	other, err := NewToken()
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if token == other {
		t.Fatalf("expected distinct tokens")
	}
}
