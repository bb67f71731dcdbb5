package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	h := testHasher()
	password := "correct-horse-battery-staple"

	hash, err := h.Hash(password)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("hash should start with $argon2id$, got %q", hash)
	}

	if !h.Verify(password, hash) {
		t.Error("Verify() should return true for correct password")
	}
}

func TestHashPassword_WrongPassword(t *testing.T) {
	h := testHasher()

	hash, err := h.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if h.Verify("wrong-password", hash) {
		t.Error("Verify() should return false for wrong password")
	}
}

func TestHashPassword_DistinctPlaintexts(t *testing.T) {
	h := testHasher()
	passwords := []string{"", "a", "admin123", "Admin123", "admin123 ", "pässwörd", strings.Repeat("x", 200)}

	hashes := make([]string, len(passwords))
	for i, p := range passwords {
		hash, err := h.Hash(p)
		if err != nil {
			t.Fatalf("Hash(%q) error = %v", p, err)
		}
		hashes[i] = hash
	}

	for i, p := range passwords {
		for j, hash := range hashes {
			if got, want := h.Verify(p, hash), i == j; got != want {
				t.Errorf("Verify(%q, hash(%q)) = %v, want %v", p, passwords[j], got, want)
			}
		}
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	h := testHasher()

	hash1, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	hash2, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if hash1 == hash2 {
		t.Error("two hashes of the same password should have different salts")
	}
}

func TestVerifyPassword_InvalidFormat(t *testing.T) {
	h := testHasher()

	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"not PHC", "plaintext"},
		{"wrong algorithm", "$scrypt$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA"},
		{"too few parts", "$argon2id$v=19$m=65536,t=3,p=1"},
		{"bad version", "$argon2id$v=16$m=1024,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA"},
		{"zero time", "$argon2id$v=19$m=1024,t=0,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA"},
		{"zero threads", "$argon2id$v=19$m=1024,t=1,p=0$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA"},
		{"huge memory", "$argon2id$v=19$m=4294967295,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA"},
		{"empty hash", "$argon2id$v=19$m=1024,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$"},
		{"bad base64", "$argon2id$v=19$m=1024,t=1,p=1$!!!$???"},
		{"truncated bcrypt", "$2b$10$short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if h.Verify("password", tt.hash) {
				t.Error("Verify() should return false for invalid hash format")
			}
		})
	}
}

func TestHashPassword_PHCFormat(t *testing.T) {
	hash, err := DefaultPasswordHasher().Hash("test")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		t.Fatalf("PHC format should have 6 $-delimited parts, got %d: %q", len(parts), hash)
	}
	if parts[1] != "argon2id" {
		t.Errorf("algorithm should be argon2id, got %q", parts[1])
	}
	if parts[2] != "v=19" {
		t.Errorf("version should be v=19, got %q", parts[2])
	}
	if parts[3] != "m=65536,t=3,p=1" {
		t.Errorf("params should be m=65536,t=3,p=1, got %q", parts[3])
	}
}

func TestVerify_OlderParameters(t *testing.T) {
	old := NewPasswordHasher(HashParams{Time: 1, Memory: 1024, Threads: 1})
	current := NewPasswordHasher(HashParams{Time: 2, Memory: 2048, Threads: 1})

	hash, err := old.Hash("gym-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if !current.Verify("gym-password", hash) {
		t.Error("digest from older parameters should still verify")
	}
	if !current.NeedsRehash(hash) {
		t.Error("NeedsRehash() should be true for older parameters")
	}
	if old.NeedsRehash(hash) {
		t.Error("NeedsRehash() should be false for current parameters")
	}
}

func TestVerify_LegacyBcrypt(t *testing.T) {
	h := testHasher()

	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error = %v", err)
	}

	if !h.Verify("legacy-pass", string(legacy)) {
		t.Error("bcrypt digest should verify")
	}
	if h.Verify("other-pass", string(legacy)) {
		t.Error("bcrypt digest should reject wrong password")
	}
	if !h.NeedsRehash(string(legacy)) {
		t.Error("bcrypt digest should need rehash")
	}
}

func TestValidateNewPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		confirm  string
		wantErr  error
	}{
		{"match", "new-password", "new-password", nil},
		{"mismatch", "new-password", "new-passw0rd", ErrPasswordMismatch},
		{"too short", "short", "short", ErrPasswordTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateNewPassword(tt.password, tt.confirm); err != tt.wantErr { //nolint:errorlint // sentinel comparison
				t.Errorf("ValidateNewPassword() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
