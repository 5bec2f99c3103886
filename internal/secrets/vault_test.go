package secrets

import (
	"errors"
	"testing"
)

func TestGenerateSecretUnique(t *testing.T) {
	a, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	b, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if a == b {
		t.Fatal("two generated secrets are identical")
	}
	if a == (Secret{}) {
		t.Fatal("generated secret is all zeroes")
	}
}

func TestHashSecretDeterministic(t *testing.T) {
	s, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}

	h1 := HashSecret(s)
	h2 := HashSecret(s)
	if h1 != h2 {
		t.Fatal("hashing the same secret twice gave different digests")
	}

	// A single flipped bit must change the digest.
	flipped := s
	flipped[0] ^= 0x01
	if HashSecret(flipped) == h1 {
		t.Fatal("flipping a secret bit did not change the hash")
	}
}

func TestParseSecretRoundTrip(t *testing.T) {
	s, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}

	parsed, err := ParseSecret(s.Hex())
	if err != nil {
		t.Fatalf("ParseSecret: %v", err)
	}
	if parsed != s {
		t.Fatal("secret did not survive hex round trip")
	}
}

func TestParseSecretRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not hex", "zz"},
		{"too short", "deadbeef"},
		{"too long", "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSecret(tt.input); err == nil {
				t.Errorf("ParseSecret(%q) accepted invalid input", tt.input)
			}
		})
	}
}

func TestParseHashRoundTrip(t *testing.T) {
	s, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	h := HashSecret(s)

	parsed, err := ParseHash(h.Hex())
	if err != nil {
		t.Fatalf("ParseHash: %v", err)
	}
	if parsed != h {
		t.Fatal("hash did not survive hex round trip")
	}

	if _, err := ParseHash("deadbeef"); err == nil {
		t.Fatal("ParseHash accepted a truncated digest")
	}
}

func TestBuildMerkleTreeEmptyInput(t *testing.T) {
	if _, err := BuildMerkleTree(nil); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("BuildMerkleTree(nil) = %v, want ErrEmptyInput", err)
	}
}
