package secrets

import (
	"errors"
	"testing"
)

func makeSecrets(t *testing.T, n int) []Secret {
	t.Helper()
	out := make([]Secret, n)
	for i := range out {
		s, err := GenerateSecret()
		if err != nil {
			t.Fatalf("GenerateSecret: %v", err)
		}
		out[i] = s
	}
	return out
}

func TestMerkleProofAllIndices(t *testing.T) {
	// Odd, even, power-of-two and single-leaf trees all need to verify.
	for _, n := range []int{1, 2, 3, 4, 5, 7, 8, 16, 33} {
		secs := makeSecrets(t, n)
		tree, err := BuildMerkleTree(secs)
		if err != nil {
			t.Fatalf("BuildMerkleTree(%d leaves): %v", n, err)
		}

		for i := 0; i < n; i++ {
			proof, err := tree.Proof(i)
			if err != nil {
				t.Fatalf("Proof(%d) of %d leaves: %v", i, n, err)
			}
			if !VerifyProof(proof, HashSecret(secs[i]), tree.Root) {
				t.Errorf("proof for leaf %d of %d did not verify", i, n)
			}
		}
	}
}

func TestMerkleProofWrongSecret(t *testing.T) {
	secs := makeSecrets(t, 4)
	tree, err := BuildMerkleTree(secs)
	if err != nil {
		t.Fatalf("BuildMerkleTree: %v", err)
	}

	proof, err := tree.Proof(1)
	if err != nil {
		t.Fatalf("Proof: %v", err)
	}

	// A different order's secret must not verify against this root.
	other, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if VerifyProof(proof, HashSecret(other), tree.Root) {
		t.Fatal("foreign secret verified against the root")
	}
}

func TestMerkleProofWrongIndex(t *testing.T) {
	// A valid secret paired with another leaf's proof must be rejected:
	// each proof authorizes exactly one slice of a partial fill.
	secs := makeSecrets(t, 8)
	tree, err := BuildMerkleTree(secs)
	if err != nil {
		t.Fatalf("BuildMerkleTree: %v", err)
	}

	proofFor3, err := tree.Proof(3)
	if err != nil {
		t.Fatalf("Proof: %v", err)
	}
	if VerifyProof(proofFor3, HashSecret(secs[5]), tree.Root) {
		t.Fatal("secret 5 verified with the proof for leaf 3")
	}
}

func TestMerkleProofIndexOutOfRange(t *testing.T) {
	tree, err := BuildMerkleTree(makeSecrets(t, 3))
	if err != nil {
		t.Fatalf("BuildMerkleTree: %v", err)
	}

	for _, idx := range []int{-1, 3, 100} {
		if _, err := tree.Proof(idx); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Proof(%d) = %v, want ErrIndexOutOfRange", idx, err)
		}
	}
}

func TestMerkleRootDeterministic(t *testing.T) {
	secs := makeSecrets(t, 5)

	t1, err := BuildMerkleTree(secs)
	if err != nil {
		t.Fatalf("BuildMerkleTree: %v", err)
	}
	t2, err := BuildMerkleTree(secs)
	if err != nil {
		t.Fatalf("BuildMerkleTree: %v", err)
	}
	if t1.Root != t2.Root {
		t.Fatal("same leaves produced different roots")
	}

	// Leaf order is part of the commitment.
	swapped := append([]Secret{}, secs...)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	t3, err := BuildMerkleTree(swapped)
	if err != nil {
		t.Fatalf("BuildMerkleTree: %v", err)
	}
	if t3.Root == t1.Root {
		t.Fatal("reordering leaves did not change the root")
	}
}

func TestVerifyProofNil(t *testing.T) {
	var leaf, root Hash
	if VerifyProof(nil, leaf, root) {
		t.Fatal("nil proof verified")
	}
}
