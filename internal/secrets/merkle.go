package secrets

import "crypto/sha256"

// MerkleTree commits to N independent secrets for partial fills. Leaves are
// hash(secret_i) in input order; each level pairs adjacent nodes, duplicating
// the last node when a level has odd length. The root is the order's hashlock.
type MerkleTree struct {
	Leaves []Hash
	Root   Hash

	levels [][]Hash
}

// ProofStep is one level of a Merkle proof: the sibling digest and whether it
// sits to the left of the running hash.
type ProofStep struct {
	Sibling Hash `json:"sibling"`
	Left    bool `json:"left"`
}

// MerkleProof authorizes withdrawing one slice of a partially-filled order.
type MerkleProof struct {
	Index int         `json:"index"`
	Steps []ProofStep `json:"steps"`
}

func hashPair(left, right Hash) Hash {
	var buf [2 * sha256.Size]byte
	copy(buf[:sha256.Size], left[:])
	copy(buf[sha256.Size:], right[:])
	return sha256.Sum256(buf[:])
}

// BuildMerkleTree hashes each secret into a leaf and folds the levels up to
// the root. Returns ErrEmptyInput for an empty secret list.
func BuildMerkleTree(secs []Secret) (*MerkleTree, error) {
	if len(secs) == 0 {
		return nil, ErrEmptyInput
	}

	leaves := make([]Hash, len(secs))
	for i, s := range secs {
		leaves[i] = HashSecret(s)
	}

	levels := [][]Hash{leaves}
	current := leaves
	for len(current) > 1 {
		if len(current)%2 == 1 {
			current = append(current, current[len(current)-1])
		}
		next := make([]Hash, 0, len(current)/2)
		for i := 0; i < len(current); i += 2 {
			next = append(next, hashPair(current[i], current[i+1]))
		}
		levels = append(levels, next)
		current = next
	}

	return &MerkleTree{
		Leaves: leaves,
		Root:   current[0],
		levels: levels,
	}, nil
}

// Proof returns the sibling path from leaf index up to the root.
func (t *MerkleTree) Proof(index int) (*MerkleProof, error) {
	if index < 0 || index >= len(t.Leaves) {
		return nil, ErrIndexOutOfRange
	}

	proof := &MerkleProof{Index: index}
	pos := index
	for _, level := range t.levels[:len(t.levels)-1] {
		// Levels with odd length duplicate their last node when folded.
		padded := level
		if len(padded)%2 == 1 {
			padded = append(append([]Hash{}, padded...), padded[len(padded)-1])
		}

		var step ProofStep
		if pos%2 == 0 {
			step = ProofStep{Sibling: padded[pos+1], Left: false}
		} else {
			step = ProofStep{Sibling: padded[pos-1], Left: true}
		}
		proof.Steps = append(proof.Steps, step)
		pos /= 2
	}

	return proof, nil
}

// VerifyProof recomputes the root from a leaf hash by folding the recorded
// siblings and compares it to the expected root. Pure: callers use it as the
// off-chain mirror of on-chain withdrawal validation, to fail fast instead of
// paying gas for a doomed transaction.
func VerifyProof(proof *MerkleProof, leaf Hash, root Hash) bool {
	if proof == nil {
		return false
	}
	acc := leaf
	for _, step := range proof.Steps {
		if step.Left {
			acc = hashPair(step.Sibling, acc)
		} else {
			acc = hashPair(acc, step.Sibling)
		}
	}
	return acc == root
}
