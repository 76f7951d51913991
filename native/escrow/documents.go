package escrow

import (
	"bytes"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// DocumentCount is the number of leaves in a document set.
const DocumentCount = 4

// DocumentHashes are the trade document commitments supplied by the seller.
// The invoice is mandatory; a zero hash marks an omitted optional document.
type DocumentHashes struct {
	Invoice             [32]byte
	BillOfLading        [32]byte
	PackingList         [32]byte
	CertificateOfOrigin [32]byte
}

// Leaves returns the hashes in Merkle leaf order.
func (h DocumentHashes) Leaves() [DocumentCount][32]byte {
	return [DocumentCount][32]byte{h.Invoice, h.BillOfLading, h.PackingList, h.CertificateOfOrigin}
}

// DocumentSet is the write-once document commitment of an escrow.
type DocumentSet struct {
	EscrowID    [32]byte
	Hashes      DocumentHashes
	MerkleRoot  [32]byte
	CommittedAt int64
}

// Committed reports whether the set has been written.
func (d *DocumentSet) Committed() bool { return d != nil && d.CommittedAt != 0 }

// Clone returns a copy of the document set.
func (d *DocumentSet) Clone() *DocumentSet {
	if d == nil {
		return nil
	}
	clone := *d
	return &clone
}

// MerkleRoot computes the root over the four document hashes. Pairs are hashed
// in ascending byte order so proofs do not need direction bits.
func MerkleRoot(h DocumentHashes) [32]byte {
	leaves := h.Leaves()
	left := hashPair(leaves[0], leaves[1])
	right := hashPair(leaves[2], leaves[3])
	return hashPair(left, right)
}

// DocumentProof returns the sibling path proving the leaf at index.
func DocumentProof(h DocumentHashes, index int) ([][32]byte, error) {
	if index < 0 || index >= DocumentCount {
		return nil, fmt.Errorf("escrow: document index %d out of range", index)
	}
	leaves := h.Leaves()
	sibling := leaves[index^1]
	var uncle [32]byte
	if index < 2 {
		uncle = hashPair(leaves[2], leaves[3])
	} else {
		uncle = hashPair(leaves[0], leaves[1])
	}
	return [][32]byte{sibling, uncle}, nil
}

// VerifyDocument checks that leaf is committed under root via proof.
func VerifyDocument(root, leaf [32]byte, proof [][32]byte) bool {
	computed := leaf
	for _, node := range proof {
		computed = hashPair(computed, node)
	}
	return computed == root
}

func hashPair(a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return ethcrypto.Keccak256Hash(a[:], b[:])
}
