package main

import "crypto/sha256"

// merkleRoot builds the Merkle root over an ordered list of 32-byte leaf
// hashes, grounded on original_source/jollycoin/merkle.py. Adjacent nodes
// are paired left-to-right and replaced with SHA256(left||right); an odd
// node out at any level is the LAST element and is promoted unchanged to
// the next level rather than duplicated. Returns an error-free zero value
// for an empty leaf set; callers (block construction) must never call this
// with zero leaves; a height-0 genesis block always has at least one
// transaction.
func merkleRoot(leaves [][32]byte) [32]byte {
	if len(leaves) == 0 {
		return [32]byte{}
	}
	level := leaves
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		i := 0
		for ; i+1 < len(level); i += 2 {
			next = append(next, hashPair(level[i], level[i+1]))
		}
		if i < len(level) {
			// odd node out: promote the last element unchanged
			next = append(next, level[i])
		}
		level = next
	}
	return level[0]
}

func hashPair(left, right [32]byte) [32]byte {
	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
