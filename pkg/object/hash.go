package object

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/zeebo/blake3"
)

// Algorithm selects the digest function a store keys objects by. Every
// algorithm produces a 32-byte digest, hex-encoded to 64 characters. The
// choice is fixed when a repository is created: changing it renames every
// object, so it is persisted in config rather than guessed.
type Algorithm string

const (
	AlgorithmSHA256 Algorithm = "sha256"
	AlgorithmBLAKE3 Algorithm = "blake3"

	DefaultAlgorithm = AlgorithmSHA256
)

// Valid reports whether a names a known algorithm.
func (a Algorithm) Valid() bool {
	return a == AlgorithmSHA256 || a == AlgorithmBLAKE3
}

// ParseAlgorithm maps a config string to an Algorithm. The empty string
// selects the default.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AlgorithmSHA256:
		return AlgorithmSHA256, nil
	case AlgorithmBLAKE3:
		return AlgorithmBLAKE3, nil
	case "":
		return DefaultAlgorithm, nil
	default:
		return "", fmt.Errorf("unknown hash algorithm %q", s)
	}
}

func (a Algorithm) newHasher() hash.Hash {
	if a == AlgorithmBLAKE3 {
		return blake3.New()
	}
	return sha256.New()
}

// HashBytes computes the raw digest of data and returns it as a lowercase
// hex-encoded Hash.
func (a Algorithm) HashBytes(data []byte) Hash {
	h := a.newHasher()
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// HashObject computes the digest of the envelope "type len\0content",
// mirroring Git's object hashing. The envelope binds kind and length, so a
// blob and a tree with identical payload bytes never share a digest.
func (a Algorithm) HashObject(objType ObjectType, data []byte) Hash {
	header := fmt.Sprintf("%s %d\x00", objType, len(data))
	h := a.newHasher()
	h.Write([]byte(header))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}
