package digest

import (
	"crypto/sha1"
	"crypto/sha512"
	"hash"
	"strings"

	"github.com/minio/sha256-simd"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"
)

// Algorithm identifies a digest function. The string form is what gets
// persisted in the catalog, so existing values must never change.
type Algorithm string

const (
	SHA1     Algorithm = "sha1"
	SHA2_256 Algorithm = "sha2-256"
	SHA2_384 Algorithm = "sha2-384"
	SHA2_512 Algorithm = "sha2-512"
	SHA3_256 Algorithm = "sha3-256"
	SHA3_384 Algorithm = "sha3-384"
	SHA3_512 Algorithm = "sha3-512"
	BLAKE3   Algorithm = "blake3"
)

// DefaultAlgorithms is the set recorded for every file unless configured otherwise.
var DefaultAlgorithms = []Algorithm{SHA2_256, SHA2_512, SHA3_256}

var constructors = map[Algorithm]func() hash.Hash{
	SHA1:     sha1.New,
	SHA2_256: sha256.New,
	SHA2_384: sha512.New384,
	SHA2_512: sha512.New,
	SHA3_256: func() hash.Hash { return sha3.New256() },
	SHA3_384: func() hash.Hash { return sha3.New384() },
	SHA3_512: func() hash.Hash { return sha3.New512() },
	BLAKE3:   func() hash.Hash { return blake3.New() },
}

// All returns every supported algorithm in a stable order.
func All() []Algorithm {
	return []Algorithm{SHA1, SHA2_256, SHA2_384, SHA2_512, SHA3_256, SHA3_384, SHA3_512, BLAKE3}
}

// ParseAlgorithm accepts the persisted name, case-insensitively.
func ParseAlgorithm(name string) (Algorithm, error) {
	alg := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := constructors[alg]; !ok {
		return "", ErrUnknownAlgorithm.New("%q", name)
	}
	return alg, nil
}

// ParseAlgorithms parses a configured list, rejecting duplicates.
func ParseAlgorithms(names []string) ([]Algorithm, error) {
	algs := make([]Algorithm, 0, len(names))
	for _, name := range names {
		alg, err := ParseAlgorithm(name)
		if err != nil {
			return nil, err
		}
		algs = append(algs, alg)
	}
	if err := validate(algs); err != nil {
		return nil, err
	}
	return algs, nil
}

// Size returns the digest length in bytes.
func (a Algorithm) Size() int {
	switch a {
	case SHA1:
		return sha1.Size
	case SHA2_256, SHA3_256, BLAKE3:
		return 32
	case SHA2_384, SHA3_384:
		return 48
	case SHA2_512, SHA3_512:
		return 64
	default:
		return 0
	}
}

func (a Algorithm) String() string { return string(a) }

func (a Algorithm) newHash() (hash.Hash, error) {
	ctor, ok := constructors[a]
	if !ok {
		return nil, ErrUnknownAlgorithm.New("%q", string(a))
	}
	return ctor(), nil
}

func validate(algs []Algorithm) error {
	if len(algs) == 0 {
		return ErrNoAlgorithms.New("at least one digest algorithm is required")
	}
	seen := make(map[Algorithm]bool, len(algs))
	for _, alg := range algs {
		if _, ok := constructors[alg]; !ok {
			return ErrUnknownAlgorithm.New("%q", string(alg))
		}
		if seen[alg] {
			return ErrDuplicateAlgorithm.New("%q", string(alg))
		}
		seen[alg] = true
	}
	return nil
}
