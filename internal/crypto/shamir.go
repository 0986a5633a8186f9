package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// GenerateRootKey generates a 32-byte cryptographically secure random
// root key, suitable for installing into a KeyRing.
func GenerateRootKey() ([]byte, error) {
	key := make([]byte, contentKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating root key: %w", err)
	}
	return key, nil
}

// fieldModulus is the prime defining the finite field Shamir sharing
// operates over: the NIST P-256 curve prime, 2^256 - 2^224 + 2^192 +
// 2^96 - 1. Any prime larger than the secret works; borrowing a
// standard, independently-published one avoids picking an arbitrary
// constant by hand.
var fieldModulus, _ = new(big.Int).SetString(
	"ffffffff00000001000000000000000000000000ffffffffffffffffffffffff", 16)

// Shard is one point on the sharing polynomial, printable for out-of-band
// distribution as "index:hex(value)".
type Shard struct {
	Index int
	Value *big.Int
}

// Text renders a shard as operator-facing text.
func (s Shard) Text() string {
	return fmt.Sprintf("%d:%s", s.Index, s.Value.Text(16))
}

// ParseShard reverses Text.
func ParseShard(s string) (Shard, error) {
	idxPart, valPart, ok := strings.Cut(s, ":")
	if !ok {
		return Shard{}, errors.New("shard must be \"index:hex\"")
	}
	idx, err := strconv.Atoi(idxPart)
	if err != nil || idx < 1 {
		return Shard{}, fmt.Errorf("invalid shard index: %w", err)
	}
	val, ok := new(big.Int).SetString(valPart, 16)
	if !ok {
		return Shard{}, errors.New("invalid shard value")
	}
	return Shard{Index: idx, Value: val}, nil
}

// polynomial is a randomly generated degree-(threshold-1) polynomial over
// fieldModulus whose constant term is the secret being shared.
type polynomial struct {
	coefficients []*big.Int // coefficients[0] is the secret
}

func newSharingPolynomial(secret *big.Int, degree int) (*polynomial, error) {
	coeffs := make([]*big.Int, degree+1)
	coeffs[0] = secret
	for i := 1; i <= degree; i++ {
		c, err := rand.Int(rand.Reader, fieldModulus)
		if err != nil {
			return nil, fmt.Errorf("drawing random coefficient: %w", err)
		}
		coeffs[i] = c
	}
	return &polynomial{coefficients: coeffs}, nil
}

// at evaluates the polynomial at x using Horner's method, reducing mod
// fieldModulus after every step.
func (p *polynomial) at(x int64) *big.Int {
	bx := big.NewInt(x)
	acc := new(big.Int)
	for i := len(p.coefficients) - 1; i >= 0; i-- {
		acc.Mul(acc, bx)
		acc.Add(acc, p.coefficients[i])
		acc.Mod(acc, fieldModulus)
	}
	return acc
}

// SplitRootKey splits a 32-byte root key into `shares` shards, any
// `threshold` of which can reconstruct it. Used by the key-provisioning
// tool to hand operators independently distributable shards instead of
// the raw key.
func SplitRootKey(key []byte, shares, threshold int) ([]Shard, error) {
	if threshold > shares {
		return nil, errors.New("threshold cannot exceed total shares")
	}
	if threshold < 2 {
		return nil, errors.New("threshold must be at least 2")
	}
	if len(key) != contentKeySize {
		return nil, fmt.Errorf("key must be %d bytes", contentKeySize)
	}

	secret := new(big.Int).SetBytes(key)
	if secret.Cmp(fieldModulus) >= 0 {
		return nil, errors.New("key does not fit the sharing field")
	}
	poly, err := newSharingPolynomial(secret, threshold-1)
	if err != nil {
		return nil, err
	}

	out := make([]Shard, shares)
	for i := 0; i < shares; i++ {
		index := i + 1
		out[i] = Shard{Index: index, Value: poly.at(int64(index))}
	}
	return out, nil
}

// invMod computes the modular inverse of a mod fieldModulus via Fermat's
// little theorem (a^(p-2) mod p), avoiding an extended-Euclidean
// implementation of our own.
func invMod(a *big.Int) *big.Int {
	exp := new(big.Int).Sub(fieldModulus, big.NewInt(2))
	return new(big.Int).Exp(a, exp, fieldModulus)
}

// CombineShards reconstructs the secret at x=0 from threshold or more
// shards produced by SplitRootKey, via Lagrange interpolation.
func CombineShards(shards []Shard) ([]byte, error) {
	if len(shards) < 2 {
		return nil, errors.New("need at least 2 shards")
	}

	secret := new(big.Int)
	for i, si := range shards {
		numerator := big.NewInt(1)
		denominator := big.NewInt(1)
		for j, sj := range shards {
			if i == j {
				continue
			}
			xi := big.NewInt(int64(si.Index))
			xj := big.NewInt(int64(sj.Index))

			numerator.Mul(numerator, new(big.Int).Neg(xj))
			numerator.Mod(numerator, fieldModulus)

			denominator.Mul(denominator, new(big.Int).Sub(xi, xj))
			denominator.Mod(denominator, fieldModulus)
		}
		basis := new(big.Int).Mul(numerator, invMod(denominator))
		basis.Mod(basis, fieldModulus)

		term := new(big.Int).Mul(si.Value, basis)
		secret.Add(secret, term)
		secret.Mod(secret, fieldModulus)
	}

	out := make([]byte, contentKeySize)
	raw := secret.Bytes()
	if len(raw) > contentKeySize {
		return nil, errors.New("reconstructed secret too large")
	}
	copy(out[contentKeySize-len(raw):], raw)
	return out, nil
}
