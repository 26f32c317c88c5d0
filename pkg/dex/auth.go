package dex

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/helinwang/matchdex/pkg/calc"
)

// AuthorizationVerifier recovers the account that signed an
// authorization digest. The engine compares it with the registered
// backend.
type AuthorizationVerifier interface {
	Signer(digest common.Hash, sig []byte) (common.Address, error)
}

// Authorization is a single-use backend approval.
type Authorization struct {
	Nonce *big.Int
	Sig   []byte
}

// EthSigner verifies 65 byte [R || S || V] secp256k1 signatures over
// the Ethereum signed message hash of the digest.
type EthSigner struct{}

func (EthSigner) Signer(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}

	s := make([]byte, crypto.SignatureLength)
	copy(s, sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(digest[:]), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// SignAuthorization signs digest the way EthSigner expects, with V
// in {27, 28}.
func SignAuthorization(key *ecdsa.PrivateKey, digest common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(digest[:]), key)
	if err != nil {
		return nil, err
	}

	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// The digests below are packed encodings: addresses are 20 bytes,
// integers are 32 byte big endian words, the side is one byte. Field
// order is the compatibility contract with the signer.

func word(v *big.Int) []byte {
	if v == nil {
		v = new(big.Int)
	}
	return math.U256Bytes(new(big.Int).Set(v))
}

func wordU64(v uint64) []byte {
	return word(new(big.Int).SetUint64(v))
}

// MarketOrderDigest is the digest a backend signs to approve a market
// order.
func MarketOrderDigest(engine, owner, tokenA, tokenB common.Address, amount *big.Int, side calc.Side, slippageBP uint64, nonce *big.Int) common.Hash {
	return crypto.Keccak256Hash(
		engine[:],
		owner[:],
		tokenA[:],
		tokenB[:],
		word(amount),
		[]byte{byte(side)},
		wordU64(slippageBP),
		word(nonce),
	)
}

// MatchDigest is the digest a backend signs to approve a match.
func MatchDigest(engine common.Address, initiating uint64, matched []uint64, nonce *big.Int) common.Hash {
	data := [][]byte{engine[:], wordU64(initiating)}
	for _, id := range matched {
		data = append(data, wordU64(id))
	}
	data = append(data, word(nonce))
	return crypto.Keccak256Hash(data...)
}
