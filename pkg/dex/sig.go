package dex

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type SK []byte
type PK []byte
type Sig []byte

type Credential struct {
	PK PK
	SK SK
}

func RandKeyPair() (PK, SK) {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return PK(crypto.FromECDSAPub(&key.PublicKey)), SK(crypto.FromECDSA(key))
}

func (p PK) Addr() common.Address {
	pub, err := crypto.UnmarshalPubkey(p)
	if err != nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(*pub)
}

func (s SK) Key() (*ecdsa.PrivateKey, error) {
	return crypto.ToECDSA(s)
}

func (s SK) Addr() common.Address {
	key, err := s.Key()
	if err != nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(key.PublicKey)
}

func (s SK) Sign(msg []byte) Sig {
	key, err := s.Key()
	if err != nil {
		panic(err)
	}

	sig, err := crypto.Sign(crypto.Keccak256(msg), key)
	if err != nil {
		panic(err)
	}

	return Sig(sig)
}

// Recover returns the address that signed msg.
func (s Sig) Recover(msg []byte) (common.Address, error) {
	if len(s) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(s))
	}

	pub, err := crypto.SigToPub(crypto.Keccak256(msg), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

func (s Sig) Verify(msg []byte, pk PK) bool {
	if len(s) < 64 {
		return false
	}
	return crypto.VerifySignature(pk, crypto.Keccak256(msg), s[:64])
}

// SaveCredential writes the secret key of c to path as hex.
func SaveCredential(path string, c Credential) error {
	key, err := c.SK.Key()
	if err != nil {
		return err
	}
	return crypto.SaveECDSA(path, key)
}

// LoadCredential reads a key file written by SaveCredential.
func LoadCredential(path string) (Credential, error) {
	key, err := crypto.LoadECDSA(path)
	if err != nil {
		return Credential{}, fmt.Errorf("error loading credential %s: %w", path, err)
	}

	return Credential{
		PK: PK(crypto.FromECDSAPub(&key.PublicKey)),
		SK: SK(crypto.FromECDSA(key)),
	}, nil
}
