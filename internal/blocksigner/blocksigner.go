// Package blocksigner gives spec §6.3's abstract "external signer"
// collaborator one concrete implementation: an ECDSA/secp256k1 signer built
// on go-ethereum/crypto, the same curve and hashing the teacher uses for its
// chain-facing transaction signing. A winning Proof is not itself a chain
// object; a block proposer is expected to hash the proof (however its chain
// defines a block digest) and hand that digest here. This package is never
// imported by the mining core (internal/proofgen, internal/plotmanager,
// etc.) — it is wired only from cmd/postminer's mine subcommand.
package blocksigner

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// Signer signs 32-byte digests with a single ECDSA key, the way the
// teacher's blockchain clients hold one configured signing key per process.
type Signer struct {
	key     *ecdsa.PrivateKey
	address string
}

// NewSignerFromHex parses a hex-encoded ECDSA private key (with or without a
// leading "0x"), matching the teacher's private-key parsing idiom.
func NewSignerFromHex(privateKeyHex string) (*Signer, error) {
	if len(privateKeyHex) > 2 && privateKeyHex[:2] == "0x" {
		privateKeyHex = privateKeyHex[2:]
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}, nil
}

// Address returns the signer's Ethereum-style address, useful for logging
// and for a block proposer to advertise who signed a given block.
func (s *Signer) Address() string {
	return s.address
}

// Sign produces a 65-byte recoverable ECDSA signature over digest, which
// must be exactly 32 bytes (a Keccak256 or SHA-256 digest — the caller
// decides the block-digest scheme; this package only signs what it is
// given).
func (s *Signer) Sign(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("blocksigner: digest must be exactly 32 bytes, got %d", len(digest))
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	return sig, nil
}

// Verify reports whether sig is a valid signature over digest by the given
// Ethereum-style address, letting a verifier side check a proposer's block
// signature without holding the private key.
func Verify(address string, digest, sig []byte) (bool, error) {
	if len(digest) != 32 {
		return false, fmt.Errorf("blocksigner: digest must be exactly 32 bytes, got %d", len(digest))
	}
	if len(sig) != 65 {
		return false, fmt.Errorf("blocksigner: signature must be exactly 65 bytes, got %d", len(sig))
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return false, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex() == address, nil
}
