package proof

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const branchKDFSalt = "tribunal-branch-kdf"

// DeriveBranchKey derives a deterministic Ed25519 keypair for a branch from
// a master seed via HKDF-SHA256, with the branch name as info. Each branch
// gets a distinct key so block authorship is individually attributable.
func DeriveBranchKey(masterSeed []byte, branch Branch) (ed25519.PrivateKey, error) {
	if len(masterSeed) == 0 {
		return nil, fmt.Errorf("proof: empty master seed")
	}
	r := hkdf.New(sha256.New, masterSeed, []byte(branchKDFSalt), []byte(branch))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("proof: branch key derivation: %w", err)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// Signer signs blocks on behalf of one branch.
type Signer struct {
	branch Branch
	priv   ed25519.PrivateKey
	keyID  string
}

// NewSigner creates a block signer with a branch key derived from masterSeed.
func NewSigner(masterSeed []byte, branch Branch) (*Signer, error) {
	priv, err := DeriveBranchKey(masterSeed, branch)
	if err != nil {
		return nil, err
	}
	return &Signer{branch: branch, priv: priv, keyID: KeyID(priv.Public().(ed25519.PublicKey))}, nil
}

// Sign attaches a signature over the block's hash. The signature never
// enters the hash itself, so the deterministic chain verdict is unaffected.
func (s *Signer) Sign(b *Block) {
	sig := ed25519.Sign(s.priv, []byte(b.Hash))
	b.Sig = hex.EncodeToString(sig)
	b.Signer = s.keyID
}

// PublicKey returns the signer's verification key.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.priv.Public().(ed25519.PublicKey)
}

// KeyID returns the short identifier used in a block's signer field:
// the first 8 bytes of SHA-256 over the public key, hex-encoded.
func KeyID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:8])
}

// VerifySignature checks a block's signature against pub. Unsigned blocks
// fail; signature checks are authorship evidence, reported separately from
// the chain-validity verdict.
func VerifySignature(pub ed25519.PublicKey, b Block) bool {
	if b.Sig == "" {
		return false
	}
	sig, err := hex.DecodeString(b.Sig)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, []byte(b.Hash), sig)
}
