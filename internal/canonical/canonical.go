// Package canonical produces deterministic content addresses for claims and
// evidence bundles: RFC 8785 canonical JSON hashed into a CIDv1 (raw, sha2-256).
package canonical

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/ppiankov/verdict/internal/model"
)

// JSON returns the RFC 8785 canonical JSON encoding of v
func JSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical: transform: %w", err)
	}
	return out, nil
}

// CID returns the CIDv1 (raw codec, sha2-256) string of data
func CID(data []byte) (string, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("canonical: multihash: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}

// Hash returns the CID of the canonical JSON encoding of v
func Hash(v any) (string, error) {
	data, err := JSON(v)
	if err != nil {
		return "", err
	}
	return CID(data)
}

// claimContent is the tamper-evident part of a claim
type claimContent struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Statement string `json:"statement"`
	Category  string `json:"category"`
	CreatedAt string `json:"created_at"`
}

// ClaimHash hashes the immutable fields of a claim. Resolution state is excluded.
func ClaimHash(c *model.Claim) (string, error) {
	return Hash(claimContent{
		ID:        c.ID,
		Author:    c.Author.String(),
		Statement: c.Statement,
		Category:  c.Category,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// VerifyClaim recomputes the content hash and compares it with the stored one
func VerifyClaim(c *model.Claim) (bool, error) {
	h, err := ClaimHash(c)
	if err != nil {
		return false, err
	}
	return h == c.ContentHash, nil
}
