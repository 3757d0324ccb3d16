// Package ids provides the identifier types shared across artifacts: the
// 12-byte sortable group/creation ids and the deterministic 16-byte
// embedding point id.
package ids

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rs/xid"
	"golang.org/x/crypto/sha3"
)

// ID is a 12-byte sortable identifier, used for both group ids (gid) and
// creation ids (cid).
type ID xid.ID

// NewID mints a fresh, time-sortable ID.
func NewID() ID {
	return ID(xid.New())
}

// ParseID parses a 20-character base32 ID string.
func ParseID(s string) (ID, error) {
	x, err := xid.FromString(s)
	if err != nil {
		return ID{}, fmt.Errorf("ids: parse id %q: %w", s, err)
	}
	return ID(x), nil
}

func (id ID) String() string { return xid.ID(id).String() }
func (id ID) Bytes() []byte  { return xid.ID(id).Bytes() }
func (id ID) IsZero() bool   { return xid.ID(id).IsNil() }

// ParseIDBytes reconstructs an ID from its raw 12-byte form, the shape
// stored in tabular columns via Bytes.
func ParseIDBytes(b []byte) (ID, error) {
	x, err := xid.FromBytes(b)
	if err != nil {
		return ID{}, fmt.Errorf("ids: parse id bytes: %w", err)
	}
	return ID(x), nil
}

// UUID is the 16-byte deterministic identifier assigned to an embedding
// point: both the tabular row's primary key suffix and the vector store's
// point id.
type UUID [16]byte

// EmbeddingUUID computes the deterministic point id for an embedding unit:
// the first 16 bytes of SHA3-256(cid || lang639_3 || ids joined by "\x00").
func EmbeddingUUID(cid ID, lang639_3 string, unitIDs []string) UUID {
	h := sha3.New256()
	h.Write(cid.Bytes())
	h.Write([]byte(lang639_3))
	h.Write([]byte(strings.Join(unitIDs, "\x00")))
	sum := h.Sum(nil)
	var u UUID
	copy(u[:], sum[:16])
	return u
}

func (u UUID) String() string {
	return hex.EncodeToString(u[:8]) + "-" + hex.EncodeToString(u[8:])
}

// QdrantString renders the id in the canonical 36-character UUID form
// Qdrant's point-id field expects.
func (u UUID) QdrantString() string {
	s := hex.EncodeToString(u[:])
	return fmt.Sprintf("%s-%s-%s-%s-%s", s[0:8], s[8:12], s[12:16], s[16:20], s[20:32])
}

// ParseUUID parses a canonical dashed (or plain hex) 16-byte uuid string,
// the inverse of QdrantString.
func ParseUUID(s string) (UUID, error) {
	clean := strings.ReplaceAll(s, "-", "")
	b, err := hex.DecodeString(clean)
	if err != nil {
		return UUID{}, fmt.Errorf("ids: parse uuid %q: %w", s, err)
	}
	if len(b) != 16 {
		return UUID{}, fmt.Errorf("ids: parse uuid %q: want 16 bytes, got %d", s, len(b))
	}
	var u UUID
	copy(u[:], b)
	return u, nil
}
