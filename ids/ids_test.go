package ids

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddingUUIDDeterministic(t *testing.T) {
	cid, err := ParseID("9m4e2mr0ui3e8a215n4g")
	require.NoError(t, err)

	a := EmbeddingUUID(cid, "eng", []string{"p1", "p2"})
	b := EmbeddingUUID(cid, "eng", []string{"p1", "p2"})
	require.Equal(t, a, b, "identical inputs must yield identical uuid")

	c := EmbeddingUUID(cid, "cmn", []string{"p1", "p2"})
	require.NotEqual(t, a, c, "different language must yield different uuid")

	d := EmbeddingUUID(cid, "eng", []string{"p1", "p2", "p3"})
	require.NotEqual(t, a, d, "different id set must yield different uuid")
}

func TestQdrantStringShape(t *testing.T) {
	var u UUID
	for i := range u {
		u[i] = byte(i)
	}
	s := u.QdrantString()
	require.Len(t, s, 36, "canonical uuid must be 36 characters")
}
