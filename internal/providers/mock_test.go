package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockEmbedDeterministic(t *testing.T) {
	m := NewMockProvider(32)
	a, _, err := m.Embed(context.Background(), EmbedRequest{Inputs: []string{"hello"}})
	require.NoError(t, err)
	b, _, err := m.Embed(context.Background(), EmbedRequest{Inputs: []string{"hello"}})
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a[0], 32)
}

func TestMockEmbedDistinctInputsDiffer(t *testing.T) {
	m := NewMockProvider(32)
	out, _, err := m.Embed(context.Background(), EmbedRequest{Inputs: []string{"alpha", "beta"}})
	require.NoError(t, err)
	require.NotEqual(t, out[0], out[1])
}
