package encryption

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTripLocal(t *testing.T) {
	m := NewManager(nil, "")
	ctx := context.Background()

	sealed, err := m.Seal(ctx, []byte("server-seed-abc123"))
	require.NoError(t, err)
	assert.NotEmpty(t, sealed.EncryptedValue)
	assert.NotEmpty(t, sealed.EncryptedDEK)
	assert.Equal(t, "v1", sealed.Version)

	opened, err := m.Open(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("server-seed-abc123"), opened)
}

func TestOpenSurvivesColdCache(t *testing.T) {
	ctx := context.Background()
	sealed, err := NewManager(nil, "").Seal(ctx, []byte("seed"))
	require.NoError(t, err)

	// a fresh manager has no cached DEK and must unwrap it again
	opened, err := NewManager(nil, "").Open(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("seed"), opened)
}

func TestSealUsesFreshKeyPerCall(t *testing.T) {
	m := NewManager(nil, "")
	ctx := context.Background()

	a, err := m.Seal(ctx, []byte("same"))
	require.NoError(t, err)
	b, err := m.Seal(ctx, []byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, a.EncryptedValue, b.EncryptedValue)
	assert.NotEqual(t, a.EncryptedDEK, b.EncryptedDEK)
}

func TestOpenRejectsTamperedValue(t *testing.T) {
	m := NewManager(nil, "")
	ctx := context.Background()

	sealed, err := m.Seal(ctx, []byte("seed"))
	require.NoError(t, err)
	sealed.EncryptedValue = "AAAA" + sealed.EncryptedValue[4:]

	_, err = m.Open(ctx, sealed)
	assert.Error(t, err)
}

func TestOpenNilEnvelope(t *testing.T) {
	m := NewManager(nil, "")
	_, err := m.Open(context.Background(), nil)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}
