package backing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rmtbon/contentcache/common"
	"github.com/rmtbon/contentcache/content"
)

func testHasher(t *testing.T) common.Hasher {
	t.Helper()
	h, err := common.LookupHasher("sha1")
	require.NoError(t, err)
	return h
}

func TestMemoryStoreThenLoadRoundTrips(t *testing.T) {
	m := NewMemory(testHasher(t), 4<<20)
	payload := []byte("hello world")

	var gotHash common.Digest
	m.Store(context.Background(), payload, func(h common.Digest, err error) {
		require.NoError(t, err)
		gotHash = h
	})
	require.Equal(t, testHasher(t).Sum(payload), gotHash)
	require.EqualValues(t, 1, m.Len())

	var gotPayload []byte
	var gotEphemeral bool
	var gotErr error
	m.Load(context.Background(), gotHash, func(payload []byte, ephemeral bool, err error) {
		gotPayload, gotEphemeral, gotErr = payload, ephemeral, err
	})
	require.NoError(t, gotErr)
	require.Equal(t, payload, gotPayload)
	require.False(t, gotEphemeral)
}

func TestMemoryLoadMissIsNotFound(t *testing.T) {
	m := NewMemory(testHasher(t), 4<<20)
	hash := testHasher(t).Sum([]byte("missing"))

	var gotErr error
	m.Load(context.Background(), hash, func(_ []byte, _ bool, err error) {
		gotErr = err
	})
	require.Error(t, gotErr)
	var cerr *content.Error
	require.ErrorAs(t, gotErr, &cerr)
	require.Equal(t, content.NotFound, cerr.Kind)
}
