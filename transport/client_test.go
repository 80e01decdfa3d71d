package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rmtbon/contentcache/content"
	"github.com/rmtbon/contentcache/content/backing"
	"github.com/rmtbon/contentcache/params"
)

// TestInProcessClientClimbsToParent wires a non-root cache's Upstream
// collaborator to a root cache's Server via InProcessClient (no real
// RPC hop) and exercises a store landing on the root's backing memory
// store through the full write-through climb.
func TestInProcessClientClimbsToParent(t *testing.T) {
	rootCfg := params.Config{Rank: 0}.WithDefaults()
	require.NoError(t, rootCfg.Validate())
	rootCache, err := content.New(rootCfg)
	require.NoError(t, err)

	mem := backing.NewMemory(testHasher(t), 4<<20)
	require.NoError(t, rootCache.RegisterBacking("mem", mem, mem))

	rootReactor := NewReactor()
	defer rootReactor.Stop()
	rootServer := NewServer(rootCache, rootReactor, nil)

	childReactor := NewReactor()
	defer childReactor.Stop()

	client := NewInProcessClient(rootServer, childReactor)
	upstream := backing.NewUpstream(client, nil)

	childCfg := params.Config{Rank: 1}.WithDefaults()
	require.NoError(t, childCfg.Validate())
	childCache, err := content.New(childCfg, content.WithLoader(upstream), content.WithStorer(upstream))
	require.NoError(t, err)

	childServer := NewServer(childCache, childReactor, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	storeResp, err := childServer.Store(ctx, "", []byte("climb me"))
	require.NoError(t, err)

	loadResp, err := childServer.Load(ctx, storeResp.Hash)
	require.NoError(t, err)
	require.Equal(t, []byte("climb me"), loadResp.Payload)

	rootStats, err := rootServer.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), rootStats.Valid+rootStats.Dirty, "root must have durably received the climbed store")
}
