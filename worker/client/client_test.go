package client

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/sqlight/engine"
	"github.com/tomyedwab/sqlight/storage"
	"github.com/tomyedwab/sqlight/worker"
	"github.com/tomyedwab/sqlight/worker/host"
	"github.com/tomyedwab/sqlight/worker/types"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	suffix := uuid.NewString()
	store := storage.NewManager(storage.Config{
		MemoryName: "client-memory-" + suffix,
		PoolName:   "client-pool-" + suffix,
		PoolFs:     afero.NewMemMapFs(),
		PoolDir:    "/pool",
	})
	w := worker.New(worker.Config{Storage: store})
	t.Cleanup(func() {
		w.Shutdown()
		store.Close()
	})
	return New(host.New(host.Config{Worker: w}).HandleRequest)
}

func TestThreeStatementScenario(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	id, err := c.Open(ctx, "test.db", false)
	require.NoError(t, err)
	sql := "CREATE TABLE t(x); INSERT INTO t VALUES (1); SELECT * FROM t;"
	require.NoError(t, c.Prepare(ctx, id, sql, false))

	results, err := c.Continue(ctx, id)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, r := range results[:3] {
		require.NotNil(t, r.Step)
		assert.True(t, r.Step.Done)
		assert.Equal(t, sql[r.Step.Position.Start():r.Step.Position.End()], r.Step.SQL)
	}
	assert.Nil(t, results[0].Step.Values)
	assert.Nil(t, results[1].Step.Values)
	assert.Equal(t, &engine.Values{
		Columns: []string{"x"},
		Rows:    [][]engine.Value{{engine.Integer(1)}},
	}, results[2].Step.Values)
	assert.True(t, results[3].IsFinish())
}

func TestSteppingOverTheWire(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	id, err := c.Open(ctx, "test.db", false)
	require.NoError(t, err)
	require.NoError(t, c.Prepare(ctx, id, "SELECT 1.5, x'cafe', NULL, 'text' UNION ALL SELECT 2, 'y', 3, NULL", false))
	require.NoError(t, c.StepIn(ctx, id))

	first, err := c.StepOver(ctx, id)
	require.NoError(t, err)
	assert.False(t, first.Step.Done)
	assert.Equal(t, []engine.Value{
		engine.Float(1.5), engine.Blob([]byte{0xca, 0xfe}), engine.Null(), engine.Text("text"),
	}, first.Step.Values.Rows[0])

	rest, err := c.StepOut(ctx, id)
	require.NoError(t, err)
	assert.True(t, rest.Step.Done)
	assert.Equal(t, []engine.Value{
		engine.Integer(2), engine.Text("y"), engine.Integer(3), engine.Null(),
	}, rest.Step.Values.Rows[0])

	finish, err := c.StepOver(ctx, id)
	require.NoError(t, err)
	assert.True(t, finish.IsFinish())
}

func TestRemoteErrors(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.StepOver(ctx, "missing")
	assert.ErrorIs(t, err, worker.ErrNotFound)

	id, err := c.Open(ctx, "test.db", false)
	require.NoError(t, err)
	_, err = c.StepOver(ctx, id)
	assert.ErrorIs(t, err, worker.ErrInvalidState)

	require.NoError(t, c.Prepare(ctx, id, "SELECT 1; SELEC 2;", false))
	_, err = c.Continue(ctx, id)
	var remote *types.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, types.KindPrepareFailed, remote.Kind)
}

func TestDownloadLoadOverTheWire(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	a, err := c.Open(ctx, "a.db", false)
	require.NoError(t, err)
	require.NoError(t, c.Prepare(ctx, a, "CREATE TABLE t(x); INSERT INTO t VALUES (7);", false))
	_, err = c.Continue(ctx, a)
	require.NoError(t, err)

	filename, data, err := c.DownloadDB(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "a.db", filename)

	b, err := c.Open(ctx, "b.db", false)
	require.NoError(t, err)
	require.NoError(t, c.LoadDB(ctx, b, data))
	require.NoError(t, c.Prepare(ctx, b, "SELECT x FROM t", false))
	results, err := c.Continue(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, [][]engine.Value{{engine.Integer(7)}}, results[0].Step.Values.Rows)

	require.NoError(t, c.Close(ctx, b))
	assert.ErrorIs(t, c.Close(ctx, b), worker.ErrNotFound)
}

func TestMissingCallHost(t *testing.T) {
	_, err := New(nil).Open(context.Background(), "a.db", false)
	assert.Error(t, err)
}
