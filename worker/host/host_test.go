package host

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/sqlight/storage"
	"github.com/tomyedwab/sqlight/worker"
	"github.com/tomyedwab/sqlight/worker/types"
)

type auditRecord struct {
	command, sessionID, sql, errorKind string
}

type fakeAudit struct {
	mu      sync.Mutex
	records []auditRecord
}

func (a *fakeAudit) LogRequest(command, sessionID, sql, errorKind string, duration time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, auditRecord{command, sessionID, sql, errorKind})
	return nil
}

func newTestHost(t *testing.T, audit AuditLogger) *Host {
	t.Helper()
	suffix := uuid.NewString()
	store := storage.NewManager(storage.Config{
		MemoryName: "host-memory-" + suffix,
		PoolName:   "host-pool-" + suffix,
		PoolFs:     afero.NewMemMapFs(),
		PoolDir:    "/pool",
	})
	w := worker.New(worker.Config{Storage: store})
	t.Cleanup(func() {
		w.Shutdown()
		store.Close()
	})
	return New(Config{Worker: w, Audit: audit})
}

func handle(t *testing.T, h *Host, req string) types.Response {
	t.Helper()
	payload, err := h.HandleRequest(context.Background(), []byte(req))
	require.NoError(t, err)
	var resp types.Response
	require.NoError(t, json.Unmarshal(payload, &resp))
	return resp
}

func TestHandleRequestDispatch(t *testing.T) {
	audit := &fakeAudit{}
	h := newTestHost(t, audit)

	open := handle(t, h, `{"command":"open","filename":"test.db"}`)
	require.Nil(t, open.Error)
	assert.Equal(t, types.CommandOpen, open.Command)
	require.NotEmpty(t, open.ID)

	prepare := handle(t, h, `{"command":"prepare","id":"`+open.ID+`","sql":"SELECT 1 AS a; SELECT 'x' AS b"}`)
	require.Nil(t, prepare.Error)

	over := handle(t, h, `{"command":"step_over","id":"`+open.ID+`"}`)
	require.Nil(t, over.Error)
	require.NotNil(t, over.Result)
	assert.Equal(t, "SELECT 1 AS a;", over.Result.Step.SQL)

	cont := handle(t, h, `{"command":"continue","id":"`+open.ID+`"}`)
	require.Nil(t, cont.Error)
	require.Len(t, cont.Results, 2)
	assert.True(t, cont.Results[1].IsFinish())

	download := handle(t, h, `{"command":"download_db","id":"`+open.ID+`"}`)
	require.Nil(t, download.Error)
	assert.Equal(t, "test.db", download.Filename)

	closed := handle(t, h, `{"command":"close","id":"`+open.ID+`"}`)
	require.Nil(t, closed.Error)

	require.Len(t, audit.records, 6)
	assert.Equal(t, auditRecord{"open", open.ID, "", ""}, audit.records[0])
	assert.Equal(t, "SELECT 1 AS a; SELECT 'x' AS b", audit.records[1].sql)
}

func TestHandleRequestErrors(t *testing.T) {
	audit := &fakeAudit{}
	h := newTestHost(t, audit)

	resp := handle(t, h, `not json`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, types.KindBadRequest, resp.Error.Kind)

	resp = handle(t, h, `{"command":"explode"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, types.KindBadRequest, resp.Error.Kind)
	assert.Equal(t, types.Command("explode"), resp.Command)

	resp = handle(t, h, `{"command":"step_in","id":"nope"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, types.KindNotFound, resp.Error.Kind)
	assert.Equal(t, "nope", resp.ID)

	open := handle(t, h, `{"command":"open","filename":"test.db"}`)
	resp = handle(t, h, `{"command":"step_over","id":"`+open.ID+`"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, types.KindInvalidState, resp.Error.Kind)

	handle(t, h, `{"command":"prepare","id":"`+open.ID+`","sql":"SELECT 1; SELEC 2"}`)
	resp = handle(t, h, `{"command":"continue","id":"`+open.ID+`"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, types.KindPrepareFailed, resp.Error.Kind)
	assert.Equal(t, 1, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "syntax error")

	resp = handle(t, h, `{"command":"load_db","id":"`+open.ID+`","data":"AAAA"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, types.KindLoadDB, resp.Error.Kind)

	// Undecodable payloads are not audited; unknown commands are recorded
	// under a fixed name.
	assert.Equal(t, "unknown", audit.records[0].command)
	assert.Equal(t, string(types.KindNotFound), audit.records[1].errorKind)
}

type pipeConn struct {
	in  chan []byte
	out chan []byte
}

func (c *pipeConn) ReadMessage() ([]byte, error) {
	payload, ok := <-c.in
	if !ok {
		return nil, io.EOF
	}
	return payload, nil
}

func (c *pipeConn) WriteMessage(payload []byte) error {
	c.out <- payload
	return nil
}

func TestServeSendsReadyFirst(t *testing.T) {
	h := newTestHost(t, nil)
	conn := &pipeConn{in: make(chan []byte), out: make(chan []byte, 1)}

	done := make(chan error, 1)
	go func() { done <- h.Serve(context.Background(), conn) }()

	next := func() types.Response {
		var resp types.Response
		require.NoError(t, json.Unmarshal(<-conn.out, &resp))
		return resp
	}

	assert.Equal(t, types.CommandReady, next().Command)

	conn.in <- []byte(`{"command":"open","filename":"a.db"}`)
	open := next()
	require.Nil(t, open.Error)

	conn.in <- []byte(`{"command":"prepare","id":"` + open.ID + `","sql":"SELECT 1"}`)
	require.Nil(t, next().Error)
	conn.in <- []byte(`{"command":"continue","id":"` + open.ID + `"}`)
	cont := next()
	require.Nil(t, cont.Error)
	assert.Len(t, cont.Results, 2)

	close(conn.in)
	require.NoError(t, <-done)
}
