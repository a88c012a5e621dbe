package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/ncruces/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunToCompletionYieldsOneStepPerStatement(t *testing.T) {
	db := openTestDB(t)
	sql := "CREATE TABLE t(x); INSERT INTO t VALUES (1); SELECT * FROM t;"

	results, err := db.Prepare(sql).RunToCompletion()
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, r := range results {
		require.False(t, r.IsFinish())
		assert.True(t, r.Step.Done)
		assert.Equal(t, sql[r.Step.Position.Start():r.Step.Position.End()], r.Step.SQL)
	}
	assert.Nil(t, results[0].Step.Values)
	assert.Nil(t, results[1].Step.Values)
	assert.Equal(t, &Values{
		Columns: []string{"x"},
		Rows:    [][]Value{{Integer(1)}},
	}, results[2].Step.Values)

	// Spans are contiguous and cover the whole text.
	assert.Equal(t, 0, results[0].Step.Position.Start())
	assert.Equal(t, results[0].Step.Position.End(), results[1].Step.Position.Start())
	assert.Equal(t, results[1].Step.Position.End(), results[2].Step.Position.Start())
	assert.Equal(t, len(sql), results[2].Step.Position.End())
}

func TestSyntaxErrorHaltsSequence(t *testing.T) {
	db := openTestDB(t)
	stmts := db.Prepare("SELECT 1; SELEC 2; SELECT 3;")

	results, err := stmts.RunToCompletion()
	require.Len(t, results, 1)

	var engineErr *Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, OpPrepare, engineErr.Op)
	assert.Equal(t, int(sqlite3.ERROR), engineErr.Code&0xff)
	assert.Contains(t, engineErr.Message, "syntax error")

	// The sequence is not restartable.
	stmt, again := stmts.Next()
	assert.Nil(t, stmt)
	assert.Same(t, err, again)
}

func TestStepOneMatchesStepAll(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Exec(`
		CREATE TABLE t(a, b);
		INSERT INTO t VALUES (1, 'one'), (2, 'two'), (3, NULL);
	`))
	const query = "SELECT a, b FROM t ORDER BY a"

	stepped, err := db.Prepare(query).Next()
	require.NoError(t, err)
	defer stepped.Close()

	var rows [][]Value
	var columns []string
	for {
		v, err := stepped.StepOne()
		require.NoError(t, err)
		if v == nil {
			break
		}
		require.Len(t, v.Rows, 1)
		columns = v.Columns
		rows = append(rows, v.Rows...)
	}
	assert.True(t, stepped.Done())

	all, err := db.Prepare(query).Next()
	require.NoError(t, err)
	values, err := all.StepAll()
	require.NoError(t, err)
	require.NoError(t, all.Close())

	assert.Equal(t, values.Columns, columns)
	assert.Equal(t, values.Rows, rows)
}

func TestDecodeFollowsRowType(t *testing.T) {
	db := openTestDB(t)
	stmt, err := db.Prepare(`
		SELECT 1 AS v UNION ALL
		SELECT 2.5 UNION ALL
		SELECT 'héllo' UNION ALL
		SELECT x'00ff' UNION ALL
		SELECT NULL`).Next()
	require.NoError(t, err)

	result, err := stmt.Run()
	require.NoError(t, err)
	assert.Equal(t, []string{"v"}, result.Step.Values.Columns)
	assert.Equal(t, [][]Value{
		{Integer(1)},
		{Float(2.5)},
		{Text("héllo")},
		{Blob([]byte{0x00, 0xff})},
		{Null()},
	}, result.Step.Values.Rows)
}

func TestStepFailureIsReported(t *testing.T) {
	db := openTestDB(t)
	stmt, err := db.Prepare("SELECT abs(-9223372036854775807 - 1)").Next()
	require.NoError(t, err)
	defer stmt.Close()

	_, err = stmt.StepAll()
	var engineErr *Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, OpStep, engineErr.Op)
	assert.Contains(t, engineErr.Message, "integer overflow")
}

func TestCommentsAndBlankTextYieldNothing(t *testing.T) {
	db := openTestDB(t)
	for _, sql := range []string{"", "   \n\t", "-- nothing here\n", "/* block */"} {
		stmt, err := db.Prepare(sql).Next()
		require.NoError(t, err, sql)
		assert.Nil(t, stmt, sql)
	}

	results, err := db.Prepare("SELECT 1; -- trailing comment").RunToCompletion()
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestOpenFailure(t *testing.T) {
	_, err := Open("file:test.db?vfs=no-such-vfs")
	var engineErr *Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, OpOpen, engineErr.Op)
}

type fakeColumns struct {
	names []string
	types []sqlite3.Datatype
	text  [][]byte
}

func (f *fakeColumns) ColumnCount() int                    { return len(f.types) }
func (f *fakeColumns) ColumnName(col int) string           { return f.names[col] }
func (f *fakeColumns) ColumnType(col int) sqlite3.Datatype { return f.types[col] }
func (f *fakeColumns) ColumnInt64(col int) int64           { return 0 }
func (f *fakeColumns) ColumnFloat(col int) float64         { return 0 }
func (f *fakeColumns) ColumnRawText(col int) []byte        { return f.text[col] }
func (f *fakeColumns) ColumnRawBlob(col int) []byte        { return f.text[col] }

func TestDecodeContractViolations(t *testing.T) {
	invalid := &fakeColumns{
		names: []string{"a"},
		types: []sqlite3.Datatype{sqlite3.TEXT},
		text:  [][]byte{{0xff, 0xfe}},
	}
	_, err := decodeRow(invalid)
	assert.ErrorIs(t, err, ErrInvalidText)

	unknown := &fakeColumns{
		names: []string{"a"},
		types: []sqlite3.Datatype{sqlite3.Datatype(42)},
		text:  [][]byte{nil},
	}
	_, err = decodeRow(unknown)
	var typeErr *UnsupportedColumnTypeError
	require.True(t, errors.As(err, &typeErr))
	assert.Equal(t, 42, typeErr.Type)

	badName := &fakeColumns{
		names: []string{"\xff"},
		types: []sqlite3.Datatype{sqlite3.NULL},
	}
	_, err = columnNames(badName)
	assert.ErrorIs(t, err, ErrInvalidColumnName)
}

func TestValueJSON(t *testing.T) {
	row := []Value{Null(), Integer(-7), Float(math.Inf(1)), Text("a\"b"), Blob([]byte("hi"))}
	for _, v := range row {
		data, err := v.MarshalJSON()
		require.NoError(t, err)
		var back Value
		require.NoError(t, back.UnmarshalJSON(data), string(data))
		assert.Equal(t, v, back, string(data))
	}
}
