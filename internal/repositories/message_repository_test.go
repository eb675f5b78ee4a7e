package repositories

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDriver records every prepared statement so repository SQL and
// transaction flow can be asserted without a live Postgres.
type stubDriver struct {
	conn *stubConn
}

func (d *stubDriver) Open(name string) (driver.Conn, error) { return d.conn, nil }

type stubConn struct {
	queries    []string
	now        time.Time
	committed  bool
	rolledBack bool
}

func (c *stubConn) Prepare(query string) (driver.Stmt, error) {
	c.queries = append(c.queries, query)
	return &stubStmt{conn: c, query: query}, nil
}

func (c *stubConn) Close() error              { return nil }
func (c *stubConn) Begin() (driver.Tx, error) { return c, nil }
func (c *stubConn) Commit() error             { c.committed = true; return nil }
func (c *stubConn) Rollback() error           { c.rolledBack = true; return nil }

type stubStmt struct {
	conn  *stubConn
	query string
}

func (s *stubStmt) Close() error  { return nil }
func (s *stubStmt) NumInput() int { return -1 }

func (s *stubStmt) Exec(args []driver.Value) (driver.Result, error) {
	return driver.RowsAffected(1), nil
}

func (s *stubStmt) Query(args []driver.Value) (driver.Rows, error) {
	if strings.HasPrefix(s.query, "INSERT INTO messages") {
		return &stubRows{
			columns: []string{"id", "thread_id", "sender_id", "content", "created_at"},
			row:     []driver.Value{int64(11), args[0], args[1], args[2], s.conn.now},
		}, nil
	}
	return &stubRows{}, nil
}

type stubRows struct {
	columns []string
	row     []driver.Value
	done    bool
}

func (r *stubRows) Columns() []string { return r.columns }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.done || r.row == nil {
		return io.EOF
	}
	copy(dest, r.row)
	r.done = true
	return nil
}

var stub = &stubDriver{}

func init() { sql.Register("repostub", stub) }

func newStubDB(t *testing.T) (*sqlx.DB, *stubConn) {
	t.Helper()
	conn := &stubConn{now: time.Now()}
	stub.conn = conn
	db, err := sqlx.Open("repostub", "")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db, conn
}

func TestAppendMessageCommitsInsertAndMonotonicBump(t *testing.T) {
	db, conn := newStubDB(t)
	repo := NewMessageRepo(db)

	msg, err := repo.AppendMessage(context.Background(), 5, 7, "hi")
	require.NoError(t, err)

	assert.Equal(t, 11, msg.ID)
	assert.Equal(t, 5, msg.ThreadID)
	assert.Equal(t, 7, msg.SenderID)
	assert.Equal(t, "hi", msg.Content)

	require.True(t, conn.committed, "expected the transaction to commit")
	require.Len(t, conn.queries, 2)
	assert.Contains(t, conn.queries[0], "INSERT INTO messages")
	// last_activity must never move backwards when appends race.
	assert.Contains(t, conn.queries[1], "GREATEST(last_activity, $1)")
}
