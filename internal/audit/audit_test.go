package audit

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "audit.db")
	l, err := Open(dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestHashCodeIsDeterministicAndHidesSource(t *testing.T) {
	h1 := HashCode("print('secret')")
	h2 := HashCode("print('secret')")
	h3 := HashCode("print('other')")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.NotContains(t, h1, "secret")
}

func TestBeginThenEndPersistsBothRows(t *testing.T) {
	l := newTestLog(t)

	id := l.Begin("user-1", "exec", HashCode("x = 1"), "127.0.0.1")
	assert.NotEmpty(t, id)

	l.End(id, "user-1", "exec", OutcomeSuccess, "", "127.0.0.1")

	var count int
	row := l.db.QueryRow(`SELECT COUNT(*) FROM audit_log WHERE id IN (?, ?)`, id+":begin", id+":end")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 2, count)
}

func TestBeginRowHasNoOutcomeYet(t *testing.T) {
	l := newTestLog(t)
	id := l.Begin("user-1", "exec", "", "")

	var outcome sql.NullString
	row := l.db.QueryRow(`SELECT outcome FROM audit_log WHERE id = ?`, id+":begin")
	require.NoError(t, row.Scan(&outcome))
	assert.Empty(t, outcome.String)
}

func TestEndRowRecordsOutcomeAndDetail(t *testing.T) {
	l := newTestLog(t)
	id := l.Begin("user-1", "exec", "", "")
	l.End(id, "user-1", "exec", OutcomeDenied, "rate limited", "10.0.0.1")

	var outcome, detail string
	row := l.db.QueryRow(`SELECT outcome, detail FROM audit_log WHERE id = ?`, id+":end")
	require.NoError(t, row.Scan(&outcome, &detail))
	assert.Equal(t, string(OutcomeDenied), outcome)
	assert.Equal(t, "rate limited", detail)
}
