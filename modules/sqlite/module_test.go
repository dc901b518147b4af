package sqlite

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgrid/internal/datamap"
	"github.com/vk/flowgrid/internal/entity"
	"github.com/vk/flowgrid/internal/testutil"
)

// skipWithoutCgo skips when the driver was built without cgo support.
func skipWithoutCgo(t *testing.T, err error) {
	t.Helper()
	if err != nil && strings.Contains(err.Error(), "CGO_ENABLED=0") {
		t.Skip("go-sqlite3 requires cgo")
	}
}

func TestSQLiteSink_AppendsRows(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx, _ := testutil.Context(t)
	path := filepath.Join(t.TempDir(), "runs.db")
	e, err := New(entity.Base{ID: "db", Config: entity.Config{"path": path, "table": "samples"}})
	require.NoError(t, err)
	sink := e.(entity.Sink)

	// --- Act ---
	for i := int64(1); i <= 2; i++ {
		data := datamap.New()
		data.Set("run", i)
		err := sink.Consume(ctx, data)
		skipWithoutCgo(t, err)
		require.NoError(t, err)
	}

	// --- Assert ---
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT data FROM samples ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()
	var got []string
	for rows.Next() {
		var data string
		require.NoError(t, rows.Scan(&data))
		got = append(got, data)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{`{"run":1}`, `{"run":2}`}, got)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(entity.Base{ID: "db"})
	assert.ErrorContains(t, err, "requires 'path'")

	_, err = New(entity.Base{ID: "db", Config: entity.Config{"path": "x.db", "table": "runs; DROP TABLE x"}})
	assert.ErrorContains(t, err, "invalid table name")
}
