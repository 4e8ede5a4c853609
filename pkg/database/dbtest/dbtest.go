// Package dbtest opens migrated in-memory sqlite databases for tests.
package dbtest

import (
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"entgo.io/ent/dialect"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/leadledger/pkg/database"
)

var seq atomic.Int64

var nameReplacer = strings.NewReplacer("/", "_", " ", "_", "#", "_")

// Open returns a client on a fresh in-memory database with the schema
// applied. The database is closed when the test finishes.
func Open(t testing.TB) *database.Client {
	t.Helper()

	name := nameReplacer.Replace(t.Name())
	dsn := "file:" + name + "_" + strconv.FormatInt(seq.Add(1), 10) + "?mode=memory&cache=shared"

	client, err := database.Open(database.Options{
		Driver:      dialect.SQLite,
		URL:         dsn,
		AutoMigrate: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}
