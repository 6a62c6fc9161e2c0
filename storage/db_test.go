package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	require.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, db.Put([]byte("a"), []byte("1")))
	got, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)

	ok, err := db.Has([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)

	batch := NewBatch()
	batch.Put([]byte("b"), []byte("2"))
	batch.Put([]byte("c"), []byte("3"))
	batch.Delete([]byte("a"))
	require.Equal(t, 3, batch.Len())
	require.NoError(t, db.Write(batch))

	ok, err = db.Has([]byte("a"))
	require.NoError(t, err)
	require.False(t, ok)
	got, err = db.Get([]byte("c"))
	require.NoError(t, err)
	require.Equal(t, []byte("3"), got)

	require.NoError(t, db.Delete([]byte("b")))
	_, err = db.Get([]byte("b"))
	require.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, db.Write(nil))
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("abc")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'z'
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewLevelDB(dir)
	require.NoError(t, err)
	exerciseDatabase(t, db1)
	db1.Close()

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get([]byte("c"))
	require.NoError(t, err)
	require.Equal(t, []byte("3"), got)
}
