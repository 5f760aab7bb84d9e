package repository

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func putRaw(t *testing.T, r *BboltRepository, path string, raw []byte) {
	t.Helper()

	key, err := Key(path)
	require.NoError(t, err)

	require.NoError(t, r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(entriesBucket)).Put([]byte(key), raw)
	}))
}

func TestCorruptEntries(t *testing.T) {
	repo, err := NewBboltRepository(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer repo.Close()

	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.bin")
	outOfRange := filepath.Join(dir, "range.bin")
	good := filepath.Join(dir, "good.bin")

	putRaw(t, repo, garbage, []byte("{not json"))
	putRaw(t, repo, outOfRange, []byte(`{"path":"x","size":10,"progress":[{"start":0,"end":50}]}`))
	require.NoError(t, repo.Save(&Entry{Path: good, Size: 10}))

	_, err = repo.Find(garbage)
	assert.ErrorIs(t, err, ErrCorruptEntry)

	_, err = repo.Find(outOfRange)
	assert.ErrorIs(t, err, ErrCorruptEntry)

	all, err := repo.FindAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, good, all[0].Path)

	removed, err := repo.Clean(func(*Entry) bool { return false })
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}
