package composer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	key := Key(12, ModeNew, 0)
	in := &Draft{
		ID:        34,
		Content:   "<p>你好，世界</p>",
		Images:    []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"},
		Tags:      []string{"旅行", "美食"},
		UpdatedAt: time.Now().Truncate(time.Millisecond),
	}
	require.NoError(t, store.Save(key, in))

	out, err := store.Load(key)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Content, out.Content)
	assert.Equal(t, in.Images, out.Images)
	assert.Equal(t, in.Tags, out.Tags)
	assert.True(t, in.UpdatedAt.Equal(out.UpdatedAt))
}

func TestFileStoreMissingEntry(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	out, err := store.Load("draft_new_99")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestFileStoreSaveReplacesWholeEntry(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	key := Key(1, ModeEdit, 5)
	require.NoError(t, store.Save(key, &Draft{Content: "<p>v1</p>", Tags: []string{"a", "b"}}))
	require.NoError(t, store.Save(key, &Draft{Content: "<p>v2</p>"}))

	out, err := store.Load(key)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "<p>v2</p>", out.Content)
	assert.Empty(t, out.Tags)
}

func TestFileStoreDeleteIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	key := Key(1, ModeNew, 0)
	require.NoError(t, store.Save(key, &Draft{Content: "<p>x</p>"}))
	require.NoError(t, store.Delete(key))
	require.NoError(t, store.Delete(key))

	out, err := store.Load(key)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestFileStoreCorruptEntryTreatedAsMissing(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	key := Key(1, ModeNew, 0)
	require.NoError(t, os.WriteFile(filepath.Join(dir, key+".json"), []byte("{not json"), 0o644))

	out, err := store.Load(key)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestKeySeparatesModesAndPosts(t *testing.T) {
	assert.Equal(t, "draft_new_7", Key(7, ModeNew, 0))
	assert.Equal(t, "draft_edit_7_21", Key(7, ModeEdit, 21))
	assert.NotEqual(t, Key(7, ModeEdit, 21), Key(7, ModeEdit, 22))
}

func TestIsContentEmpty(t *testing.T) {
	assert.True(t, isContentEmpty(""))
	assert.True(t, isContentEmpty("<p></p>"))
	assert.True(t, isContentEmpty("<p>&nbsp; &nbsp;</p>"))
	assert.True(t, isContentEmpty("<div><br></div>"))
	assert.False(t, isContentEmpty("<p>hi</p>"))
	assert.False(t, isContentEmpty("&lt;tag&gt;"))
}

func TestDraftEmptinessOnSnapshots(t *testing.T) {
	d := Draft{Content: "<p>&nbsp;</p>"}
	// Snapshots are plain values; emptiness is answered without a pointer
	assert.True(t, d.Clone().IsEmpty())

	d.Images = []string{"https://cdn/x.jpg"}
	assert.False(t, d.Clone().IsEmpty())
}
