package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// smallest valid PNG header plus IHDR chunk
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89,
}

func TestSaveDetectsKind(t *testing.T) {
	store, err := NewStore(t.TempDir(), "static", 1<<20)
	require.NoError(t, err)

	img, err := store.Save("Photo.PNG", bytes.NewReader(pngBytes), "application/octet-stream")
	require.NoError(t, err)
	require.Equal(t, KindImage, img.Kind)
	require.True(t, strings.HasPrefix(img.URL, "/static/"))
	require.True(t, strings.HasSuffix(img.URL, ".png"))
	require.FileExists(t, img.Path)

	doc, err := store.Save("notes.txt", strings.NewReader("hello class"), "")
	require.NoError(t, err)
	require.Equal(t, KindDocument, doc.Kind)
	require.Equal(t, filepath.Base(doc.Path), filepath.Base(doc.URL))
}

func TestSaveRejectsOversize(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "/static", 4)
	require.NoError(t, err)

	_, err = store.Save("big.bin", strings.NewReader("too large"), "")
	require.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestKindOf(t *testing.T) {
	cases := map[string]string{
		"image/jpeg":      KindImage,
		"audio/mpeg":      KindAudio,
		"video/mp4":       KindVideo,
		"application/pdf": KindDocument,
		"":                KindDocument,
	}
	for mime, want := range cases {
		require.Equal(t, want, KindOf(mime), mime)
	}
}
