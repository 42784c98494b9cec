package imageinfo

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/sha256-simd"
	"github.com/stretchr/testify/require"
)

func TestCollect_SizeAndDigests(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.bin")
	data := []byte("hello, reconstructable world")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	info, err := Collect(context.Background(), path)
	require.NoError(t, err)

	require.Equal(t, uint64(len(data)), info.Size)

	wantMD5 := md5.Sum(data)
	require.Equal(t, hex.EncodeToString(wantMD5[:]), info.MD5)

	wantSHA256 := sha256.Sum256(data)
	require.Equal(t, hex.EncodeToString(wantSHA256[:]), info.SHA256)
}

func TestCollect_PermissionsReflectFileMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o640))

	info, err := Collect(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o640), info.Permissions)
}

func TestCollect_MissingFileErrors(t *testing.T) {
	_, err := Collect(context.Background(), "/nonexistent/path/to/image")
	require.Error(t, err)
}
