package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"foldersync/internal/util"
	"io"
	"os"
)

func checksum(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	h := sha256.New()
	if _, err := io.Copy(h, util.NewContextReader(ctx, f)); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// linkChecksum hashes the target of a symlink; links are compared as opaque
// entries and never followed.
func linkChecksum(path string) (string, error) {
	target, err := os.Readlink(path)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte("symlink:" + target))
	return hex.EncodeToString(sum[:]), nil
}
