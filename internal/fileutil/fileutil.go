// Package fileutil holds small file helpers shared by the report writers and
// the run workspace.
package fileutil

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteAtomic streams write's output into a temp file next to path and renames
// it into place, so readers never observe a partial file.
func WriteAtomic(path string, mode os.FileMode, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	buffered := bufio.NewWriter(tmp)
	if err := write(buffered); err != nil {
		cleanup()
		return err
	}
	if err := buffered.Flush(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// WriteFileAtomic writes data to path atomically.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	return WriteAtomic(path, mode, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// CopyFileVerified copies src to dst atomically, then re-reads dst and checks
// that its size and SHA-256 match the source. It returns the hex digest. dst is
// removed on mismatch.
func CopyFileVerified(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	srcHash := sha256.New()
	var copied int64
	err = WriteAtomic(dst, 0o644, func(w io.Writer) error {
		n, err := io.Copy(w, io.TeeReader(in, srcHash))
		copied = n
		return err
	})
	if err != nil {
		return "", fmt.Errorf("copy %s: %w", src, err)
	}

	dstSum, dstSize, err := hashFile(dst)
	if err != nil {
		return "", err
	}
	srcSum := srcHash.Sum(nil)
	if dstSize != copied || !bytes.Equal(srcSum, dstSum) {
		_ = os.Remove(dst)
		return "", fmt.Errorf("verify %s: copy does not match source (%d of %d bytes)", dst, dstSize, copied)
	}
	return hex.EncodeToString(srcSum), nil
}

func hashFile(path string) ([]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return nil, 0, fmt.Errorf("hash %s: %w", path, err)
	}
	return h.Sum(nil), n, nil
}
