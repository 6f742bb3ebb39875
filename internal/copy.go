package internal

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// fileHash computes SHA256 hash of a file content
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// copyPreserving copies src to dest through a temp file, keeping the mode
// and modification time of src, then checks the content hash.
func copyPreserving(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return newNotFoundError(src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}

	tmp := dest + ".tmp"
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Chmod(tmp, info.Mode().Perm()); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chtimes(tmp, info.ModTime(), info.ModTime()); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}

	srcHash, err := fileHash(src)
	if err != nil {
		return fmt.Errorf("failed to hash src file %s: %w", src, err)
	}
	destHash, err := fileHash(dest)
	if err != nil {
		return fmt.Errorf("failed to hash dest file %s: %w", dest, err)
	}
	if srcHash != destHash {
		return fmt.Errorf("hash verification failed for %s: %s != %s", dest, srcHash, destHash)
	}
	return nil
}
