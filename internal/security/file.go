package security

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// File permission constants
const (
	// PermSecretFile is the permission for files containing secrets.
	PermSecretFile os.FileMode = 0600

	// PermSecretDir is the permission for directories containing secrets.
	PermSecretDir os.FileMode = 0700
)

// File operation errors
var (
	ErrInsecurePermissions = errors.New("security: insecure file permissions")
	ErrFileTooLarge        = errors.New("security: file exceeds maximum size")
	ErrLocked              = errors.New("security: file is locked by another process")
)

// maxKeyFileSize bounds what ReadSecretFile will load for a key.
const maxKeyFileSize = 4096

// WriteSecretFile atomically writes data with owner-only permissions. The
// data goes to a temporary file in the same directory which is synced and
// renamed over path.
func WriteSecretFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, PermSecretDir); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(PermSecretFile); err != nil && runtime.GOOS != "windows" {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	committed = true
	return nil
}

// ReadSecretFile reads a file of at most maxSize bytes, refusing files that
// group or other can access.
func ReadSecretFile(path string, maxSize int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf("%w: %s has mode %04o", ErrInsecurePermissions, path, info.Mode().Perm())
	}
	if info.Size() > maxSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrFileTooLarge, info.Size(), maxSize)
	}

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

// LoadOrCreateKey reads the key at path, generating and persisting a new
// RecommendedKeySize key when the file does not exist. The returned bool
// reports whether the key was created.
func LoadOrCreateKey(path string) ([]byte, bool, error) {
	key, err := ReadSecretFile(path, maxKeyFileSize)
	if err == nil {
		if err := ValidateKeyStrength(key); err != nil {
			return nil, false, fmt.Errorf("key file %s: %w", path, err)
		}
		return key, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("read key file: %w", err)
	}

	key, err = GenerateKey(RecommendedKeySize)
	if err != nil {
		return nil, false, err
	}
	if err := WriteSecretFile(path, key); err != nil {
		Wipe(key)
		return nil, false, fmt.Errorf("write key file: %w", err)
	}
	return key, true, nil
}

// FileLock is an exclusive advisory lock held on a file.
type FileLock struct {
	f *os.File
}

// AcquireLock takes an exclusive lock on path without blocking, creating
// the file if needed. It fails with ErrLocked when another process holds it.
func AcquireLock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), PermSecretDir); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, PermSecretFile)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrLocked, path, err)
	}

	if err := f.Truncate(0); err == nil {
		fmt.Fprintf(f, "%d\n", os.Getpid())
	}
	return &FileLock{f: f}, nil
}

// Release drops the lock and closes the file.
func (l *FileLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
