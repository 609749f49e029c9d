// Package dirstore keeps remote dataset files in a plain directory, such
// as a folder shared between devices by a file sync service.
package dirstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauern/padsync/internal/logging"
	"github.com/klauern/padsync/internal/model"
	"github.com/klauern/padsync/internal/sync"
)

// Store is a directory-backed remote store. A file's stable id is the hex
// SHA-256 of its name.
type Store struct {
	dir string
}

// New returns a store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("remote directory is not configured")
	}
	// #nosec G301 - shared sync folder must be readable by other tools of the user
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create remote directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.dir
}

// StableID returns the id a file named name is known by.
func StableID(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])
}

// FindByStableID returns the dataset file with id, or nil.
func (s *Store) FindByStableID(ctx context.Context, id string) (*sync.FileHandle, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, s.classify("find by id", err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, sync.NewError(sync.KindNetwork, "find by id", err)
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), model.RemoteFileSuffix) {
			continue
		}
		if StableID(e.Name()) == id {
			return s.handle(e.Name())
		}
	}
	return nil, nil
}

// FindByName returns the dataset file called name, or nil.
func (s *Store) FindByName(_ context.Context, name string) (*sync.FileHandle, error) {
	if err := checkName(name); err != nil {
		return nil, sync.NewError(sync.KindInvalidDataset, "find by name", err)
	}
	return s.handle(name)
}

// Download reads and decodes the file, or returns nil if it is gone.
func (s *Store) Download(ctx context.Context, handle sync.FileHandle) (*model.Dataset, error) {
	name := handle.Name
	if name == "" {
		h, err := s.FindByStableID(ctx, handle.ID)
		if err != nil || h == nil {
			return nil, err
		}
		name = h.Name
	}

	// #nosec G304 - name is checked to be a plain file name inside the store directory
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, s.classify("download", err)
	}

	ds, err := model.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, sync.NewError(sync.KindInvalidDataset, "download", err)
	}
	logging.Debug("downloaded dataset", logging.Store("dir"), logging.Path(name), logging.Count(len(data)))
	return ds, nil
}

// Upload writes ds under name. When existing names a different file, the
// old file is removed after the new one is in place.
func (s *Store) Upload(ctx context.Context, name string, ds *model.Dataset, existing *sync.FileHandle) (*sync.FileHandle, error) {
	if err := checkName(name); err != nil {
		return nil, sync.NewError(sync.KindInvalidDataset, "upload", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, sync.NewError(sync.KindNetwork, "upload", err)
	}

	var buf bytes.Buffer
	if err := model.Encode(&buf, ds); err != nil {
		return nil, sync.NewError(sync.KindInvalidDataset, "upload", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, s.classify("upload", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return nil, s.classify("upload", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, s.classify("upload", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return nil, s.classify("upload", err)
	}

	if existing != nil && existing.Name != "" && existing.Name != name {
		if err := os.Remove(filepath.Join(s.dir, existing.Name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.Warn("failed to remove renamed remote file", logging.Path(existing.Name), logging.Err(err))
		}
	}

	logging.Debug("uploaded dataset", logging.Store("dir"), logging.Path(name), logging.Count(buf.Len()))
	return s.handle(name)
}

// List returns every dataset file in the directory.
func (s *Store) List() ([]sync.FileHandle, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, s.classify("list", err)
	}
	var out []sync.FileHandle
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), model.RemoteFileSuffix) {
			continue
		}
		h, err := s.handle(e.Name())
		if err != nil {
			return nil, err
		}
		if h != nil {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (s *Store) handle(name string) (*sync.FileHandle, error) {
	info, err := os.Stat(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, s.classify("stat", err)
	}
	return &sync.FileHandle{ID: StableID(name), Name: name, ModifiedAt: info.ModTime().UTC()}, nil
}

func (s *Store) classify(op string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return sync.NewError(sync.KindRemoteNotFound, op, err)
	}
	return sync.NewError(sync.KindNetwork, op, fmt.Errorf("%s: %w", s.dir, err))
}

func checkName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid remote file name %q", name)
	}
	return nil
}
