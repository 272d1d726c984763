// Package jsonfile reads and rewrites the small JSON documents the pipeline keeps on disk.
//
// Reads are tolerant: a missing, empty or corrupt file yields the zero value so that
// persisted state is rebuilt instead of aborting a run. Writes go through a temporary
// file in the same directory followed by a rename.
package jsonfile

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// Load decodes path into v. It reports false when the file is absent or cannot be decoded
func Load(path string, v any) bool {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// LoadArray returns the elements of a JSON array file, or nil when it is absent or malformed
func LoadArray[T any](path string) []T {
	var items []T
	if !Load(path, &items) {
		return nil
	}
	return items
}

// Append adds items to the JSON array stored at path and rewrites the whole file
func Append[T any](path string, items ...T) error {
	existing := LoadArray[T](path)
	return Write(path, append(existing, items...))
}

// Write atomically replaces path with the indented JSON encoding of v
func Write(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode json")
	}
	return WriteBytes(path, append(data, '\n'))
}

// WriteBytes atomically replaces path with data, creating parent directories
func WriteBytes(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "create temp file for %s", path)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "replace %s", path)
	}
	return nil
}
