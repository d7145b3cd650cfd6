// Package unpack expands uploaded archives into a flat list of files.
// Zip archives are expanded recursively up to a fixed nesting depth;
// entry names are sanitized so hostile archives cannot escape their
// directory.
package unpack

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
)

// maxDepth bounds zip-in-zip recursion.
const maxDepth = 10

// File is one uploaded or extracted file held in memory.
type File struct {
	Name string
	Data []byte
}

// Unpacker expands archives among uploaded files.
type Unpacker struct {
	logger *slog.Logger
}

// New creates an unpacker.
func New(logger *slog.Logger) *Unpacker {
	return &Unpacker{logger: logger}
}

// Expand returns the input files with every .zip replaced by its
// recursively extracted contents. Corrupt archives are logged and
// skipped; they never fail the whole upload.
func (u *Unpacker) Expand(files []File) []File {
	out := make([]File, 0, len(files))
	for _, f := range files {
		if isZip(f.Name) {
			out = append(out, u.expandZip(f, "", 0)...)
			continue
		}
		out = append(out, f)
	}
	return out
}

func (u *Unpacker) expandZip(f File, prefix string, depth int) []File {
	if depth >= maxDepth {
		u.logger.Warn("Zip nesting too deep, skipping archive",
			"archive", f.Name, "depth", depth)
		return nil
	}

	reader, err := zip.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		u.logger.Warn("Skipping corrupt archive", "archive", f.Name, "error", err)
		return nil
	}

	base := strings.TrimSuffix(path.Base(sanitizeName(f.Name)), ".zip")
	dir := path.Join(prefix, base)

	out := make([]File, 0, len(reader.File))
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		name := sanitizeName(entry.Name)
		if name == "" {
			u.logger.Warn("Skipping archive entry with unusable name",
				"archive", f.Name, "entry", entry.Name)
			continue
		}

		data, err := readEntry(entry)
		if err != nil {
			u.logger.Warn("Skipping unreadable archive entry",
				"archive", f.Name, "entry", entry.Name, "error", err)
			continue
		}

		extracted := File{Name: path.Join(dir, name), Data: data}
		if isZip(name) {
			out = append(out, u.expandZip(extracted, dir, depth+1)...)
			continue
		}
		out = append(out, extracted)
	}
	return out
}

func readEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read entry: %w", err)
	}
	return data, nil
}

// sanitizeName normalizes an archive entry name to a safe relative
// path: backslashes become slashes, drive letters and leading slashes
// are stripped, and ".." segments are removed.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if len(name) >= 2 && name[1] == ':' {
		name = name[2:]
	}
	name = strings.TrimLeft(name, "/")

	parts := strings.Split(name, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "/")
}

func isZip(name string) bool {
	return strings.EqualFold(path.Ext(name), ".zip")
}
