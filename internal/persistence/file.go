package persistence

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// DataFile describes a file written by WriteDataFile.
type DataFile struct {
	// Path is the final location of the file.
	Path string
	// Size is the number of bytes read from the source.
	Size int64
}

// WriteDataFile copies r to path. The content is written to a temporary file
// in the same directory and renamed into place, so readers never observe a
// partially written file. Paths ending in ".gz" are gzip-compressed.
func WriteDataFile(path string, r io.Reader) (*DataFile, error) {
	dir := filepath.Dir(path)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, err
	}
	fp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, err
	}
	// Removing after a successful rename fails harmlessly.
	defer os.Remove(fp.Name())

	var writer io.WriteCloser = fp
	if strings.HasSuffix(path, ".gz") {
		writer, err = gzip.NewWriterLevel(fp, gzip.BestSpeed)
		if err != nil {
			fp.Close()
			return nil, err
		}
	}
	size, err := io.Copy(writer, r)
	if err != nil {
		fp.Close()
		return nil, err
	}
	if writer != fp {
		if err := writer.Close(); err != nil {
			fp.Close()
			return nil, err
		}
	}
	if err := fp.Chmod(0644); err != nil {
		fp.Close()
		return nil, err
	}
	if err := fp.Close(); err != nil {
		return nil, err
	}
	if err := os.Rename(fp.Name(), path); err != nil {
		return nil, err
	}
	return &DataFile{
		Path: path,
		Size: size,
	}, nil
}

// IsFresh reports whether the file at path exists and was modified less than
// ttl ago. It also returns the age of the file, if it exists.
func IsFresh(path string, ttl time.Duration) (bool, time.Duration) {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return false, 0
	}
	age := time.Since(fi.ModTime())
	return age < ttl, age
}
