package directory

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/net/html/charset"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Directory is a parsed server list.
type Directory struct {
	servers []ServerRecord
}

// Len returns the number of server elements found, usable or not.
func (d *Directory) Len() int {
	return len(d.servers)
}

// Records returns the usable server records in document order. Each call
// returns a new sequence starting from the first record.
func (d *Directory) Records() iter.Seq[ServerRecord] {
	return func(yield func(ServerRecord) bool) {
		for _, r := range d.servers {
			if !r.Usable() {
				continue
			}
			if !yield(r) {
				return
			}
		}
	}
}

// ParseFile opens and parses the directory file at path.
func ParseFile(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a directory document from r. The whole document is read
// before returning, so any XML syntax error results in ErrParse.
//
// Server elements are read from the root element if it is named "servers",
// or from the first "servers" child of the root otherwise. gzip and zstd
// compressed documents are decompressed transparently.
func Parse(r io.Reader) (*Directory, error) {
	rc, err := decompress(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	dec.CharsetReader = charset.NewReaderLabel

	d := &Directory{}
	var (
		depth        int
		root         bool
		serversDepth int
		serversDone  bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				if root {
					return nil, fmt.Errorf("%w: extra content after the root element", ErrParse)
				}
				root = true
			}
			switch {
			case serversDepth == 0 && !serversDone && depth <= 2 && t.Name.Local == "servers":
				serversDepth = depth
			case serversDepth > 0 && depth == serversDepth+1 && t.Name.Local == "server":
				d.servers = append(d.servers, newServerRecord(t.Attr))
			}
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				return nil, fmt.Errorf("%w: text outside the root element", ErrParse)
			}
		case xml.EndElement:
			if depth == serversDepth {
				serversDepth = 0
				serversDone = true
			}
			depth--
		}
	}
	if !root {
		return nil, fmt.Errorf("%w: no root element", ErrParse)
	}
	return d, nil
}

func newServerRecord(attrs []xml.Attr) ServerRecord {
	var r ServerRecord
	for _, a := range attrs {
		switch a.Name.Local {
		case "id":
			r.ID = a.Value
		case "country":
			r.Country = a.Value
		case "name":
			r.City = a.Value
		case "sponsor":
			r.Provider = a.Value
		case "url":
			r.URL = a.Value
		}
	}
	return r
}

// decompress returns a reader over the decompressed content of r when r
// starts with a gzip or zstd header, and over r itself otherwise.
func decompress(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(len(zstdMagic))
	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		return gzip.NewReader(br)
	case bytes.HasPrefix(magic, zstdMagic):
		zr, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	default:
		return io.NopCloser(br), nil
	}
}
