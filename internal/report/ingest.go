package report

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/anstrom/scanvault/internal/nmapxml"
)

// DefaultChunkSize is how many bytes ParseAndLoadReader feeds at a time.
const DefaultChunkSize = 64 * 1024

// ParseAndLoad parses a complete nmap XML document.
func ParseAndLoad(document []byte) (ScanResult, error) {
	return ParseAndLoadReader(bytes.NewReader(document))
}

// ParseAndLoadReader parses a document from r, folding each event into the
// Loader as soon as the parser completes it.
func ParseAndLoadReader(r io.Reader) (ScanResult, error) {
	return ParseAndLoadChunked(r, DefaultChunkSize)
}

// ParseAndLoadChunked is ParseAndLoadReader with an explicit read size.
func ParseAndLoadChunked(r io.Reader, chunkSize int) (ScanResult, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	parser := nmapxml.NewParser()
	loader := NewLoader()

	apply := func() error {
		for _, ev := range parser.Drain() {
			if err := loader.Apply(ev); err != nil {
				return err
			}
		}
		return nil
	}

	buf := make([]byte, chunkSize)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if err := parser.Feed(buf[:n]); err != nil {
				return ScanResult{}, err
			}
			if err := apply(); err != nil {
				return ScanResult{}, err
			}
		}
		if stderrors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return ScanResult{}, fmt.Errorf("read document: %w", readErr)
		}
	}

	if err := parser.Finish(); err != nil {
		return ScanResult{}, err
	}
	if err := apply(); err != nil {
		return ScanResult{}, err
	}
	return loader.Result()
}
