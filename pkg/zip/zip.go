// Package zip bundles in-memory files into a single zip archive.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"time"
)

// Asset is one file destined for an archive.
type Asset struct {
	Filename string
	Data     []byte
}

// Archive writes the assets into an in-memory zip archive. Entries keep
// their given order and share one timestamp.
func Archive(assets []Asset) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	now := time.Now().UTC()

	for _, asset := range assets {
		header := &zip.FileHeader{
			Name:     asset.Filename,
			Method:   zip.Deflate,
			Modified: now,
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", asset.Filename, err)
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil, fmt.Errorf("write %s: %w", asset.Filename, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}
