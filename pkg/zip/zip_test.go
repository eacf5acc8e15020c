package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchiveRoundTrip(t *testing.T) {
	assets := []Asset{
		{Filename: "page_1_diff.png", Data: []byte("diff-bytes")},
		{Filename: "page_1_heatmap.png", Data: []byte("heatmap-bytes")},
	}

	raw, err := Archive(assets)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != len(assets) {
		t.Fatalf("got %d entries, want %d", len(zr.File), len(assets))
	}

	for i, f := range zr.File {
		if f.Name != assets[i].Filename {
			t.Errorf("entry %d name = %q, want %q", i, f.Name, assets[i].Filename)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read entry %s: %v", f.Name, err)
		}
		if !bytes.Equal(data, assets[i].Data) {
			t.Errorf("entry %s content = %q, want %q", f.Name, data, assets[i].Data)
		}
	}
}

func TestArchiveEmpty(t *testing.T) {
	raw, err := Archive(nil)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 0 {
		t.Fatalf("got %d entries, want 0", len(zr.File))
	}
}
