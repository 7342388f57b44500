package extract

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/DocSenseAI/docsense-mvp/engine/domain"
)

func TestSupported(t *testing.T) {
	for _, name := range []string{"a.txt", "b.MD", "c.pdf", "d.xlsx"} {
		if !Supported(name) {
			t.Errorf("Supported(%q) = false", name)
		}
	}
	for _, name := range []string{"e.exe", "f.csv", "noext"} {
		if Supported(name) {
			t.Errorf("Supported(%q) = true", name)
		}
	}
}

func TestFromBytes_PlainText(t *testing.T) {
	got, err := FromBytes("notatka.md", []byte("# Raport\ntresc"))
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if got != "# Raport\ntresc" {
		t.Fatalf("got %q", got)
	}
}

func TestFromBytes_UnsupportedExtension(t *testing.T) {
	_, err := FromBytes("wirus.exe", []byte("x"))
	if !errors.Is(err, domain.ErrUnsupportedFile) {
		t.Fatalf("err = %v, want ErrUnsupportedFile", err)
	}
}

func TestFromBytes_Excel(t *testing.T) {
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Kwartal")
	f.SetCellValue("Sheet1", "B1", "Przychod")
	f.SetCellValue("Sheet1", "A2", "Q1")
	f.SetCellValue("Sheet1", "B2", 120)
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	got, err := FromBytes("dane.xlsx", buf.Bytes())
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	want := "[Arkusz: Sheet1]\nKwartal | Przychod\nQ1 | 120"
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(path, []byte("zawartosc"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if got != "zawartosc" {
		t.Fatalf("got %q", got)
	}

	if _, err := FromFile(filepath.Join(dir, "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
