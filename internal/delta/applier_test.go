package delta

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestApplyReconstructsFile(t *testing.T) {
	dir := t.TempDir()
	basisPath := filepath.Join(dir, "basis")
	basis := []byte(strings.Repeat("0123456789", 20))
	if err := os.WriteFile(basisPath, basis, 0o644); err != nil {
		t.Fatal(err)
	}
	basisFile, err := os.Open(basisPath)
	if err != nil {
		t.Fatal(err)
	}
	defer basisFile.Close()

	var script bytes.Buffer
	prev := int64(-1)
	prev, err = EncodeToken(&script, Token{Index: 0, Length: 50}, prev)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := EncodeToken(&script, Token{Literal: []byte("INSERTED")}, prev); err != nil {
		t.Fatal(err)
	}
	if err := WriteTerminator(&script); err != nil {
		t.Fatal(err)
	}

	destPath := filepath.Join(dir, "dest")
	if err := Apply(basisFile, 50, &script, destPath); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatal(err)
	}
	want := append(append([]byte(nil), basis[:50]...), []byte("INSERTED")...)
	if !bytes.Equal(got, want) {
		t.Errorf("reconstructed = %q, want %q", got, want)
	}
}

func TestApplyRejectsShortBasis(t *testing.T) {
	dir := t.TempDir()
	basisPath := filepath.Join(dir, "basis")
	if err := os.WriteFile(basisPath, []byte("short"), 0o644); err != nil {
		t.Fatal(err)
	}
	basisFile, err := os.Open(basisPath)
	if err != nil {
		t.Fatal(err)
	}
	defer basisFile.Close()

	var script bytes.Buffer
	if _, err := EncodeToken(&script, Token{Index: 0, Length: 100}, -1); err != nil {
		t.Fatal(err)
	}
	if err := WriteTerminator(&script); err != nil {
		t.Fatal(err)
	}

	destPath := filepath.Join(dir, "dest")
	if err := Apply(basisFile, 100, &script, destPath); err == nil {
		t.Fatal("expected error for basis shorter than token claims")
	}
	if _, err := os.Stat(destPath); !os.IsNotExist(err) {
		t.Error("destination should not exist after a failed Apply")
	}
}
