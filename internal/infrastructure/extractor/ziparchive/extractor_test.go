package ziparchive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
)

type memStorage struct {
	objects map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func (s *memStorage) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.objects[key] = raw
	return nil
}

func (s *memStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %q", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *memStorage) Remove(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func storedZip(t *testing.T, storage *memStorage, raw []byte) string {
	t.Helper()
	const key = "archive.zip"
	if err := storage.Save(context.Background(), key, bytes.NewReader(raw)); err != nil {
		t.Fatal(err)
	}
	return key
}

func TestExtractTextEntries(t *testing.T) {
	storage := newMemStorage()
	key := storedZip(t, storage, buildZip(t, map[string]string{
		"docs/cadastro.txt": "CPF 111.444.777-35",
		"notas.md":          "sem dados pessoais",
	}))

	extractor := New(storage, DefaultLimits())
	entries, err := extractor.Extract(context.Background(), key)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	byPath := map[string]domain.ExtractedEntry{}
	for _, e := range entries {
		byPath[e.Path] = e
	}
	entry, ok := byPath["docs/cadastro.txt"]
	if !ok {
		t.Fatalf("missing docs/cadastro.txt, got %v", entries)
	}
	if entry.Text != "CPF 111.444.777-35" {
		t.Errorf("Text = %q", entry.Text)
	}
	if entry.UncompressedSize != int64(len(entry.Text)) {
		t.Errorf("UncompressedSize = %d, want %d", entry.UncompressedSize, len(entry.Text))
	}
}

func TestExtractRejectsTraversalPath(t *testing.T) {
	storage := newMemStorage()
	key := storedZip(t, storage, buildZip(t, map[string]string{
		"../evil.txt": "x",
	}))

	extractor := New(storage, DefaultLimits())
	_, err := extractor.Extract(context.Background(), key)
	if !domain.IsKind(err, domain.ErrExtraction) {
		t.Fatalf("err = %v, want extraction kind", err)
	}
	lim, ok := AsLimitError(err)
	if !ok || lim.Limit != LimitPathSafety {
		t.Fatalf("limit = %+v, want %s", lim, LimitPathSafety)
	}
}

func TestExtractRejectsAbsolutePath(t *testing.T) {
	storage := newMemStorage()
	key := storedZip(t, storage, buildZip(t, map[string]string{
		"/etc/passwd": "x",
	}))

	extractor := New(storage, DefaultLimits())
	_, err := extractor.Extract(context.Background(), key)
	lim, ok := AsLimitError(err)
	if !ok || lim.Limit != LimitPathSafety {
		t.Fatalf("limit = %+v, want %s", lim, LimitPathSafety)
	}
}

func TestExtractRejectsTooManyEntries(t *testing.T) {
	entries := make(map[string]string, 5)
	for i := 0; i < 5; i++ {
		entries[fmt.Sprintf("file%d.txt", i)] = "conteudo"
	}
	storage := newMemStorage()
	key := storedZip(t, storage, buildZip(t, entries))

	limits := DefaultLimits()
	limits.MaxEntries = 3
	extractor := New(storage, limits)

	_, err := extractor.Extract(context.Background(), key)
	lim, ok := AsLimitError(err)
	if !ok || lim.Limit != LimitEntryCount {
		t.Fatalf("limit = %+v, want %s", lim, LimitEntryCount)
	}
}

func TestExtractRejectsOversizedEntry(t *testing.T) {
	storage := newMemStorage()
	key := storedZip(t, storage, buildZip(t, map[string]string{
		"grande.txt": strings.Repeat("linha de texto\n", 100),
	}))

	limits := DefaultLimits()
	limits.MaxEntryBytes = 64
	extractor := New(storage, limits)

	_, err := extractor.Extract(context.Background(), key)
	lim, ok := AsLimitError(err)
	if !ok || lim.Limit != LimitEntrySize {
		t.Fatalf("limit = %+v, want %s", lim, LimitEntrySize)
	}
}

func TestExtractRejectsCompressionBomb(t *testing.T) {
	storage := newMemStorage()
	key := storedZip(t, storage, buildZip(t, map[string]string{
		"bomba.txt": strings.Repeat("0", 1<<16),
	}))

	limits := DefaultLimits()
	limits.MaxRatio = 5
	extractor := New(storage, limits)

	_, err := extractor.Extract(context.Background(), key)
	lim, ok := AsLimitError(err)
	if !ok || lim.Limit != LimitRatio {
		t.Fatalf("limit = %+v, want %s", lim, LimitRatio)
	}
}

func TestExtractRejectsAggregateSize(t *testing.T) {
	storage := newMemStorage()
	key := storedZip(t, storage, buildZip(t, map[string]string{
		"a.txt": strings.Repeat("abcdefgh", 10),
		"b.txt": strings.Repeat("ijklmnop", 10),
	}))

	limits := DefaultLimits()
	limits.MaxTotalBytes = 100
	extractor := New(storage, limits)

	_, err := extractor.Extract(context.Background(), key)
	lim, ok := AsLimitError(err)
	if !ok || lim.Limit != LimitTotalSize {
		t.Fatalf("limit = %+v, want %s", lim, LimitTotalSize)
	}
}

func TestExtractSkipsBinaryEntries(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("imagem.bin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte{0xff, 0xfe, 0x00, 0x81}); err != nil {
		t.Fatal(err)
	}
	w, err = zw.Create("texto.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("conteudo legivel")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	storage := newMemStorage()
	key := storedZip(t, storage, buf.Bytes())

	extractor := New(storage, DefaultLimits())
	entries, err := extractor.Extract(context.Background(), key)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "texto.txt" {
		t.Fatalf("entries = %v, want only texto.txt", entries)
	}
}

func TestExtractRejectsDuplicatePaths(t *testing.T) {
	duplicates := [][]string{
		{"a.txt", "a.txt"},
		{"a.txt", "./a.txt"},
	}
	for _, names := range duplicates {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		for _, name := range names {
			w, err := zw.Create(name)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := w.Write([]byte("conteudo")); err != nil {
				t.Fatal(err)
			}
		}
		if err := zw.Close(); err != nil {
			t.Fatal(err)
		}

		storage := newMemStorage()
		key := storedZip(t, storage, buf.Bytes())

		extractor := New(storage, DefaultLimits())
		_, err := extractor.Extract(context.Background(), key)
		if !domain.IsKind(err, domain.ErrExtraction) {
			t.Fatalf("%v: err = %v, want extraction kind", names, err)
		}
		lim, ok := AsLimitError(err)
		if !ok || lim.Limit != LimitPathSafety {
			t.Fatalf("%v: limit = %+v, want %s", names, lim, LimitPathSafety)
		}
	}
}

func TestExtractRejectsCorruptArchive(t *testing.T) {
	storage := newMemStorage()
	key := storedZip(t, storage, []byte("isto nao é um zip"))

	extractor := New(storage, DefaultLimits())
	_, err := extractor.Extract(context.Background(), key)
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want validation kind", err)
	}
}

func TestUnsafePath(t *testing.T) {
	cases := []struct {
		name string
		safe bool
	}{
		{"docs/arquivo.txt", true},
		{"a/b/../c.txt", true},
		{"../fora.txt", false},
		{"..", false},
		{"/abs.txt", false},
		{`..\windows.txt`, false},
		{"C:/windows.txt", false},
		{"nul\x00byte.txt", false},
	}
	for _, tc := range cases {
		reason := unsafePath(tc.name)
		if tc.safe && reason != "" {
			t.Errorf("unsafePath(%q) = %q, want safe", tc.name, reason)
		}
		if !tc.safe && reason == "" {
			t.Errorf("unsafePath(%q) accepted, want rejection", tc.name)
		}
	}
}
