package ziparchive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
	"github.com/resper1965/ncrisis-sub000/internal/core/ports"
)

// Limits bound what a single archive may cost. Every limit is checked
// incrementally while streaming; declared metadata is never trusted alone.
type Limits struct {
	MaxEntries    int
	MaxEntryBytes int64
	MaxRatio      float64
	MaxTotalBytes int64
}

func DefaultLimits() Limits {
	return Limits{
		MaxEntries:    1000,
		MaxEntryBytes: 100 << 20,
		MaxRatio:      100,
		MaxTotalBytes: 500 << 20,
	}
}

// LimitError names the violated limit and the offending entry.
type LimitError struct {
	Limit  string
	Entry  string
	Detail string
}

func (e *LimitError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("limit %s exceeded: %s", e.Limit, e.Detail)
	}
	return fmt.Sprintf("limit %s exceeded on entry %q: %s", e.Limit, e.Entry, e.Detail)
}

const (
	LimitEntryCount = "entry_count"
	LimitPathSafety = "path_safety"
	LimitEntrySize  = "entry_size"
	LimitRatio      = "compression_ratio"
	LimitTotalSize  = "total_size"
)

// Extractor reads a stored archive and yields validated entries. Archives
// are spooled to a temp file (zip needs random access); the spool is always
// removed, and no partial result ever escapes a failed extraction.
type Extractor struct {
	storage ports.ObjectStorage
	limits  Limits
}

func New(storage ports.ObjectStorage, limits Limits) *Extractor {
	def := DefaultLimits()
	if limits.MaxEntries <= 0 {
		limits.MaxEntries = def.MaxEntries
	}
	if limits.MaxEntryBytes <= 0 {
		limits.MaxEntryBytes = def.MaxEntryBytes
	}
	if limits.MaxRatio <= 0 {
		limits.MaxRatio = def.MaxRatio
	}
	if limits.MaxTotalBytes <= 0 {
		limits.MaxTotalBytes = def.MaxTotalBytes
	}
	return &Extractor{storage: storage, limits: limits}
}

func (e *Extractor) Extract(ctx context.Context, storageKey string) ([]domain.ExtractedEntry, error) {
	reader, err := e.storage.Open(ctx, storageKey)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInfrastructure, "open archive", err)
	}
	defer reader.Close()

	spool, err := os.CreateTemp("", "ncrisis-archive-*")
	if err != nil {
		return nil, domain.WrapError(domain.ErrInfrastructure, "spool archive", err)
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	size, err := io.Copy(spool, reader)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInfrastructure, "spool archive", err)
	}

	zr, err := zip.NewReader(spool, size)
	if err != nil {
		return nil, domain.WrapError(domain.ErrValidation, "open zip", err)
	}

	return e.readEntries(ctx, zr)
}

func (e *Extractor) readEntries(ctx context.Context, zr *zip.Reader) ([]domain.ExtractedEntry, error) {
	var (
		entries    []domain.ExtractedEntry
		totalBytes int64
		fileCount  int
	)
	seen := make(map[string]struct{})

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.FileInfo().IsDir() {
			continue
		}

		fileCount++
		if fileCount > e.limits.MaxEntries {
			return nil, extractionErr(&LimitError{
				Limit:  LimitEntryCount,
				Entry:  f.Name,
				Detail: fmt.Sprintf("more than %d entries", e.limits.MaxEntries),
			})
		}

		if reason := unsafePath(f.Name); reason != "" {
			return nil, extractionErr(&LimitError{
				Limit:  LimitPathSafety,
				Entry:  f.Name,
				Detail: reason,
			})
		}

		// Downstream file results are keyed by path; two entries sharing
		// one cleaned path is always a crafted archive.
		cleaned := path.Clean(f.Name)
		if _, dup := seen[cleaned]; dup {
			return nil, extractionErr(&LimitError{
				Limit:  LimitPathSafety,
				Entry:  f.Name,
				Detail: "duplicate entry path",
			})
		}
		seen[cleaned] = struct{}{}

		entry, err := e.readEntry(f, e.limits.MaxTotalBytes-totalBytes)
		if err != nil {
			return nil, err
		}
		totalBytes += entry.UncompressedSize

		if !utf8.ValidString(entry.Text) {
			slog.Debug("skipping binary archive entry", "entry", f.Name, "bytes", entry.UncompressedSize)
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// readEntry streams one entry, counting bytes as they arrive. The per-entry
// size, compression ratio, and remaining aggregate budget are all enforced
// mid-stream, so a forged size field cannot smuggle an oversized payload.
func (e *Extractor) readEntry(f *zip.File, remainingBudget int64) (domain.ExtractedEntry, error) {
	rc, err := f.Open()
	if err != nil {
		return domain.ExtractedEntry{}, domain.WrapError(domain.ErrExtraction, "open entry "+f.Name, err)
	}
	defer rc.Close()

	compressed := int64(f.CompressedSize64)
	if compressed < 1 {
		compressed = 1
	}

	// The hard ceiling for this entry: its own size cap, the ratio cap
	// applied to the bytes actually stored, and whatever aggregate budget
	// the previous entries left over.
	ceiling := e.limits.MaxEntryBytes
	if byRatio := int64(e.limits.MaxRatio * float64(compressed)); byRatio < ceiling {
		ceiling = byRatio
	}
	budgetBound := remainingBudget
	if budgetBound < 0 {
		budgetBound = 0
	}

	var buf strings.Builder
	n, err := io.Copy(&buf, io.LimitReader(rc, minInt64(ceiling, budgetBound)+1))
	if err != nil {
		return domain.ExtractedEntry{}, domain.WrapError(domain.ErrExtraction, "read entry "+f.Name, err)
	}

	switch {
	case n > e.limits.MaxEntryBytes:
		return domain.ExtractedEntry{}, extractionErr(&LimitError{
			Limit:  LimitEntrySize,
			Entry:  f.Name,
			Detail: fmt.Sprintf("exceeds %d bytes uncompressed", e.limits.MaxEntryBytes),
		})
	case n > budgetBound:
		return domain.ExtractedEntry{}, extractionErr(&LimitError{
			Limit:  LimitTotalSize,
			Entry:  f.Name,
			Detail: fmt.Sprintf("aggregate uncompressed size exceeds %d bytes", e.limits.MaxTotalBytes),
		})
	case float64(n)/float64(compressed) > e.limits.MaxRatio:
		return domain.ExtractedEntry{}, extractionErr(&LimitError{
			Limit:  LimitRatio,
			Entry:  f.Name,
			Detail: fmt.Sprintf("compression ratio %.1f:1 exceeds %.0f:1", float64(n)/float64(compressed), e.limits.MaxRatio),
		})
	}

	return domain.ExtractedEntry{
		Path:             path.Clean(f.Name),
		Text:             buf.String(),
		UncompressedSize: n,
		CompressedSize:   int64(f.CompressedSize64),
		Ratio:            float64(n) / float64(compressed),
	}, nil
}

func unsafePath(name string) string {
	if strings.ContainsRune(name, '\x00') {
		return "path contains NUL byte"
	}
	normalized := strings.ReplaceAll(name, `\`, "/")
	if path.IsAbs(normalized) || (len(normalized) > 1 && normalized[1] == ':') {
		return "absolute path"
	}
	cleaned := path.Clean(normalized)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "parent directory traversal"
	}
	return ""
}

func extractionErr(lim *LimitError) error {
	return domain.WrapError(domain.ErrExtraction, "extract archive", lim)
}

// AsLimitError unwraps the violated-limit detail from an extraction error.
func AsLimitError(err error) (*LimitError, bool) {
	var lim *LimitError
	if errors.As(err, &lim) {
		return lim, true
	}
	return nil, false
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
