package reader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/jmagar/taboot/docstore"
	"github.com/jmagar/taboot/extraction"
)

// FileReader walks a directory and turns supported files (txt, md, pdf,
// xlsx) into PENDING documents for the extraction pipeline.
type FileReader struct {
	Dir string
	log *slog.Logger
}

// NewFileReader creates a reader over the given directory.
func NewFileReader(dir string) *FileReader {
	return &FileReader{Dir: dir, log: slog.Default().With("component", "reader")}
}

func (r *FileReader) Read(ctx context.Context) (*Payload, error) {
	info, err := os.Stat(r.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileMissing, r.Dir)
		}
		return nil, fmt.Errorf("reader: stat %s: %w", r.Dir, err)
	}
	if !info.IsDir() {
		doc, err := r.loadFile(r.Dir)
		if err != nil {
			return nil, err
		}
		return &Payload{Documents: []docstore.Document{*doc}}, nil
	}

	var payload Payload
	err = filepath.WalkDir(r.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !supportedExt(path) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := r.loadFile(path)
		if err != nil {
			// One unreadable file must not abort the walk.
			r.log.Warn("skipping file", "path", path, "error", err)
			return nil
		}
		payload.Documents = append(payload.Documents, *doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reader: walking %s: %w", r.Dir, err)
	}
	return &payload, nil
}

func supportedExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".pdf", ".xlsx":
		return true
	}
	return false
}

func (r *FileReader) loadFile(path string) (*docstore.Document, error) {
	var (
		content string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		content, err = readTextFile(path)
	case ".pdf":
		content, err = readPDF(path)
	case ".xlsx":
		content, err = readXLSX(path)
	default:
		return nil, fmt.Errorf("reader: unsupported extension for %s", path)
	}
	if err != nil {
		return nil, err
	}

	hash := sha256.Sum256([]byte(content))
	now := time.Now().UTC()
	return &docstore.Document{
		DocID:           uuid.New(),
		SourceURL:       "file://" + path,
		SourceType:      docstore.SourceFile,
		ContentHash:     hex.EncodeToString(hash[:]),
		Content:         content,
		IngestedAt:      now,
		ExtractionState: extraction.StatePending,
		UpdatedAt:       now,
	}, nil
}

func readTextFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading text file: %w", err)
	}
	return string(data), nil
}

// readPDF extracts the plain text of every page, skipping pages that fail.
func readPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no extractable text in %s", path)
	}
	return b.String(), nil
}

// readXLSX renders every sheet as a pipe-delimited table so Tier A's table
// parser can pick the rows back up.
func readXLSX(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## " + sheet + "\n\n")
		for i, row := range rows {
			b.WriteString("| " + strings.Join(row, " | ") + " |\n")
			if i == 0 {
				b.WriteString("|" + strings.Repeat("---|", len(row)) + "\n")
			}
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no data found in %s", path)
	}
	return b.String(), nil
}
