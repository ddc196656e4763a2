// Package tabular reads and writes the delimited files the pipeline trades
// in: gzip tab-separated bulk files with a fixed column schema, uncompressed
// sample files for human inspection, and the upstream tables sources parse.
package tabular

import (
	"compress/gzip"
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// SampleRows is the number of data rows copied into the uncompressed sample
// file next to each bulk file.
const SampleRows = 10

// Writer writes a gzip tab-delimited bulk file plus a small uncompressed
// sample holding the header and the first SampleRows data rows. Output is
// staged in temp files and only moved to the final paths on Close, so an
// aborted dump never leaves a truncated file behind at a committed location.
type Writer struct {
	path       string
	samplePath string
	columns    int
	rows       int

	f  *os.File
	gz *gzip.Writer
	w  *csv.Writer

	sf *os.File
	sw *csv.Writer
}

// NewWriter creates the temp files for path (gzip TSV) and samplePath
// (plain TSV) and writes the header row to both. samplePath may be empty to
// skip the sample. Every subsequent row must have exactly len(header) cells.
func NewWriter(path, samplePath string, header []string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "making output directory")
	}
	w := &Writer{path: path, samplePath: samplePath, columns: len(header)}

	var err error
	w.f, err = os.Create(path + ".tmp")
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s.tmp", path)
	}
	w.gz = gzip.NewWriter(w.f)
	w.w = csv.NewWriter(w.gz)
	w.w.Comma = '\t'

	if samplePath != "" {
		w.sf, err = os.Create(samplePath + ".tmp")
		if err != nil {
			w.Abort()
			return nil, errors.Wrapf(err, "creating %s.tmp", samplePath)
		}
		w.sw = csv.NewWriter(w.sf)
		w.sw.Comma = '\t'
		if err := w.sw.Write(header); err != nil {
			w.Abort()
			return nil, errors.Wrap(err, "writing sample header")
		}
	}
	if err := w.w.Write(header); err != nil {
		w.Abort()
		return nil, errors.Wrap(err, "writing header")
	}
	return w, nil
}

// Write appends one data row.
func (w *Writer) Write(row []string) error {
	if len(row) != w.columns {
		return errors.Errorf("row has %d cells, header has %d", len(row), w.columns)
	}
	if w.sw != nil && w.rows < SampleRows {
		if err := w.sw.Write(row); err != nil {
			return errors.Wrap(err, "writing sample row")
		}
	}
	w.rows++
	return errors.Wrap(w.w.Write(row), "writing row")
}

// Rows returns the number of data rows written so far.
func (w *Writer) Rows() int { return w.rows }

// Close flushes everything and moves the temp files to their final paths.
// On any error the temp files are removed and the final paths are untouched.
func (w *Writer) Close() error {
	if err := w.commit(); err != nil {
		w.Abort()
		return err
	}
	return nil
}

func (w *Writer) commit() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return errors.Wrap(err, "flushing rows")
	}
	if err := w.gz.Close(); err != nil {
		return errors.Wrap(err, "closing gzip stream")
	}
	if err := w.f.Close(); err != nil {
		return errors.Wrap(err, "closing file")
	}
	if w.sw != nil {
		w.sw.Flush()
		if err := w.sw.Error(); err != nil {
			return errors.Wrap(err, "flushing sample")
		}
		if err := w.sf.Close(); err != nil {
			return errors.Wrap(err, "closing sample file")
		}
		if err := os.Rename(w.samplePath+".tmp", w.samplePath); err != nil {
			return errors.Wrap(err, "moving sample into place")
		}
	}
	if err := os.Rename(w.path+".tmp", w.path); err != nil {
		return errors.Wrap(err, "moving output into place")
	}
	return nil
}

// Abort discards the temp files. Safe to call after a failed Close.
func (w *Writer) Abort() {
	if w.f != nil {
		w.f.Close()
		os.Remove(w.path + ".tmp")
	}
	if w.sf != nil {
		w.sf.Close()
		os.Remove(w.samplePath + ".tmp")
	}
}
