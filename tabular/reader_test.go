package tabular_test

import (
	"compress/gzip"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/biokg/biokg/tabular"
	"github.com/biokg/biokg/test"
)

func drain(t *testing.T, src *tabular.Source) []map[string]string {
	var rows []map[string]string
	for {
		row, err := src.Record()
		if err == io.EOF {
			return rows
		}
		test.ErrNil(t, err, "reading record")
		rows = append(rows, row)
	}
}

func TestSourceHeader(t *testing.T) {
	dir, err := ioutil.TempDir("", "tabular")
	test.ErrNil(t, err, "temp dir")
	defer os.RemoveAll(dir)

	path := test.MustWriteFile(t, dir, "data.tsv", "a\tb\tc\n1\t2\t3\n4\t\t6\n")
	rows := drain(t, tabular.NewSource(tabular.WithURLs(path)))
	test.MustBe(t, len(rows), 2, "row count")
	test.MustBe(t, rows[0], map[string]string{"a": "1", "b": "2", "c": "3"}, "first row")
	// empty cells are omitted
	test.MustBe(t, rows[1], map[string]string{"a": "4", "c": "6"}, "second row")
}

func TestSourceHeaderless(t *testing.T) {
	dir, err := ioutil.TempDir("", "tabular")
	test.ErrNil(t, err, "temp dir")
	defer os.RemoveAll(dir)

	path := test.MustWriteFile(t, dir, "data.tsv", "1\t2\n3\t4\n")
	rows := drain(t, tabular.NewSource(
		tabular.WithURLs(path),
		tabular.WithColumns("x", "y"),
	))
	test.MustBe(t, len(rows), 2, "row count")
	test.MustBe(t, rows[0], map[string]string{"x": "1", "y": "2"}, "first row")
}

func TestSourceGzip(t *testing.T) {
	dir, err := ioutil.TempDir("", "tabular")
	test.ErrNil(t, err, "temp dir")
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "data.tsv.gz")
	f, err := os.Create(path)
	test.ErrNil(t, err, "creating gz file")
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte("a\tb\n1\t2\n"))
	test.ErrNil(t, err, "writing gz content")
	test.ErrNil(t, gz.Close(), "closing gz stream")
	test.ErrNil(t, f.Close(), "closing gz file")

	rows := drain(t, tabular.NewSource(tabular.WithURLs(path)))
	test.MustBe(t, len(rows), 1, "row count")
	test.MustBe(t, rows[0], map[string]string{"a": "1", "b": "2"}, "row")
}

func TestSourceCommentAndBlank(t *testing.T) {
	dir, err := ioutil.TempDir("", "tabular")
	test.ErrNil(t, err, "temp dir")
	defer os.RemoveAll(dir)

	path := test.MustWriteFile(t, dir, "data.tsv", "!comment\n1\t2\n\n3\t4\n")
	rows := drain(t, tabular.NewSource(
		tabular.WithURLs(path),
		tabular.WithColumns("x", "y"),
		tabular.WithComment("!"),
	))
	test.MustBe(t, len(rows), 2, "row count")
}

func TestSourceMultipleFiles(t *testing.T) {
	dir, err := ioutil.TempDir("", "tabular")
	test.ErrNil(t, err, "temp dir")
	defer os.RemoveAll(dir)

	p1 := test.MustWriteFile(t, dir, "one.tsv", "a\n1\n")
	p2 := test.MustWriteFile(t, dir, "two.tsv", "a\n2\n")
	rows := drain(t, tabular.NewSource(tabular.WithURLs(p1, p2)))
	test.MustBe(t, len(rows), 2, "rows across files")
	test.MustBe(t, rows[0]["a"], "1", "first file")
	test.MustBe(t, rows[1]["a"], "2", "second file")
}

func TestSourceMissingFile(t *testing.T) {
	src := tabular.NewSource(
		tabular.WithURLs("/no/such/file.tsv"),
		tabular.WithMaxRetries(1),
	)
	_, err := src.Record()
	if err == nil || err == io.EOF {
		t.Fatalf("expected open error, got %v", err)
	}
}
