// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package tabular

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Source reads delimited rows from one or more files or URLs and returns
// them one at a time as map[string]string keyed by column name. Gzip
// content is detected by the .gz suffix and decompressed transparently.
// Downloads are retried; a resource that keeps failing surfaces its error
// through Record.
type Source struct {
	files      []*file
	maxRetries int
	delimiter  string
	comment    string
	columns    []string

	records chan record
}

// Option is a functional option to pass to NewSource.
type Option func(*Source)

// WithURLs adds URLs (http or local file paths) to the set of resources the
// Source reads, in order.
func WithURLs(urls ...string) Option {
	return func(s *Source) {
		for _, url := range urls {
			s.files = append(s.files, &file{OpenStringer: urlOpener(url)})
		}
	}
}

// WithOpenStringers adds arbitrary re-openable resources.
func WithOpenStringers(os ...OpenStringer) Option {
	return func(s *Source) {
		for _, o := range os {
			s.files = append(s.files, &file{OpenStringer: o})
		}
	}
}

// WithMaxRetries sets the per-resource retry limit (default 3).
func WithMaxRetries(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithDelimiter sets the cell delimiter (default tab).
func WithDelimiter(d string) Option {
	return func(s *Source) {
		s.delimiter = d
	}
}

// WithComment sets a line prefix marking comment lines to skip (the EBI
// mapping files use "!").
func WithComment(prefix string) Option {
	return func(s *Source) {
		s.comment = prefix
	}
}

// WithColumns names the columns of headerless files. When set, the first
// line of each resource is treated as data rather than as a header.
func WithColumns(names ...string) Option {
	return func(s *Source) {
		s.columns = names
	}
}

// NewSource starts reading the configured resources in the background and
// returns the Source. e.g.
//
// src := tabular.NewSource(tabular.WithURLs("entries.tsv", "https://example.org/more.tsv.gz"))
func NewSource(options ...Option) *Source {
	s := &Source{
		records:    make(chan record, 100),
		maxRetries: 3,
		delimiter:  "\t",
	}
	for _, opt := range options {
		opt(s)
	}
	go s.getRecords()
	return s
}

// Record returns the next data row keyed by column name, or io.EOF after
// the last row of the last resource. Empty cells are omitted from the map.
func (s *Source) Record() (map[string]string, error) {
	rec, ok := <-s.records
	if !ok {
		return nil, io.EOF
	}
	return rec.row, rec.err
}

type record struct {
	row map[string]string
	err error
}

func (s *Source) getRecords() {
	for _, f := range s.files {
		s.getRows(f)
	}
	close(s.records)
}

func (s *Source) getRows(f *file) {
	var err error
	for try := 0; try < s.maxRetries; try++ {
		err = s.getRowTry(f)
		if err == nil {
			return
		}
	}
	s.records <- record{err: errors.Wrapf(err, "couldn't fetch '%s' - tried %d times, latest", f, s.maxRetries)}
}

func (s *Source) getRowTry(f *file) error {
	content, err := f.Open()
	if err != nil {
		return errors.Wrap(err, "opening")
	}
	defer content.Close()

	var r io.Reader = content
	if strings.HasSuffix(f.String(), ".gz") {
		gz, err := gzip.NewReader(content)
		if err != nil {
			return errors.Wrapf(err, "gunzipping '%s'", f)
		}
		defer gz.Close()
		r = gz
	}

	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	header := s.columns
	if header == nil {
		if scan.Scan() {
			header = strings.Split(scan.Text(), s.delimiter)
			if f.line == 0 {
				f.line++
			}
		}
	}
	line := 0
	if s.columns == nil {
		line = 1
	}
	// catch up to where a previous failed attempt left off
	for line < f.line && scan.Scan() {
		line++
	}
	for scan.Scan() {
		txt := scan.Text()
		f.line++
		if strings.TrimSpace(txt) == "" {
			continue
		}
		if s.comment != "" && strings.HasPrefix(txt, s.comment) {
			continue
		}
		row, err := parseRow(header, strings.Split(txt, s.delimiter))
		if err != nil {
			s.records <- record{err: errors.Wrapf(err, "file %s: parsing line %d", f, f.line)}
			continue
		}
		s.records <- record{row: row}
	}
	return errors.Wrapf(scan.Err(), "scanning '%s', line %d", f, f.line)
}

func parseRow(header, cells []string) (map[string]string, error) {
	if len(header) > len(cells) {
		return nil, errors.Errorf("header/row len mismatch: %d vs %d, %v and %v", len(header), len(cells), header, cells)
	}
	row := make(map[string]string, len(header))
	for i := 0; i < len(header); i++ {
		if cells[i] == "" {
			continue
		}
		row[header[i]] = cells[i]
	}
	return row, nil
}

// file tracks how far into an OpenStringer we have read, for retries.
type file struct {
	OpenStringer
	line int
}

// Opener is a resource which can be repeatedly opened from the beginning,
// so a failed read can retry the whole resource.
type Opener interface {
	Open() (io.ReadCloser, error)
}

// OpenStringer is an Opener which can also name the resource it opens.
type OpenStringer interface {
	fmt.Stringer
	Opener
}

type urlOpener string

func (u urlOpener) Open() (io.ReadCloser, error) {
	url := string(u)
	if strings.HasPrefix(url, "http") {
		resp, err := http.Get(url)
		if err != nil {
			return nil, errors.Wrap(err, "getting via http")
		}
		if resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, errors.Errorf("http status %s", resp.Status)
		}
		return resp.Body, nil
	}
	f, err := os.Open(url)
	if err != nil {
		return nil, errors.Wrap(err, "opening file")
	}
	return f, nil
}

func (u urlOpener) String() string {
	return string(u)
}
