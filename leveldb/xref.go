// Package leveldb provides a persistent identifier cross-reference map
// backed by leveldb. Sources use it to translate identifiers between
// namespaces (e.g. uniprot accessions to hgnc gene ids) without holding the
// whole mapping table in memory or re-parsing it on every run.
package leveldb

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// XrefMap stores directed identifier mappings, one leveldb per (from, to)
// namespace pair.
type XrefMap struct {
	pairs map[string]*leveldb.DB
	dir   string
}

// Errors collects multiple errors into one.
type Errors []error

func (errs Errors) Error() string {
	errstrings := make([]string, len(errs))
	for i, err := range errs {
		errstrings[i] = err.Error()
	}
	return strings.Join(errstrings, "; ")
}

// NewXrefMap opens (creating if needed) the databases for each "from-to"
// namespace pair under dirname.
func NewXrefMap(dirname string, pairs ...string) (*XrefMap, error) {
	x := &XrefMap{
		pairs: make(map[string]*leveldb.DB),
		dir:   dirname,
	}
	if err := os.MkdirAll(dirname, 0700); err != nil {
		return nil, errors.Wrap(err, "making directory")
	}
	for _, pair := range pairs {
		db, err := leveldb.OpenFile(dirname+"/"+pair, &opt.Options{})
		if err != nil {
			return nil, errors.Wrapf(err, "opening leveldb at %v", dirname+"/"+pair)
		}
		x.pairs[pair] = db
	}
	return x, nil
}

// Put stores a mapping in the named pair.
func (x *XrefMap) Put(pair, from, to string) error {
	db, ok := x.pairs[pair]
	if !ok {
		return errors.Errorf("pair %v not found in xref map", pair)
	}
	return errors.Wrapf(db.Put([]byte(from), []byte(to), &opt.WriteOptions{}), "putting %v", from)
}

// Get looks up a mapping. ok is false when the identifier has no entry.
func (x *XrefMap) Get(pair, from string) (to string, ok bool, err error) {
	db, dbok := x.pairs[pair]
	if !dbok {
		return "", false, errors.Errorf("pair %v not found in xref map", pair)
	}
	data, err := db.Get([]byte(from), nil)
	if err == leveldb.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "reading xref map")
	}
	return string(data), true, nil
}

// Len returns the number of entries in the named pair.
func (x *XrefMap) Len(pair string) (n int, err error) {
	db, ok := x.pairs[pair]
	if !ok {
		return 0, errors.Errorf("pair %v not found in xref map", pair)
	}
	iter := db.NewIterator(nil, nil)
	for iter.Next() {
		n++
	}
	iter.Release()
	return n, errors.Wrap(iter.Error(), "iterating xref map")
}

// Close closes all pair databases, collecting any errors.
func (x *XrefMap) Close() error {
	errs := make(Errors, 0)
	for pair, db := range x.pairs {
		if err := db.Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "closing xref pair: %v", pair))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
