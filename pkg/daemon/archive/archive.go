// Package archive keeps a Badger-backed history of flushed daily tallies.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/jamesainslie/keepsake/pkg/daemon/ledger"
)

// DateLayout is the layout of day keys.
const DateLayout = "20060102"

// Key prefixes.
const (
	prefixDay  = "d:"
	prefixMeta = "m:"
)

// ErrNotFound is returned when no record exists for a day.
var ErrNotFound = errors.New("no record for day")

// Record is the archived state of one day.
type Record struct {
	Date      string         `json:"date"`
	Total     int            `json:"total"`
	Files     map[string]int `json:"files,omitempty"`
	Events    int            `json:"events"`
	FlushedAt time.Time      `json:"flushed_at"`
}

// Day parses Record.Date in the local zone.
func (r *Record) Day() (time.Time, error) {
	return time.ParseInLocation(DateLayout, r.Date, time.Local)
}

// FromTally builds the record for a flushed tally.
func FromTally(t ledger.Tally, flushedAt time.Time) *Record {
	files := make(map[string]int, len(t.PerFile))
	for k, v := range t.PerFile {
		files[k] = v
	}
	return &Record{
		Date:      t.Day.Format(DateLayout),
		Total:     t.Total,
		Files:     files,
		Events:    len(t.Events),
		FlushedAt: flushedAt,
	}
}

// Archive is the history store.
type Archive struct {
	db *badger.DB
}

// Open opens or creates an archive at path.
func Open(path string) (*Archive, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	a := &Archive{db: db}
	if err := a.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// OpenInMemory opens a throwaway archive.
func OpenInMemory() (*Archive, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	a := &Archive{db: db}
	if err := a.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// Close closes the archive.
func (a *Archive) Close() error {
	return a.db.Close()
}

func dayKey(date string) []byte {
	return []byte(prefixDay + date)
}

// Put stores rec, replacing any record for the same day.
func (a *Archive) Put(rec *Record) error {
	if _, err := time.Parse(DateLayout, rec.Date); err != nil {
		return fmt.Errorf("invalid record date %q: %w", rec.Date, err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(dayKey(rec.Date), data)
	})
}

// Get returns the record for day.
func (a *Archive) Get(day time.Time) (*Record, error) {
	var rec Record
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dayKey(day.Format(DateLayout)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// History returns up to limit records, newest day first. A limit of zero
// or less returns everything.
func (a *Archive) History(limit int) ([]*Record, error) {
	var records []*Record

	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(prefixDay)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts at the first key <= seek.
		seek := []byte(prefixDay + "\xff")
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			if limit > 0 && len(records) >= limit {
				break
			}
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Prune deletes records for days before the given day and returns how many
// were removed.
func (a *Archive) Prune(before time.Time) (int, error) {
	cutoff := before.Format(DateLayout)
	var stale [][]byte

	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixDay)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if string(key[len(prefixDay):]) >= cutoff {
				break
			}
			stale = append(stale, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	wb := a.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range stale {
		if err := wb.Delete(k); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// Stems returns every file stem seen across the archive with its total.
func (a *Archive) Stems() (map[string]int, error) {
	records, err := a.History(0)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]int)
	for _, r := range records {
		for stem, n := range r.Files {
			totals[stem] += n
		}
	}
	return totals, nil
}

// TopStems returns up to n stems ordered by total modifications.
func TopStems(totals map[string]int, n int) []string {
	stems := make([]string, 0, len(totals))
	for s := range totals {
		stems = append(stems, s)
	}
	sort.Slice(stems, func(i, j int) bool {
		if totals[stems[i]] != totals[stems[j]] {
			return totals[stems[i]] > totals[stems[j]]
		}
		return stems[i] < stems[j]
	})
	if n > 0 && len(stems) > n {
		stems = stems[:n]
	}
	return stems
}
