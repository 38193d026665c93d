package ctxprobs

import (
	"database/sql"
	"os"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/kiteco/usr2vec/kite-golib/fileutil"
)

const (
	// windowSizeKey is a reserved key whose score holds the window size the
	// store was built with
	windowSizeKey = "WINDOW_SIZE"

	// lookupChunk stays below sqlite's limit on bound parameters
	lookupChunk = 500

	createTable  = `CREATE TABLE word_pairs(word_pair TEXT PRIMARY KEY, score REAL)`
	insertRecord = `INSERT INTO word_pairs(word_pair, score) VALUES (?, ?)`
	insertPair   = `INSERT INTO word_pairs(word_pair) VALUES (?)`
	updateScore  = `UPDATE word_pairs SET score = ? WHERE word_pair = ?`
	selectScore  = `SELECT score FROM word_pairs WHERE word_pair = ?`
	scanKeys     = `SELECT word_pair FROM word_pairs WHERE word_pair > ? AND word_pair != ? ORDER BY word_pair LIMIT ?`
	countPairs   = `SELECT COUNT(*), COUNT(score) FROM word_pairs WHERE word_pair != ?`
)

// Store maps word pair keys to nullable scores in a sqlite database.
type Store struct {
	db         *sql.DB
	windowSize int
}

// Create initializes an empty store at path for the given window size. If a
// store already exists at path it is opened as is, unless overwrite is set in
// which case it is removed first.
func Create(path string, windowSize int, overwrite bool) (*Store, error) {
	if fileutil.Exists(path) {
		if !overwrite {
			return Open(path)
		}
		if err := os.Remove(path); err != nil {
			return nil, errors.Wrapf(err, "removing %s", path)
		}
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "creating table in %s", path)
	}
	if _, err := db.Exec(insertRecord, windowSizeKey, windowSize); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "recording window size in %s", path)
	}
	return &Store{db: db, windowSize: windowSize}, nil
}

// Open opens an existing store.
func Open(path string) (*Store, error) {
	if !fileutil.Exists(path) {
		return nil, errors.Errorf("no word pair store at %s", path)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	var size sql.NullFloat64
	if err := db.QueryRow(selectScore, windowSizeKey).Scan(&size); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "reading window size from %s", path)
	}
	if !size.Valid || size.Float64 < 1 {
		db.Close()
		return nil, errors.Errorf("invalid window size in %s", path)
	}
	return &Store{db: db, windowSize: int(size.Float64)}, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	// sqlite allows a single writer; sharing one connection avoids "database
	// is locked" errors between the scan and update statements
	db.SetMaxOpenConns(1)
	return db, nil
}

// WindowSize returns the window size the store was built with.
func (s *Store) WindowSize() int {
	return s.windowSize
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertPairs adds unscored pairs. Pairs that are already present are
// skipped; any other error aborts the whole batch.
func (s *Store) InsertPairs(pairs []Pair) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "starting insert transaction")
	}
	stmt, err := tx.Prepare(insertPair)
	if err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "preparing %q", insertPair)
	}
	defer stmt.Close()

	for _, p := range pairs {
		key := p.Key()
		if _, err := stmt.Exec(key); err != nil {
			if isDuplicate(err) {
				continue
			}
			tx.Rollback()
			return errors.Wrapf(err, "inserting pair %q with query %q", key, insertPair)
		}
	}
	return errors.Wrap(tx.Commit(), "committing inserted pairs")
}

func isDuplicate(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}

// Lookup returns the scores of the given keys. Keys that are missing or not
// scored yet are absent from the result.
func (s *Store) Lookup(keys []string) (map[string]float64, error) {
	scores := make(map[string]float64, len(keys))
	for start := 0; start < len(keys); start += lookupChunk {
		end := start + lookupChunk
		if end > len(keys) {
			end = len(keys)
		}
		if err := s.lookupChunk(keys[start:end], scores); err != nil {
			return nil, err
		}
	}
	return scores, nil
}

func (s *Store) lookupChunk(keys []string, scores map[string]float64) error {
	query := `SELECT word_pair, score FROM word_pairs WHERE word_pair IN (?` +
		strings.Repeat(",?", len(keys)-1) + `)`
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return errors.Wrapf(err, "looking up %d keys", len(keys))
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var score sql.NullFloat64
		if err := rows.Scan(&key, &score); err != nil {
			return errors.Wrap(err, "scanning scores")
		}
		if score.Valid {
			scores[key] = score.Float64
		}
	}
	return errors.Wrap(rows.Err(), "iterating scores")
}

// ScanKeys returns up to limit pair keys that sort after the given key, in
// order. Pass "" to start from the beginning.
func (s *Store) ScanKeys(after string, limit int) ([]string, error) {
	rows, err := s.db.Query(scanKeys, after, windowSizeKey, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "scanning keys after %q", after)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.Wrap(err, "scanning key")
		}
		keys = append(keys, key)
	}
	return keys, errors.Wrap(rows.Err(), "iterating keys")
}

// UpdateScores sets scores[i] as the score of keys[i].
func (s *Store) UpdateScores(keys []string, scores []float64) error {
	if len(keys) != len(scores) {
		return errors.Errorf("%d keys but %d scores", len(keys), len(scores))
	}
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "starting update transaction")
	}
	stmt, err := tx.Prepare(updateScore)
	if err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "preparing %q", updateScore)
	}
	defer stmt.Close()

	for i, key := range keys {
		if _, err := stmt.Exec(scores[i], key); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "updating score of %q", key)
		}
	}
	return errors.Wrap(tx.Commit(), "committing scores")
}

// Count returns the number of pairs in the store and how many have a score.
func (s *Store) Count() (total int, scored int, err error) {
	err = s.db.QueryRow(countPairs, windowSizeKey).Scan(&total, &scored)
	return total, scored, errors.Wrap(err, "counting pairs")
}
