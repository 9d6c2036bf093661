package account

// load.go - reading the flat account file.
//
// Format, one record per line:
//
//	# comment
//	aa-00001, 1234, 100.00
//
// All whitespace is removed and the record is lower-cased before it is
// split on commas.  Bad records are logged and skipped; they never stop
// the load.

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	bankerr "atmbank/internal/errors"
	"atmbank/util"
)

// LoadFile opens path and loads every valid record into s.  The only
// error returned is failure to open or read the file.
func (s *Store) LoadFile(path string, logger *util.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open account file: %w", err)
	}
	defer f.Close()

	logger.Info("loading account data from %s", path)
	n, err := s.Load(f, logger)
	if err != nil {
		return n, fmt.Errorf("read account file %s: %w", path, err)
	}
	logger.Info("finished loading account data: %d accounts", n)
	return n, nil
}

// maxRecordLen bounds one line of the account file.  Longer lines are
// skipped whole.
const maxRecordLen = 4096

// Load reads records from r and returns how many accounts were added.
func (s *Store) Load(r io.Reader, logger *util.Logger) (int, error) {
	br := bufio.NewReaderSize(r, maxRecordLen)
	loaded, line := 0, 0

	for {
		raw, tooLong, err := readRecord(br)
		if err == io.EOF {
			return loaded, nil
		}
		if err != nil {
			return loaded, err
		}
		line++
		if tooLong {
			logger.Warn("account file: %v - ignored", &bankerr.LoadError{Line: line, Record: raw + "...", Err: bankerr.ErrRecordTooLong})
			continue
		}

		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		number, err := s.loadRecord(raw)
		if err != nil {
			logger.Warn("account file: %v - ignored", &bankerr.LoadError{Line: line, Record: raw, Err: err})
			continue
		}
		logger.Verbose("loaded account %q", number)
		loaded++
	}
}

// readRecord returns the next line.  A line that does not fit the
// reader's buffer is consumed to its end and reported as tooLong, with
// only its first few bytes returned.
func readRecord(br *bufio.Reader) (raw string, tooLong bool, err error) {
	b, isPrefix, err := br.ReadLine()
	if err != nil {
		return "", false, err
	}
	if !isPrefix {
		return string(b), false, nil
	}
	head := string(b[:32])
	for isPrefix {
		_, isPrefix, err = br.ReadLine()
		if err == io.EOF {
			return head, true, nil
		}
		if err != nil {
			return head, true, err
		}
	}
	return head, true, nil
}

func (s *Store) loadRecord(raw string) (string, error) {
	rec := strings.ToLower(strings.Join(strings.Fields(raw), ""))
	fields := strings.Split(rec, ",")
	if len(fields) != 3 {
		return "", bankerr.ErrFieldCount
	}

	balance, ok := parsePlain(fields[2])
	if !ok {
		return "", bankerr.ErrInvalidBalance
	}
	if err := s.Add(fields[0], fields[1], balance); err != nil {
		return "", err
	}
	return fields[0], nil
}
