// Package shadowfile reads the colon-separated shadow-style file
// described in spec.md §6: a small, real implementation of a
// collaborator the core spec treats as out of scope, kept here
// because it is cheap and lets tests build an Assignment from a real
// username lookup end to end.
//
// The shape (open, buffered line scan, populate a map) follows the
// teacher's readAddresses function; the difference is field-splitting
// on ':' and placeholder detection instead of one address per line.
package shadowfile

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Entry is one record of the shadow file: a username and its stored
// hash (or placeholder).
type Entry struct {
	Username   string
	StoredHash string
}

// placeholders are the stored-hash values that mean "not crackable",
// per spec.md §3/§6.
var placeholders = map[string]bool{
	"!": true,
	"*": true,
	"x": true,
	"":  true,
}

// Read parses path as a shadow-style file: colon-separated records,
// first field the username, second the hash/placeholder. Blank lines
// and lines beginning with '#' are skipped.
func Read(path string) (map[string]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("shadowfile: opening %s: %w", path, err)
	}
	defer f.Close()

	entries := make(map[string]Entry)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		fields := strings.SplitN(line, ":", 3)
		if len(fields) < 2 {
			continue
		}
		entries[fields[0]] = Entry{Username: fields[0], StoredHash: fields[1]}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("shadowfile: reading %s: %w", path, err)
	}
	return entries, nil
}

// Lookup finds username's entry in entries and reports whether its
// stored hash is crackable (i.e. not one of the locked/placeholder
// markers).
func Lookup(entries map[string]Entry, username string) (Entry, bool) {
	e, ok := entries[username]
	if !ok {
		return Entry{}, false
	}
	return e, !IsPlaceholder(e.StoredHash)
}

// IsPlaceholder reports whether storedHash is one of the "no
// crackable hash" markers: "!", "*", "x", or empty.
func IsPlaceholder(storedHash string) bool {
	return placeholders[storedHash]
}
