// Package storage persists the seen-notice state as a single JSON file.
//
// The file is rewritten wholesale on every save through a temporary file and
// an atomic rename, so a crash mid-write leaves the previous state intact.
// Loading is forgiving: a missing, unparseable or oddly shaped file yields a
// fresh state instead of failing the run.
package storage
