// Package ledger implements the persistent wallet ledger: typed entity
// tables over a sqlite store, a single-writer commit queue, and the flag
// vocabulary the tables share. Reads run on the caller; every mutation is a
// batched job committed atomically by the dispatcher.
package ledger

import (
	"strings"
)

// placeholders renders "?,?,?" for an n-element IN clause.
func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func hashArgs(hashes [][]byte) []any {
	args := make([]any, len(hashes))
	for i, h := range hashes {
		args[i] = h
	}
	return args
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
