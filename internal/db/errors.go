package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors returned by the term queries.
var (
	// ErrTermAlreadyExists indicates another record already holds the ontology ID.
	ErrTermAlreadyExists = errors.New("term already exists")

	// ErrTransactionConflict is returned when concurrent writers touched the
	// same term. The load can be rerun.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrNotFound indicates the requested term does not exist.
	ErrNotFound = errors.New("term not found")
)

// wrapQueryError maps known SurrealDB query failures onto the sentinels above.
// Other errors pass through.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, "already contains") || strings.Contains(msg, "already exists") {
			return fmt.Errorf("%w: %s", ErrTermAlreadyExists, msg)
		}
		if strings.Contains(msg, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
		}
	}

	return err
}
