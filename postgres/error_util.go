package postgres

import (
	"context"
	"errors"

	"github.com/lib/pq"
)

// IsCancellationError reports errors caused by the caller going away rather
// than by the database.
func IsCancellationError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		if pgErr.Code == "57014" {
			return true
		}
	}

	return errors.Is(err, context.Canceled)
}
