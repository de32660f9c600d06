package models

import "errors"

// Store-level sentinels. Repositories wrap them so callers can use errors.Is
// without depending on the database driver.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)
