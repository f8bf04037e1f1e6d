package secrets

import "errors"

// ErrSecretNotFound is returned when a referenced secret does not exist
// in the store.
var ErrSecretNotFound = errors.New("secrets: not found")
