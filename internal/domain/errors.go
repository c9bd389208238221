package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound marks a missing collection, conversation or folder. Read
// paths treat it as an empty result rather than a failure.
var ErrNotFound = errors.New("not found")

// ErrOverlapTooLarge is returned when a chunker overlap would prevent the
// window from ever advancing.
var ErrOverlapTooLarge = errors.New("overlap must be smaller than chunk size")

// ConfigError reports a missing or unusable credential or setting. It is
// fatal and surfaced at construction time.
type ConfigError struct {
	Name string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s is not set", e.Name)
}

// BackendError wraps a transport-level failure talking to an external
// capability or the vector backend. Transient by nature; callers may retry.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error during %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// DecodeError reports an input document or audio file that produced no
// usable text. Ingestion surfaces it to the caller.
type DecodeError struct {
	Source string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode %s: %s", e.Source, e.Reason)
}

// PartialDeleteError reports a conversation whose metadata record was
// removed while the cascade over its messages failed, leaving orphans.
type PartialDeleteError struct {
	ConversationID string
	Err            error
}

func (e *PartialDeleteError) Error() string {
	return fmt.Sprintf("conversation %s deleted but message cascade failed: %v", e.ConversationID, e.Err)
}

func (e *PartialDeleteError) Unwrap() error { return e.Err }
