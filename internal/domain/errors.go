// Package domain defines the calendar sync model, lifecycle rules and collaborator contracts.
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when the user has no active calendar connection.
	ErrNotConnected = errors.New("calendar not connected")
	// ErrSyncInProgress is returned when another sync holds the connection lock.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrInvalidTransition is returned when an event is no longer pending.
	ErrInvalidTransition = errors.New("calendar event already handled")
	// ErrEventNotFound is returned when a staged event cannot be located.
	ErrEventNotFound = errors.New("calendar event not found")
	// ErrConnectionNotFound is returned when a connection cannot be located.
	ErrConnectionNotFound = errors.New("calendar connection not found")
)

// ProviderFetchError records a provider failure for a single event or for the whole fetch.
// It is collected into SyncResult.Errors and never aborts a sync.
type ProviderFetchError struct {
	ProviderEventID string
	Err             error
}

func (e *ProviderFetchError) Error() string {
	if e.ProviderEventID == "" {
		return fmt.Sprintf("provider fetch: %v", e.Err)
	}
	return fmt.Sprintf("provider event %s: %v", e.ProviderEventID, e.Err)
}

func (e *ProviderFetchError) Unwrap() error { return e.Err }

// PersistenceError wraps a storage failure during a transactional operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
