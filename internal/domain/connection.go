package domain

import (
	"context"
	"strings"
	"time"
)

// ConnectionStatus is the health of a calendar connection.
type ConnectionStatus string

const (
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
	ConnectionStatusError        ConnectionStatus = "error"
)

// Provider names accepted for a connection.
const (
	ProviderGoogle  = "google"
	ProviderOutlook = "outlook"
	ProviderICS     = "ics"
)

// CalendarConnection links one user to one external calendar account.
type CalendarConnection struct {
	ID          string
	UserID      string
	Provider    string
	AccountRef  string
	OrgDomain   string
	SyncEnabled bool
	LastSyncAt  *time.Time
	Status      ConnectionStatus
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Active reports whether the connection may be synced.
func (c CalendarConnection) Active() bool {
	return c.SyncEnabled && c.Status != ConnectionStatusDisconnected
}

// NormalizedOrgDomain returns the organization domain lower-cased without a leading "@".
func (c CalendarConnection) NormalizedOrgDomain() string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c.OrgDomain)), "@")
}

// ConnectionSettings carries user-editable connection fields. Nil fields are left untouched.
type ConnectionSettings struct {
	SyncEnabled *bool
	OrgDomain   *string
}

// ConnectionStore persists one connection per user.
type ConnectionStore interface {
	GetConnection(ctx context.Context, connectionID string) (*CalendarConnection, error)
	GetConnectionByUser(ctx context.Context, userID string) (*CalendarConnection, error)
	ListSyncableConnections(ctx context.Context) ([]CalendarConnection, error)
	SaveConnection(ctx context.Context, conn CalendarConnection) error
	UpdateConnectionSettings(ctx context.Context, userID string, settings ConnectionSettings) (*CalendarConnection, error)
	RecordSyncOutcome(ctx context.Context, connectionID string, status ConnectionStatus, syncedAt time.Time, lastError string) error
	DeleteConnection(ctx context.Context, userID string) error
}
