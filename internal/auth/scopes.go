package auth

// OAuth scopes checked by the calendar endpoints.
const (
	ScopeCalendarRead  = "calendar:read"
	ScopeCalendarWrite = "calendar:write"
)
