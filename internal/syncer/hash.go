package syncer

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
)

// ContentHash fingerprints the provider-owned fields of an event. Attendee order is ignored.
func ContentHash(event domain.CalendarEvent) string {
	attendees := make([]string, 0, len(event.Attendees))
	for _, a := range event.Attendees {
		attendees = append(attendees, strings.ToLower(strings.TrimSpace(a.Email))+"|"+a.Name+"|"+a.ResponseStatus)
	}
	sort.Strings(attendees)

	h := sha256.New()
	for _, part := range []string{
		event.Title,
		event.Description,
		event.StartAt.UTC().Format(time.RFC3339Nano),
		event.EndAt.UTC().Format(time.RFC3339Nano),
		event.Location,
		strings.Join(attendees, "\n"),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
