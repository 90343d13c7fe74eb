package outbox

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	platformevents "github.com/SierraArcega/territory-plan-sub002/internal/platform/events"
)

const activityCreatedSchema = `{
  "type": "object",
  "title": "CalendarActivityCreated",
  "properties": {
    "activity_id": {"type": "string", "minLength": 1},
    "user_id": {"type": "string", "minLength": 1},
    "activity_type": {"type": "string", "minLength": 1},
    "title": {"type": "string"},
    "start_at": {"type": "string", "format": "date-time"},
    "end_at": {"type": "string", "format": "date-time"},
    "status": {"enum": ["planned", "completed"]},
    "source": {"const": "calendar_sync"},
    "calendar_event_id": {"type": "string", "minLength": 1},
    "provider_event_id": {"type": "string"},
    "plan_ids": {"type": "array", "items": {"type": "string"}},
    "district_leaids": {"type": "array", "items": {"type": "string"}},
    "contact_ids": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["activity_id", "user_id", "activity_type", "start_at", "end_at", "status", "source", "calendar_event_id", "plan_ids", "district_leaids", "contact_ids"],
  "additionalProperties": false
}`

const calendarEventStatusChangedSchema = `{
  "type": "object",
  "title": "CalendarEventStatusChanged",
  "properties": {
    "calendar_event_id": {"type": "string", "minLength": 1},
    "connection_id": {"type": "string", "minLength": 1},
    "user_id": {"type": "string", "minLength": 1},
    "status": {"enum": ["confirmed", "dismissed", "cancelled"]},
    "activity_id": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["calendar_event_id", "connection_id", "user_id", "status", "occurred_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps an event type to its JSON schema.
type SchemaCatalogEntry struct {
	Schema    string
	validator *jsonschema.Schema
}

// Validate checks a payload against the compiled schema.
func (e SchemaCatalogEntry) Validate(payload []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return e.validator.Validate(inst)
}

var schemaCatalog = mustCompileCatalog(map[string]string{
	platformevents.TypeActivityCreated:            activityCreatedSchema,
	platformevents.TypeCalendarEventStatusChanged: calendarEventStatusChangedSchema,
})

func mustCompileCatalog(schemas map[string]string) map[string]SchemaCatalogEntry {
	compiler := jsonschema.NewCompiler()
	urls := make(map[string]string, len(schemas))
	for eventType, schema := range schemas {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schema))
		if err != nil {
			panic(fmt.Sprintf("outbox: parse schema %s: %v", eventType, err))
		}
		url := "https://schemas.territory-plan.dev/" + eventType + ".json"
		if err := compiler.AddResource(url, doc); err != nil {
			panic(fmt.Sprintf("outbox: add schema %s: %v", eventType, err))
		}
		urls[eventType] = url
	}

	catalog := make(map[string]SchemaCatalogEntry, len(schemas))
	for eventType, url := range urls {
		compiled, err := compiler.Compile(url)
		if err != nil {
			panic(fmt.Sprintf("outbox: compile schema %s: %v", eventType, err))
		}
		catalog[eventType] = SchemaCatalogEntry{Schema: schemas[eventType], validator: compiled}
	}
	return catalog
}
