package geo

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

// Document is the JSON shape the extraction call must return.
type Document struct {
	TaskType  TaskType           `json:"task_type" jsonschema:"enum=NO_MAP_UPDATE,enum=LOCATION_LIST,enum=ROUTE,description=Geographic intent of the assistant message"`
	Text      string             `json:"text" jsonschema:"description=Exact text of the assistant message"`
	Locations []DocumentLocation `json:"locations" jsonschema:"description=Places in the order they are mentioned; empty for NO_MAP_UPDATE"`
}

type DocumentLocation struct {
	ID          string  `json:"id"`
	Title       string  `json:"title" jsonschema:"description=Place name as written in the message"`
	Description string  `json:"description" jsonschema:"description=Short description taken from the message"`
	Latitude    float64 `json:"latitude" jsonschema:"minimum=-90,maximum=90"`
	Longitude   float64 `json:"longitude" jsonschema:"minimum=-180,maximum=180"`
}

var (
	schemaOnce sync.Once
	schemaJSON json.RawMessage
)

// Schema returns the JSON Schema of Document, generated once.
func Schema() json.RawMessage {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
			ExpandedStruct:            true,
		}
		s := r.Reflect(&Document{})
		raw, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			panic("geo: marshal schema: " + err.Error())
		}
		schemaJSON = raw
	})
	return schemaJSON
}
