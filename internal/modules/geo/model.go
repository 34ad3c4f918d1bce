// README: Geographic extraction contract: task types, locations, results and validation errors.
package geo

import (
	"fmt"
	"strings"
)

type TaskType string

const (
	TaskNoMapUpdate  TaskType = "NO_MAP_UPDATE"
	TaskLocationList TaskType = "LOCATION_LIST"
	TaskRoute        TaskType = "ROUTE"
)

// ParseTaskType accepts the wire names case-insensitively.
func ParseTaskType(s string) (TaskType, bool) {
	switch TaskType(strings.ToUpper(strings.TrimSpace(s))) {
	case TaskNoMapUpdate:
		return TaskNoMapUpdate, true
	case TaskLocationList:
		return TaskLocationList, true
	case TaskRoute:
		return TaskRoute, true
	}
	return "", false
}

// Location is one extracted place. Order within a result is the order of mention.
type Location struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Result is a validated extraction. Locations is empty iff TaskType is TaskNoMapUpdate.
type Result struct {
	TaskType   TaskType   `json:"task_type"`
	SourceText string     `json:"text"`
	Locations  []Location `json:"locations"`
	// Dropped lists entries removed for invalid coordinates; they never reach the map.
	Dropped []Dropped `json:"dropped,omitempty"`
}

// Empty is the NO_MAP_UPDATE outcome used when a response cannot be trusted.
func Empty(sourceText string) Result {
	return Result{TaskType: TaskNoMapUpdate, SourceText: sourceText, Locations: []Location{}}
}

type Dropped struct {
	Index  int    `json:"index"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
}

// ValidationError means the extraction response could not be accepted.
type ValidationError struct {
	Reason  string
	Dropped []Dropped
	Raw     string
}

func (e *ValidationError) Error() string {
	if len(e.Dropped) == 0 {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s (%d location(s) rejected)", e.Reason, len(e.Dropped))
}
