package geo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	defaultDescription = "No description available"
)

// decode validates raw against the Document shape and returns a Result.
// Shape violations are fatal. Bad coordinates drop the entry, or the whole
// result when strict is set. Missing cosmetic fields get synthetic values.
func decode(raw, sourceText string, strict bool) (Result, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &top); err != nil || top == nil {
		return Result{}, &ValidationError{Reason: "response is not a JSON object", Raw: raw}
	}

	var name string
	if err := json.Unmarshal(top["task_type"], &name); err != nil {
		return Result{}, &ValidationError{Reason: "task_type must be a string", Raw: raw}
	}
	taskType, ok := ParseTaskType(name)
	if !ok {
		return Result{}, &ValidationError{Reason: fmt.Sprintf("unknown task_type %q", name), Raw: raw}
	}

	if t, ok := top["text"]; ok && !isNull(t) {
		var s string
		if err := json.Unmarshal(t, &s); err != nil {
			return Result{}, &ValidationError{Reason: "text must be a string", Raw: raw}
		}
	}

	var items []json.RawMessage
	locs, present := top["locations"]
	switch {
	case present && !isNull(locs):
		if err := json.Unmarshal(locs, &items); err != nil {
			return Result{}, &ValidationError{Reason: "locations must be an array", Raw: raw}
		}
	case taskType != TaskNoMapUpdate:
		return Result{}, &ValidationError{Reason: "locations missing", Raw: raw}
	}

	if taskType == TaskNoMapUpdate {
		return Empty(sourceText), nil
	}

	res := Result{TaskType: taskType, SourceText: sourceText, Locations: make([]Location, 0, len(items))}
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		loc, reason := decodeLocation(i, item)
		if reason != "" {
			res.Dropped = append(res.Dropped, Dropped{Index: i, Title: loc.Title, Reason: reason})
			continue
		}
		loc.ID = uniqueID(loc.ID, i, seen)
		res.Locations = append(res.Locations, loc)
	}

	if strict && len(res.Dropped) > 0 {
		return Result{}, &ValidationError{Reason: "coordinates out of range", Dropped: res.Dropped, Raw: raw}
	}
	if len(res.Locations) == 0 {
		empty := Empty(sourceText)
		empty.Dropped = res.Dropped
		return empty, nil
	}
	return res, nil
}

func decodeLocation(i int, item json.RawMessage) (Location, string) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
		return Location{}, "entry is not an object"
	}

	loc := Location{
		ID:          scalarString(fields["id"]),
		Title:       scalarString(fields["title"]),
		Description: scalarString(fields["description"]),
	}

	lat, err := coerceFloat(fields["latitude"])
	if err != nil {
		return loc, "latitude " + err.Error()
	}
	lng, err := coerceFloat(fields["longitude"])
	if err != nil {
		return loc, "longitude " + err.Error()
	}
	if lat < -90 || lat > 90 {
		return loc, fmt.Sprintf("latitude %v out of range", lat)
	}
	if lng < -180 || lng > 180 {
		return loc, fmt.Sprintf("longitude %v out of range", lng)
	}
	loc.Latitude, loc.Longitude = lat, lng

	if loc.ID == "" {
		loc.ID = fmt.Sprintf("location-%d", i+1)
	}
	if loc.Title == "" {
		loc.Title = fmt.Sprintf("Location %d", i+1)
	}
	if loc.Description == "" {
		loc.Description = defaultDescription
	}
	return loc, ""
}

// coerceFloat accepts JSON numbers and numeric strings and rejects non-finite values.
func coerceFloat(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || isNull(raw) {
		return 0, fmt.Errorf("missing")
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, fmt.Errorf("is not a number")
		}
		v, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", s)
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("is not finite")
	}
	return v, nil
}

// scalarString renders strings and numbers; anything else counts as absent.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 || isNull(raw) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

func uniqueID(id string, i int, seen map[string]bool) string {
	if seen[id] {
		id = fmt.Sprintf("location-%d", i+1)
		for n := 2; seen[id]; n++ {
			id = fmt.Sprintf("location-%d-%d", i+1, n)
		}
	}
	seen[id] = true
	return id
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
