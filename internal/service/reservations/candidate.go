package reservations

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"reservo/backend/internal/domain"
)

const (
	FieldStart      = "start"
	FieldEnd        = "end"
	FieldClientID   = "clientId"
	FieldProviderID = "providerId"
)

// reservationFields is both the whitelist and the order in which missing
// fields are reported.
var reservationFields = []string{FieldStart, FieldEnd, FieldClientID, FieldProviderID}

// Candidate is a proposed reservation awaiting validation.
type Candidate struct {
	Start      time.Time
	End        time.Time
	ClientID   int64
	ProviderID int64
	ExcludeID  int64
}

func (c Candidate) Window() domain.Window {
	return domain.Window{Start: c.Start, End: c.End}
}

func (c Candidate) reservation(id int64) domain.Reservation {
	return domain.Reservation{
		ID:         id,
		Start:      c.Start,
		End:        c.End,
		ClientID:   c.ClientID,
		ProviderID: c.ProviderID,
	}
}

// Patch holds the fields supplied to a partial update. Nil fields keep the
// stored value.
type Patch struct {
	Start      *time.Time
	End        *time.Time
	ClientID   *int64
	ProviderID *int64
}

// Apply merges p over the stored reservation and returns the candidate that
// replaces it.
func (p Patch) Apply(stored domain.Reservation) Candidate {
	c := Candidate{
		Start:      stored.Start,
		End:        stored.End,
		ClientID:   stored.ClientID,
		ProviderID: stored.ProviderID,
		ExcludeID:  stored.ID,
	}
	if p.Start != nil {
		c.Start = *p.Start
	}
	if p.End != nil {
		c.End = *p.End
	}
	if p.ClientID != nil {
		c.ClientID = *p.ClientID
	}
	if p.ProviderID != nil {
		c.ProviderID = *p.ProviderID
	}
	return c
}

// ParseCandidate reads a create or full-update body. All four fields are
// required; the first missing one is reported. JSON null counts as missing.
func ParseCandidate(body map[string]json.RawMessage, loc *time.Location) (Candidate, error) {
	for _, field := range reservationFields {
		if !present(body, field) {
			return Candidate{}, missingFieldError(field)
		}
	}

	var c Candidate
	var err error
	if c.Start, err = parseTime(body, FieldStart, loc); err != nil {
		return Candidate{}, err
	}
	if c.End, err = parseTime(body, FieldEnd, loc); err != nil {
		return Candidate{}, err
	}
	if c.ClientID, err = parseRef(body, FieldClientID); err != nil {
		return Candidate{}, err
	}
	if c.ProviderID, err = parseRef(body, FieldProviderID); err != nil {
		return Candidate{}, err
	}
	return c, nil
}

// ParsePatch reads a partial-update body. Unknown keys are rejected before
// any value is looked at.
func ParsePatch(body map[string]json.RawMessage, loc *time.Location) (Patch, error) {
	if err := checkPatchKeys(body); err != nil {
		return Patch{}, err
	}
	return parsePatchValues(body, loc)
}

func checkPatchKeys(body map[string]json.RawMessage) error {
	for key := range body {
		if !isReservationField(key) {
			return unacceptedParameterError(key)
		}
	}
	return nil
}

func parsePatchValues(body map[string]json.RawMessage, loc *time.Location) (Patch, error) {
	var p Patch
	if present(body, FieldStart) {
		t, err := parseTime(body, FieldStart, loc)
		if err != nil {
			return Patch{}, err
		}
		p.Start = &t
	}
	if present(body, FieldEnd) {
		t, err := parseTime(body, FieldEnd, loc)
		if err != nil {
			return Patch{}, err
		}
		p.End = &t
	}
	if present(body, FieldClientID) {
		id, err := parseRef(body, FieldClientID)
		if err != nil {
			return Patch{}, err
		}
		p.ClientID = &id
	}
	if present(body, FieldProviderID) {
		id, err := parseRef(body, FieldProviderID)
		if err != nil {
			return Patch{}, err
		}
		p.ProviderID = &id
	}
	return p, nil
}

// ParseID parses a reservation id taken from the request path.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, validationError(KindInvalidIDFormat, "id", fmt.Sprintf("type of %s is not number", raw))
	}
	return id, nil
}

func isReservationField(key string) bool {
	for _, f := range reservationFields {
		if f == key {
			return true
		}
	}
	return false
}

func present(body map[string]json.RawMessage, field string) bool {
	raw, ok := body[field]
	if !ok {
		return false
	}
	return strings.TrimSpace(string(raw)) != "null"
}

func parseTime(body map[string]json.RawMessage, field string, loc *time.Location) (time.Time, error) {
	var s string
	if err := json.Unmarshal(body[field], &s); err != nil {
		return time.Time{}, invalidValueError(field, "timestamp")
	}
	t, err := domain.ParseTimestamp(s, loc)
	if err != nil {
		return time.Time{}, invalidValueError(field, "timestamp")
	}
	return t, nil
}

// parseRef accepts a positive integer given either as a JSON number or as a
// numeric string.
func parseRef(body map[string]json.RawMessage, field string) (int64, error) {
	raw := body[field]

	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, invalidValueError(field, "id")
		}
		id, err = strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, invalidValueError(field, "id")
		}
	}
	if id <= 0 {
		return 0, invalidValueError(field, "id")
	}
	return id, nil
}
