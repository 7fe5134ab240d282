package reservations

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"reservo/backend/internal/domain"
	"reservo/backend/internal/store"
)

const (
	paramStart      = "start"
	paramEnd        = "end"
	paramProviderID = "spid"
	paramClientID   = "cid"
)

// BuildFilter turns listing query parameters into a store filter. Without
// parameters every reservation matches.
func BuildFilter(params url.Values, loc *time.Location) (store.Filter, error) {
	for key := range params {
		switch key {
		case paramStart, paramEnd, paramProviderID, paramClientID:
		default:
			return store.Filter{}, unacceptedParameterError(key)
		}
	}

	var f store.Filter

	_, hasStart := params[paramStart]
	_, hasEnd := params[paramEnd]
	if hasStart != hasEnd {
		field := paramEnd
		if !hasStart {
			field = paramStart
		}
		return store.Filter{}, validationError(KindIncompleteTimeRange, field, MsgIncompleteTimeRange)
	}
	if hasStart {
		start, err := domain.ParseTimestamp(params.Get(paramStart), loc)
		if err != nil {
			return store.Filter{}, invalidValueError(paramStart, "timestamp")
		}
		end, err := domain.ParseTimestamp(params.Get(paramEnd), loc)
		if err != nil {
			return store.Filter{}, invalidValueError(paramEnd, "timestamp")
		}
		f.Window = &domain.Window{Start: start, End: end}
	}

	if _, ok := params[paramProviderID]; ok {
		id, err := parseQueryID(params, paramProviderID)
		if err != nil {
			return store.Filter{}, err
		}
		f.ProviderID = &id
	}
	if _, ok := params[paramClientID]; ok {
		id, err := parseQueryID(params, paramClientID)
		if err != nil {
			return store.Filter{}, err
		}
		f.ClientID = &id
	}

	return f, nil
}

func parseQueryID(params url.Values, key string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(params.Get(key)), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalidValueError(key, "id")
	}
	return id, nil
}

// filterKey renders f as a stable cache key.
func filterKey(f store.Filter) string {
	if f.IsZero() {
		return "all"
	}
	var parts []string
	if f.Window != nil {
		parts = append(parts,
			"start="+f.Window.Start.UTC().Format(time.RFC3339Nano),
			"end="+f.Window.End.UTC().Format(time.RFC3339Nano),
		)
	}
	if f.ProviderID != nil {
		parts = append(parts, "spid="+strconv.FormatInt(*f.ProviderID, 10))
	}
	if f.ClientID != nil {
		parts = append(parts, "cid="+strconv.FormatInt(*f.ClientID, 10))
	}
	return strings.Join(parts, ";")
}
