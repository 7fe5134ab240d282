package domain

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2020, 10, 3, hour, minute, 0, 0, time.UTC)
}

func TestWindowOverlaps(t *testing.T) {
	stored := Window{Start: at(8, 0), End: at(10, 0)}

	tests := []struct {
		name      string
		candidate Window
		want      bool
	}{
		{name: "stored start inside candidate", candidate: Window{Start: at(7, 0), End: at(9, 0)}, want: true},
		{name: "stored end inside candidate", candidate: Window{Start: at(9, 0), End: at(11, 0)}, want: true},
		{name: "stored contains candidate", candidate: Window{Start: at(8, 30), End: at(9, 30)}, want: true},
		{name: "candidate contains stored", candidate: Window{Start: at(7, 0), End: at(11, 0)}, want: true},
		{name: "identical", candidate: Window{Start: at(8, 0), End: at(10, 0)}, want: true},
		{name: "touching at candidate start", candidate: Window{Start: at(10, 0), End: at(11, 0)}, want: true},
		{name: "touching at candidate end", candidate: Window{Start: at(7, 0), End: at(8, 0)}, want: true},
		{name: "strictly after", candidate: Window{Start: at(10, 1), End: at(11, 0)}, want: false},
		{name: "strictly before", candidate: Window{Start: at(6, 0), End: at(7, 59)}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.candidate.Overlaps(stored); got != tt.want {
				t.Fatalf("Overlaps = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWindowContains(t *testing.T) {
	search := Window{Start: at(8, 0), End: at(10, 0)}

	if !search.Contains(Window{Start: at(8, 0), End: at(10, 0)}) {
		t.Fatalf("expected equal window to be contained")
	}
	if !search.Contains(Window{Start: at(8, 30), End: at(9, 0)}) {
		t.Fatalf("expected inner window to be contained")
	}
	if search.Contains(Window{Start: at(7, 59), End: at(9, 0)}) {
		t.Fatalf("window starting early must not be contained")
	}
	if search.Contains(Window{Start: at(9, 0), End: at(10, 1)}) {
		t.Fatalf("window ending late must not be contained")
	}
}

func TestWindowValid(t *testing.T) {
	if !(Window{Start: at(8, 0), End: at(8, 0)}).Valid() {
		t.Fatalf("equal start and end must be valid")
	}
	if (Window{Start: at(9, 0), End: at(8, 0)}).Valid() {
		t.Fatalf("start after end must be invalid")
	}
}

func TestParseTimestamp(t *testing.T) {
	helsinki, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}

	tests := []struct {
		in   string
		loc  *time.Location
		want time.Time
	}{
		{in: "2020-10-03 08:00", want: time.Date(2020, 10, 3, 8, 0, 0, 0, time.UTC)},
		{in: "2020-09-29 19:00:00", want: time.Date(2020, 9, 29, 19, 0, 0, 0, time.UTC)},
		{in: "2020-09-29T19:00", want: time.Date(2020, 9, 29, 19, 0, 0, 0, time.UTC)},
		{in: "2020-09-29", want: time.Date(2020, 9, 29, 0, 0, 0, 0, time.UTC)},
		{in: "2020-09-29T19:00:00+02:00", want: time.Date(2020, 9, 29, 17, 0, 0, 0, time.UTC)},
		{in: " 2020-10-03 08:00 ", loc: helsinki, want: time.Date(2020, 10, 3, 5, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in, tt.loc)
			if err != nil {
				t.Fatalf("ParseTimestamp error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("ParseTimestamp = %v, want %v", got, tt.want)
			}
			if got.Location() != time.UTC {
				t.Fatalf("location = %v, want UTC", got.Location())
			}
		})
	}

	for _, bad := range []string{"", "yesterday", "2020-13-01 10:00", "10:00"} {
		if _, err := ParseTimestamp(bad, nil); err == nil {
			t.Fatalf("ParseTimestamp(%q) expected error", bad)
		}
	}
}
