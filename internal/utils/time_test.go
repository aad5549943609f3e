package utils

import (
	"testing"
	"time"
)

func TestLoadLocation(t *testing.T) {
	tests := []struct {
		name     string
		timezone string
		wantErr  bool
	}{
		{name: "empty string returns local", timezone: ""},
		{name: "Local returns local", timezone: "Local"},
		{name: "valid timezone UTC", timezone: "UTC"},
		{name: "valid timezone Europe/Berlin", timezone: "Europe/Berlin"},
		{name: "invalid timezone", timezone: "Invalid/Timezone", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := LoadLocation(tt.timezone)
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadLocation() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && loc == nil {
				t.Errorf("LoadLocation() returned nil location without error")
			}
		})
	}
}

func TestParseISO(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2024, 1, 27, 9, 30, 0, 0, berlin)

	tests := []struct {
		name    string
		value   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "RFC3339 with offset",
			value: "2024-01-27T20:00:00Z",
			want:  time.Date(2024, 1, 27, 20, 0, 0, 0, time.UTC),
		},
		{
			name:  "no offset uses location",
			value: "2024-01-28T20:00:00",
			want:  time.Date(2024, 1, 28, 20, 0, 0, 0, berlin),
		},
		{
			name:  "minutes precision",
			value: "2024-01-28T07:15",
			want:  time.Date(2024, 1, 28, 7, 15, 0, 0, berlin),
		},
		{
			name:  "time only assumes current date",
			value: "15:00",
			want:  time.Date(2024, 1, 27, 15, 0, 0, 0, berlin),
		},
		{
			name:  "time with seconds assumes current date",
			value: "15:00:30",
			want:  time.Date(2024, 1, 27, 15, 0, 30, 0, berlin),
		},
		{
			name:  "time only with UTC offset assumes current date",
			value: "15:04Z",
			want:  time.Date(2024, 1, 27, 15, 4, 0, 0, time.UTC),
		},
		{
			name:  "time with seconds and offset assumes current date",
			value: "15:04:05+02:00",
			want:  time.Date(2024, 1, 27, 15, 4, 5, 0, time.FixedZone("", 2*60*60)),
		},
		{
			name:  "minutes precision with offset",
			value: "2024-01-28T07:15-05:00",
			want:  time.Date(2024, 1, 28, 7, 15, 0, 0, time.FixedZone("", -5*60*60)),
		},
		{name: "empty", value: "", wantErr: true},
		{name: "date only", value: "2024-01-28", wantErr: true},
		{name: "garbage", value: "tomorrow at noon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseISO(tt.value, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseISO(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseISO(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestCeilTo(t *testing.T) {
	base := time.Date(2024, 1, 27, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{name: "on boundary", in: base, want: base},
		{name: "one second past", in: base.Add(time.Second), want: base.Add(5 * time.Minute)},
		{name: "mid interval", in: base.Add(7 * time.Minute), want: base.Add(10 * time.Minute)},
		{name: "just before boundary", in: base.Add(4*time.Minute + 59*time.Second), want: base.Add(5 * time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CeilTo(tt.in, 5*time.Minute); !got.Equal(tt.want) {
				t.Errorf("CeilTo(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
