package budget

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewPeriod(t *testing.T) {
	tests := []struct {
		name     string
		year     int
		month    time.Month
		currency string
		want     string
		wantErr  bool
	}{
		{name: "filtered", year: 2024, month: time.January, currency: "usd", want: "2024-01/USD"},
		{name: "all currencies", year: 2024, month: time.December, want: "2024-12"},
		{name: "month zero", year: 2024, month: 0, wantErr: true},
		{name: "month thirteen", year: 2024, month: 13, wantErr: true},
		{name: "year zero", year: 0, month: time.May, wantErr: true},
		{name: "bad currency", year: 2024, month: time.May, currency: "US", wantErr: true},
		{name: "digits in currency", year: 2024, month: time.May, currency: "U5D", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPeriod(tt.year, tt.month, tt.currency)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPeriod) {
					t.Fatalf("NewPeriod() error = %v, want ErrInvalidPeriod", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewPeriod() unexpected error: %v", err)
			}
			if p.String() != tt.want {
				t.Errorf("String() = %q, want %q", p.String(), tt.want)
			}
		})
	}
}

func TestCurrentPeriod(t *testing.T) {
	now := time.Date(2025, 3, 31, 23, 30, 0, 0, time.FixedZone("X", -2*3600))
	p := CurrentPeriod(now)

	if p.Year != 2025 || p.Month != time.April || p.Currency != "" {
		t.Errorf("CurrentPeriod() = %+v, want 2025-04 in UTC", p)
	}
}

func TestCreateRequest_Normalize(t *testing.T) {
	now := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	month, year := 13, 2024

	tests := []struct {
		name    string
		req     CreateRequest
		wantErr bool
	}{
		{name: "defaults to current month", req: CreateRequest{CategoryID: uuid.New(), Planned: dec("10"), Currency: " eur "}},
		{name: "missing category", req: CreateRequest{Planned: dec("10"), Currency: "EUR"}, wantErr: true},
		{name: "negative planned", req: CreateRequest{CategoryID: uuid.New(), Planned: dec("-1"), Currency: "EUR"}, wantErr: true},
		{name: "missing currency", req: CreateRequest{CategoryID: uuid.New(), Planned: dec("1")}, wantErr: true},
		{name: "bad month", req: CreateRequest{CategoryID: uuid.New(), Planned: dec("1"), Currency: "EUR", Month: &month, Year: &year}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.req.Normalize(now)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRequest) {
					t.Fatalf("Normalize() error = %v, want ErrInvalidRequest", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() unexpected error: %v", err)
			}
			if *got.Month != 6 || *got.Year != 2024 || got.Currency != "EUR" {
				t.Errorf("Normalize() = month %d year %d currency %q", *got.Month, *got.Year, got.Currency)
			}
		})
	}
}

func TestBudgetRemainingAndPercentage(t *testing.T) {
	if got := Remaining(dec("100"), dec("30"), dec("5")); !got.Equal(dec("75")) {
		t.Errorf("Remaining() = %s, want 75", got)
	}
	if got := Percentage(dec("45"), dec("60")); !got.Equal(dec("75")) {
		t.Errorf("Percentage() = %s, want 75", got)
	}
	if got := Percentage(dec("45"), dec("0")); !got.IsZero() {
		t.Errorf("Percentage() with nothing planned = %s, want 0", got)
	}
}
