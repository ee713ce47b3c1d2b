package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseRupees(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int64
		wantErr error
	}{
		{name: "whole rupees", raw: "500", want: 50000},
		{name: "paise", raw: "1250.50", want: 125050},
		{name: "single decimal", raw: "0.5", want: 50},
		{name: "zero", raw: "0", want: 0},
		{name: "padded", raw: "  42.00 ", want: 4200},
		{name: "negative", raw: "-1", wantErr: ErrNegativeAmount},
		{name: "sub paisa", raw: "1.005", wantErr: ErrTooPrecise},
		{name: "garbage", raw: "ten", wantErr: ErrInvalidAmount},
		{name: "empty", raw: "", wantErr: ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRupees(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRupees returned error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %d paise, got %d", tt.want, got)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	if got := Format(125050); got != "1250.50" {
		t.Fatalf("expected 1250.50, got %s", got)
	}
	if got := Format(0); got != "0.00" {
		t.Fatalf("expected 0.00, got %s", got)
	}
	if !FromPaise(5).Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("expected 0.05 rupees")
	}
}
