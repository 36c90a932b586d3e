package entity

import (
	"errors"
	"testing"
)

func TestHolding_AddWeightedAverage(t *testing.T) {
	h, err := NewHolding("h-1", "p-1", "a-1", d("5"), d("100"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := h.Add(d("5"), d("120")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.Quantity.Equal(d("10")) {
		t.Errorf("expected quantity 10, got %s", h.Quantity)
	}
	if !h.AveragePrice.Equal(d("110")) {
		t.Errorf("expected average price 110, got %s", h.AveragePrice)
	}

	// 10 @ 110 + 20 @ 50 = 2100 / 30 = 70
	if err := h.Add(d("20"), d("50")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.AveragePrice.Equal(d("70")) {
		t.Errorf("expected average price 70, got %s", h.AveragePrice)
	}
}

func TestHolding_Reduce(t *testing.T) {
	tests := []struct {
		name       string
		quantity   string
		reduce     string
		wantClosed bool
		wantLeft   string
		wantErr    error
	}{
		{name: "partial", quantity: "5", reduce: "2", wantLeft: "3"},
		{name: "full", quantity: "5", reduce: "5", wantClosed: true, wantLeft: "0"},
		{name: "fractional dust closes", quantity: "1.0000005", reduce: "1", wantClosed: true, wantLeft: "0.0000005"},
		{name: "too much", quantity: "5", reduce: "5.5", wantErr: ErrInsufficientQuantity},
		{name: "zero", quantity: "5", reduce: "0", wantErr: ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &Holding{Quantity: d(tt.quantity), AveragePrice: d("10")}
			closed, err := h.Reduce(d(tt.reduce))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if !h.Quantity.Equal(d(tt.quantity)) {
					t.Errorf("failed reduce must not change quantity, got %s", h.Quantity)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if closed != tt.wantClosed {
				t.Errorf("expected closed=%v, got %v", tt.wantClosed, closed)
			}
			if !h.Quantity.Equal(d(tt.wantLeft)) {
				t.Errorf("expected remaining %s, got %s", tt.wantLeft, h.Quantity)
			}
		})
	}
}

func TestNewHolding_Validation(t *testing.T) {
	if _, err := NewHolding("h", "p", "a", d("0"), d("1")); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := NewHolding("h", "p", "a", d("1"), d("0")); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("expected ErrInvalidPrice, got %v", err)
	}
}
