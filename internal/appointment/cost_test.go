package appointment

import (
	"errors"
	"testing"
)

func TestComputeCost(t *testing.T) {
	total, payment := ComputeCost(100, []Charge{{Description: "lab fee", Amount: 20}}, 30)
	if total != 120 {
		t.Errorf("expected total 120, got %v", total)
	}
	if payment != 90 {
		t.Errorf("expected patient payment 90, got %v", payment)
	}
}

func TestComputeCost_RoundsToCents(t *testing.T) {
	total, payment := ComputeCost(0.1, []Charge{{Amount: 0.2}}, 0.1)
	if total != 0.3 || payment != 0.2 {
		t.Errorf("expected 0.3/0.2, got %v/%v", total, payment)
	}
}

func TestRecalculate(t *testing.T) {
	tests := []struct {
		name        string
		cost        Cost
		wantErr     bool
		wantTotal   float64
		wantPayment float64
	}{
		{"no charges", Cost{BasePrice: 50}, false, 50, 50},
		{"fully covered", Cost{BasePrice: 50, InsuranceCovered: 50}, false, 50, 0},
		{"charges and insurance", Cost{BasePrice: 100, AdditionalCharges: []Charge{{"a", 20}, {"b", 5.5}}, InsuranceCovered: 30}, false, 125.5, 95.5},
		{"insurance exceeds total", Cost{BasePrice: 50, InsuranceCovered: 60}, true, 0, 0},
		{"negative base", Cost{BasePrice: -1}, true, 0, 0},
		{"negative charge", Cost{BasePrice: 10, AdditionalCharges: []Charge{{"refund", -5}}}, true, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.cost
			err := c.Recalculate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCost) {
					t.Fatalf("expected ErrInvalidCost, got %v", err)
				}
				if c.TotalAmount != tt.cost.TotalAmount || c.PatientPayment != tt.cost.PatientPayment {
					t.Error("expected derived amounts untouched on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.TotalAmount != tt.wantTotal || c.PatientPayment != tt.wantPayment {
				t.Errorf("expected %v/%v, got %v/%v", tt.wantTotal, tt.wantPayment, c.TotalAmount, c.PatientPayment)
			}
		})
	}
}
