package appointment

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidCost = errors.New("invalid cost")

// ComputeCost returns total = base + sum(charges) and
// patientPayment = total - insurance, rounded to cents.
func ComputeCost(base float64, charges []Charge, insurance float64) (total, patientPayment float64) {
	total = base
	for _, c := range charges {
		total += c.Amount
	}
	total = roundCents(total)
	return total, roundCents(total - insurance)
}

// Recalculate refreshes the derived amounts. Insurance cannot exceed the
// total, so the patient payment is never negative.
func (c *Cost) Recalculate() error {
	if c.BasePrice < 0 {
		return fmt.Errorf("%w: base price is negative", ErrInvalidCost)
	}
	for _, ch := range c.AdditionalCharges {
		if ch.Amount < 0 {
			return fmt.Errorf("%w: charge %q is negative", ErrInvalidCost, ch.Description)
		}
	}
	if c.InsuranceCovered < 0 {
		return fmt.Errorf("%w: insurance covered is negative", ErrInvalidCost)
	}

	total, payment := ComputeCost(c.BasePrice, c.AdditionalCharges, c.InsuranceCovered)
	if payment < 0 {
		return fmt.Errorf("%w: insurance covered %.2f exceeds total %.2f", ErrInvalidCost, c.InsuranceCovered, total)
	}

	c.TotalAmount = total
	c.PatientPayment = payment
	return nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
