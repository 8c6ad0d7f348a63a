package core

import "fmt"

type (
	// Card is a credit card whose closing day shifts expenses into the
	// next invoice.
	Card struct {
		ID         string
		Name       string
		ClosingDay *int
	}

	// Profile is an owner of entries with a personal financial month.
	Profile struct {
		ID                string
		Name              string
		FinancialStartDay int
	}
)

func (c Card) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: card id is required", ErrInvalidInput)
	}
	if c.ClosingDay != nil && (*c.ClosingDay < 0 || *c.ClosingDay > 31) {
		return fmt.Errorf("%w: closing day %d out of range", ErrInvalidInput, *c.ClosingDay)
	}
	return nil
}

func (p Profile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: profile id is required", ErrInvalidInput)
	}
	if p.FinancialStartDay < 1 || p.FinancialStartDay > 31 {
		return fmt.Errorf("%w: financial start day %d out of range", ErrInvalidInput, p.FinancialStartDay)
	}
	return nil
}
