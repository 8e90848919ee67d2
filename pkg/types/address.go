package types

import (
	"fmt"
	"strings"
)

// AddressSnapshot is the delivery address copied onto an order at placement.
// Later edits to the buyer's saved address never reach placed orders.
type AddressSnapshot struct {
	Name       string  `json:"name"`
	Phone      string  `json:"phone"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	Landmark   *string `json:"landmark,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
}

// Validate checks the fields a courier needs.
func (a AddressSnapshot) Validate() error {
	required := map[string]string{
		"line1":       a.Line1,
		"city":        a.City,
		"state":       a.State,
		"postal_code": a.PostalCode,
	}
	for _, field := range []string{"line1", "city", "state", "postal_code"} {
		if strings.TrimSpace(required[field]) == "" {
			return fmt.Errorf("address: missing %s", field)
		}
	}
	return nil
}

// OneLine renders the address for notifications.
func (a AddressSnapshot) OneLine() string {
	parts := []string{a.Line1}
	if a.Line2 != nil && strings.TrimSpace(*a.Line2) != "" {
		parts = append(parts, *a.Line2)
	}
	parts = append(parts, a.City, a.State, a.PostalCode)
	return strings.Join(parts, ", ")
}
