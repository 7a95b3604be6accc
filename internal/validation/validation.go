package validation

import (
	"github.com/hyperengineering/roadsync/internal/types"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidateRoadName returns an error if the name is empty. The message
// matches the wire contract clients already depend on.
func ValidateRoadName(name string) *ValidationError {
	if name == "" {
		return &ValidationError{Field: "name", Message: "Name is missing"}
	}
	return nil
}

// ValidateLanes returns an error if the lane count is negative.
func ValidateLanes(lanes int) *ValidationError {
	if lanes < 0 {
		return &ValidationError{Field: "lanes", Message: "Lanes must not be negative"}
	}
	return nil
}

// ValidateRoad checks the fields a client controls on create/update.
// Returns the first failure, or nil if the road is acceptable.
func ValidateRoad(road types.Road) *ValidationError {
	if err := ValidateRoadName(road.Name); err != nil {
		return err
	}
	if err := ValidateLanes(road.Lanes); err != nil {
		return err
	}
	return nil
}
