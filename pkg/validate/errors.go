package validate

import (
	"errors"
	"net/http"
)

// Validation errors. Every failure is a caller-input or data-state error,
// never an engine-internal fault. Each sentinel carries the user-facing
// message; callers wrap them with detail via fmt.Errorf("...: %w", err)
// and the HTTP adapter maps them with StatusFor.
var (
	// Identity and date input errors (400-class, recoverable by resubmission)
	ErrInvalidName      = errors.New("a person needs at least one valid name")
	ErrMissingBirthYear = errors.New("birth year is required")
	ErrInvalidYear      = errors.New("date is not a valid year")
	ErrDuplicatePerson  = errors.New("a person with this name and birth date already exists")

	// Structural-consistency errors (400-class, never silently corrected)
	ErrSelfParent             = errors.New("a person cannot be their own parent")
	ErrMaxParents             = errors.New("a person can have at most two biological parents")
	ErrGenealogicalCycle      = errors.New("assignment would create a genealogical cycle")
	ErrSameGenderParents      = errors.New("biological parents cannot share the same gender")
	ErrSameGenderPartners     = errors.New("partners cannot share the same gender")
	ErrNonReciprocal          = errors.New("persons cannot be parent and child of each other at the same time")
	ErrParentYoungerThanChild = errors.New("a parent must be born before their child")

	// Soft error: overridable by supplying a justification, which turns the
	// rejection into a recorded, audited warning.
	ErrAgeImplausible = errors.New("parent age gap is implausible and requires an override reason")

	// Lookup errors (404-class)
	ErrPersonNotFound   = errors.New("person not found")
	ErrRelationNotFound = errors.New("relationship not found")
)

// StatusFor maps a validation error to an HTTP-style status class for the
// adapter layer. Unknown errors map to 500 so genuine engine faults are
// never mistaken for bad input.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrPersonNotFound), errors.Is(err, ErrRelationNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrMissingBirthYear),
		errors.Is(err, ErrInvalidYear),
		errors.Is(err, ErrDuplicatePerson),
		errors.Is(err, ErrSelfParent),
		errors.Is(err, ErrMaxParents),
		errors.Is(err, ErrGenealogicalCycle),
		errors.Is(err, ErrSameGenderParents),
		errors.Is(err, ErrSameGenderPartners),
		errors.Is(err, ErrNonReciprocal),
		errors.Is(err, ErrParentYoungerThanChild),
		errors.Is(err, ErrAgeImplausible):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// IsValidationError reports whether err belongs to the engine's error
// taxonomy (as opposed to a storage or infrastructure failure).
func IsValidationError(err error) bool {
	status := StatusFor(err)
	return status == http.StatusBadRequest || status == http.StatusNotFound
}
