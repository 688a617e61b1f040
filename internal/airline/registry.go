// Package airline holds the airline registry the pipeline stages iterate over.
//
// The registry maps a human-readable airline name to its IATA carrier code.
// It is built once per run and never mutated: stages receive it by pointer
// and only read from it.
package airline

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrEmptyRegistry is returned when a registry would contain no airlines.
	ErrEmptyRegistry = errors.New("airline registry cannot be empty")
	// ErrEmptyName is returned when an airline has no name.
	ErrEmptyName = errors.New("airline name cannot be empty")
	// ErrInvalidCode is returned when a carrier code is not 2-3 alphanumeric characters.
	ErrInvalidCode = errors.New("carrier code must be 2-3 alphanumeric characters")
	// ErrDuplicateCode is returned when two airlines share a carrier code.
	ErrDuplicateCode = errors.New("duplicate carrier code")
	// ErrDuplicateName is returned when two airlines share a name.
	ErrDuplicateName = errors.New("duplicate airline name")
)

var carrierCodePattern = regexp.MustCompile(`^[A-Z0-9]{2,3}$`)

// Airline is one registry entry.
type Airline struct {
	Name string `yaml:"name"`
	Code string `yaml:"code"`
}

// String renders the airline the way outcome messages refer to it, e.g. "PIA (PK)".
func (a Airline) String() string {
	return fmt.Sprintf("%s (%s)", a.Name, a.Code)
}

// Registry is an ordered, validated set of airlines.
type Registry struct {
	airlines []Airline
	byCode   map[string]int
}

// NewRegistry validates the given airlines and returns a registry preserving their order.
// Names and codes are trimmed and codes upper-cased before validation.
func NewRegistry(airlines ...Airline) (*Registry, error) {
	if len(airlines) == 0 {
		return nil, ErrEmptyRegistry
	}

	r := &Registry{
		airlines: make([]Airline, 0, len(airlines)),
		byCode:   make(map[string]int, len(airlines)),
	}
	names := make(map[string]struct{}, len(airlines))

	for _, a := range airlines {
		a.Name = strings.TrimSpace(a.Name)
		a.Code = strings.ToUpper(strings.TrimSpace(a.Code))

		if a.Name == "" {
			return nil, fmt.Errorf("%w (code %q)", ErrEmptyName, a.Code)
		}

		if !carrierCodePattern.MatchString(a.Code) {
			return nil, fmt.Errorf("%w: %q for %s", ErrInvalidCode, a.Code, a.Name)
		}

		if _, ok := r.byCode[a.Code]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, a.Code)
		}

		if _, ok := names[a.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, a.Name)
		}

		names[a.Name] = struct{}{}
		r.byCode[a.Code] = len(r.airlines)
		r.airlines = append(r.airlines, a)
	}

	return r, nil
}

// DefaultRegistry returns the carriers flightpipe tracks when no registry file is configured.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		Airline{Name: "Airsial", Code: "PF"},
		Airline{Name: "PIA", Code: "PK"},
		Airline{Name: "SereneAir", Code: "ER"},
		Airline{Name: "Flyjinah", Code: "9P"},
		Airline{Name: "Airblue", Code: "PA"},
	)
	if err != nil {
		panic(err) // static data
	}

	return r
}

// All returns a copy of the airlines in registry order.
func (r *Registry) All() []Airline {
	out := make([]Airline, len(r.airlines))
	copy(out, r.airlines)

	return out
}

// Len returns the number of airlines.
func (r *Registry) Len() int {
	return len(r.airlines)
}

// Codes returns the carrier codes in registry order.
func (r *Registry) Codes() []string {
	codes := make([]string, len(r.airlines))
	for i, a := range r.airlines {
		codes[i] = a.Code
	}

	return codes
}
