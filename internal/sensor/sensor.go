// Package sensor turns what the robot observes at a fall into the feature
// vector the type analyser consumes.
package sensor

import (
	"fmt"
	"strings"
)

// Column names of a reading, as they appear in the request-for-help data.
const (
	HelperGender         = "helper_gender"
	HelperCulture        = "helper_culture"
	HelperAge            = "helper_age"
	FallenGender         = "fallen_gender"
	FallenCulture        = "fallen_culture"
	FallenAge            = "fallen_age"
	HelperFallenDistance = "helper_fallen_distance"
	StaffFallenDistance  = "staff_fallen_distance"
)

// Columns lists every reading column in positional order.
var Columns = []string{
	HelperGender, HelperCulture, HelperAge,
	FallenGender, FallenCulture, FallenAge,
	HelperFallenDistance, StaffFallenDistance,
}

// Reading is one categorical observation of a helper, a fallen passenger and
// the nearest staff member. Distances are kept as the simulator reports them.
type Reading struct {
	HelperGender         string `json:"helper_gender"`
	HelperCulture        string `json:"helper_culture"`
	HelperAge            string `json:"helper_age"`
	FallenGender         string `json:"fallen_gender"`
	FallenCulture        string `json:"fallen_culture"`
	FallenAge            string `json:"fallen_age"`
	HelperFallenDistance string `json:"helper_fallen_distance"`
	StaffFallenDistance  string `json:"staff_fallen_distance"`
}

// FromArgs builds a reading from values in Columns order.
func FromArgs(args []string) (Reading, error) {
	if len(args) != len(Columns) {
		return Reading{}, fmt.Errorf("reading needs %d values (%s), got %d",
			len(Columns), strings.Join(Columns, ", "), len(args))
	}
	return Reading{
		HelperGender:         args[0],
		HelperCulture:        args[1],
		HelperAge:            args[2],
		FallenGender:         args[3],
		FallenCulture:        args[4],
		FallenAge:            args[5],
		HelperFallenDistance: args[6],
		StaffFallenDistance:  args[7],
	}, nil
}

// Value returns the reading's value for a column name.
func (r Reading) Value(column string) (string, bool) {
	switch column {
	case HelperGender:
		return r.HelperGender, true
	case HelperCulture:
		return r.HelperCulture, true
	case HelperAge:
		return r.HelperAge, true
	case FallenGender:
		return r.FallenGender, true
	case FallenCulture:
		return r.FallenCulture, true
	case FallenAge:
		return r.FallenAge, true
	case HelperFallenDistance:
		return r.HelperFallenDistance, true
	case StaffFallenDistance:
		return r.StaffFallenDistance, true
	}
	return "", false
}

// Encoder maps a row of categorical values, ordered by its columns, to a
// feature vector.
type Encoder interface {
	ColumnNames() []string
	Transform(row []string) ([]float64, error)
}

// Encode lays the reading out in the encoder's column order and encodes it.
func (r Reading) Encode(enc Encoder) ([]float64, error) {
	cols := enc.ColumnNames()
	row := make([]string, len(cols))
	for i, c := range cols {
		v, ok := r.Value(c)
		if !ok {
			return nil, fmt.Errorf("encoder column %q is not part of a sensor reading", c)
		}
		row[i] = strings.TrimSpace(v)
	}
	x, err := enc.Transform(row)
	if err != nil {
		return nil, fmt.Errorf("encode reading: %w", err)
	}
	return x, nil
}
