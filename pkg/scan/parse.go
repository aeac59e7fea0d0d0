package scan

import (
	"errors"
	"math"
	"strconv"
)

// errNotOrdered is returned for samples that have no place in an ordering.
var errNotOrdered = errors.New("NaN is not ordered")

// Parser converts one trimmed, non-empty line into a sample.
type Parser[T any] func(line string) (T, error)

// ParseFloat parses a 64-bit float. NaN is rejected; infinities are kept.
func ParseFloat(line string) (float64, error) {
	v, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return 0, err
	}

	if math.IsNaN(v) {
		return 0, errNotOrdered
	}

	return v, nil
}

// ParseInt parses a base-10 signed 64-bit integer.
func ParseInt(line string) (int64, error) {
	return strconv.ParseInt(line, 10, 64)
}

// ParseString accepts the line as is.
func ParseString(line string) (string, error) {
	return line, nil
}
