package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// parseFeatures reads "0.3,1,,nan" into a feature vector.
func parseFeatures(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	out := make([]float64, len(fields))
	for i, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
