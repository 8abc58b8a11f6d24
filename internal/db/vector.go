package db

import (
	"fmt"
	"strconv"
	"strings"
)

// VectorDimensions is the embedding width of the news.articles vector column.
// Changing the embedding model to a different width requires a schema
// migration alongside this constant.
const VectorDimensions = 1536

func vectorLiteral(vec []float64) (string, error) {
	if len(vec) != VectorDimensions {
		return "", fmt.Errorf("embedding has %d dimensions, want %d", len(vec), VectorDimensions)
	}

	var b strings.Builder
	b.Grow(len(vec) * 10)
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String(), nil
}

func parseVectorLiteral(raw string) ([]float64, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < 2 || trimmed[0] != '[' || trimmed[len(trimmed)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal")
	}

	inner := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	if inner == "" {
		return nil, fmt.Errorf("empty vector literal")
	}

	parts := strings.Split(inner, ",")
	vec := make([]float64, 0, len(parts))
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("parse vector component %d: %w", i, err)
		}
		vec = append(vec, value)
	}
	return vec, nil
}
