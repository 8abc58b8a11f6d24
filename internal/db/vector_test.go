package db

import "testing"

func TestVectorLiteral_DimensionValidation(t *testing.T) {
	t.Parallel()

	if _, err := vectorLiteral([]float64{0.1, 0.2}); err == nil {
		t.Fatalf("expected dimension validation error for short vector")
	}
}

func TestVectorLiteral_RoundTrip(t *testing.T) {
	t.Parallel()

	vec := make([]float64, VectorDimensions)
	vec[0] = 0.125
	vec[1] = -1
	vec[VectorDimensions-1] = 0.5

	literal, err := vectorLiteral(vec)
	if err != nil {
		t.Fatalf("unexpected literal error: %v", err)
	}
	if literal[0] != '[' || literal[len(literal)-1] != ']' {
		t.Fatalf("unexpected literal shape: %q...", literal[:16])
	}

	parsed, err := parseVectorLiteral(literal)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if len(parsed) != VectorDimensions {
		t.Fatalf("unexpected parsed length: got %d want %d", len(parsed), VectorDimensions)
	}
	if parsed[0] != 0.125 || parsed[1] != -1 || parsed[VectorDimensions-1] != 0.5 {
		t.Fatalf("round-trip mismatch: %f %f %f", parsed[0], parsed[1], parsed[VectorDimensions-1])
	}
}

func TestParseVectorLiteral_Malformed(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "[]", "0.1,0.2", "[0.1,x]"} {
		if _, err := parseVectorLiteral(raw); err == nil {
			t.Fatalf("expected parse error for %q", raw)
		}
	}
}
