package config

import "testing"

func validConfig() Config {
	return Config{
		Environment:          "local",
		LogLevel:             "info",
		DatabaseURL:          "postgres://localhost:5432/winnow",
		DBMinConns:           1,
		DBMaxConns:           8,
		EmbeddingDimensions:  1536,
		EmbeddingBatchSize:   100,
		ArbitrationBatchSize: 20,
		LookbackHours:        48,
		AmbiguousThreshold:   0.75,
		DuplicateThreshold:   0.90,
		SourcePriority:       "rss,html,twitter",
		RetryMaxAttempts:     3,
	}
}

func TestValidate_Defaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_ThresholdOrdering(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.AmbiguousThreshold = 0.95
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when ambiguous threshold exceeds duplicate threshold")
	}
}

func TestValidate_ThresholdBounds(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.DuplicateThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for out-of-range duplicate threshold")
	}
}

func TestValidate_EmptyPriority(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.SourcePriority = " , "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for empty source priority")
	}
}

func TestSourcePriorityList_NormalizesAndDeduplicates(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.SourcePriority = " RSS , html,rss,twitter "
	got := cfg.SourcePriorityList()
	want := []string{"rss", "html", "twitter"}
	if len(got) != len(want) {
		t.Fatalf("unexpected channel count: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected channel order: got %v want %v", got, want)
		}
	}
}

func TestTrackingParamsList(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.TrackingParams = "Partner, cmpid ,partner"
	got := cfg.TrackingParamsList()
	if len(got) != 2 || got[0] != "partner" || got[1] != "cmpid" {
		t.Fatalf("unexpected tracking params: %v", got)
	}
}
