package utils

import "testing"

func TestGetEnv(t *testing.T) {
	t.Setenv("ENVTEST_STRING", "from-env")
	if got := GetEnv("ENVTEST_STRING", "fallback", nil); got != "from-env" {
		t.Fatalf("expected env value, got %q", got)
	}
	if got := GetEnv("ENVTEST_STRING_UNSET", "fallback", nil); got != "fallback" {
		t.Fatalf("expected fallback for unset variable, got %q", got)
	}
}

func TestGetEnvAsInt(t *testing.T) {
	t.Setenv("ENVTEST_INT", "42")
	t.Setenv("ENVTEST_INT_BAD", "forty-two")
	if got := GetEnvAsInt("ENVTEST_INT", 7, nil); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := GetEnvAsInt("ENVTEST_INT_BAD", 7, nil); got != 7 {
		t.Fatalf("expected fallback for unparsable value, got %d", got)
	}
	if got := GetEnvAsInt("ENVTEST_INT_UNSET", 7, nil); got != 7 {
		t.Fatalf("expected fallback for unset variable, got %d", got)
	}
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("ENVTEST_BOOL", "true")
	t.Setenv("ENVTEST_BOOL_BAD", "yep")
	if !GetEnvAsBool("ENVTEST_BOOL", false, nil) {
		t.Fatal("expected true from environment")
	}
	if GetEnvAsBool("ENVTEST_BOOL_BAD", false, nil) {
		t.Fatal("expected fallback for unparsable value")
	}
	if !GetEnvAsBool("ENVTEST_BOOL_UNSET", true, nil) {
		t.Fatal("expected fallback for unset variable")
	}
}
