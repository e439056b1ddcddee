package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDurationUnmarshalYAMLString(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte("1h30m"), &d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Duration(d) != 90*time.Minute {
		t.Errorf("got %v, want 90m", time.Duration(d))
	}
}

func TestDurationUnmarshalYAMLInteger(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte("1000000000"), &d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Duration(d) != time.Second {
		t.Errorf("got %v, want 1s", time.Duration(d))
	}
}

func TestDurationUnmarshalYAMLInvalid(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte("not-a-duration"), &d); err == nil {
		t.Fatal("expected an error")
	}
}

func TestDurationString(t *testing.T) {
	d := Duration(90 * time.Minute)
	if d.String() != "1h30m0s" {
		t.Errorf("got %q", d.String())
	}
}
