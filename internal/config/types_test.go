// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"testing"
	"time"
)

func TestEngineKind_Validate(t *testing.T) {
	t.Parallel()

	for _, k := range []EngineKind{EngineAuto, EngineDockerAPI, EngineDocker, EnginePodman} {
		if err := k.Validate(); err != nil {
			t.Errorf("%q.Validate() unexpected error: %v", k, err)
		}
	}
	err := EngineKind("lxc").Validate()
	if !errors.Is(err, ErrInvalidEngineKind) {
		t.Errorf("Validate() error = %v, want ErrInvalidEngineKind", err)
	}
	if _, ok := EngineAuto.ContainerType(); ok {
		t.Error("EngineAuto should not map to a single engine type")
	}
	if typ, ok := EnginePodman.ContainerType(); !ok || string(typ) != "podman" {
		t.Errorf("EnginePodman.ContainerType() = %q, %v", typ, ok)
	}
}

func TestDuration_Text(t *testing.T) {
	t.Parallel()

	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatal(err)
	}
	if d.Std() != 90*time.Second {
		t.Errorf("Std() = %s, want 1m30s", d.Std())
	}
	text, _ := d.MarshalText()
	if string(text) != "1m30s" {
		t.Errorf("MarshalText() = %q", text)
	}
	if err := d.UnmarshalText([]byte("later")); err == nil {
		t.Error("UnmarshalText(later) expected error")
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() unexpected error: %v", err)
	}

	cfg := DefaultConfig()
	cfg.ImageName = "Upper Case"
	cfg.CleanupConcurrency = 0
	cfg.Log.Level = "trace"
	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate() error = %v, want ErrInvalidConfig", err)
	}
	var invalid *InvalidConfigError
	if !errors.As(err, &invalid) || len(invalid.FieldErrors) != 3 {
		t.Errorf("FieldErrors = %v, want 3 entries", invalid)
	}
}
