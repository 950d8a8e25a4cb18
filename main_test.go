package main

import (
	"testing"

	"toolgate/cmd"
)

func TestVersionDefault(t *testing.T) {
	if version != "dev" {
		t.Errorf("expected default version to be 'dev', got %s", version)
	}
}

func TestSetVersion(t *testing.T) {
	cmd.SetVersion("1.2.3")
	if got := cmd.GetVersion(); got != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %s", got)
	}
	cmd.SetVersion(version)
}
