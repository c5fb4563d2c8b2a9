package config_test

import (
	"os"
	"strings"
	"testing"

	"github.com/temirov/revscope/internal/config"
)

func TestInitializeConfigurationWritesLocalDefault(t *testing.T) {
	workingDirectory := t.TempDir()
	writtenPath, initError := config.InitializeConfiguration(config.InitOptions{
		Target:           config.InitTargetLocal,
		WorkingDirectory: workingDirectory,
	})
	if initError != nil {
		t.Fatalf("initialize failed: %v", initError)
	}
	content, readError := os.ReadFile(writtenPath)
	if readError != nil {
		t.Fatalf("read written configuration: %v", readError)
	}
	if !strings.Contains(string(content), "ignore_patterns:") {
		t.Fatalf("expected default template, got %s", content)
	}

	loaded, loadError := config.LoadApplicationConfiguration(config.LoadOptions{WorkingDirectory: workingDirectory})
	if loadError != nil {
		t.Fatalf("load of written default failed: %v", loadError)
	}
	if loaded.SourceRef != "main" {
		t.Fatalf("expected default source ref main, got %q", loaded.SourceRef)
	}
	enabledPatterns := loaded.EnabledIgnorePatterns()
	for _, enabledPattern := range enabledPatterns {
		if enabledPattern == "dist" {
			t.Fatalf("expected disabled pattern dropped, got %v", enabledPatterns)
		}
	}
}

func TestInitializeConfigurationRefusesOverwriteWithoutForce(t *testing.T) {
	workingDirectory := t.TempDir()
	if _, initError := config.InitializeConfiguration(config.InitOptions{Target: config.InitTargetLocal, WorkingDirectory: workingDirectory}); initError != nil {
		t.Fatalf("first initialize failed: %v", initError)
	}
	if _, initError := config.InitializeConfiguration(config.InitOptions{Target: config.InitTargetLocal, WorkingDirectory: workingDirectory}); initError == nil {
		t.Fatalf("expected refusal to overwrite existing configuration")
	}
	if _, initError := config.InitializeConfiguration(config.InitOptions{Target: config.InitTargetLocal, WorkingDirectory: workingDirectory, Force: true}); initError != nil {
		t.Fatalf("forced initialize failed: %v", initError)
	}
}
