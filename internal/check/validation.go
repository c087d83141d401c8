package check

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/finsight/finsight/internal/config"
	"github.com/finsight/finsight/internal/generator"
)

// ValidationResult represents the result of validating one configuration file
type ValidationResult struct {
	Path     string
	Valid    bool
	Error    error
	Warnings []string
}

// validateConfigs validates configuration files and referenced backends
func (c *Checker) validateConfigs() error {
	result := c.validateConfigYaml()
	c.report.AddValidationResult(result)
	printValidationStatus(result)

	return nil
}

// validateConfigYaml parses and sanity-checks the main configuration file
func (c *Checker) validateConfigYaml() ValidationResult {
	result := ValidationResult{
		Path:  c.ConfigPath(),
		Valid: true,
	}

	if !fileExists(c.ConfigPath()) {
		result.Valid = false
		result.Error = fmt.Errorf("file does not exist")
		return result
	}

	cfg, err := config.Load(c.ConfigPath())
	if err != nil {
		result.Valid = false
		result.Error = err
		return result
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		result.Valid = false
		result.Error = fmt.Errorf("invalid server port: %d", cfg.Server.Port)
		return result
	}

	if cfg.Editor.LockTTLSeconds <= 0 {
		result.Warnings = append(result.Warnings,
			"editor.lock_ttl_seconds is not positive, the default will be used")
	}
	if cfg.Context.MaxTokens <= 0 {
		result.Warnings = append(result.Warnings,
			"context.max_tokens is not positive, the default will be used")
	}
	if !generator.IsRegistered(cfg.Generator.Backend) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("generator backend '%s' is not registered (available: %v)",
				cfg.Generator.Backend, generator.List()))
	}
	if cfg.Retention.Enabled && cfg.Retention.Days <= 0 {
		result.Warnings = append(result.Warnings,
			"retention.days is not positive, the default will be used")
	}

	return result
}

// printValidationStatus prints the status of a validation
func printValidationStatus(result ValidationResult) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	if result.Valid {
		green.Printf("  ✓ %s\n", result.Path)
	} else {
		red.Printf("  ✗ %s: %v\n", result.Path, result.Error)
	}

	for _, warning := range result.Warnings {
		yellow.Printf("    └─ %s\n", warning)
	}
}
