// Package check provides interactive environment checking and initialization.
// It helps users set up their local FinSight configuration properly.
package check

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/finsight/finsight/internal/config"
	"github.com/finsight/finsight/internal/generator"
)

// CheckResult represents the result of a non-interactive environment check
type CheckResult struct {
	// Success indicates whether all required checks passed
	Success bool
	// Errors contains critical errors that prevent server startup
	Errors []string
	// Warnings contains non-critical issues that don't block startup
	Warnings []string
	// Suggestions contains helpful tips for fixing issues
	Suggestions []string
}

// Checker handles environment checking and initialization
type Checker struct {
	// configDir is the base directory for configuration files
	configDir string
	// dataDir is the directory holding the SQLite database
	dataDir string
	// report collects check results for final output
	report *Report
	// theme for consistent styling
	theme *huh.Theme
}

// NewChecker creates a new environment checker
func NewChecker() *Checker {
	return &Checker{
		configDir: "config",
		dataDir:   "data",
		report:    NewReport(),
		theme:     huh.ThemeCharm(),
	}
}

// Run executes the full interactive environment check
func (c *Checker) Run() error {
	c.printHeader()

	fmt.Println()
	printSection("Checking configuration files")
	if err := c.checkFiles(); err != nil {
		return fmt.Errorf("file check failed: %w", err)
	}

	fmt.Println()
	printSection("Checking data directory")
	if err := c.checkDataDir(); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}

	fmt.Println()
	printSection("Validating configuration")
	if err := c.validateConfigs(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fmt.Println()
	c.report.Print()

	return nil
}

// printHeader prints the welcome header
func (c *Checker) printHeader() {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		MarginBottom(1)

	fmt.Println(titleStyle.Render("🔍 FinSight Environment Check"))
}

// printSection prints a section header
func printSection(title string) {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("15"))
	fmt.Println(style.Render(title + "..."))
}

// RequiredFiles returns the list of required configuration files
func (c *Checker) RequiredFiles() []FileConfig {
	return []FileConfig{
		{
			Path:        filepath.Join(c.configDir, "config.yaml"),
			Description: "Main configuration file (server, generator, editor, retention)",
			Template:    TemplateConfig,
		},
	}
}

// ConfigPath returns the path to the main config file
func (c *Checker) ConfigPath() string {
	return filepath.Join(c.configDir, "config.yaml")
}

// confirmCreate asks user to confirm file creation
func confirmCreate(path string) (bool, error) {
	var confirm bool
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Create %s from template?", path)).
		Affirmative("Yes").
		Negative("No").
		Value(&confirm).
		Run()
	if err != nil {
		return false, err
	}
	return confirm, nil
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ensureDir creates directory if it doesn't exist
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// checkDataDir verifies the database directory exists and is writable,
// offering to create it when missing
func (c *Checker) checkDataDir() error {
	if dirWritable(c.dataDir) {
		printFileStatus(c.dataDir, true, false)
		return nil
	}

	printFileStatus(c.dataDir, false, false)

	confirm, err := confirmCreate(c.dataDir + " (database directory)")
	if err != nil {
		return fmt.Errorf("failed to get user confirmation: %w", err)
	}
	if !confirm {
		return nil
	}

	if err := os.MkdirAll(c.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	printFileCreated(c.dataDir)

	return nil
}

// dirWritable reports whether the directory exists and accepts writes
func dirWritable(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	probe := filepath.Join(dir, ".write-probe")
	f, err := os.Create(probe)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

// RunNonInteractive performs a non-interactive environment check.
// Unlike Run(), this method does not prompt for user input and does not
// create files. It returns a CheckResult with errors, warnings, and
// suggestions.
func (c *Checker) RunNonInteractive() *CheckResult {
	result := &CheckResult{
		Success:     true,
		Errors:      make([]string, 0),
		Warnings:    make([]string, 0),
		Suggestions: make([]string, 0),
	}

	c.checkFilesNonInteractive(result)

	// If required files are missing, return early with suggestions
	if !result.Success {
		result.Suggestions = append(result.Suggestions,
			"Run 'finsight serve --check' to interactively create configuration files",
		)
		return result
	}

	c.validateConfigsNonInteractive(result)

	return result
}

// checkFilesNonInteractive checks if required configuration files exist
func (c *Checker) checkFilesNonInteractive(result *CheckResult) {
	if !fileExists(c.ConfigPath()) {
		result.Success = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("Configuration not found: %s", c.ConfigPath()))
	}
}

// validateConfigsNonInteractive validates configuration file formats and
// referenced backends
func (c *Checker) validateConfigsNonInteractive(result *CheckResult) {
	validation := c.validateConfigYaml()
	if !validation.Valid {
		result.Success = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("Invalid config.yaml: %v", validation.Error))
		return
	}

	cfg, err := config.Load(c.ConfigPath())
	if err != nil {
		return
	}

	// Unknown generator backends only warn: the backend may be registered by
	// a build tag or plugin not linked into this binary
	if !generator.IsRegistered(cfg.Generator.Backend) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Generator backend '%s' is not registered (available: %v)",
				cfg.Generator.Backend, generator.List()))
	}

	if !dirWritable(c.dataDir) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Data directory '%s' is missing or not writable; it will be created at startup", c.dataDir))
	}
}

// PrintCheckResult prints the check result in a formatted way
func PrintCheckResult(result *CheckResult) {
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	if len(result.Errors) > 0 {
		fmt.Println()
		red.Println("[ERROR] Environment check failed")
		fmt.Println()
		for _, err := range result.Errors {
			red.Printf("  ✗ %s\n", err)
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Println()
		yellow.Println("[WARNING] Configuration warnings:")
		fmt.Println()
		for _, warn := range result.Warnings {
			yellow.Printf("  ⚠ %s\n", warn)
		}
	}

	if len(result.Suggestions) > 0 {
		cyan.Println("\nTo fix these issues:")
		for _, suggestion := range result.Suggestions {
			fmt.Printf("  → %s\n", suggestion)
		}
	}

	fmt.Println()
}
