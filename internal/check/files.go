package check

import (
	"fmt"
	"os"

	"github.com/reviewpilot/reviewpilot/internal/configfiles"
)

// TemplateType represents the type of template file
type TemplateType int

const (
	TemplateConfig TemplateType = iota
	TemplateGuidelines
)

// FileConfig represents a configuration file to check
type FileConfig struct {
	Path        string
	Description string
	Template    TemplateType
}

// FileCheckResult represents the result of a file check
type FileCheckResult struct {
	Path        string
	Exists      bool
	Created     bool
	Description string
	Error       error
}

// checkFiles checks all required configuration files
func (c *Checker) checkFiles() error {
	for _, file := range c.RequiredFiles() {
		result := c.checkFile(file)
		c.report.AddFileResult(result)

		if result.Error != nil {
			return result.Error
		}
	}
	return nil
}

// checkFile checks a single file and prompts for creation if missing
func (c *Checker) checkFile(file FileConfig) FileCheckResult {
	result := FileCheckResult{
		Path:        file.Path,
		Description: file.Description,
	}

	if fileExists(file.Path) {
		result.Exists = true
		printFileResult(result)
		return result
	}
	printFileResult(result)

	confirm, err := c.confirmCreate(file.Path)
	if err != nil {
		result.Error = fmt.Errorf("failed to get user confirmation: %w", err)
		return result
	}
	if !confirm {
		return result
	}

	if err := createFromTemplate(file.Path, file.Template); err != nil {
		result.Error = err
		return result
	}

	result.Created = true
	result.Exists = true
	printFileResult(result)

	return result
}

// createFromTemplate writes the embedded template for t to path,
// creating the parent directory as needed
func createFromTemplate(path string, t TemplateType) error {
	content, err := getTemplateContent(t)
	if err != nil {
		return fmt.Errorf("failed to get template: %w", err)
	}

	if err := ensureDir(path); err != nil {
		return err
	}

	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	return nil
}

// getTemplateContent returns the embedded template content
func getTemplateContent(t TemplateType) ([]byte, error) {
	switch t {
	case TemplateConfig:
		return configfiles.GetConfigExample()
	case TemplateGuidelines:
		return configfiles.GetGuidelinesExample()
	default:
		return nil, fmt.Errorf("unknown template type: %d", t)
	}
}

// printFileResult prints the one-line status of a file check
func printFileResult(r FileCheckResult) {
	switch {
	case r.Error != nil:
		red.Printf("  ✗ %s: %v\n", r.Path, r.Error)
	case r.Created:
		green.Printf("  ✓ %s (created)\n", r.Path)
	case r.Exists:
		green.Printf("  ✓ %s\n", r.Path)
	default:
		yellow.Printf("  ⚠ %s does not exist\n", r.Path)
	}
}

// checkGuidelines offers to create the optional review guidelines file.
// Declining is not an error: reviews run fine without guidelines, the
// prompts just carry no project conventions.
func (c *Checker) checkGuidelines() error {
	path := c.GuidelinesPath()

	if fileExists(path) {
		printFileResult(FileCheckResult{Path: path, Exists: true})
		return nil
	}
	printFileResult(FileCheckResult{Path: path})

	confirm, err := c.confirmCreate(path + " (review guidelines)")
	if err != nil {
		return fmt.Errorf("failed to get user confirmation: %w", err)
	}
	if !confirm {
		return nil
	}

	if err := createFromTemplate(path, TemplateGuidelines); err != nil {
		return err
	}

	printFileResult(FileCheckResult{Path: path, Exists: true, Created: true})
	green.Printf("  ✓ Set review.guidelines_file to %s in config.yaml to enable it\n", path)

	return nil
}
