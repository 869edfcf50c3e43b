// Package configfiles provides embedded configuration templates.
// They are written out by `reviewpilot serve --check` when the user
// initializes a fresh installation.
package configfiles

import (
	"embed"
)

//go:embed config.example.yaml
//go:embed guidelines.example.md
var configFS embed.FS

// GetConfigExample returns the example configuration file content
func GetConfigExample() ([]byte, error) {
	return configFS.ReadFile("config.example.yaml")
}

// GetGuidelinesExample returns the example review guidelines content
func GetGuidelinesExample() ([]byte, error) {
	return configFS.ReadFile("guidelines.example.md")
}
