// Package configfiles provides embedded configuration templates used when
// initializing a new deployment.
package configfiles

import (
	"embed"
)

//go:embed config.example.yaml
var configFS embed.FS

// GetConfigExample returns the example configuration file content
func GetConfigExample() ([]byte, error) {
	return configFS.ReadFile("config.example.yaml")
}
