package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const configHeader = `# assetvault Configuration File
#
# Every value below is the built-in default. Environment variables override
# file values: ASSETVAULT_<SECTION>_<KEY>, for example ASSETVAULT_LOGGING_LEVEL=DEBUG.
`

// sectionComments documents each top-level section of the generated file.
var sectionComments = map[string]string{
	"logging": "Log level (DEBUG, INFO, WARN, ERROR), format (text, json), output\n(stdout, stderr or a file path) and the in-memory tail used by `assetvault logs`.",
	"storage": "Data directory used when the preferences document does not name one,\nand the preferences document location.",
	"backup":  "Metadata snapshots kept under <data_dir>/metadata/backups.\nschedule is a cron expression (\"@every 6h\", \"0 3 * * *\"); empty disables it.\ns3 mirrors each snapshot: bucket, region, endpoint, key_prefix,\naccess_key_id, secret_access_key, max_retries.",
	"index":   "Identifier index used for uniqueness checks and fast deletes.\nRebuilt from the metadata documents on every load.",
	"tasks":   "Background task runner; max_concurrent 0 means unlimited.",
	"metrics": "Prometheus endpoint served by `assetvault metrics serve`.",
}

// InitConfig writes a default configuration file to the default location.
//
// Parameters:
//   - force: Overwrite an existing file
//
// Returns:
//   - string: Path of the written file
//   - error: File exists (without force) or write failure
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg as YAML with a file header and a
// comment above every section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	// doc is a mapping node of alternating key/value nodes
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = "# " + strings.ReplaceAll(comment, "\n", "\n# ")
		}
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	buf.WriteString("\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}

	return buf.String(), nil
}
