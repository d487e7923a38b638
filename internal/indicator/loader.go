package indicator

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadFromDirectory discovers and loads all indicator definition files from
// a directory. Parse failures are reported per file, they do not stop the
// remaining files from loading.
func LoadFromDirectory(dirPath string) ([]WithFile, []ValidationError) {
	var defs []WithFile
	var errors []ValidationError

	files, err := discoverYAMLFiles(dirPath)
	if err != nil {
		errors = append(errors, ValidationError{
			File:    dirPath,
			Message: fmt.Sprintf("failed to read directory: %v", err),
		})
		return nil, errors
	}

	for _, file := range files {
		ind, err := parseYAMLFile(file)
		if err != nil {
			errors = append(errors, ValidationError{
				File:    file,
				Message: fmt.Sprintf("failed to parse YAML: %v", err),
			})
			continue
		}
		defs = append(defs, WithFile{
			Indicator: ind,
			File:      file,
		})
	}

	return defs, errors
}

// discoverYAMLFiles finds all *.yaml and *.yml files in a directory
func discoverYAMLFiles(dirPath string) ([]string, error) {
	var files []string

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// parseYAMLFile parses a single YAML file into an Indicator struct
func parseYAMLFile(filePath string) (*Indicator, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var ind Indicator
	if err := yaml.Unmarshal(data, &ind); err != nil {
		return nil, err
	}

	return &ind, nil
}
