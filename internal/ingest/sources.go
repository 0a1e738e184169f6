package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// sourcesFile is the YAML form of a sources file. A bare list of URLs is accepted too.
type sourcesFile struct {
	Sources []string `yaml:"sources"`
}

// LoadSources reads the list of URLs to ingest. Files ending in .yaml or .yml are parsed
// as YAML; anything else is read as one URL per line, skipping blank lines and lines
// starting with '#'. Duplicates are dropped, keeping the first occurrence.
func LoadSources(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var urls []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		urls, err = parseYAMLSources(data)
		if err != nil {
			return nil, err
		}
	default:
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			urls = append(urls, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan sources file: %w", err)
		}
	}

	return dedupe(urls), nil
}

func parseYAMLSources(data []byte) ([]string, error) {
	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}
	return file.Sources, nil
}

func dedupe(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	urls := make([]string, 0, len(lines))
	for _, line := range lines {
		url := strings.TrimSpace(line)
		if url == "" || strings.HasPrefix(url, "#") {
			continue
		}
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		urls = append(urls, url)
	}
	return urls
}
