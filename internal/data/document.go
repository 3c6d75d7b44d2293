package data

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mvsim/internal/serialize"

	"gopkg.in/yaml.v3"
)

const (
	// CSVElementsDir holds one tabular file per asset group.
	CSVElementsDir = "csv_elements"
	// TimeSeriesDir holds the files referenced by time series fields.
	TimeSeriesDir = "time_series"
	// DefaultDocument is looked up when the input is a directory without csv_elements.
	DefaultDocument = "mvs_config.json"
)

// Load reads a configuration from a document file or an input directory and
// returns the raw mapping plus the folder time series references resolve against.
func Load(input string) (map[string]any, string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, "", err
	}
	if !info.IsDir() {
		doc, err := LoadDocument(input)
		if err != nil {
			return nil, "", err
		}
		return doc, filepath.Join(filepath.Dir(input), TimeSeriesDir), nil
	}
	tsFolder := filepath.Join(input, TimeSeriesDir)
	if st, err := os.Stat(filepath.Join(input, CSVElementsDir)); err == nil && st.IsDir() {
		doc, err := LoadCSVElements(filepath.Join(input, CSVElementsDir))
		if err != nil {
			return nil, "", err
		}
		return doc, tsFolder, nil
	}
	for _, name := range []string{DefaultDocument, "mvs_config.yaml", "mvs_config.yml"} {
		p := filepath.Join(input, name)
		if _, err := os.Stat(p); err == nil {
			doc, err := LoadDocument(p)
			if err != nil {
				return nil, "", err
			}
			return doc, tsFolder, nil
		}
	}
	return nil, "", fmt.Errorf("%s: neither %s/ nor %s found", input, CSVElementsDir, DefaultDocument)
}

// LoadDocument reads a JSON or YAML document. Tagged values (series, time
// indices, timestamps) are decoded, so result documents can be re-ingested.
func LoadDocument(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(raw)
	default:
		doc, err := serialize.Unmarshal(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return doc, nil
	}
}

// ParseYAML decodes a YAML configuration document.
func ParseYAML(raw []byte) (map[string]any, error) {
	var v map[string]any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errors.New("empty document")
	}
	d, err := serialize.Decode(normalize(v))
	if err != nil {
		return nil, err
	}
	return d.(map[string]any), nil
}
