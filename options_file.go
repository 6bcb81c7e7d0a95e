package claudecode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// OptionsFormat is the encoding of an options file.
type OptionsFormat string

const (
	FormatYAML  OptionsFormat = "yaml"
	FormatJSONC OptionsFormat = "jsonc"
)

// FormatForPath picks the format from the file extension: .yaml and .yml
// are YAML, everything else (.json, .jsonc) is JSON with comments.
func FormatForPath(path string) OptionsFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSONC
	}
}

// ParseOptions decodes an options document. Keys use the same snake_case
// names as OptionsFromMap, and unknown keys are rejected in both formats.
func ParseOptions(data []byte, format OptionsFormat) (Options, error) {
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)

		var opts Options
		if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
			return Options{}, fmt.Errorf("decoding options: %w", err)
		}
		if err := opts.Validate(); err != nil {
			return Options{}, err
		}
		return opts, nil
	case FormatJSONC:
		return decodeOptionsJSON(jsonc.ToJSON(data))
	default:
		return Options{}, fmt.Errorf("unknown options format %q", format)
	}
}

// LoadOptions reads and parses the options file at path.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("reading %s: %w", path, err)
	}
	opts, err := ParseOptions(data, FormatForPath(path))
	if err != nil {
		return Options{}, fmt.Errorf("%s: %w", path, err)
	}
	return opts, nil
}
