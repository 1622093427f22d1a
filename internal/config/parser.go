package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	stratumerrors "github.com/alexisbeaulieu97/stratum/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParseSpec loads a specification file from disk, validates it, and returns
// the resulting model.
func ParseSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, stratumerrors.NewParseError(path, 0, err)
	}

	spec, err := ParseSpecBytes(data)
	if err != nil {
		var parseErr *stratumerrors.ParseError
		if errors.As(err, &parseErr) {
			parseErr.Path = path
		}
		return nil, err
	}

	return spec, nil
}

// ParseSpecBytes parses and validates an in-memory specification document.
func ParseSpecBytes(data []byte) (*Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, stratumerrors.NewParseError("", extractLine(err), err)
	}

	if err := ValidateSpec(&spec); err != nil {
		return nil, err
	}

	return &spec, nil
}

// MarshalSpec serializes a specification back to YAML. Steps parsed from a
// document re-emit their original nodes, so parse -> serialize round trips
// are lossless.
func MarshalSpec(spec *Spec) ([]byte, error) {
	return yaml.Marshal(spec)
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	_, scanErr := fmt.Sscanf(matches[1], "%d", &line)
	if scanErr != nil {
		return 0
	}

	return line
}
