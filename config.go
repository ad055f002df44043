package distmagic

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// ReadJSONConfig decodes the JSON file at filename into config.
func ReadJSONConfig(filename string, config interface{}) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(config); err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}
	return nil
}

// ReadConfig decodes filename as YAML when its extension is .yaml or .yml and
// as JSON otherwise.
func ReadConfig(filename string, config interface{}) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(filename)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("%s: %w", filename, err)
		}
		return nil
	default:
		return ReadJSONConfig(filename, config)
	}
}

// Validate checks the struct tags of a config.
func Validate(config interface{}) error {
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
