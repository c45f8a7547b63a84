package schema

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Decode copies validated arguments into a struct tagged with `mapstructure`.
// Weak typing is disabled: Validate is expected to have normalised the values.
func Decode(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: false,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}
