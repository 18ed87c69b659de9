package tools

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// decodeArgs copies validated arguments into a typed struct using its json
// tags. Unknown keys are ignored, matching the schema's open objects.
func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
	})
	if err != nil {
		return fmt.Errorf("build argument decoder: %w", err)
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}
