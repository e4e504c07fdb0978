package steps

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeParams fills dst (a pointer to a params struct) from the generic
// params map via a JSON round trip, then validates it. Unknown keys are
// ignored, matching the permissive step payloads the UI sends.
func DecodeParams(raw map[string]any, dst any) error {
	if raw == nil {
		raw = map[string]any{}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("validate params: %w", err)
	}
	return nil
}
