package engine

import "github.com/vk/riskflow/internal/state"

// Input limits carried over from the transport contract: strings and lists
// beyond these bounds are rejected before any node runs.
const (
	maxInputLength   = 50000
	maxInputElements = 1000
)

// validateInput is the pre-flight check on the caller payload.
func validateInput(input any) error {
	switch v := input.(type) {
	case nil:
		return validationf("input is null")
	case string:
		if len(v) == 0 {
			return validationf("string input is empty")
		}
		if len(v) > maxInputLength {
			return validationf("string input exceeds %d bytes", maxInputLength)
		}
	case []any:
		if len(v) == 0 {
			return validationf("list input is empty")
		}
		if len(v) > maxInputElements {
			return validationf("list input exceeds %d elements", maxInputElements)
		}
	case map[string]any:
		if len(v) == 0 {
			return validationf("structured input has no fields")
		}
	}
	return nil
}

// validateOutput is the post-flight check on the terminal state: a run
// must produce either folded results or at least an event log.
func validateOutput(st *state.State) error {
	if len(st.Results()) == 0 && len(st.Messages()) == 0 {
		return validationf("run produced neither results nor messages")
	}
	return nil
}
