package graph

import "fmt"

// StructuralError reports a bad graph definition. It is only ever produced
// at compile time; a compiled plan cannot fail structurally at run time.
type StructuralError struct {
	Reason string
}

func (e *StructuralError) Error() string {
	return "structural error: " + e.Reason
}

func structuralf(format string, args ...any) *StructuralError {
	return &StructuralError{Reason: fmt.Sprintf(format, args...)}
}
