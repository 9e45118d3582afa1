// Package assert holds invariant checks that panic. Use them only for values
// the program generated itself, never for input.
package assert

import (
	"fmt"
)

// Length panics unless value has exactly expected bytes
func Length(value string, expected int) {
	if len(value) != expected {
		panic(fmt.Sprintf("assert.Length: expected %d bytes, got %d", expected, len(value)))
	}
}

// NotEmpty panics when value is empty
func NotEmpty(name, value string) {
	if value == "" {
		panic(fmt.Sprintf("assert.NotEmpty: %s is empty", name))
	}
}
