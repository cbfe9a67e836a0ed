// Package assert implements the design-by-contract style precondition
// and postcondition checks used throughout this module for programmer
// errors (a factory not registered, a required argument that must
// never be nil at a construction boundary). These are never used for
// ordinary runtime failures — those are always reported via
// errkind.Error returns instead.
//
// Grounded on original_source/mechanism/DesignByContract/Assertion.h:
// DBC_PRE/DBC_POST throw a fatal, unrecoverable-in-practice exception.
// The Go analogue is a panic the caller is not expected to recover.
package assert

import "fmt"

// Failure is the panic value raised by a failed precondition or
// postcondition.
type Failure struct {
	Kind    string
	Message string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failed: %s", f.Kind, f.Message)
}

// Precondition panics with a *Failure if cond is false.
func Precondition(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(&Failure{Kind: "precondition", Message: fmt.Sprintf(format, args...)})
	}
}

// Postcondition panics with a *Failure if cond is false.
func Postcondition(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(&Failure{Kind: "postcondition", Message: fmt.Sprintf(format, args...)})
	}
}
