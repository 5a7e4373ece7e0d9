package ioadapter

import "errors"

// ErrNoStringOnStack is returned by WriteLine when the value stack's top
// value is not a string, or the stack is empty.
var ErrNoStringOnStack = errors.New("ioadapter: expected a string on top of the value stack")
