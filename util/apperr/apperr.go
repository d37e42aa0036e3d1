// Package apperr carries typed error codes across the service
// boundary so controllers can map each rejection to a status without
// string matching.
package apperr

import "errors"

type Code string

type codedError struct{ code Code }

func (e codedError) Error() string { return string(e.code) }
func (e codedError) Code() Code    { return e.code }

func New(c Code) error { return codedError{code: c} }

// CodeOf extracts the code, or "" for plain errors.
func CodeOf(err error) Code {
	var ce interface{ Code() Code }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}
