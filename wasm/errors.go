package wasm

import (
	"errors"
	"fmt"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm/internal/readpos"
)

var (
	ErrInvalidMagic   = errors.New("magic header not detected")
	ErrUnknownVersion = errors.New("unknown binary version")

	// ErrAllocationFailed is returned when the module's allocator refuses a request.
	ErrAllocationFailed = errors.New("allocation failed")
)

// MalformedError reports a violation of the binary encoding, such as a truncated integer or a section whose
// contents do not match its declared size.
type MalformedError = readpos.MalformedError

// ValidationError reports a module that is well-formed but invalid: an out-of-range index, a type mismatch, or a
// structural inconsistency between sections.
type ValidationError string

func (e ValidationError) Error() string {
	return string(e)
}

func validationErrorf(format string, args ...interface{}) error {
	return ValidationError(fmt.Sprintf(format, args...))
}

// UnsupportedFeatureError reports an encoding or opcode that requires a disabled feature.
type UnsupportedFeatureError struct {
	Feature Features
	What    string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("%s requires feature %q", e.What, e.Feature)
}

type InvalidSectionIDError SectionID

func (e InvalidSectionIDError) Error() string {
	return fmt.Sprintf("malformed section id %d", uint8(e))
}

type DuplicateExportError string

func (e DuplicateExportError) Error() string {
	return fmt.Sprintf("duplicate export name %q", string(e))
}
