package build

import "errors"

var (
	ErrMissingImage      = errors.New("source image path is required")
	ErrMissingName       = errors.New("image name is required")
	ErrMissingOS         = errors.New("os tag is required")
	ErrSourceNotFound    = errors.New("source image not found")
	ErrSourceNotReadable = errors.New("source image not readable")
	ErrSourceNotRegular  = errors.New("source image is not a regular file")
	ErrUnknownOS         = errors.New("unknown os tag")
)

var validationErrs = []error{
	ErrMissingImage,
	ErrMissingName,
	ErrMissingOS,
	ErrSourceNotFound,
	ErrSourceNotReadable,
	ErrSourceNotRegular,
	ErrUnknownOS,
}

// IsValidationError reports whether err is an input validation failure, as
// opposed to a failure of one of the external tools.
func IsValidationError(err error) bool {
	for _, verr := range validationErrs {
		if errors.Is(err, verr) {
			return true
		}
	}
	return false
}
