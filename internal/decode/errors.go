package decode

import (
	"errors"
	"strings"
)

var (
	// ErrDecodeFailure is returned when every applicable strategy failed.
	ErrDecodeFailure = errors.New("audio could not be decoded")

	errNotApplicable   = errors.New("not applicable")
	errUnknownEncoding = errors.New("unrecognized encoding")
	errNoFrames        = errors.New("no audio frames")
	errUnsupported     = errors.New("unsupported sample format")
	errMissingFormat   = errors.New("data chunk before fmt chunk")
	errInvalidHeader   = errors.New("invalid header")
)

// Failure carries every attempt made by the chain, in order.
type Failure struct {
	MIMEType string
	Attempts []Attempt
}

func (f *Failure) Error() string {
	var sb strings.Builder

	sb.WriteString(ErrDecodeFailure.Error())

	if f.MIMEType != "" {
		sb.WriteString(" (" + f.MIMEType + ")")
	}

	for _, attempt := range f.Attempts {
		if attempt.Skipped {
			continue
		}

		sb.WriteString("; " + attempt.Strategy + ": " + attempt.Err.Error())
	}

	return sb.String()
}

// Unwrap exposes ErrDecodeFailure and every attempt error.
func (f *Failure) Unwrap() []error {
	errs := []error{ErrDecodeFailure}

	for _, attempt := range f.Attempts {
		if attempt.Err != nil && !attempt.Skipped {
			errs = append(errs, attempt.Err)
		}
	}

	return errs
}
