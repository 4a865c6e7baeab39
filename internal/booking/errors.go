package booking

import (
	"errors"
	"fmt"

	"github.com/wolfman30/booking-assistant/internal/extraction"
)

var (
	ErrInsufficientData     = extraction.ErrInsufficientData
	ErrResolutionFailure    = extraction.ErrResolutionFailure
	ErrMalformedModelOutput = extraction.ErrMalformedModelOutput
	// ErrScheduleConflict means another client holds an overlapping slot and
	// the conflict policy is reject.
	ErrScheduleConflict = errors.New("booking: schedule conflict")
	// ErrOutsideSchedule means the slot falls on a day or hour the
	// professional does not work. It matches ErrScheduleConflict.
	ErrOutsideSchedule = fmt.Errorf("%w: outside professional schedule", ErrScheduleConflict)
)
