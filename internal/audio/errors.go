package audio

import "fmt"

// AcquisitionError reports a failure to fetch or normalize an attachment.
// It is never retried inside the pipeline.
type AcquisitionError struct {
	AttachmentID string
	Op           string // "resolve", "download", "normalize", "size"
	Err          error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire %s: %s: %v", e.AttachmentID, e.Op, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }
