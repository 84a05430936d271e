package service

import (
	"errors"
	"strings"
)

var (
	// ErrForbidden indicates the actor lacks the capability for the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrPhaseForbidden indicates the operation is not allowed in the current phase or window.
	ErrPhaseForbidden = errors.New("operation not allowed in the current phase")
	// ErrInvalidPhaseTransition indicates a backward, repeated or post-closure phase switch.
	ErrInvalidPhaseTransition = errors.New("invalid phase transition")
	// ErrPhaseConflict indicates another request changed the phase concurrently.
	ErrPhaseConflict = errors.New("phase changed concurrently")
	// ErrWorkshopNotFound indicates the workshop does not exist.
	ErrWorkshopNotFound = errors.New("workshop not found")
	// ErrSubmissionNotFound indicates the submission does not exist.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrAssessmentNotFound indicates the assessment does not exist.
	ErrAssessmentNotFound = errors.New("assessment not found")
	// ErrSubmissionExists indicates the author already has a submission in the workshop.
	ErrSubmissionExists = errors.New("submission already exists")
	// ErrSubmissionHasAssessments indicates a delete attempt on an assessed submission.
	ErrSubmissionHasAssessments = errors.New("submission has assessments")
	// ErrExamplesNotAssessed indicates the examples must be assessed first.
	ErrExamplesNotAssessed = errors.New("example submissions must be assessed first")
	// ErrReferenceMissing indicates an example without its reference assessment.
	ErrReferenceMissing = errors.New("example has no reference assessment")
	// ErrNotOwner indicates the actor does not own the submission or assessment.
	ErrNotOwner = errors.New("not the owner")
	// ErrUnsupportedFileType indicates an attachment type outside the allow list.
	ErrUnsupportedFileType = errors.New("unsupported file type")
)

// FieldError reports one invalid settings field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors collects every cross-field violation of a settings request.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, field := range e {
		parts = append(parts, field.Field+": "+field.Message)
	}
	return "invalid settings: " + strings.Join(parts, "; ")
}
