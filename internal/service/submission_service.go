package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-workshop-api/internal/dto"
	"github.com/noah-isme/gema-workshop-api/internal/models"
	"github.com/noah-isme/gema-workshop-api/internal/repository"
)

// SubmissionService orchestrates submission workflows.
type SubmissionService interface {
	List(ctx context.Context, actor Actor, workshopID uint, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, error)
	Get(ctx context.Context, actor Actor, id uint) (dto.SubmissionResponse, error)
	Create(ctx context.Context, actor Actor, workshopID uint, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionResponse, error)
	Update(ctx context.Context, actor Actor, id uint, payload dto.SubmissionUpdateRequest) (dto.SubmissionResponse, error)
	Delete(ctx context.Context, actor Actor, id uint, force bool) error
	OverrideGrade(ctx context.Context, actor Actor, id uint, payload dto.SubmissionOverrideRequest) (dto.SubmissionResponse, error)
	Publish(ctx context.Context, actor Actor, id uint) (dto.SubmissionResponse, error)
}

type submissionService struct {
	workshops   repository.WorkshopRepository
	submissions repository.SubmissionRepository
	assessments repository.AssessmentRepository
	files       FileStore
	events      EventSink
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	now         func() time.Time
}

// NewSubmissionService constructs the submission service.
func NewSubmissionService(
	workshops repository.WorkshopRepository,
	submissions repository.SubmissionRepository,
	assessments repository.AssessmentRepository,
	files FileStore,
	events EventSink,
	validate *validator.Validate,
	logger zerolog.Logger,
) SubmissionService {
	return &submissionService{
		workshops:   workshops,
		submissions: submissions,
		assessments: assessments,
		files:       files,
		events:      sinkOrNop(events),
		validator:   validate,
		sanitizer:   bluemonday.UGCPolicy(),
		logger:      logger.With().Str("component", "submission_service").Logger(),
		now:         time.Now,
	}
}

func (s *submissionService) List(ctx context.Context, actor Actor, workshopID uint, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, error) {
	workshop, err := loadWorkshop(ctx, s.workshops, workshopID)
	if err != nil {
		return nil, err
	}

	repoFilter := repository.SubmissionFilter{WorkshopID: workshopID, AuthorID: filter.AuthorID, Example: filter.Example}
	if !actor.Can(CapViewAll) {
		own := actor.ID
		repoFilter.AuthorID = &own
	}

	items, err := s.submissions.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}
	return dto.NewSubmissionResponseSlice(items, workshop), nil
}

func (s *submissionService) Get(ctx context.Context, actor Actor, id uint) (dto.SubmissionResponse, error) {
	submission, err := loadSubmission(ctx, s.submissions, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if submission.AuthorID != actor.ID && !submission.Example && !actor.Can(CapViewAll) {
		if _, err := s.assessments.GetByPair(ctx, submission.ID, actor.ID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return dto.SubmissionResponse{}, ErrForbidden
			}
			return dto.SubmissionResponse{}, err
		}
	}
	workshop, err := loadWorkshop(ctx, s.workshops, submission.WorkshopID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(submission, workshop), nil
}

func (s *submissionService) Create(ctx context.Context, actor Actor, workshopID uint, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	workshop, err := loadWorkshop(ctx, s.workshops, workshopID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	now := s.now().UTC()
	guards := GuardsFor(workshop, actor, now)

	if payload.Example {
		if err := requireCapability(actor, CapManageExamples); err != nil {
			return dto.SubmissionResponse{}, err
		}
		if !workshop.UseExamples {
			return dto.SubmissionResponse{}, fmt.Errorf("%w: examples are disabled", ErrForbidden)
		}
		if !guards.ManagingExamplesAllowed() {
			return dto.SubmissionResponse{}, phaseDenied("adding an example", workshop.Phase)
		}
	} else {
		if err := requireCapability(actor, CapSubmit); err != nil {
			return dto.SubmissionResponse{}, err
		}
		if !guards.CreatingSubmissionAllowed() {
			return dto.SubmissionResponse{}, phaseDenied("submitting", workshop.Phase)
		}
		if err := s.ensureNoSubmission(ctx, workshopID, actor.ID); err != nil {
			return dto.SubmissionResponse{}, err
		}
		if workshop.UseExamples && workshop.ExamplesMode == models.ExamplesBeforeSubmission {
			if err := ensureExamplesAssessed(ctx, s.submissions, s.assessments, workshopID, actor.ID); err != nil {
				return dto.SubmissionResponse{}, err
			}
		}
	}

	if file != nil {
		if err := validateFileType(file); err != nil {
			return dto.SubmissionResponse{}, err
		}
	}

	submission := models.Submission{
		WorkshopID: workshopID,
		AuthorID:   actor.ID,
		Example:    payload.Example,
		Title:      strings.TrimSpace(payload.Title),
		Content:    s.sanitizer.Sanitize(payload.Content),
		Late:       !payload.Example && workshop.SubmissionDeadlinePassed(now),
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		s.logger.Error().Err(err).Uint("workshop_id", workshopID).Msg("failed to create submission")
		return dto.SubmissionResponse{}, err
	}

	if file != nil {
		url, err := s.storeAttachment(ctx, submission.ID, file)
		if err != nil {
			if cleanupErr := s.submissions.Delete(ctx, submission.ID); cleanupErr != nil {
				s.logger.Warn().Err(cleanupErr).Uint("submission_id", submission.ID).Msg("failed to roll back submission")
			}
			return dto.SubmissionResponse{}, err
		}
		submission.AttachmentURL = url
		if err := s.submissions.Update(ctx, &submission); err != nil {
			return dto.SubmissionResponse{}, err
		}
	}

	s.events.Fire(ctx, EventSubmissionCreated, EventPayload{
		WorkshopID: workshopID,
		ActorID:    actor.ID,
		EntityType: "submission",
		EntityID:   entityRef(submission.ID),
		Data:       map[string]interface{}{"example": submission.Example, "late": submission.Late},
	})
	s.logger.Info().Uint("workshop_id", workshopID).Uint("submission_id", submission.ID).Bool("example", submission.Example).Msg("submission created")

	return dto.NewSubmissionResponse(submission, workshop), nil
}

func (s *submissionService) ensureNoSubmission(ctx context.Context, workshopID, authorID uint) error {
	_, err := s.submissions.GetByAuthor(ctx, workshopID, authorID)
	switch {
	case err == nil:
		return ErrSubmissionExists
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	default:
		return err
	}
}

func (s *submissionService) storeAttachment(ctx context.Context, submissionID uint, file *multipart.FileHeader) (string, error) {
	reader, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	name := fmt.Sprintf("%d/%s", submissionID, file.Filename)
	url, err := s.files.StoreArea(ctx, AreaSubmissionAttachment, name, reader)
	if err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("failed to store attachment")
		return "", err
	}
	return url, nil
}

func (s *submissionService) Update(ctx context.Context, actor Actor, id uint, payload dto.SubmissionUpdateRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission, err := loadSubmission(ctx, s.submissions, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	workshop, err := loadWorkshop(ctx, s.workshops, submission.WorkshopID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	now := s.now().UTC()
	guards := GuardsFor(workshop, actor, now)

	if submission.Example {
		if err := requireCapability(actor, CapManageExamples); err != nil {
			return dto.SubmissionResponse{}, err
		}
		if !guards.ManagingExamplesAllowed() {
			return dto.SubmissionResponse{}, phaseDenied("editing an example", workshop.Phase)
		}
	} else {
		if submission.AuthorID != actor.ID {
			return dto.SubmissionResponse{}, ErrNotOwner
		}
		if !guards.ModifyingSubmissionAllowed() {
			return dto.SubmissionResponse{}, phaseDenied("editing a submission", workshop.Phase)
		}
		submission.Late = workshop.SubmissionDeadlinePassed(now)
	}

	if payload.Title != nil {
		submission.Title = strings.TrimSpace(*payload.Title)
	}
	if payload.Content != nil {
		submission.Content = s.sanitizer.Sanitize(*payload.Content)
	}

	if err := s.submissions.Update(ctx, &submission); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", id).Msg("failed to update submission")
		return dto.SubmissionResponse{}, err
	}

	s.events.Fire(ctx, EventSubmissionUpdated, EventPayload{WorkshopID: workshop.ID, ActorID: actor.ID, EntityType: "submission", EntityID: entityRef(id)})
	return dto.NewSubmissionResponse(submission, workshop), nil
}

// Delete removes a submission. Assessed submissions are only removed when forced by an
// actor allowed to delete submissions; their assessments go with them.
func (s *submissionService) Delete(ctx context.Context, actor Actor, id uint, force bool) error {
	submission, err := loadSubmission(ctx, s.submissions, id)
	if err != nil {
		return err
	}
	workshop, err := loadWorkshop(ctx, s.workshops, submission.WorkshopID)
	if err != nil {
		return err
	}
	privileged := actor.Can(CapDeleteSubmissions)

	if !privileged {
		if submission.Example || submission.AuthorID != actor.ID {
			return ErrNotOwner
		}
		if !GuardsFor(workshop, actor, s.now().UTC()).ModifyingSubmissionAllowed() {
			return phaseDenied("deleting a submission", workshop.Phase)
		}
	}

	count, err := s.submissions.CountAssessments(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 && !(force && privileged) {
		return ErrSubmissionHasAssessments
	}

	if err := s.submissions.Delete(ctx, id); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", id).Msg("failed to delete submission")
		return err
	}

	s.events.Fire(ctx, EventSubmissionDeleted, EventPayload{
		WorkshopID: workshop.ID,
		ActorID:    actor.ID,
		EntityType: "submission",
		EntityID:   entityRef(id),
		Data:       map[string]interface{}{"assessments": count},
	})
	return nil
}

func (s *submissionService) OverrideGrade(ctx context.Context, actor Actor, id uint, payload dto.SubmissionOverrideRequest) (dto.SubmissionResponse, error) {
	if err := requireCapability(actor, CapOverrideGrades); err != nil {
		return dto.SubmissionResponse{}, err
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission, err := loadSubmission(ctx, s.submissions, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	workshop, err := loadWorkshop(ctx, s.workshops, submission.WorkshopID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if !GuardsFor(workshop, actor, s.now().UTC()).OverridingAllowed() {
		return dto.SubmissionResponse{}, phaseDenied("overriding a grade", workshop.Phase)
	}

	submission.GradeOver = payload.GradeOver
	if payload.GradeOver != nil {
		by := actor.ID
		submission.GradeOverBy = &by
	} else {
		submission.GradeOverBy = nil
	}
	if payload.Feedback != nil {
		submission.FeedbackAuthor = s.sanitizer.Sanitize(*payload.Feedback)
	}

	if err := s.submissions.Update(ctx, &submission); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", id).Msg("failed to override submission grade")
		return dto.SubmissionResponse{}, err
	}

	s.events.Fire(ctx, EventSubmissionAssessed, EventPayload{WorkshopID: workshop.ID, ActorID: actor.ID, EntityType: "submission", EntityID: entityRef(id)})
	return dto.NewSubmissionResponse(submission, workshop), nil
}

func (s *submissionService) Publish(ctx context.Context, actor Actor, id uint) (dto.SubmissionResponse, error) {
	if err := requireCapability(actor, CapPublishSubmissions); err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission, err := loadSubmission(ctx, s.submissions, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	workshop, err := loadWorkshop(ctx, s.workshops, submission.WorkshopID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if workshop.Phase != models.PhaseClosed {
		return dto.SubmissionResponse{}, phaseDenied("publishing a submission", workshop.Phase)
	}
	if submission.Published {
		return dto.NewSubmissionResponse(submission, workshop), nil
	}

	submission.Published = true
	if err := s.submissions.Update(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(submission, workshop), nil
}

func validateFileType(file *multipart.FileHeader) error {
	reader, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	mime, err := mimetype.DetectReader(reader)
	if err != nil {
		return fmt.Errorf("failed to detect file type: %w", err)
	}

	allowed := []string{"application/pdf", "application/zip", "application/x-zip-compressed", "text/plain", "image/png", "image/jpeg"}
	for _, a := range allowed {
		if mime.Is(a) {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrUnsupportedFileType, mime.String())
}
