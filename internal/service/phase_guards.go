package service

import (
	"time"

	"github.com/noah-isme/gema-workshop-api/internal/models"
)

// PhaseGuards answers which operations the workshop's phase and windows permit at a
// given moment. ignoreDeadlines bypasses the window checks, never the phase itself.
type PhaseGuards struct {
	Workshop        models.Workshop
	Now             time.Time
	IgnoreDeadlines bool
}

// GuardsFor builds the guards for an actor.
func GuardsFor(workshop models.Workshop, actor Actor, now time.Time) PhaseGuards {
	return PhaseGuards{Workshop: workshop, Now: now, IgnoreDeadlines: actor.Can(CapIgnoreDeadlines)}
}

// CreatingSubmissionAllowed reports whether an author may create a submission.
func (g PhaseGuards) CreatingSubmissionAllowed() bool {
	w := g.Workshop
	switch w.Phase {
	case models.PhaseSubmission:
		if g.IgnoreDeadlines {
			return true
		}
		if w.SubmissionNotOpen(g.Now) {
			return false
		}
		return !w.SubmissionDeadlinePassed(g.Now) || w.LateSubmissions
	case models.PhaseAssessment:
		return w.LateSubmissions
	default:
		return false
	}
}

// ModifyingSubmissionAllowed reports whether an author may edit an existing submission.
func (g PhaseGuards) ModifyingSubmissionAllowed() bool {
	w := g.Workshop
	if w.Phase != models.PhaseSubmission {
		return false
	}
	if g.IgnoreDeadlines {
		return true
	}
	return !w.SubmissionNotOpen(g.Now) && !w.SubmissionDeadlinePassed(g.Now)
}

// AssessingAllowed reports whether peer assessments of real submissions may be submitted.
func (g PhaseGuards) AssessingAllowed() bool {
	if g.Workshop.Phase != models.PhaseAssessment {
		return false
	}
	return g.IgnoreDeadlines || g.Workshop.InAssessmentWindow(g.Now)
}

// AssessingExamplesAllowed reports whether trainees may assess example submissions.
func (g PhaseGuards) AssessingExamplesAllowed() bool {
	w := g.Workshop
	if !w.UseExamples {
		return false
	}
	switch w.ExamplesMode {
	case models.ExamplesVoluntary:
		return w.Phase != models.PhaseClosed && w.Phase != models.PhaseEvaluation
	case models.ExamplesBeforeSubmission:
		return w.Phase == models.PhaseSetup || w.Phase == models.PhaseSubmission
	case models.ExamplesBeforeAssessment:
		return w.Phase == models.PhaseSubmission || w.Phase == models.PhaseAssessment
	default:
		return false
	}
}

// OverridingAllowed reports whether grades may be overridden or evaluated.
func (g PhaseGuards) OverridingAllowed() bool {
	return g.Workshop.Phase == models.PhaseEvaluation
}

// AllocatingAllowed reports whether allocations may change.
func (g PhaseGuards) AllocatingAllowed() bool {
	return g.Workshop.Phase != models.PhaseClosed
}

// ManagingExamplesAllowed reports whether examples and their references may change.
func (g PhaseGuards) ManagingExamplesAllowed() bool {
	return g.Workshop.Phase != models.PhaseClosed
}
