package allocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workshop-api/internal/models"
	"github.com/noah-isme/gema-workshop-api/internal/repository"
)

// Random allocation counts.
const (
	NumPerSubmission = "submission"
	NumPerReviewer   = "reviewer"
)

// RandomSettings configures the random allocator.
type RandomSettings struct {
	NumOfReviews            int    `json:"numofreviews" validate:"min=1,max=30"`
	NumPer                  string `json:"numper" validate:"oneof=submission reviewer"`
	RemoveCurrent           bool   `json:"removecurrent"`
	AssessWithoutSubmission bool   `json:"assesswosubmission"`
	AddSelfAssessment       bool   `json:"addselfassessment"`
}

// DefaultRandomSettings returns five reviews per submission.
func DefaultRandomSettings() RandomSettings {
	return RandomSettings{NumOfReviews: 5, NumPer: NumPerSubmission}
}

// DecodeRandomSettings overlays raw JSON on the defaults and validates the result.
func DecodeRandomSettings(raw json.RawMessage) (RandomSettings, error) {
	settings := DefaultRandomSettings()
	if err := decodeSettings(raw, &settings); err != nil {
		return RandomSettings{}, err
	}
	return settings, nil
}

// Random pairs every submission (or reviewer) with a fixed number of peers, spreading the
// load evenly.
type Random struct {
	store  Store
	logger zerolog.Logger
	rng    *rand.Rand
	now    func() time.Time
}

// NewRandom constructs the random allocator.
func NewRandom(store Store, logger zerolog.Logger) *Random {
	seed := uint64(time.Now().UnixNano())
	return &Random{
		store:  store,
		logger: componentLogger(logger, RandomName),
		rng:    rand.New(rand.NewPCG(seed, seed>>1|1)),
		now:    utcNow,
	}
}

// WithSeed makes the shuffle reproducible.
func (r *Random) WithSeed(seed uint64) *Random {
	r.rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	return r
}

func (r *Random) Name() string { return RandomName }

func (r *Random) Init(_ context.Context, _ models.Workshop, raw json.RawMessage) (*Result, error) {
	settings, err := DecodeRandomSettings(raw)
	if err != nil {
		return nil, err
	}
	result := NewResult(r.now())
	result.Message = fmt.Sprintf("%d reviews per %s", settings.NumOfReviews, settings.NumPer)
	return result, nil
}

func (r *Random) Execute(ctx context.Context, workshop models.Workshop, raw json.RawMessage, result *Result) error {
	settings, err := DecodeRandomSettings(raw)
	if err != nil {
		result.Logf(LogError, 0, "invalid settings: %v", err)
		result.Finish(StatusFailed, "invalid random allocation settings", r.now())
		recordRun(RandomName, result)
		return err
	}

	created, err := r.allocate(ctx, workshop, settings, result)
	if err != nil {
		result.Logf(LogError, 0, "allocation aborted: %v", err)
		result.Finish(StatusFailed, "random allocation failed", r.now())
		recordRun(RandomName, result)
		r.logger.Error().Err(err).Uint("workshop_id", workshop.ID).Msg("random allocation failed")
		return err
	}

	result.Finish(StatusExecuted, fmt.Sprintf("%d new allocations created", created), r.now())
	recordRun(RandomName, result)
	r.logger.Info().Uint("workshop_id", workshop.ID).Int("created", created).Msg("random allocation executed")
	return nil
}

func (r *Random) DeleteInstance(context.Context, uint) error { return nil }

type pair struct {
	submissionID uint
	reviewerID   uint
}

// pool is the allocation state of one run.
type pool struct {
	workshop    models.Workshop
	submissions []models.Submission
	authorOf    map[uint]uint
	reviewers   []uint
	groups      map[uint]map[uint]struct{}
	canAssess   map[uint]bool
	position    map[uint]int
	ringSize    int
	paired      map[pair]struct{}
	subCount    map[uint]int
	load        map[uint]int
}

func (r *Random) allocate(ctx context.Context, workshop models.Workshop, settings RandomSettings, result *Result) (int, error) {
	result.Logf(LogInfo, 0, "allocating %d reviews per %s", settings.NumOfReviews, settings.NumPer)

	realOnly := false
	submissions, err := r.store.Submissions.List(ctx, repository.SubmissionFilter{WorkshopID: workshop.ID, Example: &realOnly})
	if err != nil {
		return 0, err
	}
	assessments, err := r.store.Assessments.List(ctx, repository.AssessmentFilter{WorkshopID: workshop.ID, Example: &realOnly})
	if err != nil {
		return 0, err
	}
	roster, err := r.store.Participants.ListByWorkshop(ctx, workshop.ID)
	if err != nil {
		return 0, err
	}

	if settings.RemoveCurrent {
		var stale []uint
		kept := assessments[:0]
		for _, assessment := range assessments {
			if assessment.IsGraded() {
				kept = append(kept, assessment)
				continue
			}
			stale = append(stale, assessment.ID)
		}
		if err := r.store.Assessments.DeleteByIDs(ctx, stale); err != nil {
			return 0, err
		}
		assessments = kept
		result.Logf(LogInfo, 1, "%d ungraded allocations removed", len(stale))
	}

	if len(submissions) == 0 {
		result.Logf(LogInfo, 0, "no submissions to allocate")
		return 0, nil
	}

	p := r.buildPool(workshop, submissions, assessments, roster, settings)
	if len(p.reviewers) == 0 {
		result.Logf(LogInfo, 0, "no reviewers available")
		return 0, nil
	}

	var plan []pair
	if settings.NumPer == NumPerReviewer {
		plan = p.planPerReviewer(settings.NumOfReviews, result)
	} else {
		plan = p.planPerSubmission(settings.NumOfReviews, result)
	}

	created := 0
	byID := make(map[uint]models.Submission, len(submissions))
	for _, submission := range submissions {
		byID[submission.ID] = submission
	}
	for _, next := range plan {
		_, err := AddAllocation(ctx, r.store, workshop, byID[next.submissionID], next.reviewerID, models.WeightDefault)
		if errors.Is(err, ErrAllocationExists) {
			continue
		}
		if err != nil {
			return created, err
		}
		created++
		result.Logf(LogOK, 1, "reviewer %d allocated to submission %d", next.reviewerID, next.submissionID)
	}

	if settings.AddSelfAssessment {
		if !workshop.UseSelfAssessment {
			result.Logf(LogError, 0, "self-assessment is disabled in this workshop")
		} else {
			for _, submission := range submissions {
				if !p.canAssess[submission.AuthorID] {
					continue
				}
				_, err := AddAllocation(ctx, r.store, workshop, submission, submission.AuthorID, models.WeightDefault)
				if errors.Is(err, ErrAllocationExists) {
					continue
				}
				if err != nil {
					return created, err
				}
				created++
				result.Logf(LogOK, 1, "author %d allocated to own submission %d", submission.AuthorID, submission.ID)
			}
		}
	}

	return created, nil
}

func (r *Random) buildPool(workshop models.Workshop, submissions []models.Submission, assessments []models.Assessment, roster []models.Participant, settings RandomSettings) *pool {
	p := &pool{
		workshop:    workshop,
		submissions: submissions,
		authorOf:    make(map[uint]uint, len(submissions)),
		groups:      make(map[uint]map[uint]struct{}),
		canAssess:   make(map[uint]bool),
		position:    make(map[uint]int),
		paired:      make(map[pair]struct{}),
		subCount:    make(map[uint]int),
		load:        make(map[uint]int),
	}

	hasSubmission := make(map[uint]bool, len(submissions))
	for _, submission := range submissions {
		p.authorOf[submission.ID] = submission.AuthorID
		hasSubmission[submission.AuthorID] = true
	}

	if len(roster) == 0 {
		for author := range hasSubmission {
			p.canAssess[author] = true
		}
	}
	for _, participant := range roster {
		if participant.CanAssess {
			p.canAssess[participant.UserID] = true
		}
		if participant.GroupID == 0 {
			continue
		}
		if p.groups[participant.UserID] == nil {
			p.groups[participant.UserID] = make(map[uint]struct{})
		}
		p.groups[participant.UserID][participant.GroupID] = struct{}{}
	}

	for user, ok := range p.canAssess {
		if ok && (hasSubmission[user] || settings.AssessWithoutSubmission) {
			p.reviewers = append(p.reviewers, user)
		}
	}
	sort.Slice(p.reviewers, func(i, j int) bool { return p.reviewers[i] < p.reviewers[j] })

	ring := make(map[uint]struct{}, len(p.reviewers)+len(hasSubmission))
	for _, user := range p.reviewers {
		ring[user] = struct{}{}
	}
	for user := range hasSubmission {
		ring[user] = struct{}{}
	}
	users := make([]uint, 0, len(ring))
	for user := range ring {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	r.rng.Shuffle(len(users), func(i, j int) { users[i], users[j] = users[j], users[i] })
	for i, user := range users {
		p.position[user] = i
	}
	p.ringSize = len(users)

	for _, assessment := range assessments {
		key := pair{submissionID: assessment.SubmissionID, reviewerID: assessment.ReviewerID}
		p.paired[key] = struct{}{}
		if p.authorOf[assessment.SubmissionID] == assessment.ReviewerID {
			continue
		}
		p.subCount[assessment.SubmissionID]++
		p.load[assessment.ReviewerID]++
	}

	sort.SliceStable(p.submissions, func(i, j int) bool {
		return p.position[p.submissions[i].AuthorID] < p.position[p.submissions[j].AuthorID]
	})
	sort.SliceStable(p.reviewers, func(i, j int) bool {
		return p.position[p.reviewers[i]] < p.position[p.reviewers[j]]
	})

	return p
}

// distance is the forward distance from one ring position to another.
func (p *pool) distance(from, to uint) int {
	return (p.position[to] - p.position[from] + p.ringSize) % p.ringSize
}

func (p *pool) eligible(submissionID, reviewerID uint) bool {
	author := p.authorOf[submissionID]
	if author == reviewerID {
		return false
	}
	if _, done := p.paired[pair{submissionID: submissionID, reviewerID: reviewerID}]; done {
		return false
	}
	if p.workshop.GroupMode != models.GroupModeSeparate {
		return true
	}
	for group := range p.groups[author] {
		if _, shared := p.groups[reviewerID][group]; shared {
			return true
		}
	}
	return false
}

func (p *pool) assign(next pair) {
	p.paired[next] = struct{}{}
	p.subCount[next.submissionID]++
	p.load[next.reviewerID]++
}

// planPerSubmission gives each submission up to n reviewers, one per round, always picking
// the least-loaded eligible reviewer closest after the author on the shuffled ring.
func (p *pool) planPerSubmission(n int, result *Result) []pair {
	var plan []pair
	for round := 0; round < n; round++ {
		progress := false
		for _, submission := range p.submissions {
			if p.subCount[submission.ID] >= n {
				continue
			}
			best, bestLoad, bestDistance := uint(0), 0, 0
			found := false
			for _, reviewer := range p.reviewers {
				if !p.eligible(submission.ID, reviewer) {
					continue
				}
				load, dist := p.load[reviewer], p.distance(submission.AuthorID, reviewer)
				if !found || load < bestLoad || (load == bestLoad && dist < bestDistance) {
					best, bestLoad, bestDistance, found = reviewer, load, dist, true
				}
			}
			if !found {
				continue
			}
			next := pair{submissionID: submission.ID, reviewerID: best}
			p.assign(next)
			plan = append(plan, next)
			progress = true
		}
		if !progress {
			break
		}
	}

	for _, submission := range p.submissions {
		if got := p.subCount[submission.ID]; got < n {
			result.Logf(LogInfo, 1, "submission %d has %d of %d reviewers", submission.ID, got, n)
		}
	}
	return plan
}

// planPerReviewer gives each reviewer up to n submissions with the same round-based
// least-loaded rule, balancing the number of reviews each submission receives.
func (p *pool) planPerReviewer(n int, result *Result) []pair {
	var plan []pair
	for round := 0; round < n; round++ {
		progress := false
		for _, reviewer := range p.reviewers {
			if p.load[reviewer] >= n {
				continue
			}
			var best models.Submission
			bestCount, bestDistance := 0, 0
			found := false
			for _, submission := range p.submissions {
				if !p.eligible(submission.ID, reviewer) {
					continue
				}
				count, dist := p.subCount[submission.ID], p.distance(reviewer, submission.AuthorID)
				if !found || count < bestCount || (count == bestCount && dist < bestDistance) {
					best, bestCount, bestDistance, found = submission, count, dist, true
				}
			}
			if !found {
				continue
			}
			next := pair{submissionID: best.ID, reviewerID: reviewer}
			p.assign(next)
			plan = append(plan, next)
			progress = true
		}
		if !progress {
			break
		}
	}

	for _, reviewer := range p.reviewers {
		if got := p.load[reviewer]; got < n {
			result.Logf(LogInfo, 1, "reviewer %d has %d of %d submissions", reviewer, got, n)
		}
	}
	return plan
}
