package repository

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-workshop-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func seedWorkshop(t *testing.T, db *gorm.DB, phase models.Phase) models.Workshop {
	t.Helper()
	workshop := models.Workshop{
		CourseID:     1,
		Name:         "Peer review",
		Phase:        phase,
		Grade:        80,
		GradingGrade: 20,
		Strategy:     "accumulative",
		Evaluation:   "best",
	}
	require.NoError(t, db.Create(&workshop).Error)
	return workshop
}

func seedSubmission(t *testing.T, db *gorm.DB, workshopID, authorID uint, example bool) models.Submission {
	t.Helper()
	submission := models.Submission{WorkshopID: workshopID, AuthorID: authorID, Example: example, Title: "Essay"}
	require.NoError(t, db.Create(&submission).Error)
	return submission
}

func seedAssessment(t *testing.T, db *gorm.DB, submissionID, reviewerID uint, weight int, grade *float64) models.Assessment {
	t.Helper()
	assessment := models.Assessment{SubmissionID: submissionID, ReviewerID: reviewerID, Weight: weight, Grade: grade}
	require.NoError(t, db.Create(&assessment).Error)
	return assessment
}

func ptr(v float64) *float64 { return &v }

func utc(hours int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(hours) * time.Hour)
}
