package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/distribo/services/recouvrement/internal/models"
)

// AssignmentRepository provides access to agents' depot and pattern
// assignments
type AssignmentRepository interface {
	ActiveDepotAssignments(ctx context.Context) ([]models.DepotAssignment, error)
	ActivePatternAssignments(ctx context.Context, userID uuid.UUID) ([]models.Assignment, error)
}

type assignmentRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db, readOnlyDB *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db, readOnlyDB: readOnlyDB}
}

// ActiveDepotAssignments returns the active depot assignments of all users.
// The scope exclusion rule needs other agents' assignments too, so this is
// deliberately not filtered by user.
func (r *assignmentRepository) ActiveDepotAssignments(ctx context.Context) ([]models.DepotAssignment, error) {
	var assignments []models.DepotAssignment
	err := r.readOnlyDB.WithContext(ctx).
		Where("active = ?", true).
		Find(&assignments).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list depot assignments")
	}
	return assignments, nil
}

// ActivePatternAssignments returns one user's active pattern assignments
func (r *assignmentRepository) ActivePatternAssignments(ctx context.Context, userID uuid.UUID) ([]models.Assignment, error) {
	var assignments []models.Assignment
	err := r.readOnlyDB.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		Find(&assignments).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pattern assignments")
	}
	return assignments, nil
}
