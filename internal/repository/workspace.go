package repository

import (
	"context"
	"errors"

	"workroom/internal/models"

	"gorm.io/gorm"
)

// WorkspaceRepository defines persistence operations for workspaces and the
// entities conversations attach to (client spaces and flows).
type WorkspaceRepository interface {
	Exists(ctx context.Context, id uint) (bool, error)
	GetByID(ctx context.Context, id uint) (*models.Workspace, error)
	GetClientSpace(ctx context.Context, workspaceID, clientSpaceID uint) (*models.ClientSpace, error)
	ListClientSpaces(ctx context.Context, workspaceID uint) ([]models.ClientSpace, error)
	GetFlow(ctx context.Context, workspaceID, flowID uint) (*models.Flow, error)
}

type workspaceRepository struct {
	db *gorm.DB
}

// NewWorkspaceRepository returns a new WorkspaceRepository implementation.
func NewWorkspaceRepository(db *gorm.DB) WorkspaceRepository {
	return &workspaceRepository{db: db}
}

// Exists reports whether the workspace row is present and not soft-deleted.
// Callers treat any lookup failure as absence so tenancy checks fail closed.
func (r *workspaceRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Workspace{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *workspaceRepository) GetByID(ctx context.Context, id uint) (*models.Workspace, error) {
	var ws models.Workspace
	if err := r.db.WithContext(ctx).First(&ws, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Workspace", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &ws, nil
}

func (r *workspaceRepository) GetClientSpace(ctx context.Context, workspaceID, clientSpaceID uint) (*models.ClientSpace, error) {
	var cs models.ClientSpace
	err := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		First(&cs, clientSpaceID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("ClientSpace", clientSpaceID)
		}
		return nil, models.NewInternalError(err)
	}
	return &cs, nil
}

func (r *workspaceRepository) ListClientSpaces(ctx context.Context, workspaceID uint) ([]models.ClientSpace, error) {
	var spaces []models.ClientSpace
	err := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Find(&spaces).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return spaces, nil
}

func (r *workspaceRepository) GetFlow(ctx context.Context, workspaceID, flowID uint) (*models.Flow, error) {
	var flow models.Flow
	err := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		First(&flow, flowID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Flow", flowID)
		}
		return nil, models.NewInternalError(err)
	}
	return &flow, nil
}
