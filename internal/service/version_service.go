package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aiready/selfcheck-api/internal/dto"
	"github.com/aiready/selfcheck-api/internal/models"
	"github.com/aiready/selfcheck-api/internal/repository"
	appErrors "github.com/aiready/selfcheck-api/pkg/errors"
)

// MigratedVersionName is given to the version synthesized from
// pre-versioning assessment rows.
const MigratedVersionName = "Default"

type versionStore interface {
	ListByOwner(ctx context.Context, ownerID string, includeInactive bool, sortKey string) ([]models.AssessmentVersion, error)
	GetByID(ctx context.Context, id string) (*models.AssessmentVersion, error)
	FindByName(ctx context.Context, ownerID, name string) (*models.AssessmentVersion, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)
	Create(ctx context.Context, version *models.AssessmentVersion) error
	Update(ctx context.Context, id string, name, description *string) error
	Activate(ctx context.Context, ownerID, versionID string) error
	DeleteWithSuccessor(ctx context.Context, ownerID, versionID, successorID string) error
	Duplicate(ctx context.Context, sourceID string, duplicate *models.AssessmentVersion) error
	ListItems(ctx context.Context, versionID string) ([]models.AssessmentItem, error)
	UpsertItem(ctx context.Context, item *models.AssessmentItem) error
	Progress(ctx context.Context, versionID string) (*models.VersionProgress, error)
	CountLegacyItems(ctx context.Context, ownerID string) (int, error)
	MigrateLegacy(ctx context.Context, version *models.AssessmentVersion) (int, error)
}

// VersionService owns the lifecycle of a user's named assessment snapshots.
type VersionService struct {
	repo   versionStore
	logger *zap.Logger
}

// NewVersionService constructs a VersionService.
func NewVersionService(repo versionStore, logger *zap.Logger) *VersionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VersionService{repo: repo, logger: logger}
}

// List returns the owner's versions with completion stats. An owner with no
// versions but pre-versioning answers gets those migrated first.
func (s *VersionService) List(ctx context.Context, ownerID string, query dto.ListVersionsQuery) ([]dto.VersionResponse, error) {
	count, err := s.repo.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count versions")
	}
	if count == 0 {
		if _, err := s.MigrateLegacy(ctx, ownerID); err != nil {
			return nil, err
		}
	}

	versions, err := s.repo.ListByOwner(ctx, ownerID, query.IncludeInactive, query.SortBy)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list versions")
	}

	result := make([]dto.VersionResponse, 0, len(versions))
	for i := range versions {
		progress, err := s.repo.Progress(ctx, versions[i].ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute version progress")
		}
		result = append(result, dto.NewVersionResponse(&versions[i], progress))
	}
	return result, nil
}

// Get returns one version with completion stats, enforcing ownership.
func (s *VersionService) Get(ctx context.Context, ownerID, versionID string) (*dto.VersionResponse, error) {
	version, err := s.requireOwnedVersion(ctx, ownerID, versionID)
	if err != nil {
		return nil, err
	}
	progress, err := s.repo.Progress(ctx, versionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute version progress")
	}
	resp := dto.NewVersionResponse(version, progress)
	return &resp, nil
}

// Create adds a new empty version. The owner's first version is created
// active; later ones start inactive.
func (s *VersionService) Create(ctx context.Context, ownerID string, req dto.CreateVersionRequest) (*dto.VersionResponse, error) {
	if err := s.ensureNameFree(ctx, ownerID, req.Name, ""); err != nil {
		return nil, err
	}
	count, err := s.repo.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count versions")
	}

	now := time.Now().UTC()
	version := &models.AssessmentVersion{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        req.Name,
		Description: req.Description,
		IsActive:    count == 0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, version); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateName, "a version with this name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create version")
	}
	resp := dto.NewVersionResponse(version, &models.VersionProgress{})
	return &resp, nil
}

// Duplicate copies every item of the source into a new inactive version.
func (s *VersionService) Duplicate(ctx context.Context, ownerID, sourceID string, req dto.DuplicateVersionRequest) (*dto.VersionResponse, error) {
	source, err := s.requireOwnedVersion(ctx, ownerID, sourceID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, ownerID, req.Name, ""); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	duplicate := &models.AssessmentVersion{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        req.Name,
		Description: source.Description,
		IsActive:    false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Duplicate(ctx, sourceID, duplicate); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateName, "a version with this name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to duplicate version")
	}
	progress, err := s.repo.Progress(ctx, duplicate.ID)
	if err != nil {
		progress = &models.VersionProgress{}
	}
	resp := dto.NewVersionResponse(duplicate, progress)
	return &resp, nil
}

// Activate makes the target the owner's single active version. Activating an
// already-active version is a reported no-op, never an error.
func (s *VersionService) Activate(ctx context.Context, ownerID, versionID string) (*dto.VersionResponse, bool, error) {
	version, err := s.requireOwnedVersion(ctx, ownerID, versionID)
	if err != nil {
		return nil, false, err
	}
	if version.IsActive {
		resp := dto.NewVersionResponse(version, nil)
		return &resp, true, nil
	}
	if err := s.repo.Activate(ctx, ownerID, versionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "version not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate version")
	}
	version.IsActive = true
	resp := dto.NewVersionResponse(version, nil)
	return &resp, false, nil
}

// Update renames or re-describes a version, re-checking name uniqueness.
func (s *VersionService) Update(ctx context.Context, ownerID, versionID string, req dto.UpdateVersionRequest) (*dto.VersionResponse, error) {
	version, err := s.requireOwnedVersion(ctx, ownerID, versionID)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if err := s.ensureNameFree(ctx, ownerID, *req.Name, versionID); err != nil {
			return nil, err
		}
		version.Name = *req.Name
	}
	if req.Description != nil {
		version.Description = req.Description
	}
	if err := s.repo.Update(ctx, versionID, req.Name, req.Description); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "version not found")
		}
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateName, "a version with this name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update version")
	}
	resp := dto.NewVersionResponse(version, nil)
	return &resp, nil
}

// Delete removes a version and its items. Deleting the active version while
// siblings exist first activates the most recently updated sibling, so the
// owner always keeps exactly one active version while any remain.
func (s *VersionService) Delete(ctx context.Context, ownerID, versionID string) error {
	version, err := s.requireOwnedVersion(ctx, ownerID, versionID)
	if err != nil {
		return err
	}

	successorID := ""
	if version.IsActive {
		siblings, err := s.repo.ListByOwner(ctx, ownerID, true, "updatedAt")
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list versions")
		}
		for _, sibling := range siblings {
			if sibling.ID != versionID {
				successorID = sibling.ID
				break
			}
		}
	}

	if err := s.repo.DeleteWithSuccessor(ctx, ownerID, versionID, successorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "version not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete version")
	}
	return nil
}

// MigrateLegacy promotes pre-versioning answers into a first, active version.
// Returns nil when the owner already has versions or has nothing to migrate.
func (s *VersionService) MigrateLegacy(ctx context.Context, ownerID string) (*dto.VersionResponse, error) {
	count, err := s.repo.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count versions")
	}
	if count > 0 {
		return nil, nil
	}
	legacy, err := s.repo.CountLegacyItems(ctx, ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count legacy items")
	}
	if legacy == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	description := "Migrated from pre-versioning assessment data"
	version := &models.AssessmentVersion{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        MigratedVersionName,
		Description: &description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	migrated, err := s.repo.MigrateLegacy(ctx, version)
	if err != nil {
		// A concurrent request created the owner's first version; nothing
		// left to migrate here.
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to migrate legacy data")
	}
	s.logger.Sugar().Infow("migrated legacy assessment data", "owner_id", ownerID, "version_id", version.ID, "items", migrated)

	progress, err := s.repo.Progress(ctx, version.ID)
	if err != nil {
		progress = &models.VersionProgress{}
	}
	resp := dto.NewVersionResponse(version, progress)
	return &resp, nil
}

// SaveItem upserts one answer onto the owner's active version.
func (s *VersionService) SaveItem(ctx context.Context, ownerID string, req dto.SaveItemRequest) (*dto.ItemResponse, error) {
	if !models.ValidAssessmentType(req.AssessmentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported assessment type")
	}
	active, err := s.activeVersion(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	item := &models.AssessmentItem{
		VersionID:      &active.ID,
		OwnerID:        ownerID,
		ItemID:         req.ItemID,
		AssessmentType: req.AssessmentType,
		Met:            req.Met,
		Response:       req.Response,
	}
	if err := s.repo.UpsertItem(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save item")
	}
	resp := dto.NewItemResponse(*item)
	return &resp, nil
}

// ListItems returns the answers of the owner's active version.
func (s *VersionService) ListItems(ctx context.Context, ownerID string) ([]dto.ItemResponse, error) {
	active, err := s.activeVersion(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, active.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list items")
	}
	result := make([]dto.ItemResponse, 0, len(items))
	for _, item := range items {
		result = append(result, dto.NewItemResponse(item))
	}
	return result, nil
}

func (s *VersionService) activeVersion(ctx context.Context, ownerID string) (*models.AssessmentVersion, error) {
	versions, err := s.repo.ListByOwner(ctx, ownerID, false, "updatedAt")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve active version")
	}
	if len(versions) == 0 {
		if migrated, err := s.MigrateLegacy(ctx, ownerID); err != nil {
			return nil, err
		} else if migrated != nil {
			return s.repo.GetByID(ctx, migrated.ID)
		}
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no active version")
	}
	return &versions[0], nil
}

func (s *VersionService) requireOwnedVersion(ctx context.Context, ownerID, versionID string) (*models.AssessmentVersion, error) {
	version, err := s.repo.GetByID(ctx, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "version not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version")
	}
	if version.OwnerID != ownerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "version belongs to another user")
	}
	return version, nil
}

func (s *VersionService) ensureNameFree(ctx context.Context, ownerID, name, excludeID string) error {
	existing, err := s.repo.FindByName(ctx, ownerID, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check version name")
	}
	if existing.ID == excludeID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrDuplicateName, "a version with this name already exists")
}
