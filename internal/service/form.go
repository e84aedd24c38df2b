package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/field-survey/internal/apperror"
	"github.com/sakif/field-survey/internal/model"
	"github.com/sakif/field-survey/internal/repository"
)

// FormService enforces ownership on the forms table: a user only ever sees,
// creates or deletes rows whose user_id is their own.
type FormService struct {
	repo   repository.FormRepository
	logger *slog.Logger
}

func NewFormService(repo repository.FormRepository, logger *slog.Logger) *FormService {
	return &FormService{repo: repo, logger: logger}
}

// List returns ownerID's forms, newest first.
func (s *FormService) List(ctx context.Context, ownerID string) ([]model.Form, error) {
	forms, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		s.logger.Error("failed to list forms", slog.String("owner", ownerID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing forms: %w", err)
	}
	return forms, nil
}

// Get returns a form owned by ownerID. A form owned by someone else is
// reported as not found so ids cannot be probed.
func (s *FormService) Get(ctx context.Context, ownerID, id string) (*model.Form, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "form ID is required")
	}

	form, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if form.UserID != ownerID {
		return nil, apperror.NotFound("form", id)
	}
	return form, nil
}

// Create validates and inserts a form for ownerID.
func (s *FormService) Create(ctx context.Context, ownerID string, in model.FormInput) (*model.Form, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	form := &model.Form{
		RetailerName: strings.TrimSpace(in.RetailerName),
		BDOCode:      strings.TrimSpace(in.BDOCode),
		FranchiseID:  strings.TrimSpace(in.FranchiseID),
		Address:      strings.TrimSpace(in.Address),
		Coordinates:  strings.TrimSpace(in.Coordinates),
		Image1:       in.Image1,
		Image2:       in.Image2,
		UserID:       ownerID,
	}
	if err := s.repo.Create(ctx, form); err != nil {
		s.logger.Error("failed to create form", slog.String("owner", ownerID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating form: %w", err)
	}

	s.logger.Info("form created", slog.String("id", form.ID), slog.String("owner", ownerID))
	return form, nil
}

// Delete removes a form owned by ownerID.
func (s *FormService) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("deleting form: %w", err)
	}

	s.logger.Info("form deleted", slog.String("id", id), slog.String("owner", ownerID))
	return nil
}
