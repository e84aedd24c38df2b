// Package record is the client's view of the survey records table.
//
// Repository sits between the screens and the two stores a record touches:
// the relational forms table (repository.FormRepository) and the image bucket
// (storage.ObjectStore). It adds what the raw stores do not do on their own:
// owner checks on insert, signed URLs for the detail view, and the
// images-then-row ordering on delete.
package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/field-survey/internal/apperror"
	"github.com/sakif/field-survey/internal/model"
	"github.com/sakif/field-survey/internal/repository"
	"github.com/sakif/field-survey/internal/storage"
)

// SignedURLTTL is how long a detail view's image URLs stay valid. They are
// minted again on every Get.
const SignedURLTTL = time.Hour

// Detail is a record prepared for display. Image1URL and Image2URL are signed
// URLs, or the stored reference when signing failed. The embedded Form keeps
// the stored references untouched.
type Detail struct {
	model.Form
	Image1URL string
	Image2URL string
}

type Repository struct {
	forms  repository.FormRepository
	store  storage.ObjectStore
	cache  *Cache
	logger *slog.Logger
}

func NewRepository(forms repository.FormRepository, store storage.ObjectStore, logger *slog.Logger) *Repository {
	return &Repository{
		forms:  forms,
		store:  store,
		cache:  NewCache(forms.ListByOwner),
		logger: logger,
	}
}

// Cache exposes the list cache, for screens that want Peek or the status.
func (r *Repository) Cache() *Cache {
	return r.cache
}

// List returns the owner's records, newest first, serving repeat calls from
// the cache until an Insert or Delete invalidates it.
func (r *Repository) List(ctx context.Context, ownerID string) ([]model.Form, error) {
	if ownerID == "" {
		return nil, apperror.Unauthenticated("User not authenticated")
	}
	entry, err := r.cache.Load(ctx, ownerID)
	if err != nil {
		return nil, persistenceError("Failed to load forms", err)
	}
	return entry.Forms, nil
}

// Reload drops the cached list and fetches it again (pull to refresh).
func (r *Repository) Reload(ctx context.Context, ownerID string) ([]model.Form, error) {
	r.cache.Invalidate(ownerID)
	return r.List(ctx, ownerID)
}

// Get returns one record with freshly signed image URLs. A signing failure
// degrades that image to its stored reference and never fails the read.
func (r *Repository) Get(ctx context.Context, id string) (*Detail, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.ValidationFailed("id", "Form id is required")
	}
	form, err := r.forms.GetByID(ctx, id)
	if err != nil {
		return nil, persistenceError("Failed to load form", err)
	}

	d := &Detail{Form: *form}
	var g errgroup.Group
	g.Go(func() error {
		d.Image1URL = r.signedOrRaw(ctx, form.Image1)
		return nil
	})
	g.Go(func() error {
		d.Image2URL = r.signedOrRaw(ctx, form.Image2)
		return nil
	})
	_ = g.Wait()
	return d, nil
}

func (r *Repository) signedOrRaw(ctx context.Context, ref string) string {
	key := storage.KeyFromRef(ref)
	if key == "" {
		return ref
	}
	signed, err := r.store.SignedURL(ctx, key, SignedURLTTL)
	if err != nil {
		r.logger.Warn("signing image URL failed, using stored reference",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return ref
	}
	return signed
}

// Insert creates a record owned by ownerID. Both image references must
// already point at uploaded objects; Insert never uploads.
func (r *Repository) Insert(ctx context.Context, ownerID string, in model.FormInput) (*model.Form, error) {
	if ownerID == "" {
		return nil, apperror.Unauthenticated("User not authenticated")
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	form := &model.Form{
		RetailerName: strings.TrimSpace(in.RetailerName),
		BDOCode:      strings.TrimSpace(in.BDOCode),
		FranchiseID:  strings.TrimSpace(in.FranchiseID),
		Address:      strings.TrimSpace(in.Address),
		Coordinates:  strings.TrimSpace(in.Coordinates),
		Image1:       strings.TrimSpace(in.Image1),
		Image2:       strings.TrimSpace(in.Image2),
		UserID:       ownerID,
	}
	if err := r.forms.Create(ctx, form); err != nil {
		return nil, persistenceError("Failed to submit form", err)
	}
	r.cache.Invalidate(ownerID)

	r.logger.Info("form inserted", slog.String("id", form.ID), slog.String("owner", ownerID))
	return form, nil
}

// Delete removes both images of a record and then its row. If either image
// removal fails the row is left in place and the error is returned. A row
// delete that fails after the images are gone leaves a row with dangling
// references; retrying the delete clears it, since removing a missing object
// is not an error.
func (r *Repository) Delete(ctx context.Context, id string) error {
	form, err := r.forms.GetByID(ctx, id)
	if err != nil {
		return persistenceError("Failed to delete form", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ref := range []string{form.Image1, form.Image2} {
		key := storage.KeyFromRef(ref)
		if key == "" {
			continue
		}
		g.Go(func() error {
			if err := r.store.Remove(gctx, key); err != nil {
				return fmt.Errorf("removing image %s: %w", key, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.logger.Error("image removal failed, keeping row",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return apperror.PersistenceFailed("Failed to delete images", err)
	}

	if err := r.forms.Delete(ctx, id); err != nil {
		return persistenceError("Failed to delete form", err)
	}
	r.cache.Invalidate(form.UserID)

	r.logger.Info("form deleted", slog.String("id", id))
	return nil
}

// persistenceError keeps errors that already carry a category and wraps the
// rest as persistence failures.
func persistenceError(message string, err error) error {
	var appErr *apperror.AppError
	var fields apperror.FieldErrors
	if errors.As(err, &appErr) || errors.As(err, &fields) {
		return err
	}
	return apperror.PersistenceFailed(message, err)
}
