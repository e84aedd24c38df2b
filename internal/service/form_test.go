package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/field-survey/internal/apperror"
	"github.com/sakif/field-survey/internal/model"
)

// fakeFormRepo is an in-memory repository.FormRepository.
type fakeFormRepo struct {
	forms     map[string]*model.Form
	nextID    int
	createErr error
	listErr   error
}

func newFakeFormRepo() *fakeFormRepo {
	return &fakeFormRepo{forms: map[string]*model.Form{}}
}

func (f *fakeFormRepo) ListByOwner(_ context.Context, owner string) ([]model.Form, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []model.Form{}
	for _, fm := range f.forms {
		if fm.UserID == owner {
			out = append(out, *fm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeFormRepo) GetByID(_ context.Context, id string) (*model.Form, error) {
	fm, ok := f.forms[id]
	if !ok {
		return nil, apperror.NotFound("form", id)
	}
	c := *fm
	return &c, nil
}

func (f *fakeFormRepo) Create(_ context.Context, fm *model.Form) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	fm.ID = "form-" + strconv.Itoa(f.nextID)
	fm.CreatedAt = time.Now().Add(time.Duration(f.nextID) * time.Millisecond)
	c := *fm
	f.forms[fm.ID] = &c
	return nil
}

func (f *fakeFormRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.forms[id]; !ok {
		return apperror.NotFound("form", id)
	}
	delete(f.forms, id)
	return nil
}

func validFormInput() model.FormInput {
	return model.FormInput{
		RetailerName: " Rahim Store ",
		BDOCode:      "BDO-7",
		FranchiseID:  "FR-1",
		Address:      "12 Market Road",
		Coordinates:  "23.8,90.4",
		Image1:       "https://x/form_images/a.jpg",
		Image2:       "https://x/form_images/b.jpg",
	}
}

func TestFormService_CreateAndGet(t *testing.T) {
	repo := newFakeFormRepo()
	svc := NewFormService(repo, testLogger())
	ctx := context.Background()

	created, err := svc.Create(ctx, "owner-1", validFormInput())
	require.NoError(t, err)
	assert.Equal(t, "Rahim Store", created.RetailerName)
	assert.Equal(t, "owner-1", created.UserID)

	got, err := svc.Get(ctx, "owner-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestFormService_CreateValidation(t *testing.T) {
	svc := NewFormService(newFakeFormRepo(), testLogger())

	in := validFormInput()
	in.Image1 = ""
	_, err := svc.Create(context.Background(), "owner-1", in)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestFormService_CreateRepoFailure(t *testing.T) {
	repo := newFakeFormRepo()
	repo.createErr = errors.New("disk full")
	svc := NewFormService(repo, testLogger())

	_, err := svc.Create(context.Background(), "owner-1", validFormInput())
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperror.ErrValidation))
}

func TestFormService_OwnershipIsEnforced(t *testing.T) {
	repo := newFakeFormRepo()
	svc := NewFormService(repo, testLogger())
	ctx := context.Background()

	mine, err := svc.Create(ctx, "owner-1", validFormInput())
	require.NoError(t, err)

	_, err = svc.Get(ctx, "owner-2", mine.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	err = svc.Delete(ctx, "owner-2", mine.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	assert.Contains(t, repo.forms, mine.ID, "another owner's delete must not remove the row")

	require.NoError(t, svc.Delete(ctx, "owner-1", mine.ID))
	assert.NotContains(t, repo.forms, mine.ID)
}

func TestFormService_List(t *testing.T) {
	repo := newFakeFormRepo()
	svc := NewFormService(repo, testLogger())
	ctx := context.Background()

	empty, err := svc.List(ctx, "owner-1")
	require.NoError(t, err)
	assert.Empty(t, empty)

	a, _ := svc.Create(ctx, "owner-1", validFormInput())
	b, _ := svc.Create(ctx, "owner-1", validFormInput())
	_, _ = svc.Create(ctx, "owner-2", validFormInput())

	list, err := svc.List(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)

	repo.listErr = errors.New("db down")
	_, err = svc.List(ctx, "owner-1")
	assert.Error(t, err)
}

func TestFormService_GetRequiresID(t *testing.T) {
	svc := NewFormService(newFakeFormRepo(), testLogger())
	_, err := svc.Get(context.Background(), "owner-1", "  ")
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}
