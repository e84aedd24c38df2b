// Package createform drives the "new survey" screen: field entry, two photo
// slots, a location fix, and the submit sequence (upload both photos, then
// insert the record).
//
// The Workflow owns the screen's in-memory state. It never touches the
// network except inside Submit, and every terminal outcome of PickImage,
// CaptureLocation and Submit is reported through exactly one notification.
//
// LATE RESULTS:
// Blur resets the state when the screen loses focus, but it does not cancel
// a submission in flight. Each Blur bumps a generation counter; a submission
// that finishes under an older generation still reports its outcome, but it
// neither resets the (already reset) state nor navigates.
package createform

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/field-survey/internal/apperror"
	"github.com/sakif/field-survey/internal/guard"
	"github.com/sakif/field-survey/internal/model"
	"github.com/sakif/field-survey/internal/notify"
	"github.com/sakif/field-survey/internal/platform"
	"github.com/sakif/field-survey/internal/upload"
)

const (
	MsgSubmitted        = "Form submitted successfully!"
	MsgSubmitFailed     = "Failed to submit form"
	MsgLocationRequired = "Location permission is required"
	MsgNotAuthenticated = "User not authenticated"
	MsgPickFailed       = "Failed to pick image"
	MsgLocationFailed   = "Failed to get location"
)

// Field is a text input on the screen.
type Field int

const (
	RetailerName Field = iota
	BDOCode
	FranchiseID
	Address
	Latitude
	Longitude
)

// key is the validation key the field's message is reported under.
func (f Field) key() string {
	switch f {
	case RetailerName:
		return "retailer_name"
	case BDOCode:
		return "bdo_code"
	case FranchiseID:
		return "franchise_id"
	case Address:
		return "address"
	}
	return "coordinates"
}

// Slot is one of the two photo slots.
type Slot int

const (
	Image1 Slot = iota + 1
	Image2
)

func (s Slot) key() string {
	if s == Image1 {
		return "image_1"
	}
	return "image_2"
}

// defaultName is used when the picker reports no filename.
func (s Slot) defaultName() string {
	if s == Image1 {
		return "image1.jpg"
	}
	return "image2.jpg"
}

// State is a snapshot of the screen.
type State struct {
	RetailerName string
	BDOCode      string
	FranchiseID  string
	Address      string
	Latitude     string
	Longitude    string

	Image1 *model.ImageSelection
	Image2 *model.ImageSelection

	// LocationDenied stays set until a later capture succeeds.
	LocationDenied bool
	Submitting     bool
	Errors         apperror.FieldErrors
}

// Uploader is satisfied by *upload.Pipeline.
type Uploader interface {
	Upload(ctx context.Context, uri, filename string) (string, error)
	Discard(ctx context.Context, ref string) error
}

// Inserter is satisfied by *record.Repository.
type Inserter interface {
	Insert(ctx context.Context, ownerID string, in model.FormInput) (*model.Form, error)
}

// UserSource is satisfied by *session.Manager.
type UserSource interface {
	CurrentUser() *model.User
}

// Deps are the workflow's collaborators.
type Deps struct {
	Uploader  Uploader
	Records   Inserter
	Users     UserSource
	Navigator guard.Navigator
	Notes     notify.Sink
	Picker    platform.ImagePicker
	Locator   platform.Locator
}

type Workflow struct {
	deps   Deps
	logger *slog.Logger

	mu    sync.Mutex
	state State
	gen   uint64
}

func New(deps Deps, logger *slog.Logger) *Workflow {
	return &Workflow{deps: deps, logger: logger}
}

// SetField updates one text input and clears its validation message.
func (w *Workflow) SetField(f Field, value string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch f {
	case RetailerName:
		w.state.RetailerName = value
	case BDOCode:
		w.state.BDOCode = value
	case FranchiseID:
		w.state.FranchiseID = value
	case Address:
		w.state.Address = value
	case Latitude:
		w.state.Latitude = value
	case Longitude:
		w.state.Longitude = value
	}
	delete(w.state.Errors, f.key())
}

// PickImage opens the picker for slot. A cancelled pick changes nothing. A
// pick that breaks the size or type rule is dropped with an error
// notification; the slot keeps whatever it held before, and the other slot is
// never touched.
func (w *Workflow) PickImage(ctx context.Context, slot Slot) error {
	sel, err := w.deps.Picker.PickImage(ctx)
	if err != nil {
		w.deps.Notes.Notify(notify.Error, MsgPickFailed)
		return apperror.UploadFailed(err)
	}
	if sel == nil {
		return nil
	}
	if err := upload.ValidateSelection(*sel); err != nil {
		w.deps.Notes.Notify(notify.Error, apperror.MessageOf(err, MsgPickFailed))
		return err
	}

	picked := *sel
	w.mu.Lock()
	defer w.mu.Unlock()
	if slot == Image1 {
		w.state.Image1 = &picked
	} else {
		w.state.Image2 = &picked
	}
	delete(w.state.Errors, slot.key())
	return nil
}

// RemoveImage clears slot.
func (w *Workflow) RemoveImage(slot Slot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if slot == Image1 {
		w.state.Image1 = nil
	} else {
		w.state.Image2 = nil
	}
}

// CaptureLocation asks for foreground location access and fills both
// coordinate fields. A denial sets LocationDenied and leaves the fields as
// they were.
func (w *Workflow) CaptureLocation(ctx context.Context) error {
	granted, err := w.deps.Locator.RequestPermission(ctx)
	if err != nil {
		w.deps.Notes.Notify(notify.Error, MsgLocationFailed)
		return apperror.PermissionDenied(MsgLocationFailed)
	}
	if !granted {
		w.mu.Lock()
		w.state.LocationDenied = true
		w.mu.Unlock()
		w.deps.Notes.Notify(notify.Error, MsgLocationRequired)
		return apperror.PermissionDenied(MsgLocationRequired)
	}

	pos, err := w.deps.Locator.CurrentPosition(ctx)
	if err != nil {
		w.logger.Warn("location fix failed", slog.String("error", err.Error()))
		w.deps.Notes.Notify(notify.Error, MsgLocationFailed)
		return apperror.PermissionDenied(MsgLocationFailed)
	}

	w.mu.Lock()
	w.state.Latitude = pos.LatString()
	w.state.Longitude = pos.LonString()
	w.state.LocationDenied = false
	delete(w.state.Errors, "coordinates")
	w.mu.Unlock()
	return nil
}

// Ready reports whether the submit button is enabled: both photos, both
// coordinates, and no outstanding location denial.
func (w *Workflow) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.state
	return hasImage(s.Image1) && hasImage(s.Image2) &&
		s.Latitude != "" && s.Longitude != "" &&
		!s.LocationDenied && !s.Submitting
}

// Validate checks every input and records the messages in the state.
func (w *Workflow) Validate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.validateLocked()
}

func (w *Workflow) validateLocked() error {
	err := w.inputLocked().Validate()
	var fields apperror.FieldErrors
	if errors.As(err, &fields) {
		w.state.Errors = fields
		return fields
	}
	w.state.Errors = nil
	return nil
}

// inputLocked builds the record input from the state. The image columns hold
// the local URIs; Submit swaps in the uploaded references.
func (w *Workflow) inputLocked() model.FormInput {
	s := w.state
	in := model.FormInput{
		RetailerName: s.RetailerName,
		BDOCode:      s.BDOCode,
		FranchiseID:  s.FranchiseID,
		Address:      s.Address,
		Coordinates:  model.ComposeCoordinates(s.Latitude, s.Longitude),
	}
	if hasImage(s.Image1) {
		in.Image1 = s.Image1.URI
	}
	if hasImage(s.Image2) {
		in.Image2 = s.Image2.URI
	}
	return in
}

// Submit validates, uploads both photos concurrently, and inserts the record.
//
// Validation failures are recorded on the state and returned without a
// notification. Every other outcome is notified once. On failure the state is
// kept so the user can retry, and any photo that did upload is removed again.
// On success the state is reset and the navigator is sent to the list.
func (w *Workflow) Submit(ctx context.Context) error {
	w.mu.Lock()
	if w.state.Submitting {
		w.mu.Unlock()
		return apperror.ValidationFailed("form", "Submission already in progress")
	}
	if w.state.LocationDenied {
		w.mu.Unlock()
		w.deps.Notes.Notify(notify.Error, MsgLocationRequired)
		return apperror.PermissionDenied(MsgLocationRequired)
	}
	if err := w.validateLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	gen := w.gen
	in := w.inputLocked()
	img1, img2 := *w.state.Image1, *w.state.Image2
	w.state.Submitting = true
	w.mu.Unlock()

	err := w.submit(ctx, gen, in, img1, img2)

	w.mu.Lock()
	if w.gen == gen {
		w.state.Submitting = false
	}
	w.mu.Unlock()
	return err
}

// submit works on the input captured when Submit started, so a Blur in the
// middle does not change what gets inserted.
func (w *Workflow) submit(ctx context.Context, gen uint64, in model.FormInput, img1, img2 model.ImageSelection) error {
	user := w.deps.Users.CurrentUser()
	if user == nil {
		w.deps.Notes.Notify(notify.Error, MsgNotAuthenticated)
		return apperror.Unauthenticated(MsgNotAuthenticated)
	}

	var ref1, ref2 string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ref, err := w.deps.Uploader.Upload(gctx, img1.URI, filenameOr(img1.FileName, Image1))
		ref1 = ref
		return err
	})
	g.Go(func() error {
		ref, err := w.deps.Uploader.Upload(gctx, img2.URI, filenameOr(img2.FileName, Image2))
		ref2 = ref
		return err
	})
	if err := g.Wait(); err != nil {
		w.rollback(ref1, ref2)
		return w.fail(err)
	}

	in.Image1, in.Image2 = ref1, ref2
	form, err := w.deps.Records.Insert(ctx, user.ID, in)
	if err != nil {
		w.rollback(ref1, ref2)
		return w.fail(err)
	}

	w.logger.Info("survey submitted", slog.String("id", form.ID), slog.String("owner", user.ID))
	w.deps.Notes.Notify(notify.Success, MsgSubmitted)

	w.mu.Lock()
	current := w.gen == gen
	if current {
		w.state = State{}
	}
	w.mu.Unlock()
	if current {
		w.deps.Navigator.Navigate(guard.Forms)
	}
	return nil
}

func (w *Workflow) fail(err error) error {
	w.logger.Warn("survey submission failed", slog.String("error", err.Error()))
	w.deps.Notes.Notify(notify.Error, apperror.MessageOf(err, MsgSubmitFailed))
	return err
}

// rollback removes uploaded photos of a failed submission. Failures are
// logged; the user already sees the submission error.
func (w *Workflow) rollback(refs ...string) {
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if err := w.deps.Uploader.Discard(context.Background(), ref); err != nil {
			w.logger.Warn("rollback of uploaded image failed",
				slog.String("ref", ref),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Blur resets the screen. It is called whenever the screen loses focus.
func (w *Workflow) Blur() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gen++
	w.state = State{}
}

// Snapshot returns a copy of the current state.
func (w *Workflow) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.state
	if s.Image1 != nil {
		img := *s.Image1
		s.Image1 = &img
	}
	if s.Image2 != nil {
		img := *s.Image2
		s.Image2 = &img
	}
	if s.Errors != nil {
		errs := make(apperror.FieldErrors, len(s.Errors))
		for k, v := range s.Errors {
			errs[k] = v
		}
		s.Errors = errs
	}
	return s
}

func hasImage(sel *model.ImageSelection) bool {
	return sel != nil && strings.TrimSpace(sel.URI) != ""
}

func filenameOr(name string, slot Slot) string {
	if strings.TrimSpace(name) == "" {
		return slot.defaultName()
	}
	return name
}
