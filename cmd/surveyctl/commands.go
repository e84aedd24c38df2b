package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/sakif/field-survey/internal/apperror"
	"github.com/sakif/field-survey/internal/createform"
	"github.com/sakif/field-survey/internal/guard"
	"github.com/sakif/field-survey/internal/notify"
	"github.com/sakif/field-survey/internal/platform"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// reportErr shows err as an error notification and returns it.
func (a *app) reportErr(err error, fallback string) error {
	a.notes.Notify(notify.Error, apperror.MessageOf(err, fallback))
	return err
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return a.reportErr(err, "Invalid arguments")
	}
	if err := a.open(guard.Login); err != nil {
		return err
	}

	if err := a.session.SignIn(ctx, *email, *password); err != nil {
		var fields apperror.FieldErrors
		if errors.As(err, &fields) {
			for _, k := range []string{"email", "password"} {
				if msg, ok := fields[k]; ok {
					a.notes.Notify(notify.Error, msg)
				}
			}
			return err
		}
		return a.reportErr(err, "Sign in failed")
	}
	// The guard has moved us off the login screen by now.
	a.notes.Notify(notify.Success, "Signed in as "+a.session.CurrentUser().Identity().DisplayName)
	return nil
}

func runLogout(ctx context.Context, a *app, _ []string) error {
	if err := a.open(guard.Forms); err != nil {
		return err
	}
	if err := a.session.SignOut(ctx); err != nil {
		return a.reportErr(err, "Failed to sign out")
	}
	a.notes.Notify(notify.Success, "Signed out")
	return nil
}

func runWhoami(_ context.Context, a *app, _ []string) error {
	if err := a.open(guard.Forms); err != nil {
		return err
	}
	id := a.session.CurrentUser().Identity()
	fmt.Fprintf(a.out, "%s <%s>\nid: %s\n", id.DisplayName, id.Email, id.ID)
	return nil
}

func runList(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("list")
	refresh := fs.Bool("refresh", false, "bypass the cache")
	if err := fs.Parse(args); err != nil {
		return a.reportErr(err, "Invalid arguments")
	}
	if err := a.open(guard.Forms); err != nil {
		return err
	}

	owner := a.session.CurrentUser().ID
	load := a.records.List
	if *refresh {
		load = a.records.Reload
	}
	forms, err := load(ctx, owner)
	if err != nil {
		return a.reportErr(err, "Failed to load forms")
	}
	if len(forms) == 0 {
		fmt.Fprintln(a.out, "No forms yet.")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRETAILER\tBDO\tFRANCHISE\tCREATED")
	for _, f := range forms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			f.ID, f.RetailerName, f.BDOCode, f.FranchiseID, f.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func runShow(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return a.reportErr(errors.New("usage: surveyctl show ID"), "")
	}
	if err := a.open(guard.Detail); err != nil {
		return err
	}

	d, err := a.records.Get(ctx, args[0])
	if err != nil {
		return a.reportErr(err, "Failed to load form")
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"ID", d.ID},
		{"Retailer", d.RetailerName},
		{"BDO code", d.BDOCode},
		{"Franchise ID", d.FranchiseID},
		{"Address", d.Address},
		{"Coordinates", d.Coordinates},
		{"Image 1", d.Image1URL},
		{"Image 2", d.Image2URL},
		{"Created", d.CreatedAt.Local().Format("2006-01-02 15:04:05")},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s:\t%s\n", r[0], r[1])
	}
	return tw.Flush()
}

func runCreate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("create")
	retailer := fs.String("retailer", "", "retailer name")
	bdo := fs.String("bdo", "", "BDO code")
	franchise := fs.String("franchise", "", "franchise ID")
	address := fs.String("address", "", "address")
	image1 := fs.String("image1", "", "path to the first photo (JPEG or PNG)")
	image2 := fs.String("image2", "", "path to the second photo (JPEG or PNG)")
	lat := fs.String("lat", "", "latitude in decimal degrees")
	lon := fs.String("lon", "", "longitude in decimal degrees")
	if err := fs.Parse(args); err != nil {
		return a.reportErr(err, "Invalid arguments")
	}
	if err := a.open(guard.Create); err != nil {
		return err
	}

	// A terminal has no GPS. Coordinates on the command line stand in for a
	// granted fix; leaving them out is a refused permission.
	locator := platform.StaticLocator{Denied: *lat == "" || *lon == ""}
	if !locator.Denied {
		var err error
		if locator.Position.Latitude, err = strconv.ParseFloat(strings.TrimSpace(*lat), 64); err != nil {
			return a.reportErr(apperror.ValidationFailed("lat", "Latitude must be a number"), "")
		}
		if locator.Position.Longitude, err = strconv.ParseFloat(strings.TrimSpace(*lon), 64); err != nil {
			return a.reportErr(apperror.ValidationFailed("lon", "Longitude must be a number"), "")
		}
	}

	var paths []string
	for _, p := range []string{*image1, *image2} {
		if p != "" {
			paths = append(paths, p)
		}
	}

	w := createform.New(createform.Deps{
		Uploader:  a.pipeline,
		Records:   a.records,
		Users:     a.session,
		Navigator: a.nav,
		Notes:     a.notes,
		Picker:    platform.NewFilePicker(paths...),
		Locator:   locator,
	}, a.logger)
	defer w.Blur()

	w.SetField(createform.RetailerName, *retailer)
	w.SetField(createform.BDOCode, *bdo)
	w.SetField(createform.FranchiseID, *franchise)
	w.SetField(createform.Address, *address)

	if *image1 != "" {
		if err := w.PickImage(ctx, createform.Image1); err != nil {
			return err
		}
	}
	if *image2 != "" {
		if err := w.PickImage(ctx, createform.Image2); err != nil {
			return err
		}
	}
	if err := w.CaptureLocation(ctx); err != nil {
		return err
	}

	if err := w.Submit(ctx); err != nil {
		var fields apperror.FieldErrors
		if errors.As(err, &fields) {
			for _, k := range []string{"retailer_name", "bdo_code", "franchise_id", "address", "image_1", "image_2", "coordinates"} {
				if msg, ok := fields[k]; ok {
					fmt.Fprintln(a.out, "  "+msg)
				}
			}
		}
		return err
	}
	return nil
}

func runDelete(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return a.reportErr(errors.New("usage: surveyctl delete ID"), "")
	}
	if err := a.open(guard.Detail); err != nil {
		return err
	}
	if err := a.records.Delete(ctx, args[0]); err != nil {
		return a.reportErr(err, "Failed to delete form")
	}
	a.notes.Notify(notify.Success, "Form deleted")
	return nil
}
