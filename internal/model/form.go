// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data. The `json:"..."` tags mirror the
// column names of the hosted "forms" table, so the same struct travels over the
// wire and through the repositories without a mapping layer.
package model

import (
	"strings"
	"time"

	"github.com/sakif/field-survey/internal/apperror"
)

// Form is one persisted retailer survey record.
//
// Image1 and Image2 hold storage references (the public URL returned at upload
// time). Once persisted both are non-empty. Coordinates is "lat,lon" in decimal
// degrees.
type Form struct {
	ID           string    `json:"id"`
	RetailerName string    `json:"retailer_name"`
	BDOCode      string    `json:"bdo_code"`
	FranchiseID  string    `json:"franchise_id"`
	Address      string    `json:"address"`
	Coordinates  string    `json:"coordinates"`
	Image1       string    `json:"image_1"`
	Image2       string    `json:"image_2"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// FormInput carries the caller-supplied columns of a new record. The store
// assigns ID and CreatedAt; the owner comes from the session.
type FormInput struct {
	RetailerName string `json:"retailer_name"`
	BDOCode      string `json:"bdo_code"`
	FranchiseID  string `json:"franchise_id"`
	Address      string `json:"address"`
	Coordinates  string `json:"coordinates"`
	Image1       string `json:"image_1"`
	Image2       string `json:"image_2"`
}

// Validate checks that every column is present. The keys of the returned
// apperror.FieldErrors are the JSON column names.
func (in FormInput) Validate() error {
	errs := apperror.FieldErrors{}
	required := []struct {
		field, value, msg string
	}{
		{"retailer_name", in.RetailerName, "Retailer name is required"},
		{"bdo_code", in.BDOCode, "BDO code is required"},
		{"franchise_id", in.FranchiseID, "Franchise ID is required"},
		{"address", in.Address, "Address is required"},
		{"image_1", in.Image1, "Image 1 is required"},
		{"image_2", in.Image2, "Image 2 is required"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs[r.field] = r.msg
		}
	}
	if lat, lon, ok := SplitCoordinates(in.Coordinates); !ok || lat == "" || lon == "" {
		errs["coordinates"] = "Coordinates are required"
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ComposeCoordinates joins latitude and longitude as "lat,lon".
func ComposeCoordinates(lat, lon string) string {
	return strings.TrimSpace(lat) + "," + strings.TrimSpace(lon)
}

// SplitCoordinates is the inverse of ComposeCoordinates. ok is false when the
// value does not contain exactly one comma.
func SplitCoordinates(coords string) (lat, lon string, ok bool) {
	lat, lon, ok = strings.Cut(coords, ",")
	if !ok || strings.Contains(lon, ",") {
		return "", "", false
	}
	return strings.TrimSpace(lat), strings.TrimSpace(lon), true
}
