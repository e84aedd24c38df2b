package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/field-survey/internal/apperror"
)

func TestComposeCoordinates(t *testing.T) {
	assert.Equal(t, "23.8103,90.4125", ComposeCoordinates("23.8103", "90.4125"))
	assert.Equal(t, "-33.86,151.2", ComposeCoordinates(" -33.86 ", "151.2"))
}

func TestSplitCoordinates(t *testing.T) {
	lat, lon, ok := SplitCoordinates("23.8103,90.4125")
	assert.True(t, ok)
	assert.Equal(t, "23.8103", lat)
	assert.Equal(t, "90.4125", lon)

	_, _, ok = SplitCoordinates("23.8103")
	assert.False(t, ok)
	_, _, ok = SplitCoordinates("1,2,3")
	assert.False(t, ok)
}

func validInput() FormInput {
	return FormInput{
		RetailerName: "Rahim Store",
		BDOCode:      "BDO-7",
		FranchiseID:  "FR-1",
		Address:      "12 Market Road",
		Coordinates:  "23.8,90.4",
		Image1:       "a.jpg",
		Image2:       "b.jpg",
	}
}

func TestFormInputValidate(t *testing.T) {
	assert.NoError(t, validInput().Validate())

	in := validInput()
	in.RetailerName = "   "
	in.Image2 = ""
	in.Coordinates = "23.8,"

	err := in.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	var fe apperror.FieldErrors
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, apperror.FieldErrors{
		"retailer_name": "Retailer name is required",
		"image_2":       "Image 2 is required",
		"coordinates":   "Coordinates are required",
	}, fe)
}

func TestUserIdentity(t *testing.T) {
	u := &User{ID: "u1", Email: "a@example.com"}
	assert.Equal(t, Identity{ID: "u1", DisplayName: "a@example.com", Email: "a@example.com"}, u.Identity())

	u.DisplayName = "Agent A"
	assert.Equal(t, "Agent A", u.Identity().DisplayName)
}
