package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/field-survey/internal/model"
	"github.com/sakif/field-survey/internal/repository"
)

var _ repository.FormRepository = (*FormsClient)(nil)

// FormsClient is the hosted "forms" table.
type FormsClient struct {
	baseURL string
	http    *http.Client
}

func NewFormsClient(baseURL string, src oauth2.TokenSource, timeout time.Duration) *FormsClient {
	return &FormsClient{baseURL: baseURL, http: authedClient(src, timeout)}
}

// ListByOwner returns the owner's forms, newest first. The backend already
// scopes the table to the token subject; rows for any other owner are dropped
// here as well.
func (c *FormsClient) ListByOwner(ctx context.Context, ownerID string) ([]model.Form, error) {
	var forms []model.Form
	if err := c.do(ctx, http.MethodGet, "/rest/v1/forms", nil, http.StatusOK, &forms); err != nil {
		return nil, transportError("Failed to load forms", err)
	}

	owned := make([]model.Form, 0, len(forms))
	for _, f := range forms {
		if f.UserID == ownerID {
			owned = append(owned, f)
		}
	}
	return owned, nil
}

func (c *FormsClient) GetByID(ctx context.Context, id string) (*model.Form, error) {
	var form model.Form
	if err := c.do(ctx, http.MethodGet, "/rest/v1/forms/"+url.PathEscape(id), nil, http.StatusOK, &form); err != nil {
		return nil, transportError("Failed to load form", err)
	}
	return &form, nil
}

// Create inserts the form and copies the server-assigned columns back into it.
func (c *FormsClient) Create(ctx context.Context, form *model.Form) error {
	in := model.FormInput{
		RetailerName: form.RetailerName,
		BDOCode:      form.BDOCode,
		FranchiseID:  form.FranchiseID,
		Address:      form.Address,
		Coordinates:  form.Coordinates,
		Image1:       form.Image1,
		Image2:       form.Image2,
	}
	var created model.Form
	if err := c.do(ctx, http.MethodPost, "/rest/v1/forms", in, http.StatusCreated, &created); err != nil {
		return transportError("Failed to submit form", err)
	}
	*form = created
	return nil
}

func (c *FormsClient) Delete(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/rest/v1/forms/"+url.PathEscape(id), nil, http.StatusNoContent, nil); err != nil {
		return transportError("Failed to delete form", err)
	}
	return nil
}

// do sends body as JSON and decodes a wantStatus response into out.
// Any other status becomes an apperror via apiError.
func (c *FormsClient) do(ctx context.Context, method, path string, body any, wantStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decoding response: %w", err)
	}
	return nil
}
