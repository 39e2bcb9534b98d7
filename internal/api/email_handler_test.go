package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/probekit/mailtrace/internal/repository"
)

// fakeRepo serves canned responses for handler tests.
type fakeRepo struct {
	latest *repository.Email
	list   []repository.Email
	err    error
}

func (f *fakeRepo) Upsert(ctx context.Context, email *repository.Email) error { return f.err }

func (f *fakeRepo) LatestBySubject(ctx context.Context, subject string) (*repository.Email, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.latest == nil {
		return nil, repository.ErrEmailNotFound
	}
	return f.latest, nil
}

func (f *fakeRepo) ListRecent(ctx context.Context, limit int) ([]repository.Email, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.list) {
		return f.list[:limit], nil
	}
	return f.list, nil
}

func newTestRouter(repo repository.EmailRepositoryInterface) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		RegisterEmailRoutes(r, NewEmailHandler(repo, nil))
	})
	return r
}

func doRequest(t *testing.T, h http.Handler, url string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body %q: %v", rec.Body.String(), err)
	}
	return rec, body
}

func TestLatestBySubjectRequiresSubject(t *testing.T) {
	h := newTestRouter(&fakeRepo{})

	rec, body := doRequest(t, h, "/api/v1/emails/latest")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if body.Error == nil || body.Error.Code != CodeValidationError {
		t.Errorf("error = %+v, want %s", body.Error, CodeValidationError)
	}
}

func TestLatestBySubjectNotFoundIsNotAServerError(t *testing.T) {
	h := newTestRouter(&fakeRepo{})

	rec, body := doRequest(t, h, "/api/v1/emails/latest?subject=missing")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if body.Error == nil || body.Error.Code != CodeEmailNotFound {
		t.Errorf("error = %+v, want %s", body.Error, CodeEmailNotFound)
	}
}

func TestLatestBySubjectFound(t *testing.T) {
	esp := "Amazon SES"
	h := newTestRouter(&fakeRepo{latest: &repository.Email{
		MessageID: "m1",
		Subject:   "[ESP-TEST] run 1",
		ESP:       &esp,
	}})

	rec, body := doRequest(t, h, "/api/v1/emails/latest?subject=%5BESP-TEST%5D+run+1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !body.Success {
		t.Errorf("success = false, want true")
	}
}

func TestLatestBySubjectStoreFailure(t *testing.T) {
	h := newTestRouter(&fakeRepo{err: errors.New("connection refused")})

	rec, body := doRequest(t, h, "/api/v1/emails/latest?subject=x")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if body.Error == nil || body.Error.Code != CodeInternalError {
		t.Errorf("error = %+v, want %s", body.Error, CodeInternalError)
	}
}

func TestListRecent(t *testing.T) {
	h := newTestRouter(&fakeRepo{list: []repository.Email{
		{MessageID: "m2"},
		{MessageID: "m1"},
	}})

	rec, body := doRequest(t, h, "/api/v1/emails")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !body.Success {
		t.Errorf("success = false, want true")
	}

	rec, _ = doRequest(t, h, "/api/v1/emails?limit=1")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with limit", rec.Code)
	}
}

func TestListRecentEmpty(t *testing.T) {
	h := newTestRouter(&fakeRepo{})

	rec, body := doRequest(t, h, "/api/v1/emails")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	// An empty result is still a success, never an error.
	if body.Error != nil {
		t.Errorf("error = %+v, want nil for empty list", body.Error)
	}
	if data, ok := body.Data.([]interface{}); ok && len(data) != 0 {
		t.Errorf("data length = %d, want 0", len(data))
	}
}
