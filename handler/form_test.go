package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	leadcapture "github.com/phbpx/leadcapture"
	"github.com/phbpx/leadcapture/form"
	"github.com/phbpx/leadcapture/memory"
	"github.com/phbpx/leadcapture/submission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type formEnv struct {
	router  http.Handler
	store   *memory.Store
	service *fakeLeadService
}

// newFormEnv wires the form API to a live ingestion endpoint backed by a
// fake lead service.
func newFormEnv(t *testing.T, endpointURL func(ingest *httptest.Server) string) *formEnv {
	t.Helper()

	service := newFakeLeadService()
	ingest := httptest.NewServer(newIngestRouter(t, service))
	t.Cleanup(ingest.Close)

	client, err := submission.New(submission.Config{
		URL:   endpointURL(ingest),
		Token: token(t, RoleAnon),
		Log:   zaptest.NewLogger(t).Sugar(),
	})
	require.NoError(t, err)

	store := memory.NewStore()
	forms, err := form.NewRegistry(form.Config{Submitter: client, Store: store})
	require.NoError(t, err)

	r := chi.NewRouter()
	FormRoutes(r, NewFormHandler(forms, store, testLog()))

	return &formEnv{router: r, store: store, service: service}
}

func leadsURL(ingest *httptest.Server) string { return ingest.URL + "/leads" }

func (e *formEnv) create(t *testing.T) string {
	t.Helper()
	w := doRequest(e.router, http.MethodPost, "/forms", "", "")
	require.Equal(t, http.StatusCreated, w.Code)

	var resp formResponse
	decodeBody(t, w, &resp)
	require.NotEmpty(t, resp.ID)
	assert.Equal(t, form.StateEditing, resp.State)
	return resp.ID
}

func (e *formEnv) set(t *testing.T, id, field, value string) *httptest.ResponseRecorder {
	t.Helper()
	return doRequest(e.router, http.MethodPut, "/forms/"+id+"/fields/"+field, `{"value":"`+value+`"}`, "")
}

func (e *formEnv) fill(t *testing.T, id string) {
	t.Helper()
	require.Equal(t, http.StatusOK, e.set(t, id, "name", "Alice").Code)
	require.Equal(t, http.StatusOK, e.set(t, id, "email", "alice@example.com").Code)
	require.Equal(t, http.StatusOK, e.set(t, id, "industry", "technology").Code)
}

func TestForm_SubmitEndToEnd(t *testing.T) {
	env := newFormEnv(t, leadsURL)
	id := env.create(t)
	env.fill(t, id)

	w := doRequest(env.router, http.MethodPost, "/forms/"+id+"/submit", "", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp formResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, form.StateSubmitted, resp.State)
	assert.Equal(t, 1, resp.Sequence)
	assert.Equal(t, 1, resp.LeadCount)
	require.NotNil(t, resp.Lead)
	assert.Equal(t, "alice@example.com", resp.Lead.Email)
	assert.Empty(t, resp.Fields["name"])

	assert.Equal(t, 1, env.store.Count())
	assert.Len(t, env.service.leads, 1)

	w = doRequest(env.router, http.MethodGet, "/leads", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var leads map[string]interface{}
	decodeBody(t, w, &leads)
	assert.Equal(t, map[string]interface{}{"count": float64(1)}, leads)
	assert.NotContains(t, w.Body.String(), "alice@example.com")

	// submit another
	w = doRequest(env.router, http.MethodPost, "/forms/"+id+"/reset", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var reset formResponse
	decodeBody(t, w, &reset)
	assert.Equal(t, form.StateEditing, reset.State)
	assert.Zero(t, reset.Sequence)
	assert.Nil(t, reset.Lead)
}

func TestForm_SubmitInvalid(t *testing.T) {
	env := newFormEnv(t, leadsURL)
	id := env.create(t)
	require.Equal(t, http.StatusOK, env.set(t, id, "email", "bad").Code)

	w := doRequest(env.router, http.MethodPost, "/forms/"+id+"/submit", "", "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp formResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, form.StateEditingWithErrors, resp.State)
	assert.Len(t, resp.Errors, 3)
	assert.Empty(t, env.service.leads)

	// editing a field clears only its own error
	w = env.set(t, id, "name", "Alice")
	require.Equal(t, http.StatusOK, w.Code)
	var edited formResponse
	decodeBody(t, w, &edited)
	assert.Equal(t, form.StateEditingWithErrors, edited.State)
	assert.Len(t, edited.Errors, 2)
	assert.NotContains(t, edited.Errors, "name")
}

func TestForm_SubmitRejectedByEndpoint(t *testing.T) {
	env := newFormEnv(t, leadsURL)

	first := env.create(t)
	env.fill(t, first)
	require.Equal(t, http.StatusCreated, doRequest(env.router, http.MethodPost, "/forms/"+first+"/submit", "", "").Code)

	second := env.create(t)
	env.fill(t, second)
	w := doRequest(env.router, http.MethodPost, "/forms/"+second+"/submit", "", "")
	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp formResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, "email already in use", resp.Message)
	assert.Equal(t, "email already in use", resp.LastError)
	assert.Equal(t, form.StateEditing, resp.State)
	assert.Equal(t, "Alice", resp.Fields["name"])
	assert.Equal(t, 1, env.store.Count())
}

func TestForm_SubmitTransportFailure(t *testing.T) {
	env := newFormEnv(t, func(*httptest.Server) string {
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()
		return dead.URL + "/leads"
	})
	id := env.create(t)
	env.fill(t, id)

	w := doRequest(env.router, http.MethodPost, "/forms/"+id+"/submit", "", "")
	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp formResponse
	decodeBody(t, w, &resp)
	assert.Contains(t, resp.Message, "transport failure")
	assert.Equal(t, form.StateEditing, resp.State)
	assert.Equal(t, "alice@example.com", resp.Fields["email"])
	assert.Zero(t, env.store.Count())
}

func TestForm_Errors(t *testing.T) {
	env := newFormEnv(t, leadsURL)

	w := doRequest(env.router, http.MethodGet, "/forms/missing", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	id := env.create(t)

	w = env.set(t, id, "phone", "555")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(env.router, http.MethodPut, "/forms/"+id+"/fields/name", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(env.router, http.MethodPost, "/forms/"+id+"/reset", "", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	env.fill(t, id)
	require.Equal(t, http.StatusCreated, doRequest(env.router, http.MethodPost, "/forms/"+id+"/submit", "", "").Code)

	w = doRequest(env.router, http.MethodPost, "/forms/"+id+"/submit", "", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.set(t, id, "name", "Bob")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestForm_Industries(t *testing.T) {
	env := newFormEnv(t, leadsURL)

	w := doRequest(env.router, http.MethodGet, "/industries", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Industries []leadcapture.Industry `json:"industries"`
	}
	decodeBody(t, w, &body)
	assert.Equal(t, leadcapture.Industries(), body.Industries)
}

func TestForm_CreateAtCapacity(t *testing.T) {
	store := memory.NewStore()
	forms, err := form.NewRegistry(
		form.Config{Submitter: &nopSubmitter{}, Store: store},
		form.WithMaxForms(1),
	)
	require.NoError(t, err)

	r := chi.NewRouter()
	FormRoutes(r, NewFormHandler(forms, store, testLog()))

	require.Equal(t, http.StatusCreated, doRequest(r, http.MethodPost, "/forms", "", "").Code)

	w := doRequest(r, http.MethodPost, "/forms", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type nopSubmitter struct{}

func (nopSubmitter) Submit(context.Context, leadcapture.FormInput) (submission.Receipt, error) {
	return submission.Receipt{StatusCode: http.StatusCreated}, nil
}
