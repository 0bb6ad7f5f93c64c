package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	leadcapture "github.com/phbpx/leadcapture"
	"github.com/phbpx/leadcapture/form"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
)

// FormHandler exposes form instances to the rendering layer.
type FormHandler struct {
	forms *form.Registry
	store leadcapture.LeadStore
	log   *otelzap.SugaredLogger
}

func NewFormHandler(forms *form.Registry, store leadcapture.LeadStore, log *otelzap.SugaredLogger) *FormHandler {
	return &FormHandler{
		forms: forms,
		store: store,
		log:   log,
	}
}

type formResponse struct {
	ID string `json:"id"`
	form.View
	Lead    *leadcapture.Lead `json:"lead,omitempty"`
	Message string            `json:"message,omitempty"`
}

type fieldRequest struct {
	Value *string `json:"value"`
}

// leadsResponse carries the session count only. Lead contents stay in the
// store.
type leadsResponse struct {
	Count int `json:"count"`
}

func (fh FormHandler) Industries(rw http.ResponseWriter, r *http.Request) {
	respond(r.Context(), rw, http.StatusOK, map[string]interface{}{
		"industries": leadcapture.Industries(),
	})
}

func (fh FormHandler) Create(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, c, err := fh.forms.Create()
	if errors.Is(err, form.ErrTooManyForms) {
		respondErr(ctx, rw, http.StatusServiceUnavailable, err)
		return
	}
	if err != nil {
		fh.log.Ctx(ctx).Errorw("Create", "error", err.Error())
		respondErr(ctx, rw, http.StatusInternalServerError, errors.New("failed to create form"))
		return
	}

	respond(ctx, rw, http.StatusCreated, formResponse{ID: id, View: c.View()})
}

func (fh FormHandler) Get(rw http.ResponseWriter, r *http.Request) {
	id, c, ok := fh.lookup(rw, r)
	if !ok {
		return
	}
	respond(r.Context(), rw, http.StatusOK, formResponse{ID: id, View: c.View()})
}

func (fh FormHandler) SetField(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, c, ok := fh.lookup(rw, r)
	if !ok {
		return
	}

	field, ok := leadcapture.ParseField(chi.URLParam(r, "field"))
	if !ok {
		respondErr(ctx, rw, http.StatusBadRequest, form.ErrUnknownField)
		return
	}

	var req fieldRequest
	if err := decode(r, &req); err != nil || req.Value == nil {
		respondErr(ctx, rw, http.StatusBadRequest, errors.New(`request body must be {"value": "..."}`))
		return
	}

	if err := c.SetField(field, *req.Value); err != nil {
		fh.respondFormErr(ctx, rw, id, c, err)
		return
	}

	respond(ctx, rw, http.StatusOK, formResponse{ID: id, View: c.View()})
}

func (fh FormHandler) Submit(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, c, ok := fh.lookup(rw, r)
	if !ok {
		return
	}

	// A dispatched submission runs to completion even if the caller goes away.
	submitCtx := trace.ContextWithSpan(context.Background(), trace.SpanFromContext(ctx))

	receipt, err := c.Submit(submitCtx)
	if err != nil {
		fh.respondFormErr(ctx, rw, id, c, err)
		return
	}

	respond(ctx, rw, http.StatusCreated, formResponse{ID: id, View: c.View(), Lead: &receipt.Lead})
}

func (fh FormHandler) Reset(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, c, ok := fh.lookup(rw, r)
	if !ok {
		return
	}

	if err := c.Reset(); err != nil {
		fh.respondFormErr(ctx, rw, id, c, err)
		return
	}

	respond(ctx, rw, http.StatusOK, formResponse{ID: id, View: c.View()})
}

func (fh FormHandler) Leads(rw http.ResponseWriter, r *http.Request) {
	respond(r.Context(), rw, http.StatusOK, leadsResponse{Count: fh.store.Count()})
}

func (fh FormHandler) lookup(rw http.ResponseWriter, r *http.Request) (string, *form.Controller, bool) {
	id := chi.URLParam(r, "id")
	c, err := fh.forms.Get(id)
	if err != nil {
		respondErr(r.Context(), rw, http.StatusNotFound, err)
		return "", nil, false
	}
	return id, c, true
}

func (fh FormHandler) respondFormErr(ctx context.Context, rw http.ResponseWriter, id string, c *form.Controller, err error) {
	var (
		verrs leadcapture.ValidationErrors
		serr  *leadcapture.SubmissionError
	)

	switch {
	case errors.As(err, &verrs):
		respond(ctx, rw, http.StatusUnprocessableEntity, formResponse{ID: id, View: c.View(), Message: "validation failed"})
	case errors.As(err, &serr):
		fh.log.Ctx(ctx).Errorw("Submit", "form", id, "kind", serr.Kind, "error", err.Error())
		respond(ctx, rw, http.StatusBadGateway, formResponse{ID: id, View: c.View(), Message: serr.Message})
	case errors.Is(err, form.ErrUnknownField):
		respondErr(ctx, rw, http.StatusBadRequest, err)
	case errors.Is(err, form.ErrSubmitInFlight),
		errors.Is(err, form.ErrFormSubmitted),
		errors.Is(err, form.ErrNotSubmitted):
		respondErr(ctx, rw, http.StatusConflict, err)
	default:
		fh.log.Ctx(ctx).Errorw("Submit", "form", id, "error", err.Error())
		respond(ctx, rw, http.StatusBadGateway, formResponse{ID: id, View: c.View(), Message: leadcapture.FallbackSubmissionMessage})
	}
}
