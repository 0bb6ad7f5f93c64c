package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	leadcapture "github.com/phbpx/leadcapture"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
)

// IngestHandler serves the ingestion endpoint the form submits leads to.
type IngestHandler struct {
	service leadcapture.LeadService
	log     *otelzap.SugaredLogger
	now     func() time.Time
}

func NewIngestHandler(service leadcapture.LeadService, log *otelzap.SugaredLogger) *IngestHandler {
	return &IngestHandler{
		service: service,
		log:     log,
		now:     time.Now,
	}
}

func (ih IngestHandler) Create(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in leadcapture.FormInput
	if err := decode(r, &in); err != nil {
		ih.log.Ctx(ctx).Errorw("Create", "error", err.Error())
		respondErr(ctx, rw, http.StatusBadRequest, errors.New("request body is not valid JSON"))
		return
	}

	if verrs := leadcapture.Validate(in); len(verrs) > 0 {
		ih.log.Ctx(ctx).Infow("Create", "status", "rejected invalid lead", "errors", len(verrs))
		respond(ctx, rw, http.StatusUnprocessableEntity, errorBody{
			Code:    http.StatusText(http.StatusUnprocessableEntity),
			Message: verrs.Error(),
			Errors:  verrs,
		})
		return
	}

	in = in.Normalize()
	lead := leadcapture.StoredLead{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Email:     in.Email,
		Industry:  in.Industry,
		CreatedAt: ih.now().UTC(),
	}

	if err := ih.service.Create(ctx, lead); err != nil {
		ih.log.Ctx(ctx).Errorw("Create", "error", err.Error())
		switch {
		case errors.Is(err, leadcapture.ErrDuplicatedLead):
			respondErr(ctx, rw, http.StatusConflict, leadcapture.ErrDuplicatedLead)
		default:
			respondErr(ctx, rw, http.StatusInternalServerError, errors.New("failed to store lead"))
		}
		return
	}

	respond(ctx, rw, http.StatusCreated, lead)
}

func (ih IngestHandler) GetByID(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		ih.log.Ctx(ctx).Errorw("GetByID", "error", err.Error())
		respondErr(ctx, rw, http.StatusBadRequest, errors.New("ID is not in its proper form"))
		return
	}

	lead, err := ih.service.GetByID(ctx, id.String())
	if err != nil {
		ih.log.Ctx(ctx).Errorw("GetByID", "error", err.Error())
		switch {
		case errors.Is(err, leadcapture.ErrLeadNotFound):
			respondErr(ctx, rw, http.StatusNotFound, leadcapture.ErrLeadNotFound)
		default:
			respondErr(ctx, rw, http.StatusInternalServerError, errors.New("failed to load lead"))
		}
		return
	}

	respond(ctx, rw, http.StatusOK, lead)
}
