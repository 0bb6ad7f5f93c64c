// Package form drives the lead capture workflow: field edits, validation,
// submission and the post-submit reset.
package form

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	leadcapture "github.com/phbpx/leadcapture"
	"github.com/phbpx/leadcapture/metrics"
	"github.com/phbpx/leadcapture/submission"
	"go.uber.org/zap"
)

var (
	ErrSubmitInFlight = errors.New("a submission is already in flight")
	ErrFormSubmitted  = errors.New("form already submitted")
	ErrNotSubmitted   = errors.New("form has not been submitted")
	ErrUnknownField   = errors.New("unknown field")
)

// State is the position of a form in the submit workflow.
type State string

const (
	StateEditing           State = "editing"
	StateEditingWithErrors State = "editing_with_errors"
	StateSubmitting        State = "submitting"
	StateSubmitted         State = "submitted"
)

// Submitter sends form input to the ingestion endpoint.
type Submitter interface {
	Submit(ctx context.Context, in leadcapture.FormInput) (submission.Receipt, error)
}

// Config holds the collaborators of a Controller.
type Config struct {
	Submitter Submitter
	Store     leadcapture.LeadStore
	Log       *zap.SugaredLogger
	Metrics   *metrics.Submissions

	// Now stamps accepted leads. Defaults to time.Now.
	Now func() time.Time
}

// Receipt describes a lead accepted by the endpoint.
type Receipt struct {
	Lead     leadcapture.Lead   `json:"lead"`
	Sequence int                `json:"sequence"`
	Remote   submission.Receipt `json:"-"`
}

// View is what the rendering layer reads after every state change.
type View struct {
	State     State             `json:"state"`
	Fields    map[string]string `json:"fields"`
	Errors    map[string]string `json:"errors"`
	LastError string            `json:"last_error,omitempty"`
	Sequence  int               `json:"sequence,omitempty"`
	LeadCount int               `json:"lead_count"`
}

// Controller owns the field values and errors of one form instance.
//
// Controller is safe for concurrent use. Only one submission can be in flight
// at a time; repeated submits while one is pending get ErrSubmitInFlight.
type Controller struct {
	cfg Config

	mu       sync.Mutex
	state    State
	input    leadcapture.FormInput
	errs     map[leadcapture.Field]leadcapture.ValidationError
	lastErr  error
	sequence int
}

// New creates a Controller in the Editing state.
func New(cfg Config) (*Controller, error) {
	if cfg.Submitter == nil {
		return nil, errors.New("form: submitter is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("form: lead store is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Controller{
		cfg:   cfg,
		state: StateEditing,
		errs:  make(map[leadcapture.Field]leadcapture.ValidationError),
	}, nil
}

// SetField replaces the value of field and clears its error. Errors of other
// fields stay until they are edited or the form is validated again.
func (c *Controller) SetField(field leadcapture.Field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateSubmitting:
		return ErrSubmitInFlight
	case StateSubmitted:
		return ErrFormSubmitted
	}

	switch field {
	case leadcapture.FieldName:
		c.input.Name = value
	case leadcapture.FieldEmail:
		c.input.Email = value
	case leadcapture.FieldIndustry:
		c.input.Industry = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	delete(c.errs, field)
	if len(c.errs) == 0 {
		c.state = StateEditing
	}
	return nil
}

// Submit validates the current input and, if it is clean, sends it to the
// endpoint. On success the lead is appended to the store and the fields are
// cleared. On failure the fields are kept and the error is returned.
//
// A validation failure returns leadcapture.ValidationErrors without any
// network call. A remote failure returns a *leadcapture.SubmissionError.
func (c *Controller) Submit(ctx context.Context) (Receipt, error) {
	c.mu.Lock()

	switch c.state {
	case StateSubmitting:
		c.mu.Unlock()
		return Receipt{}, ErrSubmitInFlight
	case StateSubmitted:
		c.mu.Unlock()
		return Receipt{}, ErrFormSubmitted
	}

	verrs := leadcapture.Validate(c.input)
	c.errs = make(map[leadcapture.Field]leadcapture.ValidationError, len(verrs))
	for _, e := range verrs {
		c.errs[e.Field] = e
	}
	if len(verrs) > 0 {
		c.state = StateEditingWithErrors
		c.mu.Unlock()
		c.cfg.Metrics.ObserveAttempt(metrics.OutcomeInvalid, "")
		return Receipt{}, verrs
	}

	c.state = StateSubmitting
	c.lastErr = nil
	input := c.input
	c.mu.Unlock()

	start := time.Now()
	remote, err := c.send(ctx, input)
	c.cfg.Metrics.ObserveLatency(time.Since(start).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.state = StateEditing
		c.lastErr = err
		c.cfg.Metrics.ObserveAttempt(metrics.OutcomeFailed, failureReason(err))
		c.cfg.Log.Errorw("submit", "status", "submission failed", "reason", failureReason(err), "error", err)
		return Receipt{}, err
	}

	norm := input.Normalize()
	lead := leadcapture.Lead{
		Name:        norm.Name,
		Email:       norm.Email,
		Industry:    norm.Industry,
		SubmittedAt: c.cfg.Now().UTC(),
	}
	seq := c.cfg.Store.Append(lead)

	c.input = leadcapture.FormInput{}
	c.errs = make(map[leadcapture.Field]leadcapture.ValidationError)
	c.state = StateSubmitted
	c.sequence = seq

	c.cfg.Metrics.ObserveAttempt(metrics.OutcomeAccepted, "")
	c.cfg.Metrics.SetLeads(c.cfg.Store.Count())
	c.cfg.Log.Infow("submit", "status", "lead captured", "sequence", seq, "industry", lead.Industry)

	return Receipt{Lead: lead, Sequence: seq, Remote: remote}, nil
}

// Reset returns a submitted form to Editing with empty fields, ready for
// another lead.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateSubmitted {
		return ErrNotSubmitted
	}

	c.state = StateEditing
	c.input = leadcapture.FormInput{}
	c.errs = make(map[leadcapture.Field]leadcapture.ValidationError)
	c.lastErr = nil
	return nil
}

// State returns the current workflow state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Input returns the current field values.
func (c *Controller) Input() leadcapture.FormInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// Errors returns the current field errors in field order.
func (c *Controller) Errors() leadcapture.ValidationErrors {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out leadcapture.ValidationErrors
	for _, f := range leadcapture.Fields() {
		if e, ok := c.errs[f]; ok {
			out = append(out, e)
		}
	}
	return out
}

// LastError returns the failure of the most recent submission, if any.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// View returns a snapshot of the form for rendering.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State: c.state,
		Fields: map[string]string{
			string(leadcapture.FieldName):     c.input.Name,
			string(leadcapture.FieldEmail):    c.input.Email,
			string(leadcapture.FieldIndustry): c.input.Industry,
		},
		Errors:    make(map[string]string, len(c.errs)),
		LeadCount: c.cfg.Store.Count(),
	}
	for f, e := range c.errs {
		v.Errors[string(f)] = e.Message
	}
	if c.lastErr != nil {
		v.LastError = userMessage(c.lastErr)
	}
	if c.state == StateSubmitted {
		v.Sequence = c.sequence
	}
	return v
}

// send calls the submitter. A panic is reported as an aborted submission so
// the form can leave Submitting.
func (c *Controller) send(ctx context.Context, in leadcapture.FormInput) (remote submission.Receipt, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &leadcapture.SubmissionError{
				Kind:    leadcapture.SubmissionAborted,
				Message: leadcapture.FallbackSubmissionMessage,
				Err:     fmt.Errorf("submitter panic: %v", r),
			}
		}
	}()
	return c.cfg.Submitter.Submit(ctx, in)
}

func failureReason(err error) string {
	var se *leadcapture.SubmissionError
	if errors.As(err, &se) {
		return string(se.Kind)
	}
	return "unknown"
}

// userMessage is the failure text shown next to the form.
func userMessage(err error) string {
	var se *leadcapture.SubmissionError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
