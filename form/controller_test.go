package form

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	leadcapture "github.com/phbpx/leadcapture"
	"github.com/phbpx/leadcapture/memory"
	"github.com/phbpx/leadcapture/metrics"
	"github.com/phbpx/leadcapture/submission"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// fakeSubmitter records calls and optionally blocks until released.
type fakeSubmitter struct {
	mu      sync.Mutex
	calls   []leadcapture.FormInput
	err     error
	release chan struct{}
}

func (f *fakeSubmitter) Submit(ctx context.Context, in leadcapture.FormInput) (submission.Receipt, error) {
	f.mu.Lock()
	f.calls = append(f.calls, in)
	release := f.release
	err := f.err
	f.mu.Unlock()

	if release != nil {
		<-release
	}
	if err != nil {
		return submission.Receipt{}, err
	}
	return submission.Receipt{StatusCode: 201, Body: []byte(`{"ok":true}`)}, nil
}

func (f *fakeSubmitter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newController(t *testing.T, sub Submitter, store leadcapture.LeadStore) *Controller {
	t.Helper()
	c, err := New(Config{
		Submitter: sub,
		Store:     store,
		Log:       zaptest.NewLogger(t).Sugar(),
		Metrics:   metrics.NewSubmissions(prometheus.NewRegistry()),
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return c
}

func fill(t *testing.T, c *Controller, in leadcapture.FormInput) {
	t.Helper()
	require.NoError(t, c.SetField(leadcapture.FieldName, in.Name))
	require.NoError(t, c.SetField(leadcapture.FieldEmail, in.Email))
	require.NoError(t, c.SetField(leadcapture.FieldIndustry, in.Industry))
}

var alice = leadcapture.FormInput{Name: "Alice", Email: "alice@example.com", Industry: "technology"}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{Store: memory.NewStore()})
	assert.Error(t, err)

	_, err = New(Config{Submitter: &fakeSubmitter{}})
	assert.Error(t, err)
}

func TestController_InitialState(t *testing.T) {
	c := newController(t, &fakeSubmitter{}, memory.NewStore())

	assert.Equal(t, StateEditing, c.State())
	assert.Equal(t, leadcapture.FormInput{}, c.Input())
	assert.Empty(t, c.Errors())
	assert.NoError(t, c.LastError())
}

func TestController_SubmitSuccess(t *testing.T) {
	sub := &fakeSubmitter{}
	store := memory.NewStore()
	c := newController(t, sub, store)

	fill(t, c, alice)
	receipt, err := c.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sub.Calls())
	assert.Equal(t, 1, store.Count())
	assert.Equal(t, 1, receipt.Sequence)
	assert.Equal(t, leadcapture.Lead{
		Name:        "Alice",
		Email:       "alice@example.com",
		Industry:    "technology",
		SubmittedAt: fixedNow,
	}, receipt.Lead)
	assert.Equal(t, receipt.Lead, store.All()[0])

	assert.Equal(t, StateSubmitted, c.State())
	assert.Equal(t, leadcapture.FormInput{}, c.Input())

	view := c.View()
	assert.Equal(t, 1, view.Sequence)
	assert.Equal(t, 1, view.LeadCount)
}

func TestController_SubmitInvalid(t *testing.T) {
	sub := &fakeSubmitter{}
	store := memory.NewStore()
	c := newController(t, sub, store)

	fill(t, c, leadcapture.FormInput{Name: "", Email: "bad", Industry: ""})
	_, err := c.Submit(context.Background())

	var verrs leadcapture.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 3)

	assert.Equal(t, 0, sub.Calls())
	assert.Equal(t, 0, store.Count())
	assert.Equal(t, StateEditingWithErrors, c.State())
	assert.Len(t, c.Errors(), 3)
}

func TestController_EditClearsOnlyThatFieldError(t *testing.T) {
	c := newController(t, &fakeSubmitter{}, memory.NewStore())

	_, err := c.Submit(context.Background())
	require.Error(t, err)
	require.Len(t, c.Errors(), 3)

	require.NoError(t, c.SetField(leadcapture.FieldEmail, "alice@"))
	errs := c.Errors()
	require.Len(t, errs, 2)
	_, ok := errs.Field(leadcapture.FieldEmail)
	assert.False(t, ok)
	assert.Equal(t, StateEditingWithErrors, c.State())

	require.NoError(t, c.SetField(leadcapture.FieldName, "Alice"))
	require.NoError(t, c.SetField(leadcapture.FieldIndustry, "finance"))
	assert.Empty(t, c.Errors())
	assert.Equal(t, StateEditing, c.State())

	// a fresh validation pass catches the email again
	_, err = c.Submit(context.Background())
	var verrs leadcapture.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 1)
	assert.Equal(t, leadcapture.KindInvalidFormat, verrs[0].Kind)
}

func TestController_SubmitFailureKeepsFields(t *testing.T) {
	transport := &leadcapture.SubmissionError{
		Kind:    leadcapture.SubmissionTransport,
		Message: "transport failure: connection refused",
	}
	sub := &fakeSubmitter{err: transport}
	store := memory.NewStore()
	c := newController(t, sub, store)

	fill(t, c, alice)
	_, err := c.Submit(context.Background())

	var se *leadcapture.SubmissionError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, leadcapture.SubmissionTransport, se.Kind)

	assert.Equal(t, 0, store.Count())
	assert.Equal(t, StateEditing, c.State())
	assert.Equal(t, alice, c.Input())
	assert.Equal(t, transport, c.LastError())
	assert.Equal(t, "transport failure: connection refused", c.View().LastError)

	// the form stays usable
	sub.mu.Lock()
	sub.err = nil
	sub.mu.Unlock()

	receipt, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.Sequence)
	assert.NoError(t, c.LastError())
}

// panickingSubmitter panics on its first call and succeeds afterwards.
type panickingSubmitter struct {
	fakeSubmitter
	panicked bool
}

func (p *panickingSubmitter) Submit(ctx context.Context, in leadcapture.FormInput) (submission.Receipt, error) {
	if !p.panicked {
		p.panicked = true
		panic("nil map write")
	}
	return p.fakeSubmitter.Submit(ctx, in)
}

func TestController_SubmitterPanicLeavesFormUsable(t *testing.T) {
	store := memory.NewStore()
	c := newController(t, &panickingSubmitter{}, store)
	fill(t, c, alice)

	_, err := c.Submit(context.Background())

	var se *leadcapture.SubmissionError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, leadcapture.SubmissionAborted, se.Kind)
	assert.Equal(t, leadcapture.FallbackSubmissionMessage, c.View().LastError)
	assert.Equal(t, StateEditing, c.State())
	assert.Equal(t, alice, c.Input())

	require.NoError(t, c.SetField(leadcapture.FieldName, "Alice B"))
	receipt, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Alice B", receipt.Lead.Name)
	assert.Equal(t, 1, store.Count())
}

func TestController_FailureLogOmitsVisitorData(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	c, err := New(Config{
		Submitter: &fakeSubmitter{err: &leadcapture.SubmissionError{
			Kind:       leadcapture.SubmissionRejected,
			StatusCode: 409,
			Message:    "email already in use",
		}},
		Store: memory.NewStore(),
		Log:   zap.New(core).Sugar(),
	})
	require.NoError(t, err)
	fill(t, c, alice)

	_, err = c.Submit(context.Background())
	require.Error(t, err)

	entries := logs.FilterMessage("submit").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "rejected", fields["reason"])
	for key, value := range fields {
		assert.NotEqual(t, "email", key)
		assert.NotContains(t, fmt.Sprint(value), alice.Email, "field %s", key)
		assert.NotContains(t, fmt.Sprint(value), alice.Name, "field %s", key)
	}
}

func TestController_DoubleSubmit(t *testing.T) {
	sub := &fakeSubmitter{release: make(chan struct{})}
	store := memory.NewStore()
	c := newController(t, sub, store)
	fill(t, c, alice)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return c.State() == StateSubmitting }, time.Second, time.Millisecond)

	_, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitInFlight)
	assert.ErrorIs(t, c.SetField(leadcapture.FieldName, "Mallory"), ErrSubmitInFlight)

	close(sub.release)
	require.NoError(t, <-done)

	assert.Equal(t, 1, sub.Calls())
	assert.Equal(t, 1, store.Count())
	assert.Equal(t, StateSubmitted, c.State())
}

func TestController_Reset(t *testing.T) {
	c := newController(t, &fakeSubmitter{}, memory.NewStore())

	assert.ErrorIs(t, c.Reset(), ErrNotSubmitted)

	fill(t, c, alice)
	_, err := c.Submit(context.Background())
	require.NoError(t, err)

	_, err = c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrFormSubmitted)
	assert.ErrorIs(t, c.SetField(leadcapture.FieldName, "Bob"), ErrFormSubmitted)

	require.NoError(t, c.Reset())
	assert.Equal(t, StateEditing, c.State())
	assert.Equal(t, leadcapture.FormInput{}, c.Input())
	assert.Empty(t, c.Errors())
	assert.Zero(t, c.View().Sequence)
}

func TestController_UnknownField(t *testing.T) {
	c := newController(t, &fakeSubmitter{}, memory.NewStore())
	assert.ErrorIs(t, c.SetField(leadcapture.Field("phone"), "555"), ErrUnknownField)
}

func TestController_SharedStoreSequences(t *testing.T) {
	store := memory.NewStore()
	sub := &fakeSubmitter{}

	const forms = 10
	seqs := make(chan int, forms)

	var wg sync.WaitGroup
	for i := 0; i < forms; i++ {
		c := newController(t, sub, store)
		fill(t, c, alice)

		wg.Add(1)
		go func() {
			defer wg.Done()
			receipt, err := c.Submit(context.Background())
			assert.NoError(t, err)
			seqs <- receipt.Sequence
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int]bool)
	for seq := range seqs {
		assert.False(t, seen[seq], "duplicate sequence %d", seq)
		seen[seq] = true
	}
	for i := 1; i <= forms; i++ {
		assert.True(t, seen[i], "missing sequence %d", i)
	}
	assert.Equal(t, forms, store.Count())
}
