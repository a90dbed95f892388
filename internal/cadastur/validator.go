package cadastur

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NicolasCavalcanti/trekko-website/internal/cadastur/entity"
)

// User-facing reasons. With name matching on, an unknown number and a name
// mismatch share MsgNameMismatch.
const (
	MsgRequired     = "registry number is required for guides"
	MsgPlaceholder  = "registry number is a placeholder dash and cannot be used for registration"
	MsgInvalid      = "invalid registry number"
	MsgTooShort     = "registry number must have at least 3 digits"
	MsgRepeated     = "registry number cannot have all identical digits"
	MsgNotFound     = "registry number not found in the official database"
	MsgNameMismatch = "registry number and name not found in the official database"
	MsgInUse        = "registry number is already in use by another user"
	MsgValid        = "registry number is valid and available"
	MsgNoExpiry     = "valid, no expiry date set"
	MsgUnverifiable = "certificate validity could not be verified"
)

const (
	minDigits  = 3
	dateLayout = "02/01/2006"
	// noExpiry is the placeholder the registry uses for "no date".
	noExpiry = "-"
)

var validityLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	dateLayout,
}

// Registry is the lookup the validator needs: the entry and its current
// claimant in one read.
type Registry interface {
	FindWithClaimant(ctx context.Context, raw string) (*entity.GuideClaim, error)
}

// Request is one validation. Name is only checked when RequireNameMatch is
// set.
type Request struct {
	Number           string
	Name             string
	RequireNameMatch bool
}

// Result is the verdict. On success Certificate holds the canonical number,
// which is what gets stored on the user, never the raw input.
type Result struct {
	Valid       bool
	Reason      string
	Stage       string
	Certificate string
	Guide       *entity.Guide
	// Expiry describes the certificate validity when the expiry stage ran.
	Expiry string
}

// ValidationError carries a failed verdict through service layers.
type ValidationError struct {
	Stage  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Err converts a failed result into a *ValidationError; nil when valid.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Stage: r.Stage, Reason: r.Reason}
}

type Validator struct {
	registry Registry
	now      func() time.Time
}

type Option func(*Validator)

// WithClock overrides the time source used by the expiry check.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

func NewValidator(registry Registry, opts ...Option) *Validator {
	v := &Validator{registry: registry, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// state is threaded through the checks of one Validate call.
type state struct {
	req       Request
	canonical string
	claim     *entity.GuideClaim
	expiry    string
}

type check struct {
	name string
	run  func(ctx context.Context, st *state) (ok bool, reason string, err error)
}

func (v *Validator) pipeline(req Request) []check {
	checks := []check{
		{name: "format", run: v.checkFormat},
		{name: "existence", run: v.checkExistence},
	}
	if req.RequireNameMatch {
		checks = append(checks, check{name: "name", run: v.checkName})
	}
	return append(checks,
		check{name: "availability", run: v.checkAvailability},
		check{name: "expiry", run: v.checkExpiry},
	)
}

// Validate runs the checks in order and stops at the first failure. A
// failed check is a normal result; err is only set when the registry could
// not be read.
func (v *Validator) Validate(ctx context.Context, req Request) (Result, error) {
	st := &state{req: req}
	for _, c := range v.pipeline(req) {
		ok, reason, err := c.run(ctx, st)
		if err != nil {
			return Result{}, fmt.Errorf("cadastur %s check: %w", c.name, err)
		}
		if !ok {
			return Result{Valid: false, Reason: reason, Stage: c.name}, nil
		}
	}
	return Result{
		Valid:       true,
		Reason:      MsgValid,
		Certificate: st.canonical,
		Guide:       &st.claim.Guide,
		Expiry:      st.expiry,
	}, nil
}

func (v *Validator) checkFormat(_ context.Context, st *state) (bool, string, error) {
	trimmed := strings.TrimSpace(st.req.Number)
	if trimmed == "" {
		return false, MsgRequired, nil
	}
	digits := entity.CanonicalCertificate(trimmed)
	if digits == "" {
		if trimmed == noExpiry {
			return false, MsgPlaceholder, nil
		}
		return false, MsgInvalid, nil
	}
	if len(digits) < minDigits {
		return false, MsgTooShort, nil
	}
	if strings.Count(digits, digits[:1]) == len(digits) {
		return false, MsgRepeated, nil
	}
	st.canonical = digits
	return true, "", nil
}

func (v *Validator) checkExistence(ctx context.Context, st *state) (bool, string, error) {
	claim, err := v.registry.FindWithClaimant(ctx, st.canonical)
	if err != nil {
		return false, "", err
	}
	if claim == nil {
		if st.req.RequireNameMatch {
			return false, MsgNameMismatch, nil
		}
		return false, MsgNotFound, nil
	}
	st.claim = claim
	return true, "", nil
}

func (v *Validator) checkName(_ context.Context, st *state) (bool, string, error) {
	if !entity.NamesMatch(st.claim.Guide.Name, st.req.Name) {
		return false, MsgNameMismatch, nil
	}
	return true, "", nil
}

func (v *Validator) checkAvailability(_ context.Context, st *state) (bool, string, error) {
	if st.claim.Claimed() {
		return false, MsgInUse, nil
	}
	return true, "", nil
}

// checkExpiry fails open: a validity date that cannot be parsed is reported
// but does not block registration.
func (v *Validator) checkExpiry(_ context.Context, st *state) (bool, string, error) {
	raw := ""
	if st.claim.Guide.ValidUntil != nil {
		raw = strings.TrimSpace(*st.claim.Guide.ValidUntil)
	}
	if raw == "" || raw == noExpiry {
		st.expiry = MsgNoExpiry
		return true, "", nil
	}
	until, ok := parseValidity(raw)
	if !ok {
		st.expiry = MsgUnverifiable
		return true, "", nil
	}
	if until.Before(v.now()) {
		return false, "certificate expired on " + until.Format(dateLayout), nil
	}
	st.expiry = "certificate valid until " + until.Format(dateLayout)
	return true, "", nil
}

func parseValidity(raw string) (time.Time, bool) {
	for _, layout := range validityLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
