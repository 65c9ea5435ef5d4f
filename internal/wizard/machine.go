// internal/wizard/machine.go
package wizard

import (
	"context"
	"sync"

	apperrors "lendflow/internal/common/errors"
	"lendflow/internal/common/logger"
	"lendflow/internal/common/metrics"
)

// State is the externally visible wizard state: one of the six step names,
// or a terminal state.
type State string

const (
	StateSubmitted State = "submitted"
	StateAbandoned State = "abandoned"
)

// PersistPolicy controls whether re-entering an already persisted step
// re-fires its boundary effect on the next advance.
type PersistPolicy string

const (
	// PersistIfDirty skips the boundary effect when the step's data has
	// already been persisted and has not changed since. Default.
	PersistIfDirty PersistPolicy = "persist-if-dirty"
	// PersistAlways re-fires the effect on every advance, reproducing the
	// legacy behavior.
	PersistAlways PersistPolicy = "persist-always"
)

// Machine drives one applicant's journey through the six wizard steps.
//
// All draft mutations are named transitions producing a new immutable
// draft; remote calls happen only inside Advance/Submit (and the explicit
// OTP commands) and never mutate the draft on failure. At most one
// boundary effect is in flight at a time: a re-entrant call observes the
// busy flag and returns the busy sentinel without doing anything. Failed
// effects are retried only by the user invoking Advance again.
type Machine struct {
	mu sync.Mutex

	gateway Gateway
	log     logger.Logger
	policy  PersistPolicy

	step     Step
	terminal State
	draft    Draft
	busy     bool

	dirty     map[Step]bool
	persisted map[Step]bool

	pendingUploads map[DocumentKind]DocumentUpload

	token         string
	userID        string
	applicationID string
}

// NewMachine starts a fresh wizard at the verification step.
func NewMachine(gw Gateway, log logger.Logger, policy PersistPolicy, channel Channel, destination string) *Machine {
	if policy == "" {
		policy = PersistIfDirty
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Machine{
		gateway:        gw,
		log:            log,
		policy:         policy,
		step:           FirstStep,
		draft:          NewDraft(channel, destination),
		dirty:          map[Step]bool{},
		persisted:      map[Step]bool{},
		pendingUploads: map[DocumentKind]DocumentUpload{},
	}
}

// Step returns the current step. Meaningless once the machine is terminal.
func (m *Machine) Step() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

// State returns the externally visible state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminal != "" {
		return m.terminal
	}
	return State(m.step.String())
}

// Draft returns a copy of the current draft.
func (m *Machine) Draft() Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draft.clone()
}

// ApplicationID returns the id assigned on successful submission.
func (m *Machine) ApplicationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applicationID
}

// Verified reports whether the active channel has been verified.
func (m *Machine) Verified() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draft.Verification.Verified
}

func (m *Machine) checkActive(action string) error {
	if m.terminal != "" {
		return apperrors.NewInvalidTransitionError(string(m.terminal), action)
	}
	return nil
}

// --- Draft transitions (local, no remote effects) ---

// SetChannel switches the verification channel, which also resets the
// verified flag and invalidates any held token.
func (m *Machine) SetChannel(channel Channel, destination string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkActive("set_channel"); err != nil {
		return err
	}
	m.draft = m.draft.WithChannel(channel, destination)
	m.token = ""
	m.dirty[StepVerification] = true
	return nil
}

func (m *Machine) SetPersonal(p Personal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkActive("set_personal"); err != nil {
		return err
	}
	m.draft = m.draft.WithPersonal(p)
	m.dirty[StepPersonal] = true
	return nil
}

func (m *Machine) SetEmployment(e Employment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkActive("set_employment"); err != nil {
		return err
	}
	m.draft = m.draft.WithEmployment(e)
	m.dirty[StepEmployment] = true
	return nil
}

// AttachDocument stages a document for the batched upload at the documents
// boundary.
func (m *Machine) AttachDocument(kind DocumentKind, fileName string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkActive("attach_document"); err != nil {
		return err
	}
	if fileName == "" || len(content) == 0 {
		return apperrors.NewInputError("document", "document file name and content are required")
	}
	m.draft = m.draft.WithDocument(kind, fileName, int64(len(content)))
	m.pendingUploads[kind] = DocumentUpload{FileName: fileName, Content: content}
	m.dirty[StepDocuments] = true
	return nil
}

func (m *Machine) RemoveDocument(kind DocumentKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkActive("remove_document"); err != nil {
		return err
	}
	m.draft = m.draft.WithoutDocument(kind)
	delete(m.pendingUploads, kind)
	m.dirty[StepDocuments] = true
	return nil
}

// SetLoanTerms selects the offer and re-derives EMI and processing fee.
func (m *Machine) SetLoanTerms(typeID string, amount float64, tenureMonths int, purpose string, annualRate, feeRate float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkActive("set_loan_terms"); err != nil {
		return err
	}
	next, err := m.draft.WithLoanTerms(typeID, amount, tenureMonths, purpose, annualRate, feeRate)
	if err != nil {
		return err
	}
	m.draft = next
	m.dirty[StepLoanTerms] = true
	return nil
}

func (m *Machine) SetTermsAccepted(accepted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkActive("set_terms_accepted"); err != nil {
		return err
	}
	m.draft = m.draft.WithTermsAccepted(accepted)
	m.dirty[StepReview] = true
	return nil
}

// --- Explicit remote commands ---

// RequestOTP asks the gateway to send a code to the active channel.
func (m *Machine) RequestOTP(ctx context.Context) error {
	m.mu.Lock()
	if err := m.checkActive("request_otp"); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.busy {
		m.mu.Unlock()
		return apperrors.NewWizardBusyError(m.step.String())
	}
	m.busy = true
	channel := m.draft.Verification.Channel
	destination := m.draft.Verification.Destination
	m.mu.Unlock()

	err := m.gateway.RequestOTP(ctx, channel, destination)

	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()

	if err != nil {
		m.recordBoundaryFailure(StepVerification, err)
		return err
	}
	return nil
}

// VerifyOTP confirms the code with the gateway; on success the machine
// holds the returned bearer token and marks the channel verified.
func (m *Machine) VerifyOTP(ctx context.Context, code string) error {
	m.mu.Lock()
	if err := m.checkActive("verify_otp"); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.busy {
		m.mu.Unlock()
		return apperrors.NewWizardBusyError(m.step.String())
	}
	m.busy = true
	channel := m.draft.Verification.Channel
	destination := m.draft.Verification.Destination
	m.mu.Unlock()

	token, err := m.gateway.VerifyOTP(ctx, channel, destination, code)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false

	if err != nil {
		m.recordBoundaryFailure(StepVerification, err)
		return err
	}

	m.token = token
	m.draft = m.draft.WithVerified()
	m.dirty[StepVerification] = false
	return nil
}

// --- Navigation ---

// Advance moves to the next step if the current step's gate passes and its
// boundary effect (when it has one) succeeds. A failed effect leaves the
// draft and the step untouched; the caller may simply call Advance again.
func (m *Machine) Advance(ctx context.Context) error {
	m.mu.Lock()
	if err := m.checkActive("advance"); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.busy {
		m.mu.Unlock()
		metrics.WizardTransitions.WithLabelValues(m.step.String(), "advance", "busy").Inc()
		return apperrors.NewWizardBusyError(m.step.String())
	}

	step := m.step
	if step >= LastStep {
		m.mu.Unlock()
		return apperrors.NewInvalidTransitionError(step.String(), "advance")
	}

	if ok, missing := CanAdvance(step, m.draft); !ok {
		m.mu.Unlock()
		metrics.WizardTransitions.WithLabelValues(step.String(), "advance", "blocked").Inc()
		return apperrors.NewStepIncompleteError(missing)
	}

	effect := m.boundaryEffect(step)
	if effect == nil {
		m.step = step + 1
		m.mu.Unlock()
		metrics.WizardTransitions.WithLabelValues(step.String(), "advance", "ok").Inc()
		return nil
	}

	m.busy = true
	m.mu.Unlock()

	commit, err := effect(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false

	if err != nil {
		m.recordBoundaryFailure(step, err)
		metrics.WizardTransitions.WithLabelValues(step.String(), "advance", "failed").Inc()
		return err
	}

	if commit != nil {
		commit()
	}
	m.persisted[step] = true
	m.dirty[step] = false
	m.step = step + 1
	metrics.WizardTransitions.WithLabelValues(step.String(), "advance", "ok").Inc()
	return nil
}

// boundaryEffect returns the remote effect guarding the exit of the given
// step, or nil when leaving the step is purely local. Called with the lock
// held; the returned function runs unlocked and its commit closure runs
// locked.
func (m *Machine) boundaryEffect(step Step) func(ctx context.Context) (func(), error) {
	skip := m.policy == PersistIfDirty && m.persisted[step] && !m.dirty[step]

	switch step {
	case StepPersonal:
		if skip {
			return nil
		}
		token := m.token
		personal := m.draft.Personal
		return func(ctx context.Context) (func(), error) {
			if token == "" {
				return nil, apperrors.NewAuthMissingError("save profile")
			}
			result, err := m.gateway.SaveProfile(ctx, token, personal)
			if err != nil {
				return nil, err
			}
			return func() { m.userID = result.UserID }, nil
		}

	case StepEmployment:
		if skip {
			return nil
		}
		token := m.token
		userID := m.userID
		employment := m.draft.Employment
		return func(ctx context.Context) (func(), error) {
			if token == "" {
				return nil, apperrors.NewAuthMissingError("save employment")
			}
			if err := m.gateway.SaveEmployment(ctx, token, userID, employment); err != nil {
				return nil, err
			}
			return nil, nil
		}

	case StepDocuments:
		// Upload only what the gateway has not yet confirmed.
		uploads := make(map[DocumentKind]DocumentUpload)
		for kind, upload := range m.pendingUploads {
			if ref, ok := m.draft.Documents[kind]; ok && !ref.UploadConfirmed {
				uploads[kind] = upload
			}
		}
		if len(uploads) == 0 {
			if m.draft.RequiredUploadsConfirmed() {
				return nil
			}
			// Attached but nothing staged and nothing confirmed: nothing to
			// send, so surface the first unconfirmed required document.
			for _, kind := range RequiredDocuments {
				if ref, ok := m.draft.Documents[kind]; ok && !ref.UploadConfirmed {
					kind := kind
					return func(context.Context) (func(), error) {
						return nil, apperrors.NewInputError("documents."+string(kind), "document content missing for upload")
					}
				}
			}
			return nil
		}
		token := m.token
		userID := m.userID
		return func(ctx context.Context) (func(), error) {
			if token == "" {
				return nil, apperrors.NewAuthMissingError("upload documents")
			}
			result, err := m.gateway.UploadDocuments(ctx, token, userID, uploads)
			if err != nil {
				return nil, err
			}
			return func() {
				m.draft = m.draft.WithUploadsConfirmed(result.Confirmed)
				for kind, ok := range result.Confirmed {
					if ok {
						delete(m.pendingUploads, kind)
					}
				}
			}, nil
		}

	default:
		return nil
	}
}

// Retreat moves one step back. Allowed from any step but the first while
// no boundary effect is in flight; never fires an effect and never touches
// the draft.
func (m *Machine) Retreat() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkActive("retreat"); err != nil {
		return err
	}
	if m.busy {
		metrics.WizardTransitions.WithLabelValues(m.step.String(), "retreat", "busy").Inc()
		return apperrors.NewWizardBusyError(m.step.String())
	}
	if m.step <= FirstStep {
		return apperrors.NewInvalidTransitionError(m.step.String(), "retreat")
	}
	m.step--
	metrics.WizardTransitions.WithLabelValues(m.step.String(), "retreat", "ok").Inc()
	return nil
}

// Submit finalizes the application from the review step. On success the
// machine is terminal; on failure it stays at review with the draft intact
// and the user may correct and retry.
func (m *Machine) Submit(ctx context.Context) (SubmitResult, error) {
	m.mu.Lock()
	if err := m.checkActive("submit"); err != nil {
		m.mu.Unlock()
		return SubmitResult{}, err
	}
	if m.busy {
		m.mu.Unlock()
		return SubmitResult{}, apperrors.NewWizardBusyError(m.step.String())
	}
	if m.step != StepReview {
		step := m.step
		m.mu.Unlock()
		return SubmitResult{}, apperrors.NewInvalidTransitionError(step.String(), "submit")
	}
	if !m.draft.TermsAccepted {
		m.mu.Unlock()
		return SubmitResult{}, apperrors.NewStepIncompleteError("termsAccepted")
	}
	if !m.draft.RequiredUploadsConfirmed() {
		m.mu.Unlock()
		return SubmitResult{}, apperrors.NewStepIncompleteError("documents")
	}
	if m.token == "" {
		m.mu.Unlock()
		return SubmitResult{}, apperrors.NewAuthMissingError("submit application")
	}

	m.busy = true
	token := m.token
	userID := m.userID
	draft := m.draft.clone()
	m.mu.Unlock()

	result, err := m.gateway.SubmitLoan(ctx, token, userID, draft)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false

	if err != nil {
		m.recordBoundaryFailure(StepReview, err)
		metrics.WizardTransitions.WithLabelValues(StepReview.String(), "submit", "failed").Inc()
		return SubmitResult{}, err
	}

	m.terminal = StateSubmitted
	m.applicationID = result.ApplicationID
	metrics.WizardTransitions.WithLabelValues(StepReview.String(), "submit", "ok").Inc()
	return result, nil
}

// Abandon discards the draft and terminates the wizard.
func (m *Machine) Abandon() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkActive("abandon"); err != nil {
		return err
	}
	step := m.step
	m.terminal = StateAbandoned
	m.draft = Draft{Documents: map[DocumentKind]DocumentRef{}}
	m.pendingUploads = map[DocumentKind]DocumentUpload{}
	m.token = ""
	metrics.WizardTransitions.WithLabelValues(step.String(), "abandon", "ok").Inc()
	return nil
}

func (m *Machine) recordBoundaryFailure(step Step, err error) {
	code := apperrors.CodeOf(err)
	metrics.WizardBoundaryFailures.WithLabelValues(step.String(), string(code)).Inc()
	m.log.WithError(err).Warn("wizard boundary effect failed", map[string]interface{}{
		"step":      step.String(),
		"errorCode": string(code),
	})
}
