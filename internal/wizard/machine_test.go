// internal/wizard/machine_test.go
package wizard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "lendflow/internal/common/errors"
	"lendflow/internal/common/logger"
)

// fakeGateway counts calls and lets tests inject failures or hooks.
type fakeGateway struct {
	otpRequests    int
	otpVerifies    int
	profileSaves   int
	employmentSave int
	uploads        int
	submits        int

	failSaveProfile error
	failUpload      error
	failSubmit      error

	onSaveProfile func()
}

func (f *fakeGateway) RequestOTP(ctx context.Context, channel Channel, destination string) error {
	f.otpRequests++
	return nil
}

func (f *fakeGateway) VerifyOTP(ctx context.Context, channel Channel, destination, code string) (string, error) {
	f.otpVerifies++
	if code != "123456" {
		return "", apperrors.NewGatewayRejection("Invalid verification code")
	}
	return "token-abc", nil
}

func (f *fakeGateway) SaveProfile(ctx context.Context, token string, p Personal) (ProfileResult, error) {
	f.profileSaves++
	if f.onSaveProfile != nil {
		f.onSaveProfile()
	}
	if f.failSaveProfile != nil {
		return ProfileResult{}, f.failSaveProfile
	}
	return ProfileResult{UserID: "user-1"}, nil
}

func (f *fakeGateway) SaveEmployment(ctx context.Context, token, userID string, e Employment) error {
	f.employmentSave++
	return nil
}

func (f *fakeGateway) UploadDocuments(ctx context.Context, token, userID string, docs map[DocumentKind]DocumentUpload) (UploadResult, error) {
	f.uploads++
	if f.failUpload != nil {
		return UploadResult{}, f.failUpload
	}
	confirmed := make(map[DocumentKind]bool, len(docs))
	for kind := range docs {
		confirmed[kind] = true
	}
	return UploadResult{Confirmed: confirmed}, nil
}

func (f *fakeGateway) SubmitLoan(ctx context.Context, token, userID string, d Draft) (SubmitResult, error) {
	f.submits++
	if f.failSubmit != nil {
		return SubmitResult{}, f.failSubmit
	}
	return SubmitResult{ApplicationID: "APP-1001"}, nil
}

func newTestMachine(t *testing.T, gw Gateway, policy PersistPolicy) *Machine {
	t.Helper()
	return NewMachine(gw, logger.NewTestLogger(t), policy, ChannelMobile, "9876543210")
}

// fillPersonal etc. push a valid draft through the local transitions.
func fillPersonal(t *testing.T, m *Machine) {
	t.Helper()
	require.NoError(t, m.SetPersonal(Personal{
		FirstName: "Asha",
		LastName:  "Rao",
		Email:     "asha@example.com",
		Phone:     "9876543210",
		Address:   Address{Line1: "12 MG Road", City: "Bengaluru"},
	}))
}

func fillEmployment(t *testing.T, m *Machine) {
	t.Helper()
	require.NoError(t, m.SetEmployment(Employment{
		Type:          EmploymentSalaried,
		CompanyName:   "Acme Ltd",
		Designation:   "Engineer",
		MonthlyIncome: 85000,
	}))
}

func attachRequiredDocuments(t *testing.T, m *Machine) {
	t.Helper()
	require.NoError(t, m.AttachDocument(DocIdentityProof, "id.pdf", []byte("id")))
	require.NoError(t, m.AttachDocument(DocAddressProof, "addr.pdf", []byte("addr")))
	require.NoError(t, m.AttachDocument(DocIncomeProof, "pay.pdf", []byte("pay")))
}

// driveToReview walks a machine from verification to the review step.
func driveToReview(t *testing.T, m *Machine) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, m.RequestOTP(ctx))
	require.NoError(t, m.VerifyOTP(ctx, "123456"))
	require.NoError(t, m.Advance(ctx))

	fillPersonal(t, m)
	require.NoError(t, m.Advance(ctx))

	fillEmployment(t, m)
	require.NoError(t, m.Advance(ctx))

	attachRequiredDocuments(t, m)
	require.NoError(t, m.Advance(ctx))

	require.NoError(t, m.SetLoanTerms("personal", 500000, 36, "renovation", 12.5, 0.02))
	require.NoError(t, m.Advance(ctx))

	require.NoError(t, m.SetTermsAccepted(true))
	require.Equal(t, StepReview, m.Step())
}

func TestMachine_FullJourney(t *testing.T) {
	gw := &fakeGateway{}
	m := newTestMachine(t, gw, PersistIfDirty)

	driveToReview(t, m)

	result, err := m.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "APP-1001", result.ApplicationID)
	assert.Equal(t, StateSubmitted, m.State())
	assert.Equal(t, "APP-1001", m.ApplicationID())

	assert.Equal(t, 1, gw.profileSaves)
	assert.Equal(t, 1, gw.employmentSave)
	assert.Equal(t, 1, gw.uploads)
	assert.Equal(t, 1, gw.submits)
}

func TestMachine_AdvanceBlockedByValidator(t *testing.T) {
	gw := &fakeGateway{}
	m := newTestMachine(t, gw, PersistIfDirty)

	err := m.Advance(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeStepIncomplete))
	assert.Equal(t, StepVerification, m.Step())
}

func TestMachine_FailedEffectLeavesDraftAndStepUntouched(t *testing.T) {
	gw := &fakeGateway{failSaveProfile: apperrors.NewTransportError(assert.AnError)}
	m := newTestMachine(t, gw, PersistIfDirty)
	ctx := context.Background()

	require.NoError(t, m.VerifyOTP(ctx, "123456"))
	require.NoError(t, m.Advance(ctx))
	fillPersonal(t, m)
	before := m.Draft()

	err := m.Advance(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTransportFailed))
	assert.Equal(t, StepPersonal, m.Step())
	assert.Equal(t, before.Personal, m.Draft().Personal)

	// User-invoked retry succeeds once the gateway recovers.
	gw.failSaveProfile = nil
	require.NoError(t, m.Advance(ctx))
	assert.Equal(t, StepEmployment, m.Step())
	assert.Equal(t, 2, gw.profileSaves)
}

func TestMachine_ReentrantAdvanceReturnsBusy(t *testing.T) {
	gw := &fakeGateway{}
	m := newTestMachine(t, gw, PersistIfDirty)
	ctx := context.Background()

	require.NoError(t, m.VerifyOTP(ctx, "123456"))
	require.NoError(t, m.Advance(ctx))
	fillPersonal(t, m)

	var reentrantErr error
	gw.onSaveProfile = func() {
		reentrantErr = m.Advance(ctx)
	}

	require.NoError(t, m.Advance(ctx))
	require.Error(t, reentrantErr)
	assert.True(t, apperrors.IsCode(reentrantErr, apperrors.ErrCodeWizardBusy))
	assert.Equal(t, 1, gw.profileSaves, "busy call must not reach the gateway")
}

func TestMachine_RetreatDuringInFlightEffectReturnsBusy(t *testing.T) {
	gw := &fakeGateway{}
	m := newTestMachine(t, gw, PersistIfDirty)
	ctx := context.Background()

	require.NoError(t, m.VerifyOTP(ctx, "123456"))
	require.NoError(t, m.Advance(ctx))
	fillPersonal(t, m)

	var retreatErr error
	var stepDuringEffect Step
	gw.onSaveProfile = func() {
		retreatErr = m.Retreat()
		stepDuringEffect = m.Step()
	}

	require.NoError(t, m.Advance(ctx))
	require.Error(t, retreatErr, "retreat must be rejected while the effect is in flight")
	assert.True(t, apperrors.IsCode(retreatErr, apperrors.ErrCodeWizardBusy))
	assert.Equal(t, StepPersonal, stepDuringEffect, "step must not move mid-effect")
	assert.Equal(t, StepEmployment, m.Step())
}

func TestMachine_RetreatAndAdvanceDoesNotRefireWhenClean(t *testing.T) {
	gw := &fakeGateway{}
	m := newTestMachine(t, gw, PersistIfDirty)
	ctx := context.Background()

	require.NoError(t, m.VerifyOTP(ctx, "123456"))
	require.NoError(t, m.Advance(ctx))
	fillPersonal(t, m)
	require.NoError(t, m.Advance(ctx))
	require.Equal(t, 1, gw.profileSaves)

	require.NoError(t, m.Retreat())
	require.NoError(t, m.Advance(ctx))
	assert.Equal(t, 1, gw.profileSaves, "clean re-advance must not re-persist")
}

func TestMachine_RetreatEditAdvanceRefires(t *testing.T) {
	gw := &fakeGateway{}
	m := newTestMachine(t, gw, PersistIfDirty)
	ctx := context.Background()

	require.NoError(t, m.VerifyOTP(ctx, "123456"))
	require.NoError(t, m.Advance(ctx))
	fillPersonal(t, m)
	require.NoError(t, m.Advance(ctx))

	require.NoError(t, m.Retreat())
	p := m.Draft().Personal
	p.FirstName = "Aisha"
	require.NoError(t, m.SetPersonal(p))
	require.NoError(t, m.Advance(ctx))
	assert.Equal(t, 2, gw.profileSaves, "edited step must re-persist")
}

func TestMachine_PersistAlwaysRefiresOnCleanReadvance(t *testing.T) {
	gw := &fakeGateway{}
	m := newTestMachine(t, gw, PersistAlways)
	ctx := context.Background()

	require.NoError(t, m.VerifyOTP(ctx, "123456"))
	require.NoError(t, m.Advance(ctx))
	fillPersonal(t, m)
	require.NoError(t, m.Advance(ctx))
	require.NoError(t, m.Retreat())
	require.NoError(t, m.Advance(ctx))

	assert.Equal(t, 2, gw.profileSaves, "persist-always re-fires on every advance")
}

func TestMachine_RetreatNeverFiresEffects(t *testing.T) {
	gw := &fakeGateway{}
	m := newTestMachine(t, gw, PersistIfDirty)
	driveToReview(t, m)

	saves := gw.profileSaves + gw.employmentSave + gw.uploads
	for m.Step() > FirstStep {
		require.NoError(t, m.Retreat())
	}
	assert.Equal(t, saves, gw.profileSaves+gw.employmentSave+gw.uploads)
	assert.Error(t, m.Retreat(), "cannot retreat past the first step")
}

func TestMachine_SubmitRequiresConfirmedUploads(t *testing.T) {
	gw := &fakeGateway{}
	m := newTestMachine(t, gw, PersistIfDirty)
	driveToReview(t, m)

	// Attach a new document after the upload boundary: it is unconfirmed.
	require.NoError(t, m.AttachDocument(DocIncomeProof, "pay-v2.pdf", []byte("pay2")))

	_, err := m.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeStepIncomplete))
	assert.NotEqual(t, StateSubmitted, m.State())
}

func TestMachine_SubmitRejectionKeepsReviewState(t *testing.T) {
	gw := &fakeGateway{failSubmit: apperrors.NewGatewayRejection("Credit policy declined the application")}
	m := newTestMachine(t, gw, PersistIfDirty)
	driveToReview(t, m)

	_, err := m.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeGatewayRejected))
	assert.Equal(t, "Credit policy declined the application", apperrors.MessageOf(err),
		"rejection message passes through verbatim")
	assert.Equal(t, StepReview, m.Step())

	gw.failSubmit = nil
	_, err = m.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSubmitted, m.State())
}

func TestMachine_VerifyOTPFailureKeepsUnverified(t *testing.T) {
	gw := &fakeGateway{}
	m := newTestMachine(t, gw, PersistIfDirty)

	err := m.VerifyOTP(context.Background(), "000000")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeGatewayRejected))
	assert.False(t, m.Verified())

	ok, missing := CanAdvance(StepVerification, m.Draft())
	assert.False(t, ok)
	assert.Equal(t, "verification.verified", missing)
}

func TestMachine_SwitchingChannelInvalidatesToken(t *testing.T) {
	gw := &fakeGateway{}
	m := newTestMachine(t, gw, PersistIfDirty)
	ctx := context.Background()

	require.NoError(t, m.VerifyOTP(ctx, "123456"))
	require.NoError(t, m.SetChannel(ChannelEmail, "asha@example.com"))
	assert.False(t, m.Verified())

	require.NoError(t, m.VerifyOTP(ctx, "123456"))
	require.NoError(t, m.Advance(ctx))
	fillPersonal(t, m)
	require.NoError(t, m.Advance(ctx), "re-verification restores the token")
}

func TestMachine_AbandonDiscardsDraft(t *testing.T) {
	gw := &fakeGateway{}
	m := newTestMachine(t, gw, PersistIfDirty)
	ctx := context.Background()

	require.NoError(t, m.VerifyOTP(ctx, "123456"))
	require.NoError(t, m.Advance(ctx))
	fillPersonal(t, m)

	require.NoError(t, m.Abandon())
	assert.Equal(t, StateAbandoned, m.State())
	assert.Empty(t, m.Draft().Personal.FirstName)

	err := m.Advance(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidTransition))
}
