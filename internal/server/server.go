// internal/server/server.go
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"lendflow/internal/catalog"
	"lendflow/internal/common/config"
	apperrors "lendflow/internal/common/errors"
	"lendflow/internal/common/logger"
	"lendflow/internal/eligibility"
	"lendflow/internal/finance"
	"lendflow/internal/resume"
	"lendflow/internal/wizard"
)

// ProcessStarter starts the post-submission origination process. Satisfied
// by the Camunda client; nil disables process start.
type ProcessStarter interface {
	StartProcess(ctx context.Context, processID string, vars map[string]interface{}) (int64, error)
}

// Server hosts the wizard HTTP API: session lifecycle, step data updates,
// navigation, and the stateless quote/eligibility endpoints.
type Server struct {
	cfg       config.WizardConfig
	sessions  *SessionManager
	catalog   catalog.Store
	resume    *resume.Store
	evaluator *eligibility.Evaluator
	starter   ProcessStarter
	log       logger.Logger
}

func New(
	cfg config.WizardConfig,
	gw wizard.Gateway,
	catalogStore catalog.Store,
	resumeStore *resume.Store,
	starter ProcessStarter,
	log logger.Logger,
) *Server {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Server{
		cfg:       cfg,
		sessions:  NewSessionManager(gw, wizard.PersistPolicy(cfg.PersistPolicy), log),
		catalog:   catalogStore,
		resume:    resumeStore,
		evaluator: eligibility.NewEvaluator(nil),
		starter:   starter,
		log:       log,
	}
}

// Handler returns the routed HTTP handler with logging middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)

	mux.HandleFunc("PUT /api/v1/sessions/{id}/channel", s.handleSetChannel)
	mux.HandleFunc("PUT /api/v1/sessions/{id}/personal", s.handleSetPersonal)
	mux.HandleFunc("PUT /api/v1/sessions/{id}/employment", s.handleSetEmployment)
	mux.HandleFunc("PUT /api/v1/sessions/{id}/documents", s.handleAttachDocument)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/documents/{kind}", s.handleRemoveDocument)
	mux.HandleFunc("PUT /api/v1/sessions/{id}/loan", s.handleSetLoanTerms)
	mux.HandleFunc("PUT /api/v1/sessions/{id}/terms", s.handleSetTerms)

	mux.HandleFunc("POST /api/v1/sessions/{id}/otp/request", s.handleRequestOTP)
	mux.HandleFunc("POST /api/v1/sessions/{id}/otp/verify", s.handleVerifyOTP)
	mux.HandleFunc("POST /api/v1/sessions/{id}/advance", s.handleAdvance)
	mux.HandleFunc("POST /api/v1/sessions/{id}/retreat", s.handleRetreat)
	mux.HandleFunc("POST /api/v1/sessions/{id}/submit", s.handleSubmit)
	mux.HandleFunc("POST /api/v1/sessions/{id}/abandon", s.handleAbandon)

	mux.HandleFunc("GET /api/v1/quote", s.handleQuote)
	mux.HandleFunc("GET /api/v1/eligibility", s.handleEligibility)
	mux.HandleFunc("GET /api/v1/loan-types", s.handleLoanTypes)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	return requestLogging(s.log, mux)
}

// --- Session lifecycle ---

type sessionView struct {
	SessionID     string           `json:"sessionId"`
	State         string           `json:"state"`
	Step          int              `json:"step"`
	StepName      string           `json:"stepName"`
	Draft         wizard.Draft     `json:"draft"`
	ApplicationID string           `json:"applicationId,omitempty"`
	Resume        *resume.Snapshot `json:"resume,omitempty"`
}

func (s *Server) viewOf(session *Session) sessionView {
	machine := session.Machine
	step := machine.Step()
	return sessionView{
		SessionID:     session.ID,
		State:         string(machine.State()),
		Step:          int(step),
		StepName:      step.String(),
		Draft:         machine.Draft(),
		ApplicationID: machine.ApplicationID(),
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Channel     string `json:"channel"`
		Destination string `json:"destination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.NewInputError("body", "invalid JSON"))
		return
	}

	channel := wizard.Channel(body.Channel)
	if channel != wizard.ChannelMobile && channel != wizard.ChannelEmail {
		writeError(w, apperrors.NewInputError("channel", "channel must be mobile or email"))
		return
	}
	if body.Destination == "" {
		writeError(w, apperrors.NewInputError("destination", "destination is required"))
		return
	}

	session := s.sessions.Create(channel, body.Destination)
	view := s.viewOf(session)

	// Prefill from a previous visit when a valid snapshot exists.
	if s.resume != nil {
		if snap, ok := s.resume.Load(r.Context(), resumeKey(channel, body.Destination)); ok {
			view.Resume = &snap
		}
	}

	writeJSON(w, http.StatusCreated, view)
}

// resumeKey ties snapshots to the verification destination rather than the
// session id, so a returning applicant finds their prefill.
func resumeKey(channel wizard.Channel, destination string) string {
	return string(channel) + ":" + destination
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(session))
}

// --- Step data updates ---

func (s *Server) handleSetChannel(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		Channel     string `json:"channel"`
		Destination string `json:"destination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.NewInputError("body", "invalid JSON"))
		return
	}

	channel := wizard.Channel(body.Channel)
	if channel != wizard.ChannelMobile && channel != wizard.ChannelEmail {
		writeError(w, apperrors.NewInputError("channel", "channel must be mobile or email"))
		return
	}

	if err := session.Machine.SetChannel(channel, body.Destination); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(session))
}

func (s *Server) handleSetPersonal(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var personal wizard.Personal
	if err := json.NewDecoder(r.Body).Decode(&personal); err != nil {
		writeError(w, apperrors.NewInputError("body", "invalid JSON"))
		return
	}

	if err := session.Machine.SetPersonal(personal); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(session))
}

func (s *Server) handleSetEmployment(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var employment wizard.Employment
	if err := json.NewDecoder(r.Body).Decode(&employment); err != nil {
		writeError(w, apperrors.NewInputError("body", "invalid JSON"))
		return
	}

	if err := session.Machine.SetEmployment(employment); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(session))
}

func (s *Server) handleAttachDocument(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		Kind     string `json:"kind"`
		FileName string `json:"fileName"`
		Content  string `json:"content"` // base64
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.NewInputError("body", "invalid JSON"))
		return
	}

	content, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		writeError(w, apperrors.NewInputError("content", "content must be base64 encoded"))
		return
	}

	if err := session.Machine.AttachDocument(wizard.DocumentKind(body.Kind), body.FileName, content); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(session))
}

func (s *Server) handleRemoveDocument(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := session.Machine.RemoveDocument(wizard.DocumentKind(r.PathValue("kind"))); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(session))
}

func (s *Server) handleSetLoanTerms(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		TypeID       string  `json:"typeId"`
		Amount       float64 `json:"amount"`
		TenureMonths int     `json:"tenureMonths"`
		Purpose      string  `json:"purpose"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.NewInputError("body", "invalid JSON"))
		return
	}

	loanType, err := s.catalog.GetByID(r.Context(), body.TypeID)
	if err != nil {
		writeError(w, err)
		return
	}
	if body.Amount > loanType.MaxAmount {
		writeError(w, apperrors.NewInputError("amount",
			"amount exceeds the maximum for "+loanType.DisplayName))
		return
	}
	if body.TenureMonths > loanType.MaxTenureMonths {
		writeError(w, apperrors.NewInputError("tenureMonths",
			"tenure exceeds the maximum for "+loanType.DisplayName))
		return
	}

	feeRate := loanType.FeeRate
	if feeRate == 0 {
		feeRate = s.cfg.DefaultFeeRate
	}

	if err := session.Machine.SetLoanTerms(loanType.ID, body.Amount, body.TenureMonths, body.Purpose, loanType.AnnualRatePercent, feeRate); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(session))
}

func (s *Server) handleSetTerms(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		Accepted bool `json:"accepted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.NewInputError("body", "invalid JSON"))
		return
	}

	if err := session.Machine.SetTermsAccepted(body.Accepted); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(session))
}

// --- Remote commands and navigation ---

func (s *Server) handleRequestOTP(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := session.Machine.RequestOTP(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.NewInputError("body", "invalid JSON"))
		return
	}

	if err := session.Machine.VerifyOTP(r.Context(), body.Code); err != nil {
		writeError(w, err)
		return
	}

	s.saveResume(r.Context(), session)
	writeJSON(w, http.StatusOK, s.viewOf(session))
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := session.Machine.Advance(r.Context()); err != nil {
		writeError(w, err)
		return
	}

	s.saveResume(r.Context(), session)
	writeJSON(w, http.StatusOK, s.viewOf(session))
}

func (s *Server) handleRetreat(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := session.Machine.Retreat(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(session))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := session.Machine.Submit(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	s.clearResume(r.Context(), session)
	s.startOrigination(r.Context(), session, result)

	writeJSON(w, http.StatusOK, s.viewOf(session))
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	s.clearResume(r.Context(), session)
	if err := session.Machine.Abandon(); err != nil {
		writeError(w, err)
		return
	}
	s.sessions.Remove(session.ID)
	writeJSON(w, http.StatusOK, map[string]string{"state": string(wizard.StateAbandoned)})
}

// startOrigination hands the submitted application to the workflow engine.
// Best-effort from the wizard's perspective: the gateway already accepted
// the application, so a broker hiccup is logged, not surfaced.
func (s *Server) startOrigination(ctx context.Context, session *Session, result wizard.SubmitResult) {
	if s.starter == nil || !s.cfg.StartProcessOnSubmit {
		return
	}

	draft := session.Machine.Draft()
	vars := map[string]interface{}{
		"applicationId": result.ApplicationID,
		"sessionId":     session.ID,
		"submittedAt":   time.Now().UTC().Format(time.RFC3339),
		"applicant": map[string]interface{}{
			"firstName": draft.Personal.FirstName,
			"lastName":  draft.Personal.LastName,
			"email":     draft.Personal.Email,
			"phone":     draft.Personal.Phone,
		},
		"employment": map[string]interface{}{
			"type":          string(draft.Employment.Type),
			"companyName":   draft.Employment.CompanyName,
			"designation":   draft.Employment.Designation,
			"monthlyIncome": draft.Employment.MonthlyIncome,
		},
		"loan": map[string]interface{}{
			"typeId":        draft.Loan.TypeID,
			"amount":        draft.Loan.Amount,
			"tenureMonths":  draft.Loan.TenureMonths,
			"purpose":       draft.Loan.Purpose,
			"interestRate":  draft.Loan.InterestRate,
			"emi":           draft.Loan.EMI,
			"processingFee": draft.Loan.ProcessingFee,
		},
		// Flat copies for workers that read top-level variables.
		"monthlyIncome":   draft.Employment.MonthlyIncome,
		"requestedAmount": draft.Loan.Amount,
		"interestRate":    draft.Loan.InterestRate,
		"tenureMonths":    draft.Loan.TenureMonths,
		"firstName":       draft.Personal.FirstName,
		"lastName":        draft.Personal.LastName,
		"email":           draft.Personal.Email,
		"phone":           draft.Personal.Phone,
		"loanTypeId":      draft.Loan.TypeID,
		"emi":             draft.Loan.EMI,
	}

	key, err := s.starter.StartProcess(ctx, s.cfg.ProcessID, vars)
	if err != nil {
		s.log.WithError(err).Error("failed to start origination process", map[string]interface{}{
			"applicationId": result.ApplicationID,
			"processId":     s.cfg.ProcessID,
		})
		return
	}

	s.log.Info("origination process started", map[string]interface{}{
		"applicationId":      result.ApplicationID,
		"processInstanceKey": key,
	})
}

func (s *Server) saveResume(ctx context.Context, session *Session) {
	if s.resume == nil {
		return
	}
	draft := session.Machine.Draft()
	s.resume.Save(ctx, resumeKey(draft.Verification.Channel, draft.Verification.Destination), resume.FromDraft(draft))
}

func (s *Server) clearResume(ctx context.Context, session *Session) {
	if s.resume == nil {
		return
	}
	draft := session.Machine.Draft()
	s.resume.Clear(ctx, resumeKey(draft.Verification.Channel, draft.Verification.Destination))
}

// --- Stateless endpoints ---

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	principal, err := strconv.ParseFloat(r.URL.Query().Get("principal"), 64)
	if err != nil {
		writeError(w, apperrors.NewInputError("principal", "principal must be a number"))
		return
	}
	rate, err := strconv.ParseFloat(r.URL.Query().Get("rate"), 64)
	if err != nil {
		writeError(w, apperrors.NewInputError("rate", "rate must be a number"))
		return
	}
	tenure, err := strconv.Atoi(r.URL.Query().Get("tenure"))
	if err != nil {
		writeError(w, apperrors.NewInputError("tenure", "tenure must be an integer"))
		return
	}

	schedule, err := finance.Calculate(principal, rate, tenure)
	if err != nil {
		writeError(w, err)
		return
	}

	fee, err := finance.ProcessingFee(principal, s.cfg.DefaultFeeRate)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"emi":           schedule.EMI,
		"totalInterest": schedule.TotalInterest,
		"totalPayment":  schedule.TotalPayment,
		"processingFee": fee,
	})
}

func (s *Server) handleEligibility(w http.ResponseWriter, r *http.Request) {
	income, err := strconv.ParseFloat(r.URL.Query().Get("monthlyIncome"), 64)
	if err != nil {
		writeError(w, apperrors.NewInputError("monthlyIncome", "monthlyIncome must be a number"))
		return
	}
	requested, err := strconv.ParseFloat(r.URL.Query().Get("requestedAmount"), 64)
	if err != nil {
		writeError(w, apperrors.NewInputError("requestedAmount", "requestedAmount must be a number"))
		return
	}

	verdict, err := s.evaluator.Evaluate(eligibility.Input{
		MonthlyIncome:     income,
		RequestedAmount:   requested,
		MinimumIncome:     s.cfg.MinimumIncome,
		IncomeMultiple:    s.cfg.IncomeMultiple,
		RecommendedFactor: s.cfg.RecommendedFactor,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, verdict)
}

func (s *Server) handleLoanTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.catalog.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"loanTypes": types})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.sessions.Count(),
	})
}
