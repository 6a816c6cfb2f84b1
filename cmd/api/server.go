package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/engineering-enforcatech/idonatio-backend/account"
	"github.com/engineering-enforcatech/idonatio-backend/auth"
	"github.com/engineering-enforcatech/idonatio-backend/signup"
	"github.com/engineering-enforcatech/idonatio-backend/token"
)

type ctxKey int

const ctxKeyAccount ctxKey = iota

// Server bundles the HTTP handlers with the services they delegate to.
type Server struct {
	signupService *signup.Service
	loginService  *auth.Service
	guard         *auth.Guard
	logger        *slog.Logger
}

// NewServer wires the handler set.
func NewServer(signupService *signup.Service, loginService *auth.Service, guard *auth.Guard, logger *slog.Logger) *Server {
	return &Server{
		signupService: signupService,
		loginService:  loginService,
		guard:         guard,
		logger:        logger,
	}
}

// Routes builds the HTTP mux for the onboarding API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/select-type", s.handleSelectType)
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/verify", s.handleVerify)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.Handle("GET /auth/me", s.requireAuth(http.HandlerFunc(s.handleMe)))
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

type selectTypeRequest struct {
	AccountKind string `json:"accountKind"`
}

type stepTokenResponse struct {
	StepToken string `json:"stepToken"`
}

type verifyRequest struct {
	StepToken string `json:"stepToken"`
	Code      string `json:"code"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type credentialResponse struct {
	CredentialToken string          `json:"credentialToken"`
	Account         accountResponse `json:"account"`
}

// accountResponse is the public projection of an account. The password hash
// is excluded on purpose and must never be added here.
type accountResponse struct {
	ID               string  `json:"id"`
	Email            string  `json:"email"`
	FirstName        string  `json:"firstName"`
	LastName         string  `json:"lastName"`
	Country          string  `json:"country"`
	PostalCode       string  `json:"postalCode"`
	NationalID       string  `json:"nationalId"`
	AccountKind      string  `json:"accountKind"`
	OrganizationName *string `json:"organizationName,omitempty"`
	Role             string  `json:"role"`
	Verified         bool    `json:"verified"`
	CreatedAt        string  `json:"createdAt"`
}

func toAccountResponse(a account.Account) accountResponse {
	return accountResponse{
		ID:               a.ID.String(),
		Email:            a.Email,
		FirstName:        a.FirstName,
		LastName:         a.LastName,
		Country:          a.Country,
		PostalCode:       a.PostalCode,
		NationalID:       a.NationalID,
		AccountKind:      string(a.Kind),
		OrganizationName: a.OrganizationName,
		Role:             string(a.Role),
		Verified:         a.Verified,
		CreatedAt:        a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleSelectType(w http.ResponseWriter, r *http.Request) {
	var req selectTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stepToken, err := s.signupService.SelectType(r.Context(), account.Kind(req.AccountKind))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stepTokenResponse{StepToken: stepToken})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	stepToken := bearerToken(r)
	if stepToken == "" {
		writeError(w, http.StatusUnauthorized, "missing step token")
		return
	}

	var req signup.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	verifyToken, err := s.signupService.Register(r.Context(), stepToken, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stepTokenResponse{StepToken: verifyToken})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.signupService.Verify(r.Context(), req.StepToken, req.Code)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, credentialResponse{
		CredentialToken: result.Token,
		Account:         toAccountResponse(result.Account),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.loginService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, credentialResponse{
		CredentialToken: result.Token,
		Account:         toAccountResponse(result.Account),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	acct, ok := r.Context().Value(ctxKeyAccount).(account.Account)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Account accountResponse `json:"account"`
	}{Account: toAccountResponse(acct)})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireAuth resolves the bearer credential through the guard and attaches
// the account to the request context for downstream handlers.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct, err := s.guard.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyAccount, acct)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// writeServiceError maps domain sentinel errors onto stable HTTP statuses.
// Unknown errors become opaque 500s; detail goes to the log only.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, signup.ErrInvalidKind),
		errors.Is(err, signup.ErrPasswordMismatch),
		errors.Is(err, signup.ErrWeakPassword),
		errors.Is(err, signup.ErrInvalidEmail),
		errors.Is(err, signup.ErrInvalidNationalID),
		errors.Is(err, signup.ErrInvalidPostalCode),
		errors.Is(err, signup.ErrOrganizationRequired),
		errors.Is(err, signup.ErrInvalidCode),
		errors.Is(err, auth.ErrMissingFields):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, account.ErrDuplicateEmail),
		errors.Is(err, account.ErrDuplicateNationalID),
		errors.Is(err, account.ErrDuplicatePostalCode):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, token.ErrInvalidToken),
		errors.Is(err, token.ErrWrongPurpose),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrUnverified),
		errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, auth.ErrStaleCredential):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, account.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("internal error", "method", r.Method, "path", r.URL.Path, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "something went wrong")
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
