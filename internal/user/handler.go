package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	emailaddress "github.com/mcnijman/go-emailaddress"
	"go.uber.org/zap"

	"github.com/NicolasCavalcanti/trekko-website/internal/cadastur"
	"github.com/NicolasCavalcanti/trekko-website/internal/user/entity"
	"github.com/NicolasCavalcanti/trekko-website/pkg/utilities"
)

const minPasswordLen = 6

// Response messages.
const (
	MsgRegistered       = "user registered successfully"
	MsgLoggedIn         = "login successful"
	MsgInvalidRegister  = "registration data is invalid or missing"
	MsgInvalidLogin     = "login data is invalid or missing"
	MsgCredentialsReq   = "email and password are required"
	MsgInvalidEmail     = "invalid email format"
	MsgPasswordTooShort = "password must have at least 6 characters"
	MsgInternal         = "internal server error"
)

// Handler exposes HTTP endpoints for user operations (register / login / list).
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRequest request body for the register endpoint.
type RegisterRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	UserType       string `json:"user_type"`
	CadasturNumber string `json:"cadastur_number"`
}

func (req RegisterRequest) validate() string {
	required := []struct{ field, value string }{
		{"name", strings.TrimSpace(req.Name)},
		{"email", strings.TrimSpace(req.Email)},
		{"password", req.Password},
		{"user_type", req.UserType},
	}
	for _, f := range required {
		if f.value == "" {
			return "field " + f.field + " is required"
		}
	}
	if _, err := emailaddress.Parse(NormalizeEmail(req.Email)); err != nil {
		return MsgInvalidEmail
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLen {
		return MsgPasswordTooShort
	}
	if !entity.ValidUserType(req.UserType) {
		return ErrInvalidUserType.Error()
	}
	return ""
}

type userResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	User    *entity.View `json:"user,omitempty"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := utilities.DecodeJSONObject(r.Body, &req); err != nil {
		h.logger.Debugw("invalid register payload", "err", err)
		h.fail(w, http.StatusBadRequest, MsgInvalidRegister)
		return
	}
	if msg := req.validate(); msg != "" {
		h.logger.Debugw("register rejected", "reason", msg)
		h.fail(w, http.StatusBadRequest, msg)
		return
	}

	u, err := h.svc.Register(r.Context(), RegisterInput{
		Name:           req.Name,
		Email:          req.Email,
		Password:       req.Password,
		UserType:       req.UserType,
		CadasturNumber: req.CadasturNumber,
	})
	if err != nil {
		var verr *cadastur.ValidationError
		switch {
		case errors.As(err, &verr):
			h.logger.Infow("registry number rejected", "stage", verr.Stage, "reason", verr.Reason)
			h.fail(w, http.StatusBadRequest, verr.Reason)
		case errors.Is(err, ErrDuplicateEmail), errors.Is(err, ErrCertificateInUse), errors.Is(err, ErrInvalidUserType):
			h.logger.Infow("register conflict", "err", err)
			h.fail(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Errorw("register failed", "err", err)
			h.fail(w, http.StatusInternalServerError, MsgInternal)
		}
		return
	}
	view := u.View()
	h.logger.Infow("user registered", "id", u.ID, "user_type", u.UserType)
	writeJSON(w, http.StatusCreated, userResponse{Success: true, Message: MsgRegistered, User: &view})
}

// LoginRequest login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utilities.DecodeJSONObject(r.Body, &req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		h.fail(w, http.StatusBadRequest, MsgInvalidLogin)
		return
	}
	if NormalizeEmail(req.Email) == "" || req.Password == "" {
		h.fail(w, http.StatusBadRequest, MsgCredentialsReq)
		return
	}
	u, err := h.svc.AuthenticatePassword(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrBadCredentials), errors.Is(err, ErrDisabled):
			h.logger.Debugw("login failed", "err", err)
			h.fail(w, http.StatusUnauthorized, err.Error())
		default:
			h.logger.Errorw("login failed", "err", err)
			h.fail(w, http.StatusInternalServerError, MsgInternal)
		}
		return
	}
	view := u.View()
	writeJSON(w, http.StatusOK, userResponse{Success: true, Message: MsgLoggedIn, User: &view})
}

type listResponse struct {
	Success bool          `json:"success"`
	Users   []entity.View `json:"users"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.List(r.Context())
	if err != nil {
		h.logger.Errorw("list users failed", "err", err)
		h.fail(w, http.StatusInternalServerError, MsgInternal)
		return
	}
	views := make([]entity.View, 0, len(users))
	for _, u := range users {
		views = append(views, u.View())
	}
	writeJSON(w, http.StatusOK, listResponse{Success: true, Users: views})
}

func (h *Handler) fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, userResponse{Success: false, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
