package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"timeclock/internal/admin"
	"timeclock/internal/auth"
	"timeclock/internal/db/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LiveSnapshot is the poller's cached live view.
type LiveSnapshot interface {
	Latest() ([]*models.LivePosition, time.Time)
}

type Handler struct {
	auth   *auth.Authenticator
	admin  *admin.Service
	tokens *Tokens
	live   LiveSnapshot
	logger *slog.Logger
	now    func() time.Time
}

func NewHandler(authn *auth.Authenticator, svc *admin.Service, tokens *Tokens, live LiveSnapshot, logger *slog.Logger) *Handler {
	return &Handler{
		auth:   authn,
		admin:  svc,
		tokens: tokens,
		live:   live,
		logger: logger,
		now:    time.Now,
	}
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps service errors to HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, auth.ErrInvalidPINFormat),
		errors.Is(err, auth.ErrMissingName),
		errors.Is(err, admin.ErrInvalidQuery):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrInvalidCredentials):
		status, msg = http.StatusUnauthorized, err.Error()
	case errors.Is(err, auth.ErrNotVerified),
		errors.Is(err, auth.ErrRegistrationsClosed),
		errors.Is(err, admin.ErrForbidden):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, admin.ErrEmployeeNotFound):
		status, msg = http.StatusNotFound, err.Error()
	default:
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

type loginReq struct {
	PIN string `json:"pin" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}

	employee, err := h.auth.Authenticate(c.Request.Context(), req.PIN)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !employee.IsAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin only"})
		return
	}

	token, expires, err := h.tokens.Issue(employee)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expires,
		"employee":   employee,
	})
}

type registerReq struct {
	FirstName  string `json:"first_name" binding:"required"`
	LastName   string `json:"last_name" binding:"required"`
	PIN        string `json:"pin" binding:"required"`
	Email      string `json:"email"`
	AvatarURL  string `json:"avatar_url"`
	InviteCode string `json:"invite_code"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}

	registered, err := h.auth.Register(c.Request.Context(), models.Registration{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		PIN:        req.PIN,
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		AvatarURL:  req.AvatarURL,
		InviteCode: req.InviteCode,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, registered)
}

func pageFromQuery(c *gin.Context) (admin.Page, error) {
	var p admin.Page
	var err error
	if v := c.Query("page"); v != "" {
		if p.Number, err = strconv.Atoi(v); err != nil {
			return p, fmt.Errorf("invalid page %q", v)
		}
	}
	if v := c.Query("page_size"); v != "" {
		if p.Size, err = strconv.Atoi(v); err != nil {
			return p, fmt.Errorf("invalid page_size %q", v)
		}
	}
	return p, nil
}

func employeeQuery(c *gin.Context) (admin.EmployeeQuery, error) {
	order, err := admin.ParseOrder(c.Query("order"))
	if err != nil {
		return admin.EmployeeQuery{}, err
	}
	page, err := pageFromQuery(c)
	if err != nil {
		return admin.EmployeeQuery{}, err
	}
	return admin.EmployeeQuery{
		Search: c.Query("search"),
		SortBy: c.Query("sort"),
		Order:  order,
		Page:   page,
	}, nil
}

// parseDay accepts a date or an RFC 3339 timestamp.
func parseDay(v string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

// historyQuery reads the filters. A plain "to" date is inclusive.
func historyQuery(c *gin.Context) (admin.HistoryQuery, error) {
	var q admin.HistoryQuery
	var err error

	if v := c.Query("employee_id"); v != "" {
		if q.EmployeeID, err = uuid.Parse(v); err != nil {
			return q, fmt.Errorf("invalid employee_id %q", v)
		}
	}
	if v := c.Query("from"); v != "" {
		if q.From, err = parseDay(v); err != nil {
			return q, fmt.Errorf("invalid from %q", v)
		}
	}
	if v := c.Query("to"); v != "" {
		if q.To, err = parseDay(v); err != nil {
			return q, fmt.Errorf("invalid to %q", v)
		}
		if len(v) == len("2006-01-02") {
			q.To = q.To.AddDate(0, 0, 1)
		}
	}
	if q.Order, err = admin.ParseOrder(c.Query("order")); err != nil {
		return q, err
	}
	if q.Page, err = pageFromQuery(c); err != nil {
		return q, err
	}
	q.SortBy = c.Query("sort")
	return q, nil
}

func (h *Handler) Employees(c *gin.Context) {
	h.listAccounts(c, h.admin.Employees)
}

func (h *Handler) Admins(c *gin.Context) {
	h.listAccounts(c, h.admin.Admins)
}

func (h *Handler) listAccounts(c *gin.Context, list func(context.Context, *models.Employee, admin.EmployeeQuery) (admin.PageResult[*models.Employee], error)) {
	q, err := employeeQuery(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	result, err := list(c.Request.Context(), actorFrom(c), q)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) History(c *gin.Context) {
	q, err := historyQuery(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	result, err := h.admin.History(c.Request.Context(), actorFrom(c), q)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) ExportHistory(c *gin.Context) {
	format := c.DefaultQuery("format", admin.FormatCSV)
	contentType, err := admin.ContentType(format)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	q, err := historyQuery(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	entries, err := h.admin.HistoryForExport(c.Request.Context(), actorFrom(c), q)
	if err != nil {
		h.writeError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := admin.WriteHistory(&buf, format, entries, h.now()); err != nil {
		h.writeError(c, err)
		return
	}

	filename := fmt.Sprintf("history_%s.%s", h.now().Format("20060102"), format)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (h *Handler) Live(c *gin.Context) {
	if h.live != nil {
		if positions, at := h.live.Latest(); !at.IsZero() {
			positions, err := h.admin.VisiblePositions(c.Request.Context(), actorFrom(c), positions)
			if err != nil {
				h.writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"positions": positions, "updated_at": at})
			return
		}
	}

	positions, err := h.admin.Live(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "updated_at": h.now()})
}

func (h *Handler) Registrations(c *gin.Context) {
	enabled, err := h.admin.RegistrationsEnabled(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}

type registrationsReq struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *Handler) SetRegistrations(c *gin.Context) {
	var req registrationsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	actor := actorFrom(c)
	if err := h.admin.SetRegistrationsEnabled(c.Request.Context(), actor.Email, *req.Enabled); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled})
}

func idParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

type verifyReq struct {
	Verified *bool `json:"verified"`
}

func (h *Handler) VerifyAdmin(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req verifyReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid body")
			return
		}
	}
	verified := true
	if req.Verified != nil {
		verified = *req.Verified
	}

	if err := h.admin.VerifyAdmin(c.Request.Context(), actorFrom(c), id, verified); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "verified": verified})
}

type pinReq struct {
	PIN string `json:"pin" binding:"required"`
}

func (h *Handler) ResetPIN(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req pinReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	if err := h.admin.ResetPIN(c.Request.Context(), actorFrom(c), id, req.PIN); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) DeleteEmployee(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.admin.DeleteEmployee(c.Request.Context(), actorFrom(c), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
