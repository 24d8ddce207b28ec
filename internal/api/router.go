// Package api serves the administrator HTTP API.
package api

import (
	"log/slog"

	"timeclock/internal/admin"

	"github.com/gin-gonic/gin"
)

func NewRouter(h *Handler, tokens *Tokens, svc *admin.Service, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))

	r.GET("/healthz", Health)

	api := r.Group("/api/v1")
	{
		api.POST("/auth/login", h.Login)
		api.POST("/auth/register", h.Register)
	}

	adm := r.Group("/api/v1/admin")
	adm.Use(AuthRequired(tokens), RequireAdmin(), LoadActor(svc))
	{
		adm.GET("/employees", h.Employees)
		adm.DELETE("/employees/:id", h.DeleteEmployee)
		adm.PUT("/employees/:id/pin", h.ResetPIN)

		adm.GET("/admins", h.Admins)
		adm.POST("/admins/:id/verify", h.VerifyAdmin)

		adm.GET("/history", h.History)
		adm.GET("/history/export", h.ExportHistory)

		adm.GET("/live", h.Live)

		adm.GET("/settings/registrations", h.Registrations)
		adm.PUT("/settings/registrations", h.SetRegistrations)
	}

	return r
}
