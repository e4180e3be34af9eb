package narrative

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ecodoppler/tsa/internal/domain/exam"
	"github.com/ecodoppler/tsa/internal/platform/auth"
)

// Handler exposes conclusions generation over HTTP.
type Handler struct {
	sessions *exam.Registry
	svc      *Service
}

func NewHandler(sessions *exam.Registry, svc *Service) *Handler {
	return &Handler{sessions: sessions, svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/sessions/:id/conclusions/generate", h.StartGeneration,
		auth.RequireRole(auth.RolePhysician, auth.RoleSonographer))
}

// StartGeneration answers 202 once generation has started and 409 while a
// previous one is still pending.
func (h *Handler) StartGeneration(c echo.Context) error {
	sess, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err := h.svc.Start(c.Request().Context(), sess); err != nil {
		if errors.Is(err, ErrGenerationInProgress) {
			return echo.NewHTTPError(http.StatusConflict, "generation already in progress")
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"sessionId":  sess.ID,
		"generation": sess.Generation(),
	})
}
