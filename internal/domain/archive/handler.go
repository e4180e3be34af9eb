package archive

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ecodoppler/tsa/internal/domain/exam"
	"github.com/ecodoppler/tsa/internal/platform/auth"
	"github.com/ecodoppler/tsa/pkg/pagination"
)

type Handler struct {
	svc      *Service
	sessions *exam.Registry
}

func NewHandler(svc *Service, sessions *exam.Registry) *Handler {
	return &Handler{svc: svc, sessions: sessions}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/sessions/:id/archive", h.ArchiveSession, auth.RequireRole(auth.RolePhysician))

	read := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleSonographer))
	read.GET("/archive", h.ListEntries)
	read.GET("/archive/:id", h.GetEntry)
}

func (h *Handler) ArchiveSession(c echo.Context) error {
	sess, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	ctx := c.Request().Context()
	e, err := h.svc.Snapshot(ctx, sess, auth.UserIDFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) GetEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := h.svc.Get(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "archive entry not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) ListEntries(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), ListQuery{
		Patient: c.QueryParam("patient"),
		Limit:   pg.Limit,
		Offset:  pg.Offset,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg, c.Request().URL))
}
