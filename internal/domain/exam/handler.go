package exam

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ecodoppler/tsa/internal/platform/auth"
)

// Roles allowed to edit exam records.
var editorRoles = []string{auth.RolePhysician, auth.RoleSonographer}

type Handler struct {
	sessions *Registry
	logger   zerolog.Logger
}

func NewHandler(sessions *Registry, logger zerolog.Logger) *Handler {
	return &Handler{sessions: sessions, logger: logger}
}

// RegisterRoutes mounts the JSON field API on api and the editor pages on pages.
func (h *Handler) RegisterRoutes(api *echo.Group, pages *echo.Group) {
	g := api.Group("", auth.RequireRole(editorRoles...))
	g.POST("/sessions", h.CreateSession)
	g.GET("/sessions/:id", h.GetSession)
	g.DELETE("/sessions/:id", h.DeleteSession)
	g.PATCH("/sessions/:id/fields", h.ReplaceField)
	g.PATCH("/sessions/:id/vessels/:side/:vessel", h.UpdateVesselField)
	g.POST("/sessions/:id/reset", h.Reset)

	p := pages.Group("", auth.RequireRole(editorRoles...))
	p.GET("/", h.NewSessionPage)
	p.GET("/sessions/:id", h.EditorPage)
	p.GET("/sessions/:id/reset", h.ConfirmResetPage)
	p.POST("/sessions/:id/reset", h.ResetPage)
}

// SessionView is the JSON representation of a session.
type SessionView struct {
	ID         string           `json:"id"`
	Version    uint64           `json:"version"`
	Record     *ExamRecord      `json:"record"`
	Generation GenerationStatus `json:"generation"`
}

func viewOf(sess *Session) SessionView {
	return SessionView{
		ID:         sess.ID,
		Version:    sess.Store.Version(),
		Record:     sess.Store.Current(),
		Generation: sess.Generation(),
	}
}

// FieldValue accepts a JSON string, number or null and keeps its text form so
// that the editor parsing rules apply uniformly.
type FieldValue string

func (v *FieldValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*v = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = FieldValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: expected string or number", ErrInvalidValue)
	}
	*v = FieldValue(n.String())
	return nil
}

// FieldUpdate is the body of the field update endpoints.
type FieldUpdate struct {
	Field string     `json:"field"`
	Value FieldValue `json:"value"`
}

// ResetRequest must carry Confirm=true for the reset to happen.
type ResetRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *Handler) CreateSession(c echo.Context) error {
	var seed *ExamRecord
	if c.Request().ContentLength > 0 {
		seed = new(ExamRecord)
		if err := json.NewDecoder(c.Request().Body).Decode(seed); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	sess := h.sessions.CreateWith(seed)
	return c.JSON(http.StatusCreated, viewOf(sess))
}

func (h *Handler) GetSession(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, viewOf(sess))
}

func (h *Handler) DeleteSession(c echo.Context) error {
	h.sessions.Delete(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ReplaceField(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	var req FieldUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	edit, err := ParseRecordEdit(req.Field, string(req.Value))
	if err != nil {
		return httpError(err)
	}
	sess.Store.ReplaceField(edit)
	return c.JSON(http.StatusOK, viewOf(sess))
}

func (h *Handler) UpdateVesselField(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	side, err := ParseSide(c.Param("side"))
	if err != nil {
		return httpError(err)
	}
	key, err := ParseVesselKey(c.Param("vessel"))
	if err != nil {
		return httpError(err)
	}
	var req FieldUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	edit, err := ParseVesselEdit(key, req.Field, string(req.Value))
	if err != nil {
		return httpError(err)
	}
	sess.Store.UpdateVesselField(side, key, edit)
	return c.JSON(http.StatusOK, viewOf(sess))
}

func (h *Handler) Reset(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	var req ResetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !req.Confirm {
		return httpError(ErrConfirmationRequired)
	}
	sess.Store.ResetToDefault()
	h.logger.Info().Str("session_id", sess.ID).Msg("exam record reset")
	return c.JSON(http.StatusOK, viewOf(sess))
}

// -- Pages --

func (h *Handler) NewSessionPage(c echo.Context) error {
	sess := h.sessions.Create()
	return c.Redirect(http.StatusSeeOther, "/sessions/"+sess.ID)
}

func (h *Handler) EditorPage(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	return renderPage(c, editorTmpl, newEditorPage(sess))
}

func (h *Handler) ConfirmResetPage(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	return renderPage(c, confirmResetTmpl, struct{ ID string }{sess.ID})
}

func (h *Handler) ResetPage(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	if c.FormValue("confirm") == "yes" {
		sess.Store.ResetToDefault()
		h.logger.Info().Str("session_id", sess.ID).Msg("exam record reset")
	}
	return c.Redirect(http.StatusSeeOther, "/sessions/"+sess.ID)
}

func (h *Handler) session(c echo.Context) (*Session, error) {
	sess, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return sess, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConfirmationRequired):
		return echo.NewHTTPError(http.StatusPreconditionRequired, err.Error())
	case errors.Is(err, ErrInvalidValue), errors.Is(err, ErrUnknownField):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
