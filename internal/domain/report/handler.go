package report

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ecodoppler/tsa/internal/domain/exam"
	"github.com/ecodoppler/tsa/internal/platform/auth"
)

// Content types of the downloadable formats.
const (
	MIMEXLSX  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMEDICOM = "application/dicom"
)

type Handler struct {
	sessions *exam.Registry
}

func NewHandler(sessions *exam.Registry) *Handler {
	return &Handler{sessions: sessions}
}

func (h *Handler) RegisterRoutes(api *echo.Group, pages *echo.Group) {
	roles := auth.RequireRole(auth.RolePhysician, auth.RoleSonographer)
	api.GET("/sessions/:id/report", h.GetReport, roles)
	pages.GET("/sessions/:id/report", h.ReportPage, roles)
}

// GetReport serves the current record's report as json (default), text,
// html, xlsx or dicom.
func (h *Handler) GetReport(c echo.Context) error {
	sess, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	rec := sess.Store.Current()

	var buf bytes.Buffer
	switch format := c.QueryParam("format"); format {
	case "", "json":
		return c.JSON(http.StatusOK, Render(rec))
	case "text":
		if err := WriteText(&buf, Render(rec)); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.Blob(http.StatusOK, echo.MIMETextPlainCharsetUTF8, buf.Bytes())
	case "html":
		if err := WriteHTML(&buf, Render(rec), HTMLOptions{}); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.HTMLBlob(http.StatusOK, buf.Bytes())
	case "xlsx":
		if err := WriteXLSX(&buf, Render(rec)); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="tsa-report.xlsx"`)
		return c.Blob(http.StatusOK, MIMEXLSX, buf.Bytes())
	case "dicom":
		opts := DICOMOptions{PatientID: c.QueryParam("patientId"), StudyInstanceUID: c.QueryParam("studyUid")}
		if err := WriteDICOM(&buf, rec, opts); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="tsa-report.dcm"`)
		return c.Blob(http.StatusOK, MIMEDICOM, buf.Bytes())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported format: "+format)
	}
}

// ReportPage serves the printable report with a link back to the editor.
func (h *Handler) ReportPage(c echo.Context) error {
	sess, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	var buf bytes.Buffer
	if err := WriteHTML(&buf, Render(sess.Store.Current()), HTMLOptions{BackURL: "/sessions/" + sess.ID}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}
