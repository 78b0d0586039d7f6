package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"attendease/internal/attendance"
	"attendease/internal/auth"
	"attendease/internal/nfc"
)

type scanRequest struct {
	CourseID string `json:"course_id" binding:"required"`
	Payload  string `json:"payload" binding:"required"` // base64 record payload
}

func (h *Handler) createScan(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload must be base64"})
		return
	}

	sel := attendance.Selection{CourseID: req.CourseID, UserIdentity: claims.Subject}
	res := h.controller.Scan(c.Request.Context(), sel, nfc.NewPayloadReader(raw))
	if res.Err != nil {
		c.JSON(scanStatus(res.Err), gin.H{
			"session_id": res.SessionID,
			"reason":     attendance.ReasonOf(res.Err),
			"error":      res.Message,
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session_id": res.SessionID,
		"message":    res.Message,
		"record":     res.Record,
	})
}

// scanStatus maps a scan failure to an HTTP status.
func scanStatus(err error) int {
	switch attendance.ReasonOf(err) {
	case attendance.ReasonNoRecordsFound, attendance.ReasonUndecodablePayload,
		attendance.ReasonInvalidCardFormat, attendance.ReasonCourseMismatch:
		return http.StatusUnprocessableEntity
	case attendance.ReasonUnknownProfessorCard:
		return http.StatusForbidden
	case attendance.ReasonStudentNotFound:
		return http.StatusNotFound
	case attendance.ReasonLookupFailed:
		if errors.Is(err, attendance.ErrLookupTimeout) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case attendance.ReasonSessionCancelled:
		return http.StatusConflict
	case attendance.ReasonReaderUnavailable:
		return http.StatusServiceUnavailable
	case attendance.ReasonReaderFailed:
		if errors.Is(err, attendance.ErrScanTimeout) {
			return http.StatusGatewayTimeout
		}
	}
	if errors.Is(err, attendance.ErrInvalidSelection) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) cancelScan(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	if !h.controller.Cancel(claims.Subject) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active scan"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listAttendance(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	f := attendance.Filter{
		CourseID:      c.Query("course_id"),
		StudentEmail:  c.Query("student_email"),
		ProfessorName: c.Query("professor_name"),
		Limit:         queryInt(c, "limit", 50),
		Offset:        queryInt(c, "offset", 0),
		Ascending:     c.Query("order") == "asc",
	}
	if claims.Role == auth.RoleStudent {
		f.StudentEmail = claims.Subject
	}
	records, err := h.service.History(c.Request.Context(), f)
	if err != nil {
		h.log.Error().Err(err).Msg("list attendance failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list attendance failed"})
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *Handler) deleteAttendance(c *gin.Context) {
	err := h.service.Delete(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, attendance.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("record_id", c.Param("id")).Msg("delete attendance failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete attendance failed"})
	}
}

func (h *Handler) listCourses(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	email := claims.Subject
	if claims.Role == auth.RoleAdmin {
		email = c.Query("professor_email")
		if email == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "professor_email required"})
			return
		}
	}
	courses, err := h.service.Courses(c.Request.Context(), email)
	if err != nil {
		h.log.Error().Err(err).Msg("list courses failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list courses failed"})
		return
	}
	if courses == nil {
		courses = []attendance.Professor{}
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

func (h *Handler) courseReport(c *gin.Context) {
	courseID := c.Param("course_id")
	if !h.teaches(c, courseID) {
		return
	}
	days, err := h.service.Report(c.Request.Context(), courseID, c.Query("professor_name"))
	if err != nil {
		h.log.Error().Err(err).Str("course_id", courseID).Msg("course report failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "course report failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"course_id": courseID, "days": days})
}

func (h *Handler) courseRoster(c *gin.Context) {
	courseID := c.Param("course_id")
	if !h.teaches(c, courseID) {
		return
	}
	roster, err := h.service.Roster(c.Request.Context(), courseID)
	if err != nil {
		h.log.Error().Err(err).Str("course_id", courseID).Msg("course roster failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "course roster failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"course_id": courseID, "students": roster})
}

// teaches lets admins through and professors only for their own courses.
// It writes the error response itself.
func (h *Handler) teaches(c *gin.Context, courseID string) bool {
	claims, ok := requireClaims(c)
	if !ok {
		return false
	}
	if claims.Role == auth.RoleAdmin {
		return true
	}
	courses, err := h.service.Courses(c.Request.Context(), claims.Subject)
	if err != nil {
		h.log.Error().Err(err).Msg("course ownership check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "course lookup failed"})
		return false
	}
	for _, p := range courses {
		if p.CourseID == courseID {
			return true
		}
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "not a course of this professor"})
	return false
}

// requireClaims returns the caller's token claims, answering 401 when the
// route was mounted without UserAuth.
func requireClaims(c *gin.Context) (auth.Claims, bool) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
	}
	return claims, ok
}

func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}
