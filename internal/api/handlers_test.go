package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendease/internal/attendance"
	"attendease/internal/auth"
	"attendease/internal/card"
	"attendease/internal/config"
	"attendease/internal/store"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "attendease-test"
)

type testServer struct {
	router  http.Handler
	handler *Handler
	repo    *attendance.Repository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := store.NewDB(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))

	repo := attendance.NewRepository(db)
	require.NoError(t, repo.UpsertProfessor(ctx, attendance.Professor{CourseID: "380", ProfessorID: "17", ProfessorName: "Dr. Hopper", ProfessorEmail: "hopper@uni.edu"}))
	require.NoError(t, repo.UpsertStudent(ctx, attendance.Student{StudentEmail: "ada@uni.edu", StudentID: "S-1", StudentName: "Ada Lovelace"}))
	require.NoError(t, repo.Enroll(ctx, "380", "ada@uni.edu"))

	pipeline := attendance.NewPipeline(repo, repo, repo, attendance.Options{SyncWrite: true})
	controller := attendance.NewController(pipeline, 5*time.Second, nil)
	cfg := config.App{JWTSigningKey: testKey, JWTIssuer: testIssuer, RateLimitPerMin: 1000}
	h := NewHandler(cfg, controller, attendance.NewService(repo, time.UTC), map[string]HealthCheck{
		"db": db.Healthy,
	})
	return &testServer{router: h.Router(), handler: h, repo: repo}
}

func token(t *testing.T, email, role string) string {
	t.Helper()
	pair, err := auth.Issue(email, role, testIssuer, testKey, time.Hour, time.Hour)
	require.NoError(t, err)
	return pair.AccessToken
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func encodeCard(t *testing.T, courseID, professorID string) []byte {
	t.Helper()
	raw, err := card.Encode(courseID, professorID)
	require.NoError(t, err)
	return raw
}

func scanBody(courseID string, payload []byte) gin.H {
	return gin.H{"course_id": courseID, "payload": base64.StdEncoding.EncodeToString(payload)}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","db":true}`, w.Body.String())
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestCreateScan(t *testing.T) {
	s := newTestServer(t)
	student := token(t, "ada@uni.edu", auth.RoleStudent)

	w := s.do(t, http.MethodPost, "/v1/scans", student, scanBody("380", encodeCard(t, "380", "17")))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Message string            `json:"message"`
		Record  attendance.Record `json:"record"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Attendance recorded for Ada Lovelace", resp.Message)
	assert.Equal(t, "Dr. Hopper", resp.Record.ProfessorName)
	assert.Equal(t, "ada@uni.edu", resp.Record.StudentEmail)

	stored, err := s.repo.ListRecords(context.Background(), attendance.Filter{})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestCreateScanFailures(t *testing.T) {
	tests := []struct {
		name   string
		email  string
		body   any
		status int
		reason string
	}{
		{name: "course mismatch", email: "ada@uni.edu", body: scanBody("380", encodeCard(t, "235", "17")), status: http.StatusUnprocessableEntity, reason: "course_mismatch"},
		{name: "invalid format", email: "ada@uni.edu", body: scanBody("380", []byte("\x02en380")), status: http.StatusUnprocessableEntity, reason: "invalid_card_format"},
		{name: "unknown professor", email: "ada@uni.edu", body: scanBody("380", encodeCard(t, "380", "99")), status: http.StatusForbidden, reason: "unknown_professor_card"},
		{name: "unknown student", email: "eve@uni.edu", body: scanBody("380", encodeCard(t, "380", "17")), status: http.StatusNotFound, reason: "student_not_found"},
		{name: "bad base64", email: "ada@uni.edu", body: gin.H{"course_id": "380", "payload": "%%%"}, status: http.StatusBadRequest},
		{name: "missing course", email: "ada@uni.edu", body: gin.H{"payload": "AA=="}, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			w := s.do(t, http.MethodPost, "/v1/scans", token(t, tt.email, auth.RoleStudent), tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.reason != "" {
				var resp map[string]any
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tt.reason, resp["reason"])
				assert.NotEmpty(t, resp["error"])
			}
		})
	}
}

func TestScanRequiresStudentRole(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/scans", "", scanBody("380", encodeCard(t, "380", "17")))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/v1/scans", token(t, "hopper@uni.edu", auth.RoleProfessor), scanBody("380", encodeCard(t, "380", "17")))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCancelScanWithoutSession(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodDelete, "/v1/scans", token(t, "ada@uni.edu", auth.RoleStudent), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAttendanceScopedToStudent(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	for _, rec := range []attendance.Record{
		{ID: "a", CourseID: "380", StudentEmail: "ada@uni.edu", ProfessorID: "17", ProfessorName: "Dr. Hopper", Timestamp: "x", RecordedAt: time.Now()},
		{ID: "b", CourseID: "380", StudentEmail: "bob@uni.edu", ProfessorID: "17", ProfessorName: "Dr. Hopper", Timestamp: "x", RecordedAt: time.Now()},
	} {
		require.NoError(t, s.repo.Write(ctx, rec))
	}

	var resp struct {
		Records []attendance.Record `json:"records"`
	}
	w := s.do(t, http.MethodGet, "/v1/attendance?student_email=bob@uni.edu", token(t, "ada@uni.edu", auth.RoleStudent), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "a", resp.Records[0].ID)

	w = s.do(t, http.MethodGet, "/v1/attendance?course_id=380", token(t, "root@uni.edu", auth.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Records, 2)
}

func TestDeleteAttendance(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.repo.Write(context.Background(), attendance.Record{
		ID: "a", CourseID: "380", StudentEmail: "ada@uni.edu", ProfessorID: "17", ProfessorName: "Dr. Hopper", Timestamp: "x", RecordedAt: time.Now(),
	}))
	admin := token(t, "root@uni.edu", auth.RoleAdmin)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodDelete, "/v1/attendance/a", token(t, "ada@uni.edu", auth.RoleStudent), nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/v1/attendance/a", admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/v1/attendance/a", admin, nil).Code)
}

func TestCourseEndpoints(t *testing.T) {
	s := newTestServer(t)
	student := token(t, "ada@uni.edu", auth.RoleStudent)
	w := s.do(t, http.MethodPost, "/v1/scans", student, scanBody("380", encodeCard(t, "380", "17")))
	require.Equal(t, http.StatusCreated, w.Code)

	professor := token(t, "hopper@uni.edu", auth.RoleProfessor)

	w = s.do(t, http.MethodGet, "/v1/courses", professor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var courses struct {
		Courses []attendance.Professor `json:"courses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &courses))
	require.Len(t, courses.Courses, 1)
	assert.Equal(t, "380", courses.Courses[0].CourseID)

	w = s.do(t, http.MethodGet, "/v1/courses/380/report", professor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report struct {
		Days []attendance.Day `json:"days"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Len(t, report.Days, 1)
	assert.Len(t, report.Days[0].Records, 1)

	w = s.do(t, http.MethodGet, "/v1/courses/380/roster", professor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var roster struct {
		Students []attendance.RosterEntry `json:"students"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &roster))
	require.Len(t, roster.Students, 1)
	assert.Equal(t, 1, roster.Students[0].DaysPresent)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/v1/courses/235/report", professor, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/v1/courses/380/report", student, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/courses/235/roster", token(t, "root@uni.edu", auth.RoleAdmin), nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/courses", token(t, "root@uni.edu", auth.RoleAdmin), nil).Code)
}

func TestHandlersWithoutClaims(t *testing.T) {
	s := newTestServer(t)
	r := gin.New()
	r.POST("/scans", s.handler.createScan)
	r.DELETE("/scans/active", s.handler.cancelScan)
	r.GET("/attendance", s.handler.listAttendance)
	r.GET("/courses", s.handler.listCourses)

	tests := []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/scans", scanBody("380", encodeCard(t, "380", "17"))},
		{http.MethodDelete, "/scans/active", nil},
		{http.MethodGet, "/attendance", nil},
		{http.MethodGet, "/courses", nil},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			var buf bytes.Buffer
			if tt.body != nil {
				require.NoError(t, json.NewEncoder(&buf).Encode(tt.body))
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, &buf))
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	records, err := s.repo.ListRecords(context.Background(), attendance.Filter{CourseID: "380"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestScanStatus(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, scanStatus(&attendance.ScanError{Reason: attendance.ReasonLookupFailed, Err: attendance.ErrLookupTimeout}))
	assert.Equal(t, http.StatusBadGateway, scanStatus(&attendance.ScanError{Reason: attendance.ReasonLookupFailed}))
	assert.Equal(t, http.StatusConflict, scanStatus(attendance.ErrSessionCancelled))
	assert.Equal(t, http.StatusInternalServerError, scanStatus(attendance.ErrWriteFailed))
	assert.Equal(t, http.StatusBadRequest, scanStatus(attendance.ErrInvalidSelection))
	assert.Equal(t, http.StatusGatewayTimeout, scanStatus(&attendance.ScanError{Reason: attendance.ReasonReaderFailed, Err: attendance.ErrScanTimeout}))
}
