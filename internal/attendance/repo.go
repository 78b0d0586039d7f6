package attendance

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"attendease/internal/store"
)

// Repository persists attendance data in Postgres or SQLite.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) q(query string) string { return r.db.Rebind(query) }

// FindProfessors returns the registrations matching a card.
func (r *Repository) FindProfessors(ctx context.Context, courseID, professorID string) ([]Professor, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.q(`
		SELECT course_id, professor_id, professor_name, professor_email
		FROM professors
		WHERE course_id = $1 AND professor_id = $2
	`), courseID, professorID)
	if err != nil {
		return nil, errors.Wrap(err, "query professors")
	}
	return scanProfessors(rows)
}

// ProfessorCourses returns every course registration of a professor.
func (r *Repository) ProfessorCourses(ctx context.Context, email string) ([]Professor, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.q(`
		SELECT course_id, professor_id, professor_name, professor_email
		FROM professors
		WHERE professor_email = $1
		ORDER BY course_id
	`), email)
	if err != nil {
		return nil, errors.Wrap(err, "query professor courses")
	}
	return scanProfessors(rows)
}

func scanProfessors(rows *sql.Rows) ([]Professor, error) {
	defer rows.Close()
	var res []Professor
	for rows.Next() {
		var p Professor
		var name sql.NullString
		if err := rows.Scan(&p.CourseID, &p.ProfessorID, &name, &p.ProfessorEmail); err != nil {
			return nil, errors.Wrap(err, "scan professor")
		}
		p.ProfessorName = name.String
		res = append(res, p)
	}
	return res, rows.Err()
}

// FindStudents returns the students registered with email.
func (r *Repository) FindStudents(ctx context.Context, email string) ([]Student, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.q(`
		SELECT student_email, student_id, student_name
		FROM students
		WHERE student_email = $1
	`), email)
	if err != nil {
		return nil, errors.Wrap(err, "query students")
	}
	return scanStudents(rows)
}

// EnrolledStudents returns the students enrolled in a course, by name.
func (r *Repository) EnrolledStudents(ctx context.Context, courseID string) ([]Student, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.q(`
		SELECT s.student_email, s.student_id, s.student_name
		FROM enrollments e
		JOIN students s ON s.student_email = e.student_email
		WHERE e.course_id = $1
		ORDER BY s.student_name, s.student_email
	`), courseID)
	if err != nil {
		return nil, errors.Wrap(err, "query enrollments")
	}
	return scanStudents(rows)
}

func scanStudents(rows *sql.Rows) ([]Student, error) {
	defer rows.Close()
	var res []Student
	for rows.Next() {
		var s Student
		var id, name sql.NullString
		if err := rows.Scan(&s.StudentEmail, &id, &name); err != nil {
			return nil, errors.Wrap(err, "scan student")
		}
		s.StudentID, s.StudentName = id.String, name.String
		res = append(res, s)
	}
	return res, rows.Err()
}

// UpsertProfessor creates or updates a card registration.
func (r *Repository) UpsertProfessor(ctx context.Context, p Professor) error {
	if p.CourseID == "" || p.ProfessorID == "" {
		return errors.New("course id and professor id required")
	}
	_, err := r.db.Client.ExecContext(ctx, r.q(`
		INSERT INTO professors (course_id, professor_id, professor_name, professor_email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (course_id, professor_id) DO UPDATE SET
			professor_name = EXCLUDED.professor_name,
			professor_email = EXCLUDED.professor_email
	`), p.CourseID, p.ProfessorID, nullable(p.ProfessorName), p.ProfessorEmail)
	return errors.Wrap(err, "upsert professor")
}

// UpsertStudent creates or updates a student.
func (r *Repository) UpsertStudent(ctx context.Context, s Student) error {
	if s.StudentEmail == "" {
		return errors.New("student email required")
	}
	_, err := r.db.Client.ExecContext(ctx, r.q(`
		INSERT INTO students (student_email, student_id, student_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_email) DO UPDATE SET
			student_id = EXCLUDED.student_id,
			student_name = EXCLUDED.student_name
	`), s.StudentEmail, nullable(s.StudentID), nullable(s.StudentName))
	return errors.Wrap(err, "upsert student")
}

// Enroll adds a student to a course.
func (r *Repository) Enroll(ctx context.Context, courseID, email string) error {
	if courseID == "" || email == "" {
		return errors.New("course id and student email required")
	}
	_, err := r.db.Client.ExecContext(ctx, r.q(`
		INSERT INTO enrollments (course_id, student_email)
		VALUES ($1, $2)
		ON CONFLICT (course_id, student_email) DO NOTHING
	`), courseID, email)
	return errors.Wrap(err, "enroll")
}

// Write inserts a record. Writing the same record id again is a no-op, so
// redelivered queue messages are harmless.
func (r *Repository) Write(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.New("record id required")
	}
	_, err := r.db.Client.ExecContext(ctx, r.q(`
		INSERT INTO attendance (id, course_id, student_email, student_id, student_name, professor_id, professor_name, local_time, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`), rec.ID, rec.CourseID, rec.StudentEmail, rec.StudentID, rec.StudentName, rec.ProfessorID, rec.ProfessorName, rec.Timestamp, rec.RecordedAt.UTC())
	return errors.Wrap(err, "insert attendance")
}

// ListRecords returns records with basic filters.
func (r *Repository) ListRecords(ctx context.Context, f Filter) ([]Record, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	query := `SELECT id, course_id, student_email, student_id, student_name, professor_id, professor_name, local_time, recorded_at FROM attendance`
	args := []any{}
	clauses := []string{}
	if f.CourseID != "" {
		clauses = append(clauses, "course_id = $"+strconv.Itoa(len(args)+1))
		args = append(args, f.CourseID)
	}
	if f.StudentEmail != "" {
		clauses = append(clauses, "student_email = $"+strconv.Itoa(len(args)+1))
		args = append(args, f.StudentEmail)
	}
	if f.ProfessorName != "" {
		clauses = append(clauses, "professor_name = $"+strconv.Itoa(len(args)+1))
		args = append(args, f.ProfessorName)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	order := "DESC"
	if f.Ascending {
		order = "ASC"
	}
	query += " ORDER BY recorded_at " + order + ", id LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.Client.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "query attendance")
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.CourseID, &rec.StudentEmail, &rec.StudentID, &rec.StudentName, &rec.ProfessorID, &rec.ProfessorName, &rec.Timestamp, &rec.RecordedAt); err != nil {
			return nil, errors.Wrap(err, "scan attendance")
		}
		rec.RecordedAt = rec.RecordedAt.UTC()
		res = append(res, rec)
	}
	return res, rows.Err()
}

// DeleteRecord removes a record. It reports whether one existed.
func (r *Repository) DeleteRecord(ctx context.Context, id string) (bool, error) {
	res, err := r.db.Client.ExecContext(ctx, r.q(`DELETE FROM attendance WHERE id = $1`), id)
	if err != nil {
		return false, errors.Wrap(err, "delete attendance")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "delete attendance")
	}
	return n > 0, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
