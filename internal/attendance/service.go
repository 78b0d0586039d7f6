package attendance

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound is returned when deleting a record that does not exist.
var ErrRecordNotFound = errors.New("attendance record not found")

// RosterEntry is one enrolled student with their presence in a course.
type RosterEntry struct {
	Student     Student `json:"student"`
	DaysPresent int     `json:"daysPresent"`
	DaysHeld    int     `json:"daysHeld"`
	Absences    int     `json:"absences"`
}

// Service answers read-side questions over stored attendance.
type Service struct {
	repo *Repository
	loc  *time.Location
}

// NewService creates a service backed by a repository. Days are counted
// as calendar days in loc.
func NewService(repo *Repository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{repo: repo, loc: loc}
}

// History lists records matching f, newest first unless f.Ascending.
func (s *Service) History(ctx context.Context, f Filter) ([]Record, error) {
	return s.repo.ListRecords(ctx, f)
}

// Report groups a course's records into days. An empty professorName
// includes every professor's sessions.
func (s *Service) Report(ctx context.Context, courseID, professorName string) ([]Day, error) {
	if courseID == "" {
		return nil, errors.New("course id required")
	}
	records, err := s.all(ctx, Filter{CourseID: courseID, ProfessorName: professorName})
	if err != nil {
		return nil, err
	}
	return BuildReport(records, s.loc), nil
}

// Roster lists the enrolled students of a course with days present.
// A day counts as held when any student was recorded on it.
func (s *Service) Roster(ctx context.Context, courseID string) ([]RosterEntry, error) {
	if courseID == "" {
		return nil, errors.New("course id required")
	}
	students, err := s.repo.EnrolledStudents(ctx, courseID)
	if err != nil {
		return nil, err
	}
	records, err := s.all(ctx, Filter{CourseID: courseID})
	if err != nil {
		return nil, err
	}
	days := BuildReport(records, s.loc)
	present := make(map[string]int)
	for _, d := range days {
		for _, rec := range d.Records {
			present[rec.StudentEmail]++
		}
	}
	res := make([]RosterEntry, 0, len(students))
	for _, st := range students {
		n := present[st.StudentEmail]
		res = append(res, RosterEntry{
			Student:     st,
			DaysPresent: n,
			DaysHeld:    len(days),
			Absences:    len(days) - n,
		})
	}
	return res, nil
}

// Courses returns the course registrations of a professor.
func (s *Service) Courses(ctx context.Context, professorEmail string) ([]Professor, error) {
	if professorEmail == "" {
		return nil, errors.New("professor email required")
	}
	return s.repo.ProfessorCourses(ctx, professorEmail)
}

// Delete removes a record by id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("record id required")
	}
	ok, err := s.repo.DeleteRecord(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRecordNotFound
	}
	return nil
}

const pageSize = 500

func (s *Service) all(ctx context.Context, f Filter) ([]Record, error) {
	f.Limit, f.Offset, f.Ascending = pageSize, 0, true
	var res []Record
	for {
		page, err := s.repo.ListRecords(ctx, f)
		if err != nil {
			return nil, err
		}
		res = append(res, page...)
		if len(page) < pageSize {
			return res, nil
		}
		f.Offset += pageSize
	}
}
