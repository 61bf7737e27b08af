// Package store persists the course watch list and the attempt history.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/L-L777/classGrabber/internal/db"
)

// Course is one registrable offering. ID is the remote service's integer
// code and never changes once added; the descriptive fields may be edited.
type Course struct {
	ID      int64
	Name    string
	Teacher string
	Note    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c Course) Validate() error {
	if c.ID <= 0 {
		return fmt.Errorf("course id required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("course name required")
	}
	return nil
}

// Attempt is one row of enrollment attempt history.
type Attempt struct {
	ID          int64
	CourseID    int64
	Acquired    bool
	Response    string
	Error       *string
	AttemptedAt time.Time
}

var ErrDuplicate = errors.New("course already exists")

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

func (r *Repo) Add(ctx context.Context, c Course) error {
	if err := c.Validate(); err != nil {
		return err
	}
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM courses WHERE id=$1)`, c.ID).Scan(&exists); err != nil {
		return db.WrapNotFound(err)
	}
	if exists {
		return ErrDuplicate
	}
	return r.db.Exec(ctx, `
INSERT INTO courses(id,name,teacher,note)
VALUES ($1,$2,$3,$4)`, c.ID, c.Name, c.Teacher, nullable(c.Note))
}

// List returns courses in the order they were added, which is also the
// order the worker attempts them in.
func (r *Repo) List(ctx context.Context) ([]Course, error) {
	rows, err := r.db.Query(ctx, `
SELECT id,name,teacher,COALESCE(note,''),created_at,updated_at
FROM courses
ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.Name, &c.Teacher, &c.Note, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repo) Get(ctx context.Context, id int64) (Course, error) {
	var c Course
	err := r.db.QueryRow(ctx, `
SELECT id,name,teacher,COALESCE(note,''),created_at,updated_at
FROM courses WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Teacher, &c.Note, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Course{}, db.WrapNotFound(err)
	}
	return c, nil
}

// Update edits the mutable fields only; the id stays what it was.
func (r *Repo) Update(ctx context.Context, c Course) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return r.db.Exec(ctx, `
UPDATE courses SET name=$2, teacher=$3, note=$4, updated_at=now()
WHERE id=$1`, c.ID, c.Name, c.Teacher, nullable(c.Note))
}

func (r *Repo) Remove(ctx context.Context, id int64) error {
	return r.db.Exec(ctx, `DELETE FROM courses WHERE id=$1`, id)
}

func (r *Repo) RecordAttempt(ctx context.Context, a Attempt) error {
	return r.db.Exec(ctx, `
INSERT INTO attempts(course_id,acquired,response,error)
VALUES ($1,$2,$3,$4)`, a.CourseID, a.Acquired, a.Response, a.Error)
}

func (r *Repo) RecentAttempts(ctx context.Context, limit int) ([]Attempt, error) {
	rows, err := r.db.Query(ctx, `
SELECT id,course_id,acquired,response,error,attempted_at
FROM attempts
ORDER BY attempted_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.CourseID, &a.Acquired, &a.Response, &a.Error, &a.AttemptedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
