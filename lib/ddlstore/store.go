// Package ddlstore remembers crawled deadlines so that only deadlines that
// are new (or moved) are reported.
package ddlstore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"spoccrawler/lib/crawler"
	"spoccrawler/lib/telemetry"

	_ "embed"
)

//go:embed schema.sql
var Schema string

var tracer = telemetry.Tracer("spoccrawler/lib/ddlstore")

type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

// Migrate creates the tables if they do not exist yet.
func (s Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// SaveCourses records the latest title of every course.
func (s Store) SaveCourses(ctx context.Context, courses []crawler.Course, now time.Time) error {
	ctx, span := tracer.Start(ctx, "Store:SaveCourses")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, course := range courses {
		_, err = tx.ExecContext(
			ctx,
			`insert into course (id, title, updated_at) values (?, ?, ?)
			on conflict (id) do update set title = excluded.title, updated_at = excluded.updated_at`,
			course.Id, course.Title, now.UnixMilli(),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Push stores `deadlines` and returns the ones that were not stored before or
// whose due time changed. A deadline is identified by its platform, course and
// title.
func (s Store) Push(ctx context.Context, deadlines []crawler.Deadline) ([]crawler.Deadline, error) {
	ctx, span := tracer.Start(ctx, "Store:Push")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var fresh []crawler.Deadline
	for _, d := range deadlines {
		var ddlTime int64
		err := tx.QueryRowContext(
			ctx,
			"select ddl_time from deadline where platform_uuid = ? and course_uuid = ? and title = ?",
			d.PlatformUuid, d.CourseUuid, d.Title,
		).Scan(&ddlTime)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(
				ctx,
				`insert into deadline (platform_uuid, course_uuid, title, ddl_time, content, create_time, last_seen)
				values (?, ?, ?, ?, ?, ?, ?)`,
				d.PlatformUuid, d.CourseUuid, d.Title, d.DdlTime, d.Content, d.CreateTime, d.CreateTime,
			)
			if err != nil {
				return nil, err
			}
			fresh = append(fresh, d)
		case err != nil:
			return nil, err
		default:
			_, err = tx.ExecContext(
				ctx,
				`update deadline set ddl_time = ?, content = ?, last_seen = ?
				where platform_uuid = ? and course_uuid = ? and title = ?`,
				d.DdlTime, d.Content, d.CreateTime, d.PlatformUuid, d.CourseUuid, d.Title,
			)
			if err != nil {
				return nil, err
			}
			if ddlTime != d.DdlTime {
				slog.DebugContext(ctx, "deadline moved", "title", d.Title, "from", ddlTime, "to", d.DdlTime)
				fresh = append(fresh, d)
			}
		}
	}

	err = tx.Commit()
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

type Entry struct {
	crawler.Deadline
	// empty if the course was never saved
	CourseTitle string
}

// Upcoming lists the stored deadlines due after `after`, soonest first.
func (s Store) Upcoming(ctx context.Context, after time.Time) ([]Entry, error) {
	ctx, span := tracer.Start(ctx, "Store:Upcoming")
	defer span.End()

	rows, err := s.db.QueryContext(
		ctx,
		`select d.platform_uuid, d.course_uuid, d.create_time, d.ddl_time, d.title, d.content, coalesce(c.title, '')
		from deadline d left join course c on c.id = d.course_uuid
		where d.ddl_time > ?
		order by d.ddl_time, d.title`,
		after.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		err = rows.Scan(
			&e.PlatformUuid,
			&e.CourseUuid,
			&e.CreateTime,
			&e.DdlTime,
			&e.Title,
			&e.Content,
			&e.CourseTitle,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
