package store

import (
	"context"
)

func (s *pgTasks) Insert(ctx context.Context, t *Task) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO tasks (id, type, title, price, description, publisher_id, status)
         VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		t.ID, t.Type, t.Title, t.Price, t.Description, t.PublisherID, t.Status)
	if err := row.Scan(&t.CreatedAt); err != nil {
		return mapInsertErr(err)
	}
	return nil
}

func (s *pgTasks) Get(ctx context.Context, id string) (*Task, error) {
	var t Task
	err := s.pool.QueryRow(ctx,
		`SELECT id, type, title, price, COALESCE(description, ''), publisher_id, status, created_at
         FROM tasks WHERE id = $1`, id).
		Scan(&t.ID, &t.Type, &t.Title, &t.Price, &t.Description, &t.PublisherID, &t.Status, &t.CreatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &t, nil
}

func (s *pgTasks) ListOpen(ctx context.Context) ([]Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, title, price, COALESCE(description, ''), publisher_id, status, created_at
         FROM tasks
         WHERE status IN ('active', 'accepted')
           AND id NOT IN (SELECT task_id FROM completed_tasks)
         ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Type, &t.Title, &t.Price, &t.Description, &t.PublisherID, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *pgTasks) ListByPublisher(ctx context.Context, publisherID string) ([]Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, title, price, COALESCE(description, ''), publisher_id, status, created_at
         FROM tasks WHERE publisher_id = $1 ORDER BY created_at DESC`, publisherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Type, &t.Title, &t.Price, &t.Description, &t.PublisherID, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *pgTasks) UpdateStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgTasks) MarkCompleted(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO completed_tasks (task_id) VALUES ($1) ON CONFLICT (task_id) DO NOTHING`, id)
	return err
}

func (s *pgAcceptances) Insert(ctx context.Context, a *Acceptance) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO task_acceptances (id, task_id, acceptor_id, status)
         VALUES ($1, $2, $3, $4) RETURNING created_at, updated_at`,
		a.ID, a.TaskID, a.AcceptorID, a.Status)
	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		return mapInsertErr(err)
	}
	return nil
}

func (s *pgAcceptances) Find(ctx context.Context, taskID, acceptorID string) (*Acceptance, error) {
	var a Acceptance
	err := s.pool.QueryRow(ctx,
		`SELECT id, task_id, acceptor_id, status, created_at, updated_at
         FROM task_acceptances WHERE task_id = $1 AND acceptor_id = $2`, taskID, acceptorID).
		Scan(&a.ID, &a.TaskID, &a.AcceptorID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &a, nil
}

func (s *pgAcceptances) FirstForTask(ctx context.Context, taskID string) (*Acceptance, error) {
	var a Acceptance
	err := s.pool.QueryRow(ctx,
		`SELECT id, task_id, acceptor_id, status, created_at, updated_at
         FROM task_acceptances WHERE task_id = $1 ORDER BY created_at ASC LIMIT 1`, taskID).
		Scan(&a.ID, &a.TaskID, &a.AcceptorID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &a, nil
}

func (s *pgAcceptances) UpdateStatusCAS(ctx context.Context, taskID, acceptorID, from, to string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE task_acceptances SET status = $4, updated_at = NOW()
         WHERE task_id = $1 AND acceptor_id = $2 AND status = $3`,
		taskID, acceptorID, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *pgProfiles) Get(ctx context.Context, id string) (*Profile, error) {
	return s.scanOne(ctx, `WHERE id = $1`, id)
}

func (s *pgProfiles) GetByStudentID(ctx context.Context, studentID string) (*Profile, error) {
	return s.scanOne(ctx, `WHERE student_id = $1`, studentID)
}

func (s *pgProfiles) scanOne(ctx context.Context, where string, arg any) (*Profile, error) {
	var p Profile
	err := s.pool.QueryRow(ctx,
		`SELECT id, student_id, name, COALESCE(college, ''), COALESCE(major, ''),
                COALESCE(graduation_year, ''), COALESCE(avatar_url, ''), created_at, updated_at
         FROM profiles `+where, arg).
		Scan(&p.ID, &p.StudentID, &p.Name, &p.College, &p.Major, &p.GraduationYear,
			&p.AvatarURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &p, nil
}

func (s *pgProfiles) Update(ctx context.Context, p *Profile) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET name = $2, college = $3, major = $4, graduation_year = $5,
                avatar_url = $6, updated_at = NOW()
         WHERE id = $1`,
		p.ID, p.Name, p.College, p.Major, p.GraduationYear, p.AvatarURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
