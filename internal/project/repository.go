package project

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Repository interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	UpdateProject(ctx context.Context, p *Project) error
	DeleteProject(ctx context.Context, id string) error

	CreateClip(ctx context.Context, c *MediaClip) error
	GetClip(ctx context.Context, id string) (*MediaClip, error)
	ListClips(ctx context.Context, projectID string) ([]*MediaClip, error)
	UpdateClip(ctx context.Context, c *MediaClip) error
	DeleteClip(ctx context.Context, id string) error
	SetClipPositions(ctx context.Context, projectID string, orderedIDs []string) error

	CreateLayer(ctx context.Context, l *OverlayLayer) error
	GetLayer(ctx context.Context, id string) (*OverlayLayer, error)
	ListLayers(ctx context.Context, projectID string) ([]*OverlayLayer, error)
	UpdateLayer(ctx context.Context, l *OverlayLayer) error
	DeleteLayer(ctx context.Context, id string) error

	ReplaceCaptionWords(ctx context.Context, projectID string, words []CaptionWord) error
	ListCaptionWords(ctx context.Context, projectID string) ([]CaptionWord, error)

	CreateJob(ctx context.Context, j *ExportJob) error
	GetJob(ctx context.Context, id string) (*ExportJob, error)
	GetLatestJob(ctx context.Context, projectID string) (*ExportJob, error)
	ListQueuedJobs(ctx context.Context) ([]*ExportJob, error)
	UpdateJobStatus(ctx context.Context, id, status, message string) error
	UpdateJobProgress(ctx context.Context, id string, progress int, etaSeconds float64) error
	SetJobArtifact(ctx context.Context, id, artifactPath string) error
	RequestJobCancel(ctx context.Context, id string) error
	JobCancelRequested(ctx context.Context, id string) (bool, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateProject(ctx context.Context, p *Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, narration_path, narration_duration, edited, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, nullString(p.NarrationPath), p.NarrationDuration, boolToInt(p.Edited),
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (*Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, narration_path, narration_duration, edited, created_at, updated_at
		FROM projects WHERE id = ?
	`, id)
	return r.scanProject(row)
}

func (r *SQLiteRepository) scanProject(row *sql.Row) (*Project, error) {
	var p Project
	var narrationPath sql.NullString
	var edited int
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.Name, &narrationPath, &p.NarrationDuration, &edited, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.NarrationPath = narrationPath.String
	p.Edited = edited == 1
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, narration_path, narration_duration, edited, created_at, updated_at
		FROM projects ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		var narrationPath sql.NullString
		var edited int
		var createdAt, updatedAt string

		if err := rows.Scan(&p.ID, &p.Name, &narrationPath, &p.NarrationDuration, &edited, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.NarrationPath = narrationPath.String
		p.Edited = edited == 1
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

func (r *SQLiteRepository) UpdateProject(ctx context.Context, p *Project) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE projects SET name = ?, narration_path = ?, narration_duration = ?, edited = ?, updated_at = datetime('now')
		WHERE id = ?
	`, p.Name, nullString(p.NarrationPath), p.NarrationDuration, boolToInt(p.Edited), p.ID)
	return err
}

func (r *SQLiteRepository) DeleteProject(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) CreateClip(ctx context.Context, c *MediaClip) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clips (id, project_id, position, kind, path, size, assigned_duration, trim_start, trim_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.ProjectID, c.Position, c.Kind, c.Path, c.Size,
		c.AssignedDuration, c.TrimStart, c.TrimEnd, c.CreatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetClip(ctx context.Context, id string) (*MediaClip, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, position, kind, path, size, assigned_duration, trim_start, trim_end, created_at
		FROM clips WHERE id = ?
	`, id)

	var c MediaClip
	var createdAt string
	err := row.Scan(&c.ID, &c.ProjectID, &c.Position, &c.Kind, &c.Path, &c.Size,
		&c.AssignedDuration, &c.TrimStart, &c.TrimEnd, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

func (r *SQLiteRepository) ListClips(ctx context.Context, projectID string) ([]*MediaClip, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, position, kind, path, size, assigned_duration, trim_start, trim_end, created_at
		FROM clips WHERE project_id = ? ORDER BY position ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clips []*MediaClip
	for rows.Next() {
		var c MediaClip
		var createdAt string
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Position, &c.Kind, &c.Path, &c.Size,
			&c.AssignedDuration, &c.TrimStart, &c.TrimEnd, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		clips = append(clips, &c)
	}
	return clips, rows.Err()
}

func (r *SQLiteRepository) UpdateClip(ctx context.Context, c *MediaClip) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE clips SET position = ?, assigned_duration = ?, trim_start = ?, trim_end = ?
		WHERE id = ?
	`, c.Position, c.AssignedDuration, c.TrimStart, c.TrimEnd, c.ID)
	return err
}

func (r *SQLiteRepository) DeleteClip(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM clips WHERE id = ?", id)
	return err
}

// SetClipPositions rewrites positions to match orderedIDs. IDs not belonging
// to the project are ignored; clips missing from orderedIDs keep a position
// after the listed ones, preserving their relative order.
func (r *SQLiteRepository) SetClipPositions(ctx context.Context, projectID string, orderedIDs []string) error {
	existing, err := r.ListClips(ctx, projectID)
	if err != nil {
		return err
	}
	owned := make(map[string]bool, len(existing))
	for _, c := range existing {
		owned[c.ID] = true
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	pos := 0
	placed := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if !owned[id] || placed[id] {
			continue
		}
		if _, err := tx.ExecContext(ctx, "UPDATE clips SET position = ? WHERE id = ?", pos, id); err != nil {
			return err
		}
		placed[id] = true
		pos++
	}
	for _, c := range existing {
		if placed[c.ID] {
			continue
		}
		if _, err := tx.ExecContext(ctx, "UPDATE clips SET position = ? WHERE id = ?", pos, c.ID); err != nil {
			return err
		}
		pos++
	}

	return tx.Commit()
}

func (r *SQLiteRepository) CreateLayer(ctx context.Context, l *OverlayLayer) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO layers (id, project_id, kind, content, style, start_time, duration, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.ProjectID, l.Kind, l.Content, l.Style, l.Start, l.Duration, l.CreatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetLayer(ctx context.Context, id string) (*OverlayLayer, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, kind, content, style, start_time, duration, created_at
		FROM layers WHERE id = ?
	`, id)

	var l OverlayLayer
	var createdAt string
	err := row.Scan(&l.ID, &l.ProjectID, &l.Kind, &l.Content, &l.Style, &l.Start, &l.Duration, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &l, nil
}

func (r *SQLiteRepository) ListLayers(ctx context.Context, projectID string) ([]*OverlayLayer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, kind, content, style, start_time, duration, created_at
		FROM layers WHERE project_id = ? ORDER BY created_at ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var layers []*OverlayLayer
	for rows.Next() {
		var l OverlayLayer
		var createdAt string
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.Kind, &l.Content, &l.Style, &l.Start, &l.Duration, &createdAt); err != nil {
			return nil, err
		}
		l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		layers = append(layers, &l)
	}
	return layers, rows.Err()
}

func (r *SQLiteRepository) UpdateLayer(ctx context.Context, l *OverlayLayer) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE layers SET content = ?, style = ?, start_time = ?, duration = ? WHERE id = ?
	`, l.Content, l.Style, l.Start, l.Duration, l.ID)
	return err
}

func (r *SQLiteRepository) DeleteLayer(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM layers WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) ReplaceCaptionWords(ctx context.Context, projectID string, words []CaptionWord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM caption_words WHERE project_id = ?", projectID); err != nil {
		return err
	}
	for i, w := range words {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO caption_words (project_id, position, text, start_time, end_time)
			VALUES (?, ?, ?, ?, ?)
		`, projectID, i, w.Text, w.Start, w.End); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) ListCaptionWords(ctx context.Context, projectID string) ([]CaptionWord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT text, start_time, end_time
		FROM caption_words WHERE project_id = ? ORDER BY position ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var words []CaptionWord
	for rows.Next() {
		var w CaptionWord
		if err := rows.Scan(&w.Text, &w.Start, &w.End); err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	return words, rows.Err()
}

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *ExportJob) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, project_id, status, progress, message, eta_seconds, cancel_requested, artifact_path, container, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.ProjectID, j.Status, j.Progress, j.Message, j.ETASeconds,
		boolToInt(j.CancelRequested), j.ArtifactPath, j.Container,
		j.CreatedAt.Format(time.RFC3339), j.UpdatedAt.Format(time.RFC3339))
	return err
}

const jobColumns = `id, project_id, status, progress, message, eta_seconds, cancel_requested, artifact_path, container, created_at, updated_at`

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*ExportJob, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	return r.scanJob(row)
}

func (r *SQLiteRepository) GetLatestJob(ctx context.Context, projectID string) (*ExportJob, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE project_id = ? ORDER BY created_at DESC, id DESC LIMIT 1", projectID)
	return r.scanJob(row)
}

func (r *SQLiteRepository) scanJob(row *sql.Row) (*ExportJob, error) {
	var j ExportJob
	var cancelRequested int
	var createdAt, updatedAt string

	err := row.Scan(&j.ID, &j.ProjectID, &j.Status, &j.Progress, &j.Message, &j.ETASeconds,
		&cancelRequested, &j.ArtifactPath, &j.Container, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	j.CancelRequested = cancelRequested == 1
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}

func (r *SQLiteRepository) ListQueuedJobs(ctx context.Context) ([]*ExportJob, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE status = ? ORDER BY created_at ASC", JobStatusQueued)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ExportJob
	for rows.Next() {
		var j ExportJob
		var cancelRequested int
		var createdAt, updatedAt string

		if err := rows.Scan(&j.ID, &j.ProjectID, &j.Status, &j.Progress, &j.Message, &j.ETASeconds,
			&cancelRequested, &j.ArtifactPath, &j.Container, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		j.CancelRequested = cancelRequested == 1
		j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, message = ?, updated_at = datetime('now') WHERE id = ?
	`, status, message, id)
	return err
}

func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id string, progress int, etaSeconds float64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, eta_seconds = ?, updated_at = datetime('now') WHERE id = ?
	`, progress, etaSeconds, id)
	return err
}

func (r *SQLiteRepository) SetJobArtifact(ctx context.Context, id, artifactPath string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET artifact_path = ?, updated_at = datetime('now') WHERE id = ?
	`, artifactPath, id)
	return err
}

func (r *SQLiteRepository) RequestJobCancel(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET cancel_requested = 1, updated_at = datetime('now') WHERE id = ?
	`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job not found")
	}
	return nil
}

func (r *SQLiteRepository) JobCancelRequested(ctx context.Context, id string) (bool, error) {
	var v int
	err := r.db.QueryRowContext(ctx, "SELECT cancel_requested FROM jobs WHERE id = ?", id).Scan(&v)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return v == 1, err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
