package postgres

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/halcyon-ai/mnemo/internal/domain"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/jackc/pgx/v5"
)

const memoryColumns = `id, user_id, thread_id, content, entities, priority, confidence, tier,
	created_at, updated_at, last_seen_at, repeats, thread_set, redaction_map, deleted_at`

type MemoryRepository struct {
	BaseRepository
}

func NewMemoryRepository(pool Querier) *MemoryRepository {
	return &MemoryRepository{BaseRepository: NewBaseRepository(pool)}
}

// Create inserts the memory row and its keyword-index row. Callers wrap this
// in a transaction so the two writes commit together.
func (r *MemoryRepository) Create(ctx context.Context, m *models.Memory) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	entities, err := marshalJSONField(m.Entities)
	if err != nil {
		return err
	}
	threadSet, err := marshalJSONField(m.ThreadSet)
	if err != nil {
		return err
	}
	redactionMap, err := marshalJSONField(m.RedactionMap)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO memories (` + memoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NULL)`

	_, err = r.conn(ctx).Exec(ctx, query,
		m.ID,
		m.UserID,
		nullableText(m.ThreadID),
		m.Content,
		entities,
		m.Priority,
		m.Confidence,
		string(m.Tier),
		m.CreatedAt,
		m.UpdatedAt,
		m.LastSeenAt,
		m.Repeats,
		threadSet,
		redactionMap,
	)
	if err != nil {
		return err
	}

	return r.indexRow(ctx, m)
}

// Update rewrites mutable fields and refreshes the keyword-index row.
func (r *MemoryRepository) Update(ctx context.Context, m *models.Memory) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	entities, err := marshalJSONField(m.Entities)
	if err != nil {
		return err
	}
	threadSet, err := marshalJSONField(m.ThreadSet)
	if err != nil {
		return err
	}
	redactionMap, err := marshalJSONField(m.RedactionMap)
	if err != nil {
		return err
	}

	query := `
		UPDATE memories
		SET content = $3,
			entities = $4,
			priority = $5,
			confidence = $6,
			tier = $7,
			updated_at = $8,
			last_seen_at = $9,
			repeats = $10,
			thread_set = $11,
			redaction_map = $12
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`

	tag, err := r.conn(ctx).Exec(ctx, query,
		m.ID,
		m.UserID,
		m.Content,
		entities,
		m.Priority,
		m.Confidence,
		string(m.Tier),
		m.UpdatedAt,
		m.LastSeenAt,
		m.Repeats,
		threadSet,
		redactionMap,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMemoryNotFound
	}

	return r.indexRow(ctx, m)
}

func (r *MemoryRepository) indexRow(ctx context.Context, m *models.Memory) error {
	doc := m.Content
	if len(m.Entities) > 0 {
		doc += " " + strings.Join(m.Entities, " ")
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO memories_fts (memory_id, user_id, doc)
		VALUES ($1, $2, to_tsvector('english', $3))
		ON CONFLICT (memory_id) DO UPDATE SET doc = EXCLUDED.doc`,
		m.ID, m.UserID, doc)
	return err
}

func (r *MemoryRepository) GetByID(ctx context.Context, userID, id string) (*models.Memory, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + memoryColumns + `
		FROM memories
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`

	m, err := scanMemory(r.conn(ctx).QueryRow(ctx, query, id, userID))
	if err != nil {
		if checkNoRows(err) {
			return nil, domain.ErrMemoryNotFound
		}
		return nil, err
	}
	return m, nil
}

// Delete soft-deletes the row and removes its keyword-index row so deleted
// memories cannot surface through search.
func (r *MemoryRepository) Delete(ctx context.Context, userID, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE memories
		SET deleted_at = NOW()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMemoryNotFound
	}

	_, err = r.conn(ctx).Exec(ctx, `DELETE FROM memories_fts WHERE memory_id = $1`, id)
	return err
}

func (r *MemoryRepository) ListRecent(ctx context.Context, userID string, limit int) ([]*models.Memory, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+memoryColumns+`
		FROM memories
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY updated_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMemories(rows)
}

func (r *MemoryRepository) List(ctx context.Context, userID string, tier models.Tier, limit int) ([]*models.Memory, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		rows pgx.Rows
		err  error
	)
	if tier == "" {
		rows, err = r.conn(ctx).Query(ctx, `
			SELECT `+memoryColumns+`
			FROM memories
			WHERE user_id = $1 AND deleted_at IS NULL
			ORDER BY updated_at DESC
			LIMIT $2`, userID, limit)
	} else {
		rows, err = r.conn(ctx).Query(ctx, `
			SELECT `+memoryColumns+`
			FROM memories
			WHERE user_id = $1 AND tier = $2 AND deleted_at IS NULL
			ORDER BY updated_at DESC
			LIMIT $3`, userID, string(tier), limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMemories(rows)
}

func (r *MemoryRepository) ListByTiers(ctx context.Context, userID string, tiers []models.Tier, limit int) ([]*models.Memory, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	names := make([]string, len(tiers))
	for i, t := range tiers {
		names[i] = string(t)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+memoryColumns+`
		FROM memories
		WHERE user_id = $1 AND tier = ANY($2) AND deleted_at IS NULL
		ORDER BY priority DESC, updated_at DESC
		LIMIT $3`, userID, names, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMemories(rows)
}

// SearchKeyword runs the FTS query. ts_rank scores are normalized into [0,1]
// with x/(x+1) so fusion weights stay comparable to cosine scores.
func (r *MemoryRepository) SearchKeyword(ctx context.Context, userID, ftsQuery string, limit int) ([]*models.ScoredMemory, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+qualify(memoryColumns, "m")+`,
			ts_rank(f.doc, websearch_to_tsquery('english', $2)) AS rank
		FROM memories m
		JOIN memories_fts f ON f.memory_id = m.id
		WHERE m.user_id = $1
			AND m.deleted_at IS NULL
			AND f.doc @@ websearch_to_tsquery('english', $2)
		ORDER BY rank DESC
		LIMIT $3`, userID, ftsQuery, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.ScoredMemory
	for rows.Next() {
		m, rank, err := scanMemoryWithScore(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, &models.ScoredMemory{
			Memory:  m,
			Keyword: rank / (rank + 1),
		})
	}
	return results, rows.Err()
}

// SearchSubstring is the fallback path when FTS is unavailable: case-blind
// substring match per term, ranked by how many terms hit.
func (r *MemoryRepository) SearchSubstring(ctx context.Context, userID string, terms []string, limit int) ([]*models.ScoredMemory, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if len(terms) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	args := []any{userID}
	sb.WriteString(`
		SELECT ` + memoryColumns + `, (`)
	for i, term := range terms {
		if i > 0 {
			sb.WriteString(" + ")
		}
		args = append(args, "%"+term+"%")
		sb.WriteString("(CASE WHEN content ILIKE $" + strconv.Itoa(len(args)) + " THEN 1 ELSE 0 END)")
	}
	args = append(args, limit)
	sb.WriteString(`) AS hits
		FROM memories
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY hits DESC, updated_at DESC
		LIMIT $` + strconv.Itoa(len(args)))

	rows, err := r.conn(ctx).Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.ScoredMemory
	for rows.Next() {
		m, hits, err := scanMemoryWithScore(rows)
		if err != nil {
			return nil, err
		}
		if hits == 0 {
			continue
		}
		results = append(results, &models.ScoredMemory{
			Memory:  m,
			Keyword: hits / float64(len(terms)),
		})
	}
	return results, rows.Err()
}

// IndexDrift counts live rows missing from the keyword index.
func (r *MemoryRepository) IndexDrift(ctx context.Context, userID string) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var missing int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*)
		FROM memories m
		LEFT JOIN memories_fts f ON f.memory_id = m.id
		WHERE m.user_id = $1 AND m.deleted_at IS NULL AND f.memory_id IS NULL`, userID).Scan(&missing)
	return missing, err
}

// RebuildIndex re-inserts keyword-index rows for live memories that lack one.
func (r *MemoryRepository) RebuildIndex(ctx context.Context, userID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO memories_fts (memory_id, user_id, doc)
		SELECT m.id, m.user_id, to_tsvector('english', m.content)
		FROM memories m
		LEFT JOIN memories_fts f ON f.memory_id = m.id
		WHERE m.user_id = $1 AND m.deleted_at IS NULL AND f.memory_id IS NULL
		ON CONFLICT (memory_id) DO NOTHING`, userID)
	return err
}

// PruneTier3 soft-deletes TIER3 memories unseen since the cutoff.
func (r *MemoryRepository) PruneTier3(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE memories
		SET deleted_at = NOW()
		WHERE user_id = $1 AND tier = 'TIER3' AND last_seen_at < $2 AND deleted_at IS NULL`,
		userID, cutoff)
	if err != nil {
		return 0, err
	}

	_, err = r.conn(ctx).Exec(ctx, `
		DELETE FROM memories_fts f
		USING memories m
		WHERE f.memory_id = m.id AND m.user_id = $1 AND m.deleted_at IS NOT NULL`, userID)
	return int(tag.RowsAffected()), err
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// qualify prefixes each column in a comma-separated list with an alias.
func qualify(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func scanMemory(row pgx.Row) (*models.Memory, error) {
	var (
		m            models.Memory
		threadID     *string
		entities     []byte
		tier         string
		threadSet    []byte
		redactionMap []byte
	)

	err := row.Scan(
		&m.ID,
		&m.UserID,
		&threadID,
		&m.Content,
		&entities,
		&m.Priority,
		&m.Confidence,
		&tier,
		&m.CreatedAt,
		&m.UpdatedAt,
		&m.LastSeenAt,
		&m.Repeats,
		&threadSet,
		&redactionMap,
		&m.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	if threadID != nil {
		m.ThreadID = *threadID
	}
	m.Tier = models.Tier(tier)
	if err := unmarshalJSONField(entities, &m.Entities); err != nil {
		return nil, err
	}
	if err := unmarshalJSONField(threadSet, &m.ThreadSet); err != nil {
		return nil, err
	}
	if err := unmarshalJSONField(redactionMap, &m.RedactionMap); err != nil {
		return nil, err
	}

	return &m, nil
}

func scanMemoryWithScore(rows pgx.Rows) (*models.Memory, float64, error) {
	var (
		m            models.Memory
		threadID     *string
		entities     []byte
		tier         string
		threadSet    []byte
		redactionMap []byte
		score        float64
	)

	err := rows.Scan(
		&m.ID,
		&m.UserID,
		&threadID,
		&m.Content,
		&entities,
		&m.Priority,
		&m.Confidence,
		&tier,
		&m.CreatedAt,
		&m.UpdatedAt,
		&m.LastSeenAt,
		&m.Repeats,
		&threadSet,
		&redactionMap,
		&m.DeletedAt,
		&score,
	)
	if err != nil {
		return nil, 0, err
	}

	if threadID != nil {
		m.ThreadID = *threadID
	}
	m.Tier = models.Tier(tier)
	if err := unmarshalJSONField(entities, &m.Entities); err != nil {
		return nil, 0, err
	}
	if err := unmarshalJSONField(threadSet, &m.ThreadSet); err != nil {
		return nil, 0, err
	}
	if err := unmarshalJSONField(redactionMap, &m.RedactionMap); err != nil {
		return nil, 0, err
	}

	return &m, score, nil
}

func scanMemories(rows pgx.Rows) ([]*models.Memory, error) {
	var memories []*models.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}
