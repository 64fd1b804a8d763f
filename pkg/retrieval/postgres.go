package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// defaultTable is the pgvector-indexed passage table.
const defaultTable = "documents_2"

// Postgres is a [PassageStore] backed by a pgvector-indexed table.
//
// The pool is constructed by the caller and passed in explicitly; the
// store never owns shared module-level connection state.
type Postgres struct {
	pool  *pgxpool.Pool
	table string

	// quoted is the table name as a quoted SQL identifier. Table names
	// come from config, not user input, but they still never reach the
	// SQL text unquoted.
	quoted string
}

// PostgresOption configures a [Postgres] store.
type PostgresOption func(*Postgres)

// WithTable overrides the passage table name.
func WithTable(table string) PostgresOption {
	return func(p *Postgres) { p.table = table }
}

// NewPostgres creates a passage store over the given connection pool.
func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) *Postgres {
	p := &Postgres{pool: pool, table: defaultTable}
	for _, o := range opts {
		o(p)
	}
	// Quote each dotted part so schema-qualified names keep working.
	p.quoted = pgx.Identifier(strings.Split(p.table, ".")).Sanitize()
	return p
}

// Similar implements [PassageStore] with a cosine-distance similarity
// query: rows where 1 - (vector <=> query) > 0.7, descending, limit 5.
func (p *Postgres) Similar(ctx context.Context, vector []float32) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT contents, 1 - (vector <=> $1::vector) AS similarity
		FROM %s
		WHERE 1 - (vector <=> $1::vector) > %g
		ORDER BY similarity DESC
		LIMIT %d`, p.quoted, SimilarityThreshold, MaxPassages)

	rows, err := p.pool.Query(ctx, query, vectorLiteral(vector))
	if err != nil {
		return nil, fmt.Errorf("retrieval: query %s: %w", p.table, err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var contents string
		var similarity float64
		if err := rows.Scan(&contents, &similarity); err != nil {
			return nil, fmt.Errorf("retrieval: scan: %w", err)
		}
		texts = append(texts, contents)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("retrieval: rows: %w", err)
	}
	return texts, nil
}

// Insert stores a passage with its embedding. Used by the ingestion
// command to populate the table.
func (p *Postgres) Insert(ctx context.Context, contents string, vector []float32) error {
	query := fmt.Sprintf(`INSERT INTO %s (contents, vector) VALUES ($1, $2::vector)`, p.quoted)
	if _, err := p.pool.Exec(ctx, query, contents, vectorLiteral(vector)); err != nil {
		return fmt.Errorf("retrieval: insert into %s: %w", p.table, err)
	}
	return nil
}

// vectorLiteral formats a vector as a pgvector input literal:
// "[0.1,0.2,...]".
func vectorLiteral(vector []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
