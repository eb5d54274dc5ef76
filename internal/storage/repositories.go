package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflict")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// DocumentRepository handles document CRUD operations.
type DocumentRepository struct {
	db DB
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(db DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a document and fills in its generated ID.
func (r *DocumentRepository) Create(ctx context.Context, doc *Document) error {
	doc.CreatedAt = time.Now()

	query := `
		INSERT INTO documents (name, language, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query, doc.Name, doc.Language, doc.CreatedAt).Scan(&doc.ID)
}

// GetByID retrieves a document by ID.
func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*Document, error) {
	query := `
		SELECT id, name, language, created_at
		FROM documents WHERE id = $1
	`
	doc := &Document{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&doc.ID, &doc.Name, &doc.Language, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

// List lists all documents, newest first.
func (r *DocumentRepository) List(ctx context.Context) ([]*Document, error) {
	query := `
		SELECT id, name, language, created_at
		FROM documents
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc := &Document{}
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.Language, &doc.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Delete removes a document. Owned chunk rows are removed by the schema's
// ON DELETE CASCADE; metadata rows must be removed by the caller first.
func (r *DocumentRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll removes every document.
func (r *DocumentRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM documents`)
	return err
}

// Count returns the number of documents.
func (r *DocumentRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// ChunkRepository handles chunk CRUD and the keyword lookups used by the
// priority shortcut matcher and the keyword fallback.
type ChunkRepository struct {
	db DB
}

// NewChunkRepository creates a new chunk repository.
func NewChunkRepository(db DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// Create inserts a chunk row.
func (r *ChunkRepository) Create(ctx context.Context, chunk *Chunk) error {
	chunk.CreatedAt = time.Now()

	query := `
		INSERT INTO chunks (id, document_id, text, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query, chunk.ID, chunk.DocumentID, chunk.Text, chunk.CreatedAt)
	return err
}

// GetByID retrieves a chunk by ID.
func (r *ChunkRepository) GetByID(ctx context.Context, id string) (*Chunk, error) {
	query := `
		SELECT id, document_id, text, created_at
		FROM chunks WHERE id = $1
	`
	chunk := &Chunk{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&chunk.ID, &chunk.DocumentID, &chunk.Text, &chunk.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return chunk, err
}

// FindFirstByKeyword returns one chunk whose text contains the keyword,
// case-insensitive.
func (r *ChunkRepository) FindFirstByKeyword(ctx context.Context, keyword string) (*Chunk, error) {
	query := `
		SELECT id, document_id, text, created_at
		FROM chunks
		WHERE LOWER(text) LIKE '%' || LOWER($1) || '%'
		LIMIT 1
	`
	chunk := &Chunk{}
	err := r.db.QueryRowContext(ctx, query, keyword).Scan(&chunk.ID, &chunk.DocumentID, &chunk.Text, &chunk.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return chunk, err
}

// FindByKeywordAndCode returns chunks whose text contains both the keyword
// (case-insensitive) and the tariff code (exact).
func (r *ChunkRepository) FindByKeywordAndCode(ctx context.Context, keyword, code string, limit int) ([]*Chunk, error) {
	if limit <= 0 {
		limit = 5
	}
	query := `
		SELECT id, document_id, text, created_at
		FROM chunks
		WHERE LOWER(text) LIKE '%' || LOWER($1) || '%'
		  AND text LIKE '%' || $2 || '%'
		LIMIT $3
	`
	return r.scanChunks(ctx, query, keyword, code, limit)
}

// FindTopN returns up to n chunks, used to bound memory in keyword fallback
// scans.
func (r *ChunkRepository) FindTopN(ctx context.Context, n int) ([]*Chunk, error) {
	query := `
		SELECT id, document_id, text, created_at
		FROM chunks
		LIMIT $1
	`
	return r.scanChunks(ctx, query, n)
}

// ListByDocument returns all chunks owned by a document.
func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID int64) ([]*Chunk, error) {
	query := `
		SELECT id, document_id, text, created_at
		FROM chunks
		WHERE document_id = $1
		ORDER BY id
	`
	return r.scanChunks(ctx, query, documentID)
}

// ListIDs returns every chunk ID.
func (r *ChunkRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM chunks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes a chunk row.
func (r *ChunkRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chunks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll removes every chunk.
func (r *ChunkRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chunks`)
	return err
}

// Count returns the number of chunks.
func (r *ChunkRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

func (r *ChunkRepository) scanChunks(ctx context.Context, query string, args ...interface{}) ([]*Chunk, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		chunk := &Chunk{}
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Text, &chunk.CreatedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

const metadataColumns = `id, code_sh, description, product_type, product_state, boning,
	animal_age, anatomical_part, specific_use, import_duty, tpi, vat,
	preferentials, quotas, chunk_id, keywords, synonyms, created_at`

// MetadataRepository handles product metadata rows and the multi-criteria and
// fuzzy query shapes used by metadata search.
type MetadataRepository struct {
	db DB
}

// NewMetadataRepository creates a new metadata repository.
func NewMetadataRepository(db DB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

// Create inserts a metadata row and fills in its generated ID.
func (r *MetadataRepository) Create(ctx context.Context, m *ProductMetadata) error {
	m.CreatedAt = time.Now()

	query := `
		INSERT INTO product_metadata (code_sh, description, product_type, product_state,
			boning, animal_age, anatomical_part, specific_use, import_duty, tpi, vat,
			preferentials, quotas, chunk_id, keywords, synonyms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query,
		m.CodeSH, m.Description, m.ProductType, m.ProductState,
		m.Boning, m.AnimalAge, m.AnatomicalPart, m.SpecificUse,
		m.ImportDuty, m.TPI, m.VAT,
		m.Preferentials, m.Quotas, m.ChunkID, m.Keywords, m.Synonyms, m.CreatedAt,
	).Scan(&m.ID)
}

// GetByCode retrieves a metadata row by tariff code.
func (r *MetadataRepository) GetByCode(ctx context.Context, codeSH string) (*ProductMetadata, error) {
	query := `SELECT ` + metadataColumns + ` FROM product_metadata WHERE code_sh = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, codeSH))
}

// FindByChunkID retrieves the metadata row linked to a chunk, if any.
func (r *MetadataRepository) FindByChunkID(ctx context.Context, chunkID string) (*ProductMetadata, error) {
	query := `SELECT ` + metadataColumns + ` FROM product_metadata WHERE chunk_id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, chunkID))
}

// FindByMultipleCriteria returns rows matching every non-nil attribute
// exactly; nil attributes act as wildcards.
func (r *MetadataRepository) FindByMultipleCriteria(ctx context.Context, productType, productState, boning, specificUse *string) ([]*ProductMetadata, error) {
	var conditions []string
	var args []interface{}

	addCriterion := func(column string, value *string) {
		if value != nil {
			args = append(args, *value)
			conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
		}
	}
	addCriterion("product_type", productType)
	addCriterion("product_state", productState)
	addCriterion("boning", boning)
	addCriterion("specific_use", specificUse)

	query := `SELECT ` + metadataColumns + ` FROM product_metadata`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	return r.scanMany(ctx, query, args...)
}

// FindByKeywordsOrSynonyms returns rows whose keyword or synonym blob
// contains the term, case-insensitive.
func (r *MetadataRepository) FindByKeywordsOrSynonyms(ctx context.Context, term string) ([]*ProductMetadata, error) {
	query := `
		SELECT ` + metadataColumns + `
		FROM product_metadata
		WHERE LOWER(keywords) LIKE '%' || LOWER($1) || '%'
		   OR LOWER(synonyms) LIKE '%' || LOWER($1) || '%'
	`
	return r.scanMany(ctx, query, term)
}

// DeleteByChunkID removes the metadata row linked to a chunk. Missing rows
// are not an error: not every chunk carries metadata.
func (r *MetadataRepository) DeleteByChunkID(ctx context.Context, chunkID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM product_metadata WHERE chunk_id = $1`, chunkID)
	return err
}

// DeleteAll removes every metadata row.
func (r *MetadataRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM product_metadata`)
	return err
}

// Count returns the number of metadata rows.
func (r *MetadataRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM product_metadata`).Scan(&n)
	return n, err
}

func (r *MetadataRepository) scanOne(row *sql.Row) (*ProductMetadata, error) {
	m := &ProductMetadata{}
	err := row.Scan(
		&m.ID, &m.CodeSH, &m.Description, &m.ProductType, &m.ProductState, &m.Boning,
		&m.AnimalAge, &m.AnatomicalPart, &m.SpecificUse, &m.ImportDuty, &m.TPI, &m.VAT,
		&m.Preferentials, &m.Quotas, &m.ChunkID, &m.Keywords, &m.Synonyms, &m.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func (r *MetadataRepository) scanMany(ctx context.Context, query string, args ...interface{}) ([]*ProductMetadata, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*ProductMetadata
	for rows.Next() {
		m := &ProductMetadata{}
		if err := rows.Scan(
			&m.ID, &m.CodeSH, &m.Description, &m.ProductType, &m.ProductState, &m.Boning,
			&m.AnimalAge, &m.AnatomicalPart, &m.SpecificUse, &m.ImportDuty, &m.TPI, &m.VAT,
			&m.Preferentials, &m.Quotas, &m.ChunkID, &m.Keywords, &m.Synonyms, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// Repositories bundles all repositories for dependency injection.
type Repositories struct {
	Documents *DocumentRepository
	Chunks    *ChunkRepository
	Metadata  *MetadataRepository
}

// NewRepositories creates all repositories sharing one connection.
func NewRepositories(db DB) *Repositories {
	return &Repositories{
		Documents: NewDocumentRepository(db),
		Chunks:    NewChunkRepository(db),
		Metadata:  NewMetadataRepository(db),
	}
}
