package blobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Sarthakshelke9895/Cloud/model"
	"github.com/cespare/xxhash/v2"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/opentracing/opentracing-go"
)

const mysqlDuplicateEntry = 1062

const blobIndexColumns = "blob_id, filename, content_type, length, chunk_size, digest, metadata, uploaded_at, insert_seq"

// SQLBlobStore stores chunks one row per chunk and keeps the index in a
// separate table of the same database
type SQLBlobStore struct {
	db        *sqlx.DB
	insertSeq int64
	now       func() time.Time
}

type blobRow struct {
	BlobID      string `db:"blob_id"`
	Filename    string `db:"filename"`
	ContentType string `db:"content_type"`
	Length      int64  `db:"length"`
	ChunkSize   int    `db:"chunk_size"`
	Digest      string `db:"digest"`
	Metadata    []byte `db:"metadata"`
	UploadedAt  int64  `db:"uploaded_at"`
	InsertSeq   int64  `db:"insert_seq"`
}

type chunkRow struct {
	Data     []byte `db:"data"`
	Checksum int64  `db:"checksum"`
}

// NewSQLBlobStore creates a blob store over a connection from persistence.CreateDBConnection
func NewSQLBlobStore(db *sqlx.DB) (*SQLBlobStore, error) {
	log.Info("Creating SQL blob store")

	var maxSeq sql.NullInt64
	if err := db.Get(&maxSeq, "SELECT MAX(insert_seq) FROM blob_index"); err != nil {
		return nil, fmt.Errorf("reading blob index sequence: %w", err)
	}
	return &SQLBlobStore{
		db:        db,
		insertSeq: maxSeq.Int64,
		now:       time.Now,
	}, nil
}

func isDuplicateKey(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}
	return false
}

// PutChunk implements ChunkStore
func (s *SQLBlobStore) PutChunk(ctx context.Context, blobID string, seq int, data []byte) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "sql_put_chunk")
	span.SetTag("blob_id", blobID)
	defer span.Finish()

	_, err := s.db.ExecContext(ctx, "INSERT INTO blob_chunks(blob_id, seq, checksum, written_at, data) VALUES(?,?,?,?,?)",
		blobID, seq, int64(xxhash.Sum64(data)), s.now().UnixNano(), data)
	if err != nil {
		if isDuplicateKey(err) {
			return model.ErrBlobExists
		}
		log.WithField("blob_id", blobID).WithField("seq", seq).WithField("chunk_length", len(data)).WithError(err).Error("Error inserting chunk into db")
		return model.NewStorageError("put_chunk", blobID, err)
	}
	return nil
}

// ReadChunks implements ChunkStore. Each chunk is a point query so that no
// connection or cursor is held between chunks.
func (s *SQLBlobStore) ReadChunks(ctx context.Context, blobID string, count int) ChunkIterator {
	return newChunkIterator(ctx, blobID, count, func(ctx context.Context, seq int) ([]byte, error) {
		span, ctx := opentracing.StartSpanFromContext(ctx, "sql_read_chunk")
		span.SetTag("blob_id", blobID)
		defer span.Finish()

		var row chunkRow
		err := s.db.GetContext(ctx, &row, "SELECT data, checksum FROM blob_chunks WHERE blob_id = ? AND seq = ?", blobID, seq)
		if err == sql.ErrNoRows {
			return nil, model.ErrBlobNotFound
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.WithField("blob_id", blobID).WithField("seq", seq).WithError(err).Error("Error reading chunk from db")
			return nil, model.NewStorageError("read_chunk", blobID, err)
		}
		if int64(xxhash.Sum64(row.Data)) != row.Checksum {
			return nil, model.NewStorageError("read_chunk", blobID, fmt.Errorf("checksum mismatch on chunk %d", seq))
		}
		return row.Data, nil
	})
}

// DeleteChunks implements ChunkStore
func (s *SQLBlobStore) DeleteChunks(ctx context.Context, blobID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "sql_delete_chunks")
	span.SetTag("blob_id", blobID)
	defer span.Finish()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM blob_chunks WHERE blob_id = ?", blobID); err != nil {
		log.WithField("blob_id", blobID).WithError(err).Error("Error deleting chunks from db")
		return model.NewStorageError("delete_chunks", blobID, err)
	}
	return nil
}

// OrphanCandidates implements ChunkStore
func (s *SQLBlobStore) OrphanCandidates(ctx context.Context, writtenBefore time.Time) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "sql_orphan_candidates")
	defer span.Finish()

	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		"SELECT blob_id FROM blob_chunks GROUP BY blob_id HAVING MAX(written_at) < ?", writtenBefore.UnixNano())
	if err != nil {
		return nil, model.NewStorageError("orphan_candidates", "", err)
	}
	return ids, nil
}

// Create implements Index
func (s *SQLBlobStore) Create(ctx context.Context, blob *model.Blob) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "sql_create_blob")
	span.SetTag("blob_id", blob.ID)
	defer span.Finish()

	metadata, err := encodeMetadata(blob.Metadata)
	if err != nil {
		return model.NewStorageError("create_index", blob.ID, err)
	}

	_, err = s.db.ExecContext(ctx, "INSERT INTO blob_index("+blobIndexColumns+") VALUES(?,?,?,?,?,?,?,?,?)",
		blob.ID, blob.Filename, blob.ContentType, blob.Length, blob.ChunkSize, blob.Digest, metadata,
		blob.UploadedAt.UnixNano(), atomic.AddInt64(&s.insertSeq, 1))
	if err != nil {
		if isDuplicateKey(err) {
			return model.ErrBlobExists
		}
		log.WithField("blob_id", blob.ID).WithField("content_type", blob.ContentType).WithField("blob_length", blob.Length).WithError(err).Error("Error inserting blob into db")
		return model.NewStorageError("create_index", blob.ID, err)
	}
	return nil
}

// Get implements Index
func (s *SQLBlobStore) Get(ctx context.Context, blobID string) (*model.Blob, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "sql_get_blob")
	span.SetTag("blob_id", blobID)
	defer span.Finish()

	var row blobRow
	err := s.db.GetContext(ctx, &row, "SELECT "+blobIndexColumns+" FROM blob_index WHERE blob_id = ?", blobID)
	if err == sql.ErrNoRows {
		return nil, model.ErrBlobNotFound
	}
	if err != nil {
		log.WithField("blob_id", blobID).WithError(err).Error("Error querying blob from db")
		return nil, model.NewStorageError("get_index", blobID, err)
	}
	return row.toBlob()
}

// List implements Index
func (s *SQLBlobStore) List(ctx context.Context) ([]*model.Blob, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "sql_list_blobs")
	defer span.Finish()

	var rows []blobRow
	err := s.db.SelectContext(ctx, &rows, "SELECT "+blobIndexColumns+" FROM blob_index ORDER BY uploaded_at DESC, insert_seq DESC")
	if err != nil {
		log.WithError(err).Error("Error listing blobs from db")
		return nil, model.NewStorageError("list_index", "", err)
	}

	result := make([]*model.Blob, 0, len(rows))
	for i := range rows {
		blob, err := rows[i].toBlob()
		if err != nil {
			return nil, err
		}
		result = append(result, blob)
	}
	return result, nil
}

// Delete implements Index
func (s *SQLBlobStore) Delete(ctx context.Context, blobID string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "sql_delete_blob")
	span.SetTag("blob_id", blobID)
	defer span.Finish()

	res, err := s.db.ExecContext(ctx, "DELETE FROM blob_index WHERE blob_id = ?", blobID)
	if err != nil {
		log.WithField("blob_id", blobID).WithError(err).Error("Error deleting blob from db")
		return false, model.NewStorageError("delete_index", blobID, err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, model.NewStorageError("delete_index", blobID, err)
	}
	return removed > 0, nil
}

// Close implements Store
func (s *SQLBlobStore) Close() error {
	return s.db.Close()
}

func (r *blobRow) toBlob() (*model.Blob, error) {
	metadata, err := decodeMetadata(r.Metadata)
	if err != nil {
		return nil, model.NewStorageError("decode_index", r.BlobID, err)
	}
	return &model.Blob{
		ID:          r.BlobID,
		Filename:    r.Filename,
		ContentType: r.ContentType,
		Length:      r.Length,
		UploadedAt:  time.Unix(0, r.UploadedAt).UTC(),
		Metadata:    metadata,
		ChunkSize:   r.ChunkSize,
		Digest:      r.Digest,
	}, nil
}
