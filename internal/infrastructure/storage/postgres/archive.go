package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"linkpress/internal/core/id"
	"linkpress/internal/domain/deletion"
	"linkpress/internal/domain/links"
)

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// ArchiveEntry is a snapshot of a deleted link batch.
type ArchiveEntry struct {
	ID                id.ID           `db:"id"`
	DomainName        string          `db:"domain_name"`
	LinkCount         int             `db:"link_count"`
	Payload           json.RawMessage `db:"payload"`
	PayloadCompressed []byte          `db:"payload_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

var _ deletion.Archiver = (*LinkArchive)(nil)

// LinkArchive snapshots link rows before the pipeline bulk-deletes
// them, so accidental deletions can be inspected and restored by hand.
type LinkArchive struct {
	txm               *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes
}

// NewLinkArchive creates a new link archive.
func NewLinkArchive(txm *TxManager) (*LinkArchive, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &LinkArchive{
		txm:               txm,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 4 * 1024,
	}, nil
}

// ArchiveBatch stores one batch snapshot. Large payloads are
// zstd-compressed; small ones stay as plain JSON for easy querying.
func (a *LinkArchive) ArchiveBatch(ctx context.Context, domain string, batch []*links.Link) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal link batch: %w", err)
	}

	entry := ArchiveEntry{
		ID:              id.New(),
		DomainName:      domain,
		LinkCount:       len(batch),
		Payload:         payload,
		CompressionAlgo: CompressionNone,
		CreatedAt:       time.Now().UTC(),
	}

	if len(payload) > a.compressThreshold {
		entry.PayloadCompressed = a.encoder.EncodeAll(payload, nil)
		entry.Payload = nil
		entry.CompressionAlgo = CompressionZstd
	}

	_, err = a.txm.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO link_archive (
			id, domain_name, link_count,
			payload, payload_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.DomainName, entry.LinkCount,
		entry.Payload, entry.PayloadCompressed, entry.CompressionAlgo, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert archive entry: %w", err)
	}

	return nil
}

// GetByDomain retrieves archived batches for a domain, decompressing
// payloads as needed. Used by support tooling, not by the pipeline.
func (a *LinkArchive) GetByDomain(ctx context.Context, domain string, limit int) ([]ArchiveEntry, error) {
	rows, err := a.txm.GetQuerier(ctx).Query(ctx, `
		SELECT id, domain_name, link_count,
		       payload, payload_compressed, compression_algo, created_at
		FROM link_archive
		WHERE domain_name = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, domain, limit)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var entries []ArchiveEntry
	for rows.Next() {
		var e ArchiveEntry
		err := rows.Scan(
			&e.ID, &e.DomainName, &e.LinkCount,
			&e.Payload, &e.PayloadCompressed, &e.CompressionAlgo, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan archive entry: %w", err)
		}

		if e.CompressionAlgo == CompressionZstd && len(e.PayloadCompressed) > 0 {
			decompressed, err := a.decoder.DecodeAll(e.PayloadCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress archive payload: %w", err)
			}
			e.Payload = decompressed
			e.PayloadCompressed = nil
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}
