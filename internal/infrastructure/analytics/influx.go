// Package analytics records deletion tombstone events in InfluxDB.
// Fire-and-forget from the pipeline's perspective: events are never
// read back or mutated.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"linkpress/internal/domain/deletion"
)

// measurementLinkDeleted is the series holding per-link tombstones.
const measurementLinkDeleted = "link_deleted"

// SinkConfig holds InfluxDB connection settings.
type SinkConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

var _ deletion.EventSink = (*Sink)(nil)

// Sink writes tombstone events to InfluxDB.
type Sink struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

// NewSink creates an analytics sink.
func NewSink(cfg SinkConfig) *Sink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Sink{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

// RecordDeleted appends one tombstone point per event in a single
// batched write.
func (s *Sink) RecordDeleted(ctx context.Context, events []deletion.TombstoneEvent) error {
	if len(events) == 0 {
		return nil
	}

	points := make([]*write.Point, 0, len(events))
	now := time.Now().UTC()
	for _, ev := range events {
		p := influxdb2.NewPoint(measurementLinkDeleted,
			map[string]string{
				"domain":       ev.Domain,
				"workspace_id": ev.WorkspaceID,
			},
			map[string]any{
				"link_id":    ev.LinkID,
				"key":        ev.Key,
				"url":        ev.URL,
				"tag_ids":    strings.Join(ev.TagIDs, ","),
				"created_at": ev.CreatedAt.UTC().Format(time.RFC3339),
				"deleted":    ev.Deleted,
			},
			now,
		)
		points = append(points, p)
	}

	if err := s.write.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write tombstone events: %w", err)
	}
	return nil
}

// Close shuts down the underlying client.
func (s *Sink) Close() {
	s.client.Close()
}
