package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
	"github.com/ManuelReschke/SubFox/internal/pkg/clock"
	"github.com/ManuelReschke/SubFox/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// WatermarkKey is the settings key holding the id of the last archived usage record.
const WatermarkKey = "usage_archive_watermark"

const (
	defaultChunkSize = 1000
	outcomeArchived  = "archived"
)

// ObjectPutter stores archive chunks. Implemented by *Client.
type ObjectPutter interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

// RecordSource pages through aged ledger entries in id order.
type RecordSource interface {
	ListOlderThan(cutoff time.Time, afterID uint, limit int) ([]models.UsageRecord, error)
}

// Exporter copies usage records older than the configured age to object storage
// as JSON lines. Records stay in the database.
type Exporter struct {
	records   RecordSource
	putter    ObjectPutter
	settings  *models.SettingsStore
	config    *Config
	clock     clock.Clock
	chunkSize int
}

// NewExporter creates an exporter. A nil clock means the system clock.
func NewExporter(records RecordSource, putter ObjectPutter, settings *models.SettingsStore, cfg *Config, c clock.Clock) *Exporter {
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Exporter{
		records:   records,
		putter:    putter,
		settings:  settings,
		config:    cfg,
		clock:     c,
		chunkSize: defaultChunkSize,
	}
}

// Watermark returns the id of the last archived record, 0 before the first run.
func (e *Exporter) Watermark() (uint, error) {
	raw, err := e.settings.GetValue(WatermarkKey)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", WatermarkKey, raw, err)
	}
	return uint(id), nil
}

// Run archives every record past the age limit that a previous run did not
// cover. The watermark advances after each uploaded chunk.
func (e *Exporter) Run(ctx context.Context) (res billing.SweepResult, err error) {
	now := e.clock.Now()
	res = billing.SweepResult{Sweep: "usage_archive", StartedAt: now, Outcomes: map[string]int{}}
	started := time.Now()
	defer func() { res.Duration = time.Since(started) }()

	s := e.settings.Get()
	if !s.UsageArchiveEnabled {
		log.Debug("[Archive] Usage archive disabled in settings, skipping")
		return res, nil
	}
	cutoff := now.Add(-time.Duration(s.UsageArchiveAfterDays) * 24 * time.Hour)

	watermark, err := e.Watermark()
	if err != nil {
		return res, err
	}
	runID := uuid.NewString()

	for {
		if err = ctx.Err(); err != nil {
			return res, err
		}
		var batch []models.UsageRecord
		batch, err = e.records.ListOlderThan(cutoff, watermark, e.chunkSize)
		if err != nil {
			return res, fmt.Errorf("list usage records after id %d: %w", watermark, err)
		}
		if len(batch) == 0 {
			break
		}

		body, encErr := encodeLines(batch)
		if encErr != nil {
			return res, encErr
		}
		first, last := batch[0].ID, batch[len(batch)-1].ID
		key := e.config.ObjectKey(now, first, last, runID)
		if err = e.putter.PutObject(ctx, key, body, "application/x-ndjson"); err != nil {
			res.Failed += len(batch)
			return res, err
		}
		if err = e.settings.SetValue(WatermarkKey, strconv.FormatUint(uint64(last), 10)); err != nil {
			return res, fmt.Errorf("advance watermark to %d: %w", last, err)
		}
		watermark = last
		res.Processed += len(batch)
		res.Outcomes[outcomeArchived] += len(batch)
		metrics.ObserveArchived(len(batch))
		log.Infof("[Archive] Archived usage records %d-%d to %s", first, last, key)

		if len(batch) < e.chunkSize {
			break
		}
	}
	return res, nil
}

func encodeLines(records []models.UsageRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return nil, fmt.Errorf("encode usage record %d: %w", records[i].ID, err)
		}
	}
	return buf.Bytes(), nil
}
