package job

import (
	"context"

	"github.com/corpora-dev/corpora/internal/service"
)

// IndexFlushJob snapshots the index periodically so a crash loses at
// most one flush interval of additions.
type IndexFlushJob struct {
	ingest *service.IngestService
}

func NewIndexFlushJob(ingest *service.IngestService) *IndexFlushJob {
	return &IndexFlushJob{ingest: ingest}
}

func (j *IndexFlushJob) Name() string {
	return "index_flush"
}

func (j *IndexFlushJob) Run(ctx context.Context) error {
	if j.ingest == nil {
		return nil
	}
	return j.ingest.SaveIndex(ctx)
}
