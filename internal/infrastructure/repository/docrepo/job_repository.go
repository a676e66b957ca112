package docrepo

import (
	"context"
	"fmt"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
)

type jobDocument struct {
	domain.Job
	CreatedMicros int64 `json:"created_micros"`
}

type JobRepository struct {
	store ports.DocumentStore
}

var _ ports.JobRepository = (*JobRepository)(nil)

func NewJobRepository(store ports.DocumentStore) *JobRepository {
	return &JobRepository{store: store}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	raw, err := encode(jobDocument{Job: *job, CreatedMicros: micros(job.CreatedAt)}, "job")
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, JobsCollection, job.ID, raw); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id string) (*domain.Job, error) {
	raw, err := r.store.Get(ctx, JobsCollection, id)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	doc, err := decode[jobDocument](raw, "job")
	if err != nil {
		return nil, err
	}
	return &doc.Job, nil
}

func (r *JobRepository) Update(ctx context.Context, id string, mutate func(*domain.Job) error) (*domain.Job, error) {
	var updated domain.Job
	err := r.store.Update(ctx, JobsCollection, id, func(current []byte) ([]byte, error) {
		doc, err := decode[jobDocument](current, "job")
		if err != nil {
			return nil, err
		}
		if err := mutate(&doc.Job); err != nil {
			return nil, err
		}
		updated = doc.Job
		return encode(doc, "job")
	})
	if err != nil {
		return nil, fmt.Errorf("update job %s: %w", id, err)
	}
	return &updated, nil
}

func (r *JobRepository) ListByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]domain.Job, error) {
	return r.list(ctx, ports.Query{
		Filters: []ports.Filter{{Field: "status", Op: ports.OpEqual, Value: status}},
		OrderBy: []ports.Order{{Field: "priority", Desc: true}, {Field: "created_micros"}},
		Limit:   limit,
	})
}

func (r *JobRepository) ListForBrand(ctx context.Context, brandID string, jobType domain.JobType, status domain.JobStatus) ([]domain.Job, error) {
	return r.list(ctx, ports.Query{
		Filters: []ports.Filter{
			{Field: "brand_id", Op: ports.OpEqual, Value: brandID},
			{Field: "type", Op: ports.OpEqual, Value: jobType},
			{Field: "status", Op: ports.OpEqual, Value: status},
		},
		OrderBy: []ports.Order{{Field: "created_micros"}},
	})
}

func (r *JobRepository) list(ctx context.Context, q ports.Query) ([]domain.Job, error) {
	page, err := r.store.Query(ctx, JobsCollection, q)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	out := make([]domain.Job, 0, len(page.Records))
	for _, rec := range page.Records {
		doc, err := decode[jobDocument](rec.Data, "job")
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", rec.ID, err)
		}
		out = append(out, doc.Job)
	}
	return out, nil
}
