// Package service owns the document lifecycle and the question-answering path.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"compliance-rag/internal/checklist"
	"compliance-rag/internal/documents"
	"compliance-rag/internal/domain"
	"compliance-rag/internal/logger"
	"compliance-rag/internal/metrics"
	"compliance-rag/internal/retrieval"
	"compliance-rag/internal/worker"
)

// ChunkProcessor turns ordered chunk texts into ordered completions, all or nothing.
type ChunkProcessor interface {
	Process(ctx context.Context, chunks []string) ([]string, error)
}

// DocumentIndex stores one searchable record per document.
type DocumentIndex interface {
	Upsert(ctx context.Context, documentID, content string) error
	Remove(ctx context.Context, documentID string) error
}

type Retriever interface {
	Query(ctx context.Context, text string, topK int) ([]domain.Retrieved, error)
}

type Answerer interface {
	Answer(ctx context.Context, question string, chunks []string) (string, error)
}

// Deps are the collaborators of a Service. Pool may be nil when only the
// synchronous ProcessDocument path is used.
type Deps struct {
	Documents *documents.Repository
	Chunker   domain.Chunker
	Pipeline  ChunkProcessor
	Index     DocumentIndex
	Retriever Retriever
	Answerer  Answerer
	Pool      *worker.Pool
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

type Service struct {
	deps  Deps
	locks *keyedMutex
}

// DocumentResult is a completed document and its checklist.
type DocumentResult struct {
	DocumentID string
	Result     domain.ChecklistResult
}

// DocumentFailure is a failed document and its error message.
type DocumentFailure struct {
	DocumentID string
	Error      string
	RetryCount int
}

// Overview groups documents by lifecycle state, each list ordered by id.
type Overview struct {
	Results    []DocumentResult
	Processing []string
	Errors     []DocumentFailure
}

func New(deps Deps) (*Service, error) {
	switch {
	case deps.Documents == nil:
		return nil, errors.New("service: documents repository is required")
	case deps.Chunker == nil:
		return nil, errors.New("service: chunker is required")
	case deps.Pipeline == nil:
		return nil, errors.New("service: pipeline is required")
	case deps.Index == nil:
		return nil, errors.New("service: index is required")
	case deps.Retriever == nil:
		return nil, errors.New("service: retriever is required")
	case deps.Answerer == nil:
		return nil, errors.New("service: answerer is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps, locks: newKeyedMutex()}, nil
}

// Submit stores the document as Uploaded and queues it for processing.
// It blocks while the queue is full.
func (s *Service) Submit(ctx context.Context, id, text string) error {
	if s.deps.Pool == nil {
		return errors.New("service: no worker pool configured")
	}
	if err := s.ingest(ctx, id, text); err != nil {
		return err
	}
	return s.enqueue(ctx, id)
}

// Reprocess queues a Failed document again and bumps its retry counter.
func (s *Service) Reprocess(ctx context.Context, id string) error {
	if s.deps.Pool == nil {
		return errors.New("service: no worker pool configured")
	}
	release := s.locks.Lock(id)
	doc, err := s.deps.Documents.Get(ctx, id)
	if err != nil {
		release()
		return err
	}
	if doc.Status != domain.StatusFailed {
		release()
		return domain.InvalidArgument("service.reprocess", "document %s is %s, only failed documents can be reprocessed", id, doc.Status)
	}
	doc.RetryCount++
	doc.Status = domain.StatusUploaded
	doc.Error = ""
	doc.UpdatedAt = s.deps.Now()
	err = s.deps.Documents.Save(ctx, doc)
	release()
	if err != nil {
		return err
	}
	return s.enqueue(ctx, id)
}

// ProcessDocument stores text under id and runs the pipeline synchronously.
func (s *Service) ProcessDocument(ctx context.Context, id, text string) (*domain.ChecklistResult, error) {
	if err := s.ingest(ctx, id, text); err != nil {
		return nil, err
	}
	return s.process(ctx, id)
}

// Delete removes the document and its index record.
func (s *Service) Delete(ctx context.Context, id string) error {
	release := s.locks.Lock(id)
	defer release()
	if _, err := s.deps.Documents.Get(ctx, id); err != nil {
		return err
	}
	if err := s.deps.Index.Remove(ctx, id); err != nil {
		return err
	}
	return s.deps.Documents.Delete(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Document, error) {
	return s.deps.Documents.Get(ctx, id)
}

func (s *Service) Checklists(ctx context.Context) (Overview, error) {
	docs, err := s.deps.Documents.List(ctx)
	if err != nil {
		return Overview{}, err
	}
	var ov Overview
	for _, d := range docs {
		switch d.Status {
		case domain.StatusCompleted:
			if d.Result != nil {
				ov.Results = append(ov.Results, DocumentResult{DocumentID: d.ID, Result: *d.Result})
			}
		case domain.StatusFailed:
			ov.Errors = append(ov.Errors, DocumentFailure{DocumentID: d.ID, Error: d.Error, RetryCount: d.RetryCount})
		default:
			ov.Processing = append(ov.Processing, d.ID)
		}
	}
	return ov, nil
}

// AnswerQuery retrieves context for question and asks the model.
func (s *Service) AnswerQuery(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", domain.InvalidArgument("service.answer_query", "question is empty")
	}
	slots, err := s.deps.Retriever.Query(ctx, question, 0)
	if err != nil {
		return "", err
	}
	return s.deps.Answerer.Answer(ctx, question, retrieval.Texts(slots))
}

func (s *Service) ingest(ctx context.Context, id, text string) error {
	if strings.TrimSpace(id) == "" {
		return domain.InvalidArgument("service.ingest", "document id is empty")
	}
	release := s.locks.Lock(id)
	defer release()
	if existing, err := s.deps.Documents.Get(ctx, id); err == nil && existing.Status == domain.StatusProcessing {
		return domain.InvalidArgument("service.ingest", "document %s is being processed", id)
	}
	return s.deps.Documents.Save(ctx, &domain.Document{
		ID:        id,
		Content:   text,
		Status:    domain.StatusUploaded,
		UpdatedAt: s.deps.Now(),
	})
}

func (s *Service) enqueue(ctx context.Context, id string) error {
	// The job runs under the pool's context, not the submitter's.
	return s.deps.Pool.Submit(ctx, func(workerCtx context.Context) error {
		_, err := s.process(workerCtx, id)
		return err
	})
}

// process runs one document through the pipeline while holding its lock.
func (s *Service) process(ctx context.Context, id string) (*domain.ChecklistResult, error) {
	release := s.locks.Lock(id)
	defer release()
	log := logger.FromContext(ctx).With("document_id", id)
	ctx = logger.ContextWithLogger(ctx, log)

	doc, err := s.deps.Documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.Status = domain.StatusProcessing
	doc.Error = ""
	doc.UpdatedAt = s.deps.Now()
	if err := s.deps.Documents.Save(ctx, doc); err != nil {
		return nil, err
	}
	log.Info("Processing document")

	result, err := s.run(ctx, doc)
	// Record the outcome even if ctx was canceled meanwhile.
	saveCtx := context.WithoutCancel(ctx)
	doc.UpdatedAt = s.deps.Now()
	if err != nil {
		doc.Status = domain.StatusFailed
		doc.Error = err.Error()
		doc.Result = nil
		log.Error("Document failed", "kind", domain.KindOf(err), "chunk", domain.ChunkIndexOf(err), "error", err)
		s.deps.Metrics.DocumentFinished(string(domain.StatusFailed))
		if saveErr := s.deps.Documents.Save(saveCtx, doc); saveErr != nil {
			log.Error("Failed to store document failure", "error", saveErr)
		}
		// A failed document must not answer questions from an earlier text.
		if rmErr := s.deps.Index.Remove(saveCtx, id); rmErr != nil {
			log.Error("Failed to drop stale index record", "error", rmErr)
		}
		return nil, withDocument(err, id)
	}
	doc.Status = domain.StatusCompleted
	doc.Result = result
	if err := s.deps.Documents.Save(saveCtx, doc); err != nil {
		return nil, err
	}
	s.deps.Metrics.DocumentFinished(string(domain.StatusCompleted))
	log.Info("Document completed", "checklist_items", len(result.Checklist))
	return result, nil
}

// run produces the checklist and indexes the text. Nothing is persisted here,
// so a failure leaves no partial result behind.
func (s *Service) run(ctx context.Context, doc *domain.Document) (*domain.ChecklistResult, error) {
	chunks, err := s.deps.Chunker.Chunk(*doc)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	completions, err := s.deps.Pipeline.Process(ctx, texts)
	if err != nil {
		return nil, err
	}
	result := checklist.Assemble(completions)
	if err := s.deps.Index.Upsert(ctx, doc.ID, doc.Content); err != nil {
		return nil, err
	}
	return &result, nil
}

func withDocument(err error, id string) error {
	var de *domain.Error
	if errors.As(err, &de) && de.DocumentID == "" {
		cp := *de
		cp.DocumentID = id
		return &cp
	}
	return err
}
