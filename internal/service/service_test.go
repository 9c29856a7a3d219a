package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-rag/internal/checklist"
	"compliance-rag/internal/chunker"
	"compliance-rag/internal/documents"
	"compliance-rag/internal/domain"
	"compliance-rag/internal/embedding/hashing"
	"compliance-rag/internal/index"
	"compliance-rag/internal/pipeline"
	"compliance-rag/internal/retrieval"
	storemem "compliance-rag/internal/store/memory"
	vecmem "compliance-rag/internal/vectorstore/memory"
	"compliance-rag/internal/worker"
)

type completerFunc func(ctx context.Context, chunk string, index int) (string, error)

func (f completerFunc) Complete(ctx context.Context, chunk string, index int) (string, error) {
	return f(ctx, chunk, index)
}

type recordingAnswerer struct {
	mu       sync.Mutex
	question string
	chunks   []string
}

func (r *recordingAnswerer) Answer(_ context.Context, question string, chunks []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.question = question
	r.chunks = chunks
	return "answer", nil
}

type fixture struct {
	svc      *Service
	vectors  *vecmem.Storage
	answerer *recordingAnswerer
}

func newFixture(t *testing.T, c completerFunc, pool *worker.Pool) *fixture {
	t.Helper()
	ch, err := chunker.NewFixedSizeChunker(5)
	require.NoError(t, err)
	p, err := pipeline.New(c, pipeline.Config{Workers: 3}, nil)
	require.NoError(t, err)
	vectors := vecmem.NewStorage()
	ix, err := index.New(hashing.NewEmbedder(0), vectors)
	require.NoError(t, err)
	engine, err := retrieval.NewEngine(ix, retrieval.Config{}, nil)
	require.NoError(t, err)
	ans := &recordingAnswerer{}
	svc, err := New(Deps{
		Documents: documents.NewRepository(storemem.New()),
		Chunker:   ch,
		Pipeline:  p,
		Index:     ix,
		Retriever: engine,
		Answerer:  ans,
		Pool:      pool,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, vectors: vectors, answerer: ans}
}

func echoCompleter(_ context.Context, chunk string, _ int) (string, error) {
	return "[" + chunk + "]", nil
}

func TestProcessDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("ShouldCompleteAndIndexDocument", func(t *testing.T) {
		f := newFixture(t, echoCompleter, nil)
		res, err := f.svc.ProcessDocument(ctx, "a.pdf", "abcdefghijkl")
		require.NoError(t, err)
		assert.Equal(t, "[abcde]\n[fghij]\n[kl]", res.ComplianceInfo)
		assert.Equal(t, checklist.Baseline, res.Checklist)

		doc, err := f.svc.Get(ctx, "a.pdf")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, doc.Status)
		assert.Empty(t, doc.Error)
		n, _ := f.vectors.Count(ctx)
		assert.Equal(t, 1, n)
	})
	t.Run("ShouldDropIndexRecordWhenReprocessedTextFails", func(t *testing.T) {
		var fail atomic.Bool
		f := newFixture(t, func(_ context.Context, chunk string, i int) (string, error) {
			if fail.Load() {
				e := domain.NewError(domain.KindRemoteAPI, "llm.complete", errors.New("500"))
				e.ChunkIndex = i
				return "", e
			}
			return chunk, nil
		}, nil)
		_, err := f.svc.ProcessDocument(ctx, "c.pdf", "old policy text")
		require.NoError(t, err)
		n, _ := f.vectors.Count(ctx)
		require.Equal(t, 1, n)

		fail.Store(true)
		_, err = f.svc.ProcessDocument(ctx, "c.pdf", "new policy text")
		require.Error(t, err)
		n, _ = f.vectors.Count(ctx)
		assert.Zero(t, n)
		_, err = f.svc.AnswerQuery(ctx, "old policy text")
		require.NoError(t, err)
		assert.Empty(t, f.answerer.chunks)
	})
	t.Run("ShouldFailWholeDocumentWithoutPartialResult", func(t *testing.T) {
		f := newFixture(t, func(_ context.Context, chunk string, i int) (string, error) {
			if i == 1 {
				e := domain.NewError(domain.KindRetriesExhausted, "llm.complete", errors.New("429"))
				e.ChunkIndex = i
				return "", e
			}
			return chunk, nil
		}, nil)
		_, err := f.svc.ProcessDocument(ctx, "b.pdf", "abcdefghijkl")
		require.Error(t, err)
		assert.Equal(t, domain.KindRetriesExhausted, domain.KindOf(err))
		var de *domain.Error
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "b.pdf", de.DocumentID)

		doc, err := f.svc.Get(ctx, "b.pdf")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, doc.Status)
		assert.Nil(t, doc.Result)
		assert.Contains(t, doc.Error, "retries_exhausted")
		n, _ := f.vectors.Count(ctx)
		assert.Zero(t, n)
	})
	t.Run("ShouldMarkDocumentFailedWhenCanceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		f := newFixture(t, echoCompleter, nil)
		// A single worker makes the next dispatch wait for the canceling call.
		p, err := pipeline.New(completerFunc(func(_ context.Context, chunk string, _ int) (string, error) {
			cancel()
			return chunk, nil
		}), pipeline.Config{Workers: 1}, nil)
		require.NoError(t, err)
		f.svc.deps.Pipeline = p
		_, err = f.svc.ProcessDocument(cctx, "c.pdf", "abcdefghijkl")
		assert.Equal(t, domain.KindCanceled, domain.KindOf(err))
		doc, err := f.svc.Get(ctx, "c.pdf")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, doc.Status)
		assert.Nil(t, doc.Result)
	})
	t.Run("ShouldRejectEmptyID", func(t *testing.T) {
		f := newFixture(t, echoCompleter, nil)
		_, err := f.svc.ProcessDocument(ctx, " ", "text")
		assert.Equal(t, domain.KindInvalidArgument, domain.KindOf(err))
	})
}

func TestSingleOwnerPerDocument(t *testing.T) {
	var active, peak atomic.Int32
	c := func(_ context.Context, chunk string, _ int) (string, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return chunk, nil
	}
	ch, err := chunker.NewFixedSizeChunker(1000)
	require.NoError(t, err)
	f := newFixture(t, c, nil)
	f.svc.deps.Chunker = ch
	require.NoError(t, f.svc.deps.Documents.Save(context.Background(), &domain.Document{ID: "same.pdf", Content: "one chunk", Status: domain.StatusUploaded}))
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.process(context.Background(), "same.pdf")
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(1))
}

func TestSubmitAndChecklists(t *testing.T) {
	ctx := context.Background()
	pool := worker.Start(ctx, worker.Config{Workers: 2, QueueSize: 4})
	f := newFixture(t, func(_ context.Context, chunk string, _ int) (string, error) {
		if strings.Contains(chunk, "bad") {
			return "", domain.NewError(domain.KindRemoteAPI, "llm.complete", errors.New("400"))
		}
		return chunk, nil
	}, pool)

	require.NoError(t, f.svc.Submit(ctx, "good.pdf", "fine"))
	require.NoError(t, f.svc.Submit(ctx, "bad.pdf", "bad"))
	require.NoError(t, pool.Close())

	ov, err := f.svc.Checklists(ctx)
	require.NoError(t, err)
	require.Len(t, ov.Results, 1)
	assert.Equal(t, "good.pdf", ov.Results[0].DocumentID)
	assert.Equal(t, "fine", ov.Results[0].Result.ComplianceInfo)
	require.Len(t, ov.Errors, 1)
	assert.Equal(t, "bad.pdf", ov.Errors[0].DocumentID)
	assert.Empty(t, ov.Processing)
}

func TestReprocess(t *testing.T) {
	ctx := context.Background()
	var fail atomic.Bool
	fail.Store(true)
	pool := worker.Start(ctx, worker.Config{Workers: 1})
	f := newFixture(t, func(_ context.Context, chunk string, _ int) (string, error) {
		if fail.Load() {
			return "", domain.NewError(domain.KindRemoteAPI, "llm.complete", errors.New("500"))
		}
		return chunk, nil
	}, pool)

	_, err := f.svc.ProcessDocument(ctx, "r.pdf", "text")
	require.Error(t, err)

	fail.Store(false)
	require.NoError(t, f.svc.Reprocess(ctx, "r.pdf"))
	require.NoError(t, pool.Close())

	doc, err := f.svc.Get(ctx, "r.pdf")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, doc.Status)
	assert.Equal(t, 1, doc.RetryCount)

	t.Run("ShouldRejectNonFailedDocument", func(t *testing.T) {
		err := f.svc.Reprocess(ctx, "r.pdf")
		assert.Equal(t, domain.KindInvalidArgument, domain.KindOf(err))
	})
	t.Run("ShouldReportMissingDocument", func(t *testing.T) {
		err := f.svc.Reprocess(ctx, "missing.pdf")
		assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, echoCompleter, nil)
	_, err := f.svc.ProcessDocument(ctx, "d.pdf", "text")
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, "d.pdf"))
	_, err = f.svc.Get(ctx, "d.pdf")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	n, _ := f.vectors.Count(ctx)
	assert.Zero(t, n)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(f.svc.Delete(ctx, "d.pdf")))
}

func TestAnswerQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("ShouldRejectEmptyQuestion", func(t *testing.T) {
		f := newFixture(t, echoCompleter, nil)
		_, err := f.svc.AnswerQuery(ctx, "   ")
		assert.Equal(t, domain.KindInvalidArgument, domain.KindOf(err))
	})
	t.Run("ShouldPassRetrievedTextToAnswerer", func(t *testing.T) {
		f := newFixture(t, echoCompleter, nil)
		_, err := f.svc.ProcessDocument(ctx, "mfa.pdf", "Multi-factor authentication is mandatory.")
		require.NoError(t, err)
		out, err := f.svc.AnswerQuery(ctx, "Multi-factor authentication is mandatory.")
		require.NoError(t, err)
		assert.Equal(t, "answer", out)
		assert.Equal(t, []string{"Multi-factor authentication is mandatory."}, f.answerer.chunks)
	})
	t.Run("ShouldPassNothingWhenIndexIsEmpty", func(t *testing.T) {
		f := newFixture(t, echoCompleter, nil)
		_, err := f.svc.AnswerQuery(ctx, "anything?")
		require.NoError(t, err)
		assert.Empty(t, f.answerer.chunks)
	})
}
