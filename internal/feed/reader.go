package feed

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultRetryDelay   = 100 * time.Millisecond
	defaultMaxLineBytes = 1 << 20
	progressTimeout     = 5 * time.Second
)

// Reader consumes the candidate queue file written by the discovery process.
// Only complete lines are read; every delivered token is remembered so a
// record is never emitted twice, and the byte offset is committed after each
// line so a restart resumes where it stopped.
type Reader struct {
	path         string
	progress     storage.FeedProgressStore
	pollInterval time.Duration
	retryDelay   time.Duration
	maxLineBytes int
	logger       *log.Logger
	now          func() time.Time

	mu     sync.Mutex // one scan at a time
	loaded bool
	seen   map[string]struct{}

	offset    atomic.Int64 // written only during a scan
	delivered atomic.Int64
	corrupt   atomic.Int64
}

// Options contains configuration for creating a Reader.
type Options struct {
	Path         string
	Progress     storage.FeedProgressStore // optional, progress is in-memory only when nil
	PollInterval time.Duration             // default 500ms
	RetryDelay   time.Duration             // wait after a partial line, default 100ms
	MaxLineBytes int                       // longer lines are corrupt, default 1MiB
	Logger       *log.Logger
	Clock        func() time.Time
}

// New creates a new feed reader.
func New(opts Options) *Reader {
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	maxLine := opts.MaxLineBytes
	if maxLine <= 0 {
		maxLine = defaultMaxLineBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Reader{
		path:         opts.Path,
		progress:     opts.Progress,
		pollInterval: pollInterval,
		retryDelay:   retryDelay,
		maxLineBytes: maxLine,
		logger:       logger,
		now:          clock,
		seen:         make(map[string]struct{}),
	}
}

// Poll returns the records appended since the last committed offset.
// Lines are read lazily as the consumer pulls; the offset moves past a
// record once the consumer has received it. Breaking out early and polling
// again resumes at the next record. The loop body may read Offset and the
// counters but must not Poll or Run the same Reader.
func (r *Reader) Poll(ctx context.Context) iter.Seq[domain.CandidateRecord] {
	return func(yield func(domain.CandidateRecord) bool) {
		r.scan(ctx, func(rec domain.CandidateRecord) (bool, bool) {
			return true, yield(rec)
		})
	}
}

// Run polls the file and sends new records to out until ctx is done.
// A record is committed only once out has accepted it.
func (r *Reader) Run(ctx context.Context, out chan<- domain.CandidateRecord) error {
	r.logger.Printf("Reading candidates from %s", r.path)

	deliver := func(rec domain.CandidateRecord) (bool, bool) {
		select {
		case out <- rec:
			return true, true
		case <-ctx.Done():
			return false, false
		}
	}

	for {
		wait := r.pollInterval
		if partial := r.scan(ctx, deliver); partial {
			wait = r.retryDelay
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Offset returns the committed byte offset. It is safe to call while a
// Poll loop is running.
func (r *Reader) Offset() int64 {
	return r.offset.Load()
}

// Delivered returns the number of records delivered since start.
func (r *Reader) Delivered() int64 {
	return r.delivered.Load()
}

// Corrupt returns the number of malformed lines skipped since start.
func (r *Reader) Corrupt() int64 {
	return r.corrupt.Load()
}

// scan reads complete lines from the committed offset and hands new records
// to handle, which reports whether it accepted the record and whether to
// continue. scan reports whether it stopped at an incomplete line.
func (r *Reader) scan(ctx context.Context, handle func(domain.CandidateRecord) (accepted, more bool)) (partial bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.load(ctx); err != nil {
		r.logger.Printf("load feed progress: %v", err)
		return false
	}

	f, err := os.Open(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	if err != nil {
		r.logger.Printf("open candidate file: %v", err)
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		r.logger.Printf("stat candidate file: %v", err)
		return false
	}
	if offset := r.offset.Load(); info.Size() < offset {
		r.logger.Printf("candidate file shrank to %d bytes below offset %d, rereading from start", info.Size(), offset)
		r.commit(0, "")
	}
	if _, err := f.Seek(r.offset.Load(), io.SeekStart); err != nil {
		r.logger.Printf("seek candidate file: %v", err)
		return false
	}

	br := bufio.NewReaderSize(f, 64*1024)
	for ctx.Err() == nil {
		line, err := br.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// Producer mid-write: leave the fragment for the next scan
			return len(line) > 0
		}
		if err != nil {
			r.logger.Printf("read candidate file: %v", err)
			return false
		}

		start := r.offset.Load()
		next := start + int64(len(line))
		body := bytes.TrimSpace(line)
		if len(body) == 0 {
			r.commit(next, "")
			continue
		}

		rec, err := r.parse(body)
		if err != nil {
			r.corrupt.Add(1)
			r.logger.Printf("WARN: %v", &domain.FeedCorruption{Offset: start, Line: truncate(body, 120), Err: err})
			r.commit(next, "")
			continue
		}
		if _, dup := r.seen[rec.Token]; dup {
			r.commit(next, "")
			continue
		}

		accepted, more := handle(rec)
		if !accepted {
			return false
		}
		r.delivered.Add(1)
		r.commit(next, rec.Token)
		if !more {
			return false
		}
	}
	return false
}

func (r *Reader) parse(body []byte) (domain.CandidateRecord, error) {
	if len(body) > r.maxLineBytes {
		return domain.CandidateRecord{}, errors.New("line exceeds size limit")
	}
	return ParseRecord(body, r.now())
}

// load warms the offset and dedup set from the progress store once.
func (r *Reader) load(ctx context.Context) error {
	if r.loaded || r.progress == nil {
		r.loaded = true
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, progressTimeout)
	defer cancel()

	p, err := r.progress.GetOffset(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return err
	default:
		r.offset.Store(p.Offset)
	}

	tokens, err := r.progress.LoadSeenTokens(ctx)
	if err != nil {
		return err
	}
	for _, t := range tokens {
		r.seen[t] = struct{}{}
	}
	r.loaded = true
	r.logger.Printf("Resuming candidate feed at offset %d with %d known tokens", r.offset.Load(), len(tokens))
	return nil
}

// commit moves the offset and records a delivered token. Store failures
// are logged; the in-memory state still prevents redelivery in this process.
func (r *Reader) commit(offset int64, token string) {
	r.offset.Store(offset)
	if token != "" {
		r.seen[token] = struct{}{}
	}
	if r.progress == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), progressTimeout)
	defer cancel()
	if token != "" {
		if err := r.progress.MarkTokenSeen(ctx, token); err != nil {
			r.logger.Printf("ERROR: persist seen token %s: %v", token, err)
		}
	}
	if err := r.progress.SetOffset(ctx, &storage.FeedProgress{Offset: offset, UpdatedAt: r.now()}); err != nil {
		r.logger.Printf("ERROR: persist feed offset %d: %v", offset, err)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
