// Package publish delivers finished takes. Requests are queued and handled
// on a dedicated goroutine so a slow upload never holds up recording.
package publish

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jsphweid/pianobot/model"
)

// Storage keeps published files, keyed by file name.
type Storage interface {
	Name() string
	Put(ctx context.Context, name, contentType string, data []byte) error
}

// Notifier announces takes and status changes to people.
type Notifier interface {
	PostText(ctx context.Context, text string) error
	Upload(ctx context.Context, name string, data []byte, public bool) error
}

// Index records take metadata for later lookup.
type Index interface {
	Name() string
	PutTake(ctx context.Context, meta model.TakeMetadata) error
}

type Options struct {
	Notifier  Notifier
	Stores    []Storage
	Index     Index
	Timeout   time.Duration
	// QueueSize is the initial backlog capacity; the backlog is unbounded.
	QueueSize int
	Log       *slog.Logger
}

type jobKind uint8

const (
	jobTake jobKind = iota
	jobRawLog
	jobIndex
	jobText
)

type job struct {
	kind   jobKind
	prefix string
	data   []byte
	public bool
	events []model.RawEvent
	meta   model.TakeMetadata
	text   string
}

type Publisher struct {
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	pending *sync.Cond
	backlog []job
	closed  bool

	start sync.Once
	done  chan struct{}
}

func New(opts Options) *Publisher {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	p := &Publisher{
		opts:    opts,
		log:     opts.Log,
		backlog: make([]job, 0, opts.QueueSize),
		done:    make(chan struct{}),
	}
	p.pending = sync.NewCond(&p.mu)
	return p
}

func (p *Publisher) Start() {
	p.start.Do(func() {
		go p.run()
	})
}

// Shutdown stops accepting requests and waits for queued ones to finish.
func (p *Publisher) Shutdown() {
	p.Start()
	p.mu.Lock()
	p.closed = true
	p.pending.Broadcast()
	p.mu.Unlock()
	<-p.done
}

func (p *Publisher) PublishTake(prefix string, data []byte, public bool) {
	p.enqueue(job{kind: jobTake, prefix: prefix, data: data, public: public})
}

func (p *Publisher) PublishRawLog(prefix string, events []model.RawEvent) {
	p.enqueue(job{kind: jobRawLog, prefix: prefix, events: events})
}

func (p *Publisher) IndexTake(meta model.TakeMetadata) {
	p.enqueue(job{kind: jobIndex, meta: meta})
}

func (p *Publisher) NotifyText(text string) {
	p.enqueue(job{kind: jobText, text: text})
}

// enqueue never blocks; the backlog grows while the sinks are slow.
func (p *Publisher) enqueue(j job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.log.Warn("publish: dropping request after shutdown", "prefix", j.prefix)
		return
	}
	p.backlog = append(p.backlog, j)
	p.pending.Signal()
}

// next waits for a job. It reports false once shut down and drained.
func (p *Publisher) next() (job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.backlog) == 0 && !p.closed {
		p.pending.Wait()
	}
	if len(p.backlog) == 0 {
		return job{}, false
	}
	j := p.backlog[0]
	p.backlog[0] = job{}
	p.backlog = p.backlog[1:]
	return j, true
}

// Backlog is the number of requests not yet picked up.
func (p *Publisher) Backlog() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.backlog)
}

func (p *Publisher) run() {
	defer close(p.done)
	for {
		j, ok := p.next()
		if !ok {
			return
		}
		p.handle(j)
	}
}

func (p *Publisher) handle(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
	defer cancel()

	switch j.kind {
	case jobTake:
		p.publishTake(ctx, j)
	case jobRawLog:
		p.publishRawLog(ctx, j)
	case jobIndex:
		if p.opts.Index == nil {
			return
		}
		if err := p.opts.Index.PutTake(ctx, j.meta); err != nil {
			p.log.Error("publish: index failed", "index", p.opts.Index.Name(), "take", j.meta.Name, "err", err)
		}
	case jobText:
		if p.opts.Notifier == nil {
			p.log.Info("publish: " + j.text)
			return
		}
		if err := p.opts.Notifier.PostText(ctx, j.text); err != nil {
			p.log.Error("publish: text failed", "err", err)
		}
	}
}

func (p *Publisher) publishTake(ctx context.Context, j job) {
	name := j.prefix + ".mid"
	p.log.Info("publish: take", "name", name, "bytes", len(j.data), "public", j.public)

	if n := p.opts.Notifier; n != nil {
		if err := n.Upload(ctx, name, j.data, false); err != nil {
			p.log.Error("publish: private upload failed", "name", name, "err", err)
		}
		if j.public {
			if err := n.Upload(ctx, name, j.data, true); err != nil {
				p.log.Error("publish: public upload failed", "name", name, "err", err)
			}
		}
	}
	p.store(ctx, name, "audio/midi", j.data)
}

func (p *Publisher) publishRawLog(ctx context.Context, j job) {
	name := j.prefix + ".json"
	data, err := json.Marshal(j.events)
	if err != nil {
		p.log.Error("publish: could not encode raw log", "name", name, "err", err)
		return
	}
	p.store(ctx, name, "application/json", data)
}

func (p *Publisher) store(ctx context.Context, name, contentType string, data []byte) {
	for _, s := range p.opts.Stores {
		if err := s.Put(ctx, name, contentType, data); err != nil {
			p.log.Error("publish: store failed", "store", s.Name(), "name", name, "err", err)
		}
	}
}
