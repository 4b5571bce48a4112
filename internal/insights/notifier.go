package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/atelierhq/recall/internal/memory"
	inats "github.com/atelierhq/recall/internal/nats"
)

const (
	notifierConsumer = "recall-insight-notifier"
	analyzeTimeout   = 2 * time.Minute
)

// categoryState tracks the per-category run machine: at most one analysis in
// flight, at most one queued behind it. Any number of change events arriving
// while a run is in flight collapse into that single queued run.
type categoryState struct {
	running bool
	pending bool
}

// Notifier consumes global-tier change events and re-analyzes the affected
// category in the background. Completed results fan out to in-process
// subscribers; the bus event is published by the Service.
type Notifier struct {
	svc       *Service
	consumers *inats.ConsumerManager

	mu     sync.Mutex
	states map[memory.Category]*categoryState
	subs   map[memory.Category][]chan *AnalysisResult

	consumeCtx jetstream.ConsumeContext
}

func NewNotifier(svc *Service, consumers *inats.ConsumerManager) *Notifier {
	return &Notifier{
		svc:       svc,
		consumers: consumers,
		states:    make(map[memory.Category]*categoryState),
		subs:      make(map[memory.Category][]chan *AnalysisResult),
	}
}

// Start attaches a durable consumer to the memory change stream and begins
// triggering analyses. Returns once the consumer is running.
func (n *Notifier) Start(ctx context.Context) error {
	consumer, err := n.consumers.EnsureConsumer(ctx, inats.StreamMemory, notifierConsumer, inats.SubjectMemoryChangedPrefix+".>")
	if err != nil {
		return fmt.Errorf("attaching notifier consumer: %w", err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		var event inats.MemoryChangeEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			slog.Warn("insights: dropping malformed change event", "error", err, "subject", msg.Subject())
			msg.Ack()
			return
		}
		msg.Ack()

		category := memory.Category(event.Category)
		if !category.Valid() {
			slog.Warn("insights: change event for unknown category", "category", event.Category)
			return
		}
		n.Notify(category)
	})
	if err != nil {
		return fmt.Errorf("starting notifier consumer: %w", err)
	}

	n.consumeCtx = consumeCtx
	slog.Info("insight notifier started", "consumer", notifierConsumer)
	return nil
}

// Stop halts event consumption. In-flight analyses run to completion.
func (n *Notifier) Stop() {
	if n.consumeCtx != nil {
		n.consumeCtx.Stop()
	}
}

// Notify schedules a re-analysis of one category. Safe to call from any
// goroutine; redundant calls while a run is in flight coalesce into a single
// follow-up run.
func (n *Notifier) Notify(category memory.Category) {
	n.mu.Lock()
	st := n.states[category]
	if st == nil {
		st = &categoryState{}
		n.states[category] = st
	}
	if st.running {
		st.pending = true
		n.mu.Unlock()
		return
	}
	st.running = true
	n.mu.Unlock()

	go n.runAnalyses(category)
}

// runAnalyses performs one analysis, plus exactly one more if events arrived
// while it was in flight, repeating until the category goes quiet.
func (n *Notifier) runAnalyses(category memory.Category) {
	for {
		n.analyzeOnce(category)

		n.mu.Lock()
		st := n.states[category]
		if !st.pending {
			st.running = false
			n.mu.Unlock()
			return
		}
		st.pending = false
		n.mu.Unlock()
	}
}

func (n *Notifier) analyzeOnce(category memory.Category) {
	ctx, cancel := context.WithTimeout(context.Background(), analyzeTimeout)
	defer cancel()

	result, err := n.svc.Analyze(ctx, category, true)
	if err != nil {
		slog.Warn("insights: background analysis failed", "error", err, "category", category)
		return
	}
	n.fanOut(category, result)
}

// Subscribe registers for completed analyses of one category. The returned
// cancel func releases the subscription. Slow subscribers miss results
// rather than block the notifier.
func (n *Notifier) Subscribe(category memory.Category) (<-chan *AnalysisResult, func()) {
	ch := make(chan *AnalysisResult, 4)

	n.mu.Lock()
	n.subs[category] = append(n.subs[category], ch)
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		channels := n.subs[category]
		for i, c := range channels {
			if c == ch {
				n.subs[category] = append(channels[:i], channels[i+1:]...)
				return
			}
		}
	}
	return ch, cancel
}

func (n *Notifier) fanOut(category memory.Category, result *AnalysisResult) {
	n.mu.Lock()
	channels := append([]chan *AnalysisResult(nil), n.subs[category]...)
	n.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- result:
		default:
		}
	}
}
