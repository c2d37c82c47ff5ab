// Package dispatch validates tool arguments, routes each call to the
// conversation or memory store, and shapes the answer as a Result.
//
// A call moves through fixed phases: Validating, then Executing, then
// Responding. Invalid input skips Executing. The dispatcher keeps no state
// between calls apart from one circuit breaker per store.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/scrypster/luna-history/internal/query"
	"github.com/scrypster/luna-history/internal/storage"
	"github.com/scrypster/luna-history/pkg/types"
)

// Phase is the stage a call is in.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseValidating
	PhaseExecuting
	PhaseResponding
)

func (p Phase) String() string {
	switch p {
	case PhaseValidating:
		return "validating"
	case PhaseExecuting:
		return "executing"
	case PhaseResponding:
		return "responding"
	default:
		return "idle"
	}
}

// Limits bounds result sizes.
type Limits struct {
	DefaultLimit int // page size when the caller gives none
	MaxLimit     int // larger requests are capped silently
	TitleLimit   int // rows returned by title search
}

// DefaultLimits matches the query package constants.
func DefaultLimits() Limits {
	return Limits{
		DefaultLimit: query.DefaultLimit,
		MaxLimit:     query.MaxLimit,
		TitleLimit:   query.TitleSearchLimit,
	}
}

// BreakerSettings configures the store circuit breaker.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive store failures that open the
	// breaker. Default: 3
	MaxFailures uint32

	// Timeout is how long the breaker stays open before letting a trial
	// call through. Default: 30 seconds
	Timeout time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithLimits overrides result-size limits. Zero fields keep their defaults.
func WithLimits(l Limits) Option {
	return func(d *Dispatcher) {
		if l.DefaultLimit > 0 {
			d.limits.DefaultLimit = l.DefaultLimit
		}
		if l.MaxLimit > 0 {
			d.limits.MaxLimit = l.MaxLimit
		}
		if l.TitleLimit > 0 {
			d.limits.TitleLimit = l.TitleLimit
		}
	}
}

// WithBreaker overrides the circuit breaker settings.
func WithBreaker(s BreakerSettings) Option {
	return func(d *Dispatcher) { d.breakerSettings = s }
}

// WithClock sets the time source used to stamp new memories.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithPhaseHook registers fn to observe phase transitions.
func WithPhaseHook(fn func(requestID string, p Phase)) Option {
	return func(d *Dispatcher) { d.onPhase = fn }
}

// Dispatcher routes tool calls to the stores.
type Dispatcher struct {
	conv storage.ConversationStore
	mem  storage.MemoryStore

	log             *zap.Logger
	limits          Limits
	breakerSettings BreakerSettings
	convBreaker     *gobreaker.CircuitBreaker
	memBreaker      *gobreaker.CircuitBreaker
	now             func() time.Time
	onPhase         func(string, Phase)

	handlers map[string]handler
}

// work is validated store access waiting to run behind a breaker.
type work struct {
	breaker *gobreaker.CircuitBreaker
	run     func(ctx context.Context) (any, error)
}

// handler validates raw arguments and returns the store work to run.
type handler func(d *Dispatcher, raw json.RawMessage) (work, error)

// New creates a Dispatcher over the two stores.
func New(conv storage.ConversationStore, mem storage.MemoryStore, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		conv:            conv,
		mem:             mem,
		log:             zap.NewNop(),
		limits:          DefaultLimits(),
		breakerSettings: BreakerSettings{MaxFailures: 3, Timeout: 30 * time.Second},
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.breakerSettings.MaxFailures == 0 {
		d.breakerSettings.MaxFailures = 3
	}
	if d.breakerSettings.Timeout <= 0 {
		d.breakerSettings.Timeout = 30 * time.Second
	}
	if d.limits.DefaultLimit > d.limits.MaxLimit {
		d.limits.DefaultLimit = d.limits.MaxLimit
	}

	d.convBreaker = d.newBreaker("conversation")
	d.memBreaker = d.newBreaker("memory")

	d.handlers = map[string]handler{
		ToolSearchConversations:      (*Dispatcher).searchConversations,
		ToolGetConversation:          (*Dispatcher).getConversation,
		ToolSearchConversationTitles: (*Dispatcher).searchConversationTitles,
		ToolListConversations:        (*Dispatcher).listConversations,
		ToolGetMessage:               (*Dispatcher).getMessage,
		ToolStoreMemory:              (*Dispatcher).storeMemory,
		ToolSearchMemory:             (*Dispatcher).searchMemory,
		ToolSearchMemoryByCategory:   (*Dispatcher).searchMemoryByCategory,
		ToolDeleteMemory:             (*Dispatcher).deleteMemory,
	}
	return d
}

// newBreaker builds the circuit breaker guarding one store.
func (d *Dispatcher) newBreaker(store string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        store,
		MaxRequests: 1,
		Timeout:     d.breakerSettings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= d.breakerSettings.MaxFailures
		},
		// Missing rows and bad arguments say nothing about store health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidInput)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.log.Warn("circuit breaker state change",
				zap.String("store", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

func (d *Dispatcher) conversations(fn func(ctx context.Context) (any, error)) (work, error) {
	return work{breaker: d.convBreaker, run: fn}, nil
}

func (d *Dispatcher) memory(fn func(ctx context.Context) (any, error)) (work, error) {
	return work{breaker: d.memBreaker, run: fn}, nil
}

// Call runs one tool call and always returns exactly one Result.
func (d *Dispatcher) Call(ctx context.Context, name string, args json.RawMessage) Result {
	reqID := uuid.NewString()
	start := time.Now()

	res := d.call(ctx, reqID, name, args)

	d.enter(reqID, PhaseResponding)
	fields := []zap.Field{
		zap.String("tool", name),
		zap.String("request_id", reqID),
		zap.String("status", string(res.Status)),
		zap.Duration("duration", time.Since(start)),
	}
	if res.Error != nil {
		fields = append(fields, zap.String("error_kind", string(res.Error.Kind)), zap.String("error", res.Error.Message))
	}
	if res.IsError() {
		d.log.Warn("tool call failed", fields...)
	} else {
		d.log.Info("tool call", fields...)
	}
	d.enter(reqID, PhaseIdle)
	return res
}

func (d *Dispatcher) call(ctx context.Context, reqID, name string, args json.RawMessage) Result {
	d.enter(reqID, PhaseValidating)

	h, ok := d.handlers[name]
	if !ok {
		return failure(name, storage.InvalidField("name", "unknown tool %q", name))
	}
	w, err := h(d, args)
	if err != nil {
		return failure(name, err)
	}

	d.enter(reqID, PhaseExecuting)
	data, err := w.breaker.Execute(func() (interface{}, error) {
		return w.run(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%s store failed %d times in a row, calls fail fast for up to %s after the last failure: %w",
			w.breaker.Name(), d.breakerSettings.MaxFailures, d.breakerSettings.Timeout, err)
	}
	if err != nil {
		return failure(name, err)
	}
	return Result{Tool: name, Status: StatusOK, Data: data}
}

func (d *Dispatcher) enter(reqID string, p Phase) {
	if d.onPhase != nil {
		d.onPhase(reqID, p)
	}
}

func failure(tool string, err error) Result {
	e := classify(err)
	return Result{Tool: tool, Status: statusFor(e), Error: e}
}

// decode unmarshals raw into v. Absent or null arguments decode as an empty
// object. Type mismatches are reported against the offending field.
func decode(raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) && te.Field != "" {
			return storage.InvalidField(te.Field, "expected %s", te.Type)
		}
		return storage.InvalidField("arguments", "%v", err)
	}
	return nil
}

func requireText(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", storage.InvalidField(field, "is required")
	}
	return v, nil
}

func requireID(field string, v *int64) (int64, error) {
	if v == nil {
		return 0, storage.InvalidField(field, "is required")
	}
	if *v < 1 {
		return 0, storage.InvalidField(field, "must be a positive integer, got %d", *v)
	}
	return *v, nil
}

// searchLimit applies the list defaults to an optional search limit.
func (d *Dispatcher) searchLimit(limit *int) (int, error) {
	page, err := d.page(limit, nil)
	return page.Limit, err
}

func (d *Dispatcher) page(limit, offset *int) (storage.Page, error) {
	if limit == nil {
		l := d.limits.DefaultLimit
		limit = &l
	}
	return query.Paginate(limit, offset, d.limits.MaxLimit)
}

func (d *Dispatcher) searchConversations(raw json.RawMessage) (work, error) {
	var a SearchConversationsArgs
	if err := decode(raw, &a); err != nil {
		return work{}, err
	}
	words := []string(a.Keywords)
	if len(words) == 0 && a.Query != nil {
		words = strings.Fields(*a.Query)
	}
	keywords, err := query.NormalizeKeywords("keywords", words)
	if err != nil {
		return work{}, err
	}
	limit, err := d.searchLimit(a.Limit)
	if err != nil {
		return work{}, err
	}
	return d.conversations(func(ctx context.Context) (any, error) {
		hits, err := d.conv.SearchMessages(ctx, keywords, limit)
		return nonNil(hits), err
	})
}

func (d *Dispatcher) getConversation(raw json.RawMessage) (work, error) {
	var a GetConversationArgs
	if err := decode(raw, &a); err != nil {
		return work{}, err
	}
	id, err := requireText("conversation_id", a.ConversationID)
	if err != nil {
		return work{}, err
	}
	return d.conversations(func(ctx context.Context) (any, error) {
		th, err := d.conv.GetThread(ctx, id)
		if err != nil {
			return nil, err
		}
		if th.Messages == nil {
			th.Messages = []types.Message{}
		}
		return th, nil
	})
}

func (d *Dispatcher) searchConversationTitles(raw json.RawMessage) (work, error) {
	var a SearchConversationTitlesArgs
	if err := decode(raw, &a); err != nil {
		return work{}, err
	}
	q, err := requireText("query", a.Query)
	if err != nil {
		return work{}, err
	}
	return d.conversations(func(ctx context.Context) (any, error) {
		out, err := d.conv.SearchTitles(ctx, q, d.limits.TitleLimit)
		return nonNil(out), err
	})
}

func (d *Dispatcher) listConversations(raw json.RawMessage) (work, error) {
	var a ListConversationsArgs
	if err := decode(raw, &a); err != nil {
		return work{}, err
	}
	page, err := d.page(a.Limit, a.Offset)
	if err != nil {
		return work{}, err
	}
	return d.conversations(func(ctx context.Context) (any, error) {
		out, err := d.conv.ListConversations(ctx, page)
		return nonNil(out), err
	})
}

func (d *Dispatcher) getMessage(raw json.RawMessage) (work, error) {
	var a GetMessageArgs
	if err := decode(raw, &a); err != nil {
		return work{}, err
	}
	id, err := requireID("message_id", a.MessageID)
	if err != nil {
		return work{}, err
	}
	return d.conversations(func(ctx context.Context) (any, error) {
		return d.conv.GetMessage(ctx, id)
	})
}

func (d *Dispatcher) storeMemory(raw json.RawMessage) (work, error) {
	var a StoreMemoryArgs
	if err := decode(raw, &a); err != nil {
		return work{}, err
	}
	content, err := requireText("content", a.Content)
	if err != nil {
		return work{}, err
	}
	importance := types.DefaultImportance
	if a.Importance != nil {
		importance = *a.Importance
		if importance < types.MinImportance || importance > types.MaxImportance {
			return work{}, storage.InvalidField("importance", "must be between %d and %d, got %d",
				types.MinImportance, types.MaxImportance, importance)
		}
	}
	m := types.NewMemory{
		Content:    content,
		Category:   types.NormalizeCategory(a.Category),
		Importance: importance,
		CreatedAt:  d.now().Unix(),
	}
	return d.memory(func(ctx context.Context) (any, error) {
		id, err := d.mem.Insert(ctx, m)
		if err != nil {
			return nil, err
		}
		return StoreMemoryResult{ID: id}, nil
	})
}

func (d *Dispatcher) searchMemory(raw json.RawMessage) (work, error) {
	var a SearchMemoryArgs
	if err := decode(raw, &a); err != nil {
		return work{}, err
	}
	keywords, err := query.NormalizeKeywords("keywords", a.Keywords)
	if err != nil {
		return work{}, err
	}
	limit, err := d.searchLimit(a.Limit)
	if err != nil {
		return work{}, err
	}
	return d.memory(func(ctx context.Context) (any, error) {
		hits, err := d.mem.Search(ctx, keywords, limit)
		return nonNil(hits), err
	})
}

func (d *Dispatcher) searchMemoryByCategory(raw json.RawMessage) (work, error) {
	var a SearchMemoryByCategoryArgs
	if err := decode(raw, &a); err != nil {
		return work{}, err
	}
	category, err := requireText("category", a.Category)
	if err != nil {
		return work{}, err
	}
	return d.memory(func(ctx context.Context) (any, error) {
		out, err := d.mem.ByCategory(ctx, category)
		return nonNil(out), err
	})
}

func (d *Dispatcher) deleteMemory(raw json.RawMessage) (work, error) {
	var a DeleteMemoryArgs
	if err := decode(raw, &a); err != nil {
		return work{}, err
	}
	id, err := requireID("memory_id", a.MemoryID)
	if err != nil {
		return work{}, err
	}
	return d.memory(func(ctx context.Context) (any, error) {
		if err := d.mem.Delete(ctx, id); err != nil {
			return nil, err
		}
		return DeleteMemoryResult{MemoryID: id, Deleted: true}, nil
	})
}

// nonNil makes empty result sets encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// String renders a Result for logs and tests.
func (r Result) String() string {
	if r.Error != nil {
		return fmt.Sprintf("%s: %s (%s)", r.Tool, r.Status, r.Error.Message)
	}
	return fmt.Sprintf("%s: %s", r.Tool, r.Status)
}
