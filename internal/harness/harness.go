package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/offcache/internal/doc"
	"github.com/roach88/offcache/internal/engine"
	"github.com/roach88/offcache/internal/local"
	"github.com/roach88/offcache/internal/objectstore"
	"github.com/roach88/offcache/internal/query"
	"github.com/roach88/offcache/internal/remote"
	"github.com/roach88/offcache/internal/store"
	"github.com/roach88/offcache/internal/testutil"
	"github.com/roach88/offcache/internal/txlog"
)

// Harness executes one scenario.
type Harness struct {
	local  *local.Store
	remote *remote.Memory
	clock  *testutil.DeterministicClock
	logger *slog.Logger
}

// stepArgs are a step's YAML arguments decoded into cache types.
type stepArgs struct {
	doc  doc.Document
	q    *query.Query
	agg  *query.Aggregation
	kind objectstore.PutKind
	key  string
	data json.RawMessage
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh database in a temporary directory and a
// fresh in-memory remote. Ids and pass tokens come from sequence generators,
// so traces are identical across runs.
//
// An error is returned only when the scenario cannot run at all; failed
// expectations are reported through Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with the cache's log output sent to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	sig, err := store.ParseSignaling(scenario.Signaling)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "offcache-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	clock := testutil.NewDeterministicClock()
	mem := remote.NewMemory()
	mem.FailSave(scenario.Remote.FailSave...)
	for _, c := range scenario.Remote.FailDelete {
		mem.FailDelete(c)
	}
	if scenario.Remote.Stamp != "" {
		mem.Stamp(testutil.NewSequenceGenerator(scenario.Remote.Stamp).Generate)
	}

	ls := local.New(filepath.Join(dir, "cache.db"),
		local.WithSignaling(sig),
		local.WithIDGenerator(testutil.NewSequenceGenerator("id")),
		local.WithLogger(logger),
		local.WithEngineOptions(
			engine.WithPassTokens(testutil.NewSequenceGenerator("pass")),
			engine.WithNow(clock.Now),
		),
	)
	defer ls.Close()

	h := &Harness{local: ls, remote: mem, clock: clock, logger: logger}
	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}

	for _, msg := range h.evaluateAssertions(ctx, scenario.Assertions) {
		result.AddError(msg)
	}
	result.RemoteCalls = append(result.RemoteCalls, mem.Calls()...)
	return result, nil
}

// executeStep runs one step, records it in the trace, and checks its expect
// clause.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	args, err := decodeArgs(step)
	if err != nil {
		return err
	}

	ev := TraceEvent{
		Seq:        h.clock.Next(),
		Op:         step.Op,
		Collection: step.Collection,
		ID:         step.ID,
	}

	resp, err := h.call(ctx, step, args)
	if err != nil {
		ev.Error = errorCode(err)
	}
	var passes []*engine.Result
	if resp != nil {
		passes = describe(step.Op, resp.Payload, &ev)
	}
	result.AddTrace(ev)
	for _, p := range passes {
		result.AddTrace(passEvent(h.clock.Next(), p))
	}

	for _, msg := range checkExpect(step, resp, err, ev) {
		result.AddError(fmt.Sprintf("step %d (%s): %s", i, step.Op, msg))
	}

	h.logger.Debug("scenario step completed",
		"step", i,
		"op", step.Op,
		"collection", step.Collection,
		"error", ev.Error,
	)
	return nil
}

func (h *Harness) call(ctx context.Context, step Step, args stepArgs) (*local.Response, error) {
	c := step.Collection
	switch step.Op {
	case OpSave:
		return h.local.Save(ctx, c, args.doc)
	case OpRemove:
		return h.local.Remove(ctx, c, doc.Document{doc.FieldID: step.ID})
	case OpRemoveQuery:
		return h.local.RemoveWithQuery(ctx, c, args.q)
	case OpGet:
		return h.local.Query(ctx, c, step.ID)
	case OpFind:
		return h.local.QueryWithQuery(ctx, c, args.q)
	case OpPut:
		return h.local.Put(ctx, args.kind, c, args.key, args.data)
	case OpAggregate:
		return h.local.Aggregate(ctx, c, args.agg)
	case OpPending:
		return h.local.Pending(ctx, c)
	case OpPurge:
		return h.local.Purge(ctx)
	case OpSync:
		return h.local.Sync(ctx, c, h.remote)
	case OpSyncAll:
		return h.local.SyncAll(ctx, h.remote)
	}
	return nil, fmt.Errorf("unknown op %q", step.Op)
}

// describe copies the interesting parts of a payload into ev. For sync_all
// it returns the individual passes.
func describe(op string, payload any, ev *TraceEvent) []*engine.Result {
	switch op {
	case OpSave:
		if d, ok := payload.(doc.Document); ok {
			ev.ID = d.ID()
		}
	case OpFind:
		docs, _ := payload.([]doc.Document)
		ev.IDs = make([]string, 0, len(docs))
		for _, d := range docs {
			ev.IDs = append(ev.IDs, d.ID())
		}
	case OpPending:
		ev.IDs = pendingIDs(payload)
	case OpSync:
		if r, ok := payload.(*engine.Result); ok {
			ev.Pass = r.Pass
			ev.Commit = r.Commit
			ev.Cancel = r.Cancel
		}
	case OpSyncAll:
		results, _ := payload.([]*engine.Result)
		ev.IDs = make([]string, 0, len(results))
		for _, r := range results {
			ev.IDs = append(ev.IDs, r.Collection)
		}
		return results
	}
	return nil
}

func passEvent(seq int64, r *engine.Result) TraceEvent {
	return TraceEvent{
		Seq:        seq,
		Op:         OpSync,
		Collection: r.Collection,
		Pass:       r.Pass,
		Commit:     r.Commit,
		Cancel:     r.Cancel,
	}
}

func pendingIDs(payload any) []string {
	if e, ok := payload.(*txlog.Entry); ok && e != nil {
		return e.Changeset.IDs()
	}
	return []string{}
}

func errorCode(err error) string {
	var er *local.ErrorResponse
	if errors.As(err, &er) {
		return er.Code
	}
	return "INTERNAL"
}

// decodeArgs converts YAML-decoded step arguments into cache types by way
// of JSON, so numbers and nesting match what the cache stores.
func decodeArgs(step Step) (stepArgs, error) {
	var args stepArgs

	if step.Doc != nil {
		raw, err := json.Marshal(step.Doc)
		if err != nil {
			return args, fmt.Errorf("encode doc: %w", err)
		}
		if args.doc, err = doc.Decode(raw); err != nil {
			return args, err
		}
	}

	if step.Query != nil {
		raw, err := json.Marshal(step.Query)
		if err != nil {
			return args, fmt.Errorf("encode query: %w", err)
		}
		if args.q, err = query.Parse(raw); err != nil {
			return args, err
		}
	}

	if step.Aggregation != nil {
		raw, err := json.Marshal(step.Aggregation)
		if err != nil {
			return args, fmt.Errorf("encode aggregation: %w", err)
		}
		if args.agg, err = query.ParseAggregation(raw); err != nil {
			return args, err
		}
	}

	if step.Op == OpPut {
		kind, err := objectstore.ParsePutKind(step.Kind)
		if err != nil {
			return args, err
		}
		args.kind = kind

		switch k := step.Key.(type) {
		case string:
			args.key = k
		default:
			raw, err := json.Marshal(k)
			if err != nil {
				return args, fmt.Errorf("encode key: %w", err)
			}
			args.key = string(raw)
		}

		// Missing data is a null put, which evicts.
		if args.data, err = json.Marshal(step.Data); err != nil {
			return args, fmt.Errorf("encode data: %w", err)
		}
	}
	return args, nil
}
