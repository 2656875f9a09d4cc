package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strconv"

	"github.com/roach88/offcache/internal/doc"
	"github.com/roach88/offcache/internal/local"
)

// AssertionError describes a failed expectation.
type AssertionError struct {
	Type     string
	Expected any
	Actual   any
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %v, got %v", e.Type, e.Expected, e.Actual)
}

// checkExpect compares a step's outcome with its expect clause and returns
// one message per mismatch.
func checkExpect(step Step, resp *local.Response, err error, ev TraceEvent) []string {
	exp := step.Expect
	if exp == nil {
		if err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
		return nil
	}

	if exp.Error != "" {
		if err == nil {
			return []string{(&AssertionError{Type: "error", Expected: exp.Error, Actual: "success"}).Error()}
		}
		if ev.Error != exp.Error {
			return []string{(&AssertionError{Type: "error", Expected: exp.Error, Actual: ev.Error}).Error()}
		}
		return nil
	}
	if err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	}

	var msgs []string
	if exp.Payload != nil {
		want, werr := normalize(exp.Payload)
		got, gerr := normalize(resp.Payload)
		switch {
		case werr != nil:
			msgs = append(msgs, fmt.Sprintf("expected payload: %v", werr))
		case gerr != nil:
			msgs = append(msgs, fmt.Sprintf("payload: %v", gerr))
		case !subset(want, got):
			msgs = append(msgs, (&AssertionError{Type: "payload", Expected: want, Actual: got}).Error())
		}
	}
	msgs = appendIDMismatch(msgs, "ids", exp.IDs, ev.IDs)
	msgs = appendIDMismatch(msgs, "commit", exp.Commit, ev.Commit)
	msgs = appendIDMismatch(msgs, "cancel", exp.Cancel, ev.Cancel)
	return msgs
}

// appendIDMismatch compares id lists. A nil want is not checked.
func appendIDMismatch(msgs []string, typ string, want, got []string) []string {
	if want == nil {
		return msgs
	}
	if got == nil {
		got = []string{}
	}
	if !slices.Equal(want, got) {
		msgs = append(msgs, (&AssertionError{Type: typ, Expected: want, Actual: got}).Error())
	}
	return msgs
}

// evaluateAssertions checks final state and returns one message per failure.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion) []string {
	var msgs []string
	for i, a := range assertions {
		if err := h.evaluate(ctx, a); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertion %d (%s %s): %v", i, a.Type, a.Collection, err))
		}
	}
	return msgs
}

func (h *Harness) evaluate(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertPending:
		resp, err := h.local.Pending(ctx, a.Collection)
		if err != nil {
			return err
		}
		want := a.IDs
		if want == nil {
			want = []string{}
		}
		if got := pendingIDs(resp.Payload); !slices.Equal(want, got) {
			return &AssertionError{Type: a.Type, Expected: want, Actual: got}
		}
		return nil

	case AssertRecord:
		resp, err := h.local.Query(ctx, a.Collection, a.ID)
		if err != nil {
			return err
		}
		return matchRecord(a, resp.Payload)

	case AssertAbsent:
		_, err := h.local.Query(ctx, a.Collection, a.ID)
		if err == nil {
			return &AssertionError{Type: a.Type, Expected: "NOT_FOUND", Actual: "record " + a.ID}
		}
		if !local.IsNotFound(err) {
			return err
		}
		return nil

	case AssertRemoteRecord:
		d, ok := h.remote.Get(a.Collection, a.ID)
		if !ok {
			return &AssertionError{Type: a.Type, Expected: "record " + a.ID, Actual: "nothing"}
		}
		return matchRecord(a, d)

	case AssertRemoteAbsent:
		if _, ok := h.remote.Get(a.Collection, a.ID); ok {
			return &AssertionError{Type: a.Type, Expected: "nothing", Actual: "record " + a.ID}
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func matchRecord(a Assertion, record any) error {
	if a.Expect == nil {
		return nil
	}
	want, err := normalize(a.Expect)
	if err != nil {
		return err
	}
	got, err := normalize(record)
	if err != nil {
		return err
	}
	if !subset(want, got) {
		return &AssertionError{Type: a.Type, Expected: want, Actual: got}
	}
	return nil
}

// normalize round-trips v through JSON so YAML values and stored documents
// compare in the same representation.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return doc.DecodeValue(raw)
}

// subset reports whether want is contained in got. Objects match when every
// key of want matches in got; arrays must match element-wise.
func subset(want, got any) bool {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return false
		}
		for k, wv := range w {
			gv, ok := g[k]
			if !ok || !subset(wv, gv) {
				return false
			}
		}
		return true
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if !subset(w[i], g[i]) {
				return false
			}
		}
		return true
	case json.Number:
		g, ok := got.(json.Number)
		if !ok {
			return false
		}
		if w == g {
			return true
		}
		wf, werr := strconv.ParseFloat(string(w), 64)
		gf, gerr := strconv.ParseFloat(string(g), 64)
		return werr == nil && gerr == nil && wf == gf
	default:
		return reflect.DeepEqual(want, got)
	}
}
