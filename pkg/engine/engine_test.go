package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolbelt/pkg/plan"
	"github.com/harun/toolbelt/pkg/schema"
)

type invocableFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

func (f invocableFunc) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return f(ctx, args)
}

func flightLookup() schema.LookupFunc {
	str := &schema.TypeSpec{Kind: schema.KindString}
	specs := map[string]*schema.ToolSchema{
		"get_flight_info": {
			Name: "get_flight_info",
			Parameters: []schema.Parameter{
				{Name: "flight_number", Type: str, Required: true},
			},
			Output: &schema.TypeSpec{
				Kind: schema.KindObject,
				Fields: map[string]*schema.TypeSpec{
					"departure_time": str,
					"arrival_time":   str,
				},
			},
		},
		"convert_timezone": {
			Name: "convert_timezone",
			Parameters: []schema.Parameter{
				{Name: "time", Type: str, Required: true},
				{Name: "to_zone", Type: str, Required: true},
			},
			Output: str,
		},
	}
	return func(name string) (*schema.ToolSchema, bool) {
		s, ok := specs[name]
		return s, ok
	}
}

func resolverFor(impls map[string]invocableFunc) Resolver {
	return ResolverFunc(func(name string) (Invocable, bool) {
		fn, ok := impls[name]
		return fn, ok
	})
}

// Two-node chain: the converter receives the flight tool's arrival_time field
// through a projected reference.
func TestEngine_FieldProjection(t *testing.T) {
	impls := map[string]invocableFunc{
		"get_flight_info": func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return map[string]interface{}{"departure_time": "01:00", "arrival_time": "12:00"}, nil
		},
		"convert_timezone": func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			require.Equal(t, "12:00", args["time"])
			require.Equal(t, "America/Los_Angeles", args["to_zone"])
			return "13:00", nil
		},
	}

	p := &plan.ExecutionPlan{
		Nodes: []plan.CallNode{
			{ID: "c1", Tool: "get_flight_info", Args: map[string]plan.Argument{
				"flight_number": plan.Lit("UA123"),
			}},
			{ID: "c2", Tool: "convert_timezone", Args: map[string]plan.Argument{
				"time":    plan.Ref("c1", "arrival_time"),
				"to_zone": plan.Lit("America/Los_Angeles"),
			}},
		},
		Levels: [][]string{{"c1"}, {"c2"}},
	}

	e := New(flightLookup(), zerolog.Nop())
	outputs, err := e.Execute(context.Background(), p, resolverFor(impls))
	require.NoError(t, err)
	assert.Equal(t, "13:00", outputs["c2"])
	assert.Equal(t, "12:00", outputs["c1"].(map[string]interface{})["arrival_time"])
}

func TestEngine_PartialOutputsOnFailure(t *testing.T) {
	impls := map[string]invocableFunc{
		"get_flight_info": func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return map[string]interface{}{"departure_time": "01:00", "arrival_time": "12:00"}, nil
		},
		"convert_timezone": func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return nil, errors.New("timezone database unavailable")
		},
	}

	p := &plan.ExecutionPlan{
		Nodes: []plan.CallNode{
			{ID: "c1", Tool: "get_flight_info", Args: map[string]plan.Argument{
				"flight_number": plan.Lit("UA123"),
			}},
			{ID: "c2", Tool: "convert_timezone", Args: map[string]plan.Argument{
				"time":    plan.Ref("c1", "arrival_time"),
				"to_zone": plan.Lit("UTC"),
			}},
		},
		Levels: [][]string{{"c1"}, {"c2"}},
	}

	e := New(flightLookup(), zerolog.Nop())
	outputs, err := e.Execute(context.Background(), p, resolverFor(impls))
	require.Error(t, err)

	var eerr *ExecutionError
	require.True(t, errors.As(err, &eerr))
	assert.Equal(t, ErrToolRuntime, eerr.Kind)
	assert.Equal(t, "c2", eerr.Call)

	// the completed node's output survives the failure
	assert.Contains(t, outputs, "c1")
	assert.NotContains(t, outputs, "c2")
}

func TestEngine_OutputShapeMismatch(t *testing.T) {
	impls := map[string]invocableFunc{
		"get_flight_info": func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return map[string]interface{}{"departure_time": "01:00"}, nil // arrival_time missing
		},
	}
	p := &plan.ExecutionPlan{
		Nodes: []plan.CallNode{
			{ID: "c1", Tool: "get_flight_info", Args: map[string]plan.Argument{
				"flight_number": plan.Lit("UA123"),
			}},
		},
		Levels: [][]string{{"c1"}},
	}

	e := New(flightLookup(), zerolog.Nop())
	_, err := e.Execute(context.Background(), p, resolverFor(impls))
	var eerr *ExecutionError
	require.True(t, errors.As(err, &eerr))
	assert.Equal(t, ErrOutputShapeMismatch, eerr.Kind)
}

func TestEngine_UnknownTool(t *testing.T) {
	p := &plan.ExecutionPlan{
		Nodes:  []plan.CallNode{{ID: "c1", Tool: "get_flight_info"}},
		Levels: [][]string{{"c1"}},
	}
	e := New(flightLookup(), zerolog.Nop())
	_, err := e.Execute(context.Background(), p, resolverFor(nil))
	var eerr *ExecutionError
	require.True(t, errors.As(err, &eerr))
	assert.Equal(t, ErrUnknownTool, eerr.Kind)
}

func TestEngine_ParallelLevels(t *testing.T) {
	var running, peak int32
	slowTool := func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		cur := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return map[string]interface{}{"departure_time": "01:00", "arrival_time": "12:00"}, nil
	}
	impls := map[string]invocableFunc{"get_flight_info": slowTool}

	p := &plan.ExecutionPlan{
		Nodes: []plan.CallNode{
			{ID: "a", Tool: "get_flight_info", Args: map[string]plan.Argument{"flight_number": plan.Lit("UA1")}},
			{ID: "b", Tool: "get_flight_info", Args: map[string]plan.Argument{"flight_number": plan.Lit("UA2")}},
			{ID: "c", Tool: "get_flight_info", Args: map[string]plan.Argument{"flight_number": plan.Lit("UA3")}},
		},
		Levels: [][]string{{"a", "b", "c"}},
	}

	e := New(flightLookup(), zerolog.Nop())
	e.SetParallel(true)
	outputs, err := e.Execute(context.Background(), p, resolverFor(impls))
	require.NoError(t, err)
	assert.Len(t, outputs, 3)
	assert.Greater(t, atomic.LoadInt32(&peak), int32(1), "independent nodes should overlap")
}

func TestEngine_ParallelSiblingFailure(t *testing.T) {
	var downstreamRan int32
	impls := map[string]invocableFunc{
		"get_flight_info": func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			if args["flight_number"] == "BAD" {
				return nil, errors.New("no such flight")
			}
			return map[string]interface{}{"departure_time": "01:00", "arrival_time": "12:00"}, nil
		},
		"convert_timezone": func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			atomic.AddInt32(&downstreamRan, 1)
			return "13:00", nil
		},
	}

	p := &plan.ExecutionPlan{
		Nodes: []plan.CallNode{
			{ID: "ok", Tool: "get_flight_info", Args: map[string]plan.Argument{"flight_number": plan.Lit("UA1")}},
			{ID: "bad", Tool: "get_flight_info", Args: map[string]plan.Argument{"flight_number": plan.Lit("BAD")}},
			{ID: "down", Tool: "convert_timezone", Args: map[string]plan.Argument{
				"time":    plan.Ref("ok", "arrival_time"),
				"to_zone": plan.Lit("UTC"),
			}},
		},
		Levels: [][]string{{"ok", "bad"}, {"down"}},
	}

	e := New(flightLookup(), zerolog.Nop())
	e.SetParallel(true)
	outputs, err := e.Execute(context.Background(), p, resolverFor(impls))
	require.Error(t, err)

	// sibling finished and published; nothing after the failing level ran
	assert.Contains(t, outputs, "ok")
	assert.NotContains(t, outputs, "down")
	assert.Zero(t, atomic.LoadInt32(&downstreamRan))
}

func TestEngine_Observer(t *testing.T) {
	impls := map[string]invocableFunc{
		"get_flight_info": func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return map[string]interface{}{"departure_time": "01:00", "arrival_time": "12:00"}, nil
		},
	}
	p := &plan.ExecutionPlan{
		Nodes:  []plan.CallNode{{ID: "c1", Tool: "get_flight_info", Args: map[string]plan.Argument{"flight_number": plan.Lit("UA1")}}},
		Levels: [][]string{{"c1"}},
	}

	var mu sync.Mutex
	seen := map[string]int{}
	e := New(flightLookup(), zerolog.Nop())
	e.SetObserver(func(tool string, d time.Duration, err error) {
		mu.Lock()
		seen[tool]++
		mu.Unlock()
		assert.NoError(t, err)
	})

	_, err := e.Execute(context.Background(), p, resolverFor(impls))
	require.NoError(t, err)
	assert.Equal(t, 1, seen["get_flight_info"])
}
