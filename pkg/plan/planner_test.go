package plan

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolbelt/pkg/schema"
)

// testCatalog is a fixed set of schemas the planner resolves against
func testCatalog() schema.LookupFunc {
	str := &schema.TypeSpec{Kind: schema.KindString}
	tools := map[string]*schema.ToolSchema{
		"get_flight_info": {
			Name:        "get_flight_info",
			Description: "Get departure and arrival times for a flight.",
			Parameters: []schema.Parameter{
				{Name: "flight_number", Description: "Flight number", Type: str, Required: true},
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
			Name:        "convert_timezone",
			Description: "Convert a wall-clock time between timezones.",
			Parameters: []schema.Parameter{
				{Name: "time", Description: "Time to convert", Type: str, Required: true},
				{Name: "to_zone", Description: "Target timezone", Type: str, Required: true},
			},
			Output: str,
		},
		"get_coordinates": {
			Name:        "get_coordinates",
			Description: "Get latitude and longitude for a place.",
			Parameters: []schema.Parameter{
				{Name: "place", Description: "Place name", Type: str, Required: true},
			},
			Output: &schema.TypeSpec{
				Kind:  schema.KindTuple,
				Items: []*schema.TypeSpec{{Kind: schema.KindNumber}, {Kind: schema.KindNumber}},
			},
		},
		"get_weather": {
			Name:        "get_weather",
			Description: "Get current weather for a city.",
			Parameters: []schema.Parameter{
				{Name: "city", Description: "City name", Type: str, Required: true},
			},
			Output: &schema.TypeSpec{
				Kind:   schema.KindObject,
				Fields: map[string]*schema.TypeSpec{"temperature": {Kind: schema.KindNumber}},
			},
		},
	}
	return func(name string) (*schema.ToolSchema, bool) {
		s, ok := tools[name]
		return s, ok
	}
}

func TestPlanner_OrderAndLevels(t *testing.T) {
	p := NewPlanner(testCatalog())

	calls := []CallNode{
		{ID: "c2", Tool: "convert_timezone", Args: map[string]Argument{
			"time":    Ref("c1", "arrival_time"),
			"to_zone": Lit("America/Los_Angeles"),
		}},
		{ID: "c1", Tool: "get_flight_info", Args: map[string]Argument{
			"flight_number": Lit("UA123"),
		}},
		{ID: "c3", Tool: "get_weather", Args: map[string]Argument{
			"city": Lit("San Francisco"),
		}},
	}

	plan, err := p.Plan(calls)
	require.NoError(t, err)

	// c1 and c3 are independent and keep proposal order inside their level;
	// c2 waits on c1.
	require.Len(t, plan.Levels, 2)
	assert.Equal(t, []string{"c1", "c3"}, plan.Levels[0])
	assert.Equal(t, []string{"c2"}, plan.Levels[1])

	ids := make([]string, len(plan.Nodes))
	for i, n := range plan.Nodes {
		ids[i] = n.ID
	}
	assert.Equal(t, []string{"c1", "c3", "c2"}, ids)
}

func TestPlanner_Deterministic(t *testing.T) {
	p := NewPlanner(testCatalog())
	calls := []CallNode{
		{ID: "a", Tool: "get_weather", Args: map[string]Argument{"city": Lit("Oslo")}},
		{ID: "b", Tool: "get_weather", Args: map[string]Argument{"city": Lit("Lima")}},
		{ID: "c", Tool: "get_weather", Args: map[string]Argument{"city": Lit("Pune")}},
	}

	first, err := p.Plan(calls)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := p.Plan(calls)
		require.NoError(t, err)
		assert.Equal(t, first.Levels, again.Levels)
	}
}

func TestPlanner_Errors(t *testing.T) {
	p := NewPlanner(testCatalog())

	tests := []struct {
		name  string
		calls []CallNode
		kind  ErrorKind
	}{
		{
			name: "cycle",
			calls: []CallNode{
				{ID: "x", Tool: "convert_timezone", Args: map[string]Argument{
					"time": Ref("y"), "to_zone": Lit("UTC"),
				}},
				{ID: "y", Tool: "convert_timezone", Args: map[string]Argument{
					"time": Ref("x"), "to_zone": Lit("UTC"),
				}},
			},
			kind: ErrCyclicDependency,
		},
		{
			name: "self reference",
			calls: []CallNode{
				{ID: "x", Tool: "convert_timezone", Args: map[string]Argument{
					"time": Ref("x"), "to_zone": Lit("UTC"),
				}},
			},
			kind: ErrCyclicDependency,
		},
		{
			name: "dangling reference",
			calls: []CallNode{
				{ID: "x", Tool: "convert_timezone", Args: map[string]Argument{
					"time": Ref("nowhere", "arrival_time"), "to_zone": Lit("UTC"),
				}},
			},
			kind: ErrDanglingReference,
		},
		{
			name: "unknown tool",
			calls: []CallNode{
				{ID: "x", Tool: "launch_rocket", Args: nil},
			},
			kind: ErrUnknownTool,
		},
		{
			name: "duplicate call id",
			calls: []CallNode{
				{ID: "x", Tool: "get_weather", Args: map[string]Argument{"city": Lit("Oslo")}},
				{ID: "x", Tool: "get_weather", Args: map[string]Argument{"city": Lit("Lima")}},
			},
			kind: ErrDuplicateCall,
		},
		{
			name: "undeclared argument",
			calls: []CallNode{
				{ID: "x", Tool: "get_weather", Args: map[string]Argument{
					"city": Lit("Oslo"), "country": Lit("Norway"),
				}},
			},
			kind: ErrTypeMismatch,
		},
		{
			name: "unbound required parameter",
			calls: []CallNode{
				{ID: "x", Tool: "convert_timezone", Args: map[string]Argument{"time": Lit("12:00")}},
			},
			kind: ErrTypeMismatch,
		},
		{
			name: "projection into missing field",
			calls: []CallNode{
				{ID: "a", Tool: "get_flight_info", Args: map[string]Argument{"flight_number": Lit("UA1")}},
				{ID: "b", Tool: "convert_timezone", Args: map[string]Argument{
					"time": Ref("a", "gate"), "to_zone": Lit("UTC"),
				}},
			},
			kind: ErrTypeMismatch,
		},
		{
			name: "projected type does not match parameter",
			calls: []CallNode{
				{ID: "a", Tool: "get_weather", Args: map[string]Argument{"city": Lit("Oslo")}},
				{ID: "b", Tool: "convert_timezone", Args: map[string]Argument{
					"time": Ref("a", "temperature"), "to_zone": Lit("UTC"),
				}},
			},
			kind: ErrTypeMismatch,
		},
		{
			name: "tuple index beyond int range",
			calls: []CallNode{
				{ID: "a", Tool: "get_coordinates", Args: map[string]Argument{"place": Lit("Oslo")}},
				{ID: "b", Tool: "convert_timezone", Args: map[string]Argument{
					"time": Ref("a", "9223372036854775808"), "to_zone": Lit("UTC"),
				}},
			},
			kind: ErrTypeMismatch,
		},
		{
			name: "whole composite output into scalar parameter",
			calls: []CallNode{
				{ID: "a", Tool: "get_flight_info", Args: map[string]Argument{"flight_number": Lit("UA1")}},
				{ID: "b", Tool: "convert_timezone", Args: map[string]Argument{
					"time": Ref("a"), "to_zone": Lit("UTC"),
				}},
			},
			kind: ErrTypeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Plan(tt.calls)
			require.Error(t, err)
			var perr *PlanError
			require.True(t, errors.As(err, &perr), "expected PlanError, got %T", err)
			assert.Equal(t, tt.kind, perr.Kind)
		})
	}
}

func TestPlanner_EmptySet(t *testing.T) {
	p := NewPlanner(testCatalog())
	plan, err := p.Plan(nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Nodes)
	assert.Empty(t, plan.Levels)
}

func TestArgument_JSON(t *testing.T) {
	node := CallNode{
		ID:   "c2",
		Tool: "convert_timezone",
		Args: map[string]Argument{
			"time":    Ref("c1", "arrival_time"),
			"to_zone": Lit("UTC"),
		},
	}

	data, err := json.Marshal(node)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"$ref"`)

	var back CallNode
	require.NoError(t, json.Unmarshal(data, &back))
	require.NotNil(t, back.Args["time"].Ref)
	assert.Equal(t, "c1", back.Args["time"].Ref.Call)
	assert.Equal(t, []string{"arrival_time"}, back.Args["time"].Ref.Path)
	assert.Nil(t, back.Args["to_zone"].Ref)
	assert.Equal(t, "UTC", back.Args["to_zone"].Literal)
}

func TestNewCallNode(t *testing.T) {
	a := NewCallNode("get_weather", map[string]Argument{"city": Lit("Oslo")})
	b := NewCallNode("get_weather", map[string]Argument{"city": Lit("Oslo")})
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}
