package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolbelt/pkg/schema"
)

func strSpec() *schema.TypeSpec { return &schema.TypeSpec{Kind: schema.KindString} }

func flightSchema() *schema.ToolSchema {
	return &schema.ToolSchema{
		Name:        "get_flight_info",
		Description: "Get departure and arrival times for a flight.",
		Parameters: []schema.Parameter{
			{Name: "flight_number", Description: "Flight number", Type: strSpec(), Required: true},
			{Name: "airline", Description: "Airline code", Type: strSpec()},
		},
		Output: &schema.TypeSpec{
			Kind: schema.KindObject,
			Fields: map[string]*schema.TypeSpec{
				"departure_time": strSpec(),
				"arrival_time":   strSpec(),
			},
		},
	}
}

func TestRegistry_Register(t *testing.T) {
	r := New(zerolog.Nop())

	res, err := r.Register(flightSchema())
	require.NoError(t, err)
	assert.False(t, res.AlreadyRegistered)
	assert.Empty(t, res.Warnings)

	got, ok := r.Lookup("get_flight_info")
	require.True(t, ok)
	assert.Equal(t, "get_flight_info", got.Name)

	// identical re-registration is idempotent
	res, err = r.Register(flightSchema())
	require.NoError(t, err)
	assert.True(t, res.AlreadyRegistered)
	assert.Equal(t, []string{"get_flight_info"}, r.List())
}

func TestRegistry_NameCollision(t *testing.T) {
	r := New(zerolog.Nop())
	_, err := r.Register(flightSchema())
	require.NoError(t, err)

	changed := flightSchema()
	changed.Output.Fields["arrival_time"] = &schema.TypeSpec{Kind: schema.KindDatetime}
	_, err = r.Register(changed)
	require.Error(t, err)
	var serr *schema.SchemaError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, schema.ErrNameCollision, serr.Kind)

	// original binding untouched
	got, _ := r.Lookup("get_flight_info")
	assert.Equal(t, schema.KindString, got.Output.Fields["arrival_time"].Kind)
}

func TestRegistry_OverlapWarnings(t *testing.T) {
	r := New(zerolog.Nop())
	_, err := r.Register(flightSchema())
	require.NoError(t, err)

	t.Run("narrow superset", func(t *testing.T) {
		superset := flightSchema()
		superset.Name = "get_flight_info_with_gate"
		superset.Description = "Fetch flight times plus the departure gate."
		superset.Parameters = append(superset.Parameters,
			schema.Parameter{Name: "include_gate", Description: "Include gate", Type: &schema.TypeSpec{Kind: schema.KindBoolean}})

		res, err := r.Register(superset)
		require.NoError(t, err)
		require.Len(t, res.Warnings, 1)
		assert.Contains(t, res.Warnings[0], "strict superset")
		assert.Contains(t, res.Warnings[0], "get_flight_info")
	})

	t.Run("matching verb and object", func(t *testing.T) {
		similar := &schema.ToolSchema{
			Name:        "get_flight_status",
			Description: "Get departure delay minutes for a flight.",
			Parameters: []schema.Parameter{
				{Name: "code", Description: "Flight code", Type: strSpec(), Required: true},
			},
			Output: strSpec(),
		}
		res, err := r.Register(similar)
		require.NoError(t, err)
		require.NotEmpty(t, res.Warnings)
		assert.Contains(t, res.Warnings[0], "same action")
	})

	t.Run("unrelated tool warns on nothing", func(t *testing.T) {
		other := &schema.ToolSchema{
			Name:        "convert_timezone",
			Description: "Convert a wall-clock time between timezones.",
			Parameters: []schema.Parameter{
				{Name: "time", Description: "Time to convert", Type: strSpec(), Required: true},
			},
			Output: strSpec(),
		}
		res, err := r.Register(other)
		require.NoError(t, err)
		assert.Empty(t, res.Warnings)
	})
}

func TestRegistry_AttachImplementation(t *testing.T) {
	r := New(zerolog.Nop())
	_, err := r.Register(flightSchema())
	require.NoError(t, err)

	fn := func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{"departure_time": "01:00", "arrival_time": "12:00"}, nil
	}
	okImpl := func() *Implementation {
		return &Implementation{
			Params: []string{"flight_number", "airline"},
			Output: flightSchema().Output,
			Fn:     fn,
		}
	}

	t.Run("matching implementation", func(t *testing.T) {
		require.NoError(t, r.AttachImplementation("get_flight_info", okImpl()))
		impl, ok := r.Implementation("get_flight_info")
		require.True(t, ok)
		out, err := impl.Invoke(context.Background(), map[string]interface{}{"flight_number": "UA1", "airline": "UA"})
		require.NoError(t, err)
		assert.Equal(t, "12:00", out.(map[string]interface{})["arrival_time"])
	})

	t.Run("wrong arity", func(t *testing.T) {
		impl := okImpl()
		impl.Params = []string{"flight_number"}
		err := r.AttachImplementation("get_flight_info", impl)
		var merr *ImplementationMismatchError
		require.True(t, errors.As(err, &merr))
		assert.Contains(t, merr.Detail, "arity")
	})

	t.Run("wrong order", func(t *testing.T) {
		impl := okImpl()
		impl.Params = []string{"airline", "flight_number"}
		err := r.AttachImplementation("get_flight_info", impl)
		var merr *ImplementationMismatchError
		require.True(t, errors.As(err, &merr))
	})

	t.Run("wrong output shape", func(t *testing.T) {
		impl := okImpl()
		impl.Output = strSpec()
		err := r.AttachImplementation("get_flight_info", impl)
		var merr *ImplementationMismatchError
		require.True(t, errors.As(err, &merr))
		assert.Contains(t, merr.Detail, "output shape")
	})

	t.Run("unregistered tool", func(t *testing.T) {
		err := r.AttachImplementation("launch_rocket", okImpl())
		assert.ErrorContains(t, err, "not registered")
	})
}

func TestCallingOrder(t *testing.T) {
	s := &schema.ToolSchema{
		Name:        "book_trip",
		Description: "Book a trip.",
		Parameters: []schema.Parameter{
			{Name: "notes", Description: "Free-form notes", Type: strSpec()},
			{Name: "origin", Description: "Origin", Type: strSpec(), Required: true},
			{Name: "seat", Description: "Seat preference", Type: strSpec()},
			{Name: "destination", Description: "Destination", Type: strSpec(), Required: true},
		},
		Output: strSpec(),
	}
	assert.Equal(t, []string{"origin", "destination", "notes", "seat"}, CallingOrder(s))
}

func TestRegistry_Concurrent(t *testing.T) {
	r := New(zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := &schema.ToolSchema{
				Name:        fmt.Sprintf("tool_%d", i%4),
				Description: "Does concurrent things.",
				Parameters: []schema.Parameter{
					{Name: "x", Description: "Input", Type: strSpec(), Required: true},
				},
				Output: strSpec(),
			}
			_, err := r.Register(s)
			assert.NoError(t, err)
			_, _ = r.Lookup(s.Name)
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.List(), 4)
}
