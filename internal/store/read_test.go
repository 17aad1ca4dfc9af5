package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/haybind/internal/haystack"
)

func TestReadByIDs(t *testing.T) {
	s := createSeededStore(t)
	ctx := context.Background()

	g, err := s.ReadByIDs(ctx, []haystack.Ref{{ID: "temp"}, {ID: "site"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"temp", "site"}, ids(g), "input order is kept")
	assert.Equal(t, haystack.Number{Val: 72.5, Unit: "°F"}, g[0]["curVal"])
	assert.Equal(t, haystack.Ref{ID: "ahu"}, g[0]["equipRef"])

	_, err = s.ReadByIDs(ctx, []haystack.Ref{{ID: "temp"}, {ID: "nope"}})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "@nope")

	g, err = s.ReadByIDs(ctx, nil)
	require.NoError(t, err)
	assert.NotNil(t, g)
	assert.Equal(t, 0, g.Len())
}

func TestReadByFilter(t *testing.T) {
	s := createSeededStore(t)

	tests := []struct {
		filter string
		want   []string
	}{
		{"point", []string{"temp", "sp"}},
		{"not point", []string{"site", "ahu"}},
		{"point and writable", []string{"sp"}},
		{"site or ahu", []string{"site", "ahu"}},
		{`dis == "AHU-1"`, []string{"ahu"}},
		{"curVal > 71°F", []string{"temp"}},
		{"curVal <= 70°F", []string{"sp"}},
		{"area >= 1000ft²", []string{"site"}},
		{"area >= 1000", []string{}},
		{"equipRef == @ahu", []string{"temp", "sp"}},
		{`equipRef->siteRef->dis == "HQ"`, []string{"temp", "sp"}},
		{"equipRef->ahu", []string{"temp", "sp"}},
		{"missingTag", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			g, err := s.ReadByFilter(context.Background(), tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(g))
		})
	}
}

func TestReadByFilter_ParseError(t *testing.T) {
	s := createSeededStore(t)

	_, err := s.ReadByFilter(context.Background(), "point and")
	require.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	s := createSeededStore(t)

	tests := []struct {
		expr string
		want []string
	}{
		{"readAll(point)", []string{"temp", "sp"}},
		{"read(point)", []string{"temp"}},
		{"readById(@ahu)", []string{"ahu"}},
		{"readByIds([@sp, @site])", []string{"sp", "site"}},
		{"  readAll( equip )  ", []string{"ahu"}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			g, err := s.Evaluate(context.Background(), tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(g))
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	s := createSeededStore(t)

	tests := []struct {
		expr string
		is   error
	}{
		{"hisRead(@temp, today)", ErrUnsupportedExpr},
		{"point", ErrUnsupportedExpr},
		{"read(chiller)", ErrNotFound},
		{"readById(@nope)", ErrNotFound},
		{"readById(@a, @b)", nil},
		{"readByIds(@a)", nil},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := s.Evaluate(context.Background(), tt.expr)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}
