package evaluator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScope struct {
	vars map[string]Value
}

func (s *fakeScope) Lookup(name string) (Value, bool) {
	v, ok := s.vars[name]
	return v, ok
}

func (s *fakeScope) Field(base Value, member string) (Value, error) {
	return Value{}, ErrNotAddressable
}

func (s *fakeScope) Index(base Value, idx int64) (Value, error) {
	return Value{}, ErrNotAddressable
}

func (s *fakeScope) Deref(base Value) (Value, error) {
	return Value{}, ErrNotAddressable
}

func TestEvalArithmeticPrecedence(t *testing.T) {
	scope := &fakeScope{vars: map[string]Value{"x": {Number: 10}}}
	v, err := Eval("x + 2 * 3", scope, DivisionTruncating)
	require.NoError(t, err)
	assert.Equal(t, float64(16), v.Number)
}

func TestEvalParentheses(t *testing.T) {
	scope := &fakeScope{vars: map[string]Value{}}
	v, err := Eval("(2 + 3) * 4", scope, DivisionTruncating)
	require.NoError(t, err)
	assert.Equal(t, float64(20), v.Number)
}

func TestEvalDivisionModes(t *testing.T) {
	scope := &fakeScope{vars: map[string]Value{}}

	v, err := Eval("-7 / 2", scope, DivisionTruncating)
	require.NoError(t, err)
	assert.Equal(t, float64(-3), v.Number)

	v, err = Eval("-7 / 2", scope, DivisionFloor)
	require.NoError(t, err)
	assert.Equal(t, float64(-4), v.Number)

	v, err = Eval("7 / 2", scope, DivisionFloat)
	require.NoError(t, err)
	assert.Equal(t, 3.5, v.Number)
}

func TestEvalDivideByZero(t *testing.T) {
	scope := &fakeScope{vars: map[string]Value{}}
	_, err := Eval("1 / 0", scope, DivisionTruncating)
	assert.True(t, errors.Is(err, ErrDivideByZero))
}

func TestEvalUnboundIdentifier(t *testing.T) {
	scope := &fakeScope{vars: map[string]Value{}}
	_, err := Eval("missing + 1", scope, DivisionTruncating)
	assert.True(t, errors.Is(err, ErrUnboundIdentifier))
}

func TestEvalUnaryMinus(t *testing.T) {
	scope := &fakeScope{vars: map[string]Value{"x": {Number: 5}}}
	v, err := Eval("-x", scope, DivisionTruncating)
	require.NoError(t, err)
	assert.Equal(t, float64(-5), v.Number)
}
