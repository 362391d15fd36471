package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderWrapsAndTags(t *testing.T) {
	t.Parallel()

	base := stderrors.New("device busy")
	err := New(base).
		Component("audiocore").
		Category(CategoryCapture).
		Context("source", "monitor-1").
		Context("attempt", 3).
		Build()

	require.Error(t, err)
	assert.Equal(t, "device busy", err.Error())
	assert.True(t, Is(err, base), "wrapped error remains matchable")

	var enhanced *EnhancedError
	require.True(t, As(err, &enhanced))
	assert.Equal(t, "audiocore", enhanced.GetComponent())
	assert.Equal(t, string(CategoryCapture), enhanced.GetCategory())

	ctx := enhanced.GetContext()
	assert.Equal(t, "monitor-1", ctx["source"])
	assert.Equal(t, 3, ctx["attempt"])
	assert.False(t, enhanced.Timestamp.IsZero())
}

func TestNewfFormats(t *testing.T) {
	t.Parallel()

	err := Newf("read %d of %d bytes", 3, 10).Build()
	assert.Equal(t, "read 3 of 10 bytes", err.Error())
}

func TestNilErrorGetsPlaceholder(t *testing.T) {
	t.Parallel()

	err := New(nil).Category(CategoryValidation).Build()
	require.Error(t, err)
	assert.NotEmpty(t, err.Error())
}

func TestCategoryMatching(t *testing.T) {
	t.Parallel()

	a := New(nil).Category(CategoryCapture).Build()
	b := New(nil).Category(CategoryCapture).Build()
	c := New(nil).Category(CategoryPlayback).Build()

	assert.True(t, Is(a, b), "same category matches")
	assert.False(t, Is(a, c), "different category does not match")
}

func TestUnknownComponent(t *testing.T) {
	t.Parallel()

	var enhanced *EnhancedError
	require.True(t, As(New(nil).Build(), &enhanced))
	assert.Equal(t, ComponentUnknown, enhanced.GetComponent())
}

func TestContextCopyIsIsolated(t *testing.T) {
	t.Parallel()

	var enhanced *EnhancedError
	require.True(t, As(New(nil).Context("k", "v").Build(), &enhanced))

	ctx := enhanced.GetContext()
	ctx["k"] = "mutated"
	assert.Equal(t, "v", enhanced.GetContext()["k"])
}
