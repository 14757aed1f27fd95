package test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

var errSample = errors.New("sample")

func TestNewAssertions(t *testing.T) {
	assert := NewAssertions(t)
	if assert.internal == nil {
		t.Error("NewAssertions should create a valid internal gomega instance")
	}
}

func TestAssertions_Basics(t *testing.T) {
	assert := NewAssertions(t)
	assert.Nil(nil)
	assert.NotNil("test", 42, true)
	assert.NotEmpty(" ")
	assert.True(true)
	assert.False(false)
	assert.Equals(42, 42)
	assert.NotEqual("hello", "world")
	assert.Empty([]string{})
	assert.Len([]int{1, 2}, 2)
}

func TestAssertions_Contains(t *testing.T) {
	assert := NewAssertions(t)
	assert.Contains("CREATE TABLE IF NOT EXISTS", "IF NOT EXISTS")
	assert.Contains([]string{"a", "b"}, "b")
	assert.NotContains("SELECT 1", "DROP")
}

func TestAssertions_ErrorIs(t *testing.T) {
	assert := NewAssertions(t)
	wrapped := fmt.Errorf("outer: %w", errSample)
	assert.Error(wrapped)
	assert.ErrorIs(wrapped, errSample)
}

func TestAssertions_MatchJson(t *testing.T) {
	assert := NewAssertions(t)
	assert.MatchJson(`{"name":"John","age":30}`, `{"age":30,"name":"John"}`)
}

func TestSqliteURL(t *testing.T) {
	assert := NewAssertions(t)
	first := SqliteURL(t)
	second := SqliteURL(t)
	assert.True(strings.HasPrefix(first, "sqlite://file:"))
	assert.Contains(first, "mode=memory")
	assert.NotEqual(first, second)
}

func TestWriteFile(t *testing.T) {
	assert := NewAssertions(t)
	path := WriteFile(t, "sources.json", "{}")
	assert.True(strings.HasSuffix(path, "sources.json"))
}
