package main

import (
	"encoding/json"
	"testing"

	"github.com/soffa-projects/tenantdb-go/errors"
	"github.com/soffa-projects/tenantdb-go/test"
)

func TestParseField(t *testing.T) {
	assert := test.NewAssertions(t)

	field, err := parseField("age:integer")
	assert.Nil(err)
	assert.Equals(field.Name, "age")
	assert.Equals(field.Type, "integer")
	assert.True(field.Nullable)

	field, err = parseField("email:text:required")
	assert.Nil(err)
	assert.False(field.Nullable)

	_, err = parseField("age")
	assert.ErrorIs(err, errors.ErrBadRequest)
	_, err = parseField(":text")
	assert.ErrorIs(err, errors.ErrBadRequest)
}

func TestDecodeRecord(t *testing.T) {
	assert := test.NewAssertions(t)

	record, err := decodeRecord(`{"n": 3, "x": 1.5, "tags": ["a"]}`)
	assert.Nil(err)
	assert.Equals(record["n"], json.Number("3"))
	assert.Equals(record["x"], json.Number("1.5"))

	_, err = decodeRecord(`[1, 2]`)
	assert.ErrorIs(err, errors.ErrBadRequest)
}
