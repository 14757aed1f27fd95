package f

import (
	"context"
	"errors"
	"testing"

	"github.com/soffa-projects/tenantdb-go/test"
)

func TestNormalizeType(t *testing.T) {
	assert := test.NewAssertions(t)
	assert.Equals(NormalizeType("String"), TypeText)
	assert.Equals(NormalizeType("int"), TypeInteger)
	assert.Equals(NormalizeType("double"), TypeNumber)
	assert.Equals(NormalizeType("datetime"), TypeTimestamp)
	assert.Equals(NormalizeType("jsonb"), TypeJSON)
	assert.Equals(NormalizeType("geometry"), "")
}

func TestArrayElement(t *testing.T) {
	assert := test.NewAssertions(t)
	elem, ok := ArrayElement("array:text")
	assert.True(ok)
	assert.Equals(elem, "text")
	elem, ok = ArrayElement("INTEGER[]")
	assert.True(ok)
	assert.Equals(elem, "integer")
	_, ok = ArrayElement("text")
	assert.False(ok)
}

func TestParseIdType(t *testing.T) {
	assert := test.NewAssertions(t)
	id, ok := ParseIdType(" UUID ")
	assert.True(ok)
	assert.Equals(id, IdUUID)
	_, ok = ParseIdType("ulid")
	assert.False(ok)
}

func TestPredicate(t *testing.T) {
	assert := test.NewAssertions(t)
	assert.True(Predicate{}.IsZero())
	p := TrustedPredicate("  owner_id = 42 ")
	assert.False(p.IsZero())
	assert.Equals(p.SQL(), "owner_id = 42")
}

func TestDataSourcePrefix(t *testing.T) {
	assert := test.NewAssertions(t)
	assert.Equals(DataSource{}.Prefix(), DefaultTablePrefix)
	assert.Equals(DataSource{TablePrefix: "app_"}.Prefix(), "app_")
}

func TestHealthCheck(t *testing.T) {
	assert := test.NewAssertions(t)
	hc := NewHealthCheck("tenantdb")
	hc.Add("admin", func() error { return nil })
	assert.Equals(hc.Build().Status, StatusUp)

	hc.AddPing(context.Background(), "tenant", func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	report := hc.Build()
	assert.Equals(report.Status, StatusDown)
	assert.Equals(report.Components["tenant"].Message, "connection refused")

	other := NewHealthCheck("x")
	other.Add("a", func() error { return nil })
	merged := NewHealthCheck("tenantdb")
	merged.Merge("pool:", other.Build())
	assert.Equals(merged.Build().Components["pool:a"].Status, StatusUp)
}

func TestTrace(t *testing.T) {
	assert := test.NewAssertions(t)
	assert.True(Trace(nil) == nil)
	err := Trace(errors.New("boom"))
	assert.Contains(SprintTrace(err), "boom")
	assert.Equals(SprintTrace(errors.New("plain")), "plain")
}
