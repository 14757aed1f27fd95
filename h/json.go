package h

import (
	"github.com/tidwall/gjson"
)

type JsonValue struct {
	value string
}

func NewJsonValue(value string) JsonValue {
	return JsonValue{value: value}
}

func (j JsonValue) Get(path string) any {
	value := gjson.Get(j.value, path)
	if value.Exists() {
		return value.Value()
	}
	return nil
}

// Raw returns the raw JSON found at path, or "" when absent.
func (j JsonValue) Raw(path string) string {
	value := gjson.Get(j.value, path)
	if value.Exists() {
		return value.Raw
	}
	return ""
}
