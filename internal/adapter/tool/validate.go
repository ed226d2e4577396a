package tool

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/tomatyss/chatter/internal/domain"
)

// RequireField returns an error if the string value is empty.
func RequireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("'%s' is required", name)
	}
	return nil
}

// ValidateParams checks params against a decoded parameter schema: every
// required name must be present, and every supplied parameter the schema
// declares must carry the declared JSON type. "integer" accepts any number.
func ValidateParams(op string, schema domain.ParameterSchema, params map[string]any) error {
	for _, name := range schema.Required {
		if _, ok := params[name]; !ok {
			return domain.NewDomainError(op, domain.ErrMissingParameter, name)
		}
	}
	for name, value := range params {
		prop, ok := schema.Properties[name]
		if !ok || prop.Type == "" {
			continue
		}
		actual := jsonType(value)
		if actual == prop.Type || (prop.Type == "integer" && actual == "number") {
			continue
		}
		return domain.NewDomainError(op, domain.ErrInvalidInput,
			fmt.Sprintf("parameter '%s' has type '%s' but expected '%s'", name, actual, prop.Type))
	}
	return nil
}

// jsonType names the JSON type v would encode as.
func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	}
	return "unknown"
}
