package config

import (
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"

	merrors "github.com/mammothweb/mammoth/internal/errors"
)

var (
	bindingType  = reflect.TypeOf(Binding{})
	severityType = reflect.TypeOf(merrors.Severity(0))
)

// bindingDecodeHook lets `listen = 8080` stand in for the full table form.
// Map-shaped values fall through to the ordinary struct decoding.
func bindingDecodeHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != bindingType {
			return data, nil
		}

		switch v := data.(type) {
		case int:
			return Binding{Port: v}, nil
		case int32:
			return Binding{Port: int(v)}, nil
		case int64:
			return Binding{Port: int(v)}, nil
		case uint:
			return Binding{Port: int(v)}, nil
		case uint64:
			return Binding{Port: int(v)}, nil
		case float64:
			port := int(v)
			if float64(port) != v {
				return nil, fmt.Errorf("listen port %v is not an integer", v)
			}
			return Binding{Port: port}, nil
		case string:
			return nil, fmt.Errorf("listen must be a port number or a table, got %q", v)
		default:
			return data, nil
		}
	}
}

// severityDecodeHook decodes severity names case-insensitively.
func severityDecodeHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != severityType || from.Kind() != reflect.String {
			return data, nil
		}
		return merrors.ParseSeverity(data.(string))
	}
}
