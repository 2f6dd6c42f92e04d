// Package config loads and validates stresstest run configuration.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// lookupSetting returns the first candidate key present in settings.
// Viper lowercases keys, so the lowercase form of each candidate is tried too.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		if val, ok := settings[key]; ok {
			return val, true
		}
		if val, ok := settings[strings.ToLower(key)]; ok {
			return val, true
		}
	}
	return nil, false
}

func asString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case []byte:
		return string(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

func asInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float32:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		return strconv.Atoi(s)
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", value)
	}
}

func asFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(v), "%")
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	default:
		return 0, fmt.Errorf("unsupported float type %T", value)
	}
}

func asBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return false, nil
		}
		return strconv.ParseBool(s)
	default:
		return false, fmt.Errorf("unsupported boolean type %T", value)
	}
}

// asDuration accepts Go duration strings; bare numbers are seconds.
func asDuration(value interface{}) (time.Duration, error) {
	return asScaledDuration(value, time.Second)
}

// asMillis accepts Go duration strings; bare numbers are milliseconds.
func asMillis(value interface{}) (time.Duration, error) {
	return asScaledDuration(value, time.Millisecond)
}

func asScaledDuration(value interface{}, unit time.Duration) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(n * float64(unit)), nil
		}
		return time.ParseDuration(s)
	case int, int32, int64, uint, uint32, uint64:
		n, _ := asInt(v)
		return time.Duration(n) * unit, nil
	case float32, float64:
		f, _ := asFloat64(v)
		return time.Duration(f * float64(unit)), nil
	default:
		return 0, fmt.Errorf("unsupported duration type %T", value)
	}
}

func asStringMap(value interface{}) (map[string]string, error) {
	if value == nil {
		return nil, nil
	}
	m, err := toStringKeyMap(value, false)
	if err != nil {
		return nil, err
	}
	result := make(map[string]string, len(m))
	for k, v := range m {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("key cannot be empty")
		}
		str, err := asString(v)
		if err != nil {
			return nil, err
		}
		result[k] = str
	}
	return result, nil
}

func asStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), v...), nil
	case []interface{}:
		result := make([]string, len(v))
		for i, item := range v {
			str, err := asString(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			result[i] = str
		}
		return result, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	default:
		return nil, fmt.Errorf("unsupported string slice type %T", value)
	}
}

// asDomains accepts either a mapping of base URL to sub paths or a list of
// {url|base, paths} entries.
func asDomains(value interface{}) (map[string][]string, error) {
	result := map[string][]string{}
	switch v := value.(type) {
	case nil:
		return result, nil
	case []interface{}, []map[string]interface{}:
		items, err := toInterfaceSlice(v)
		if err != nil {
			return nil, err
		}
		for i, item := range items {
			entry, err := toStringKeyMap(item, true)
			if err != nil {
				return nil, fmt.Errorf("domains[%d]: %w", i, err)
			}
			raw, ok := lookupSetting(entry, "url", "base")
			if !ok {
				return nil, fmt.Errorf("domains[%d]: url is required", i)
			}
			base, err := asString(raw)
			if err != nil {
				return nil, fmt.Errorf("domains[%d]: %w", i, err)
			}
			paths, err := asStringSlice(entry["paths"])
			if err != nil {
				return nil, fmt.Errorf("domains[%d].paths: %w", i, err)
			}
			result[strings.TrimSpace(base)] = append(result[strings.TrimSpace(base)], paths...)
		}
		return result, nil
	default:
		m, err := toStringKeyMap(value, false)
		if err != nil {
			return nil, err
		}
		for base, raw := range m {
			paths, err := asStringSlice(raw)
			if err != nil {
				return nil, fmt.Errorf("domains[%s]: %w", base, err)
			}
			result[strings.TrimSpace(base)] = paths
		}
		return result, nil
	}
}

// splitTargetURL splits an absolute URL into its scheme://host base and the
// remaining path (query included).
func splitTargetURL(raw string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("url %q must be absolute", raw)
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return u.Scheme + "://" + u.Host, path, nil
}

func toInterfaceSlice(value interface{}) ([]interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		return v, nil
	case []map[string]interface{}:
		items := make([]interface{}, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected list, got %T", value)
	}
}

// toStringKeyMap normalizes map keys to strings, lowercasing them when asked.
// Domain maps keep their keys verbatim because they are URLs.
func toStringKeyMap(value interface{}, lower bool) (map[string]interface{}, error) {
	norm := func(k string) string {
		k = strings.TrimSpace(k)
		if lower {
			return strings.ToLower(k)
		}
		return k
	}
	result := map[string]interface{}{}
	switch v := value.(type) {
	case map[string]interface{}:
		for key, val := range v {
			result[norm(key)] = val
		}
	case map[string]string:
		for key, val := range v {
			result[norm(key)] = val
		}
	case map[string][]string:
		for key, val := range v {
			result[norm(key)] = val
		}
	case map[interface{}]interface{}:
		for key, val := range v {
			str, err := asString(key)
			if err != nil {
				return nil, err
			}
			result[norm(str)] = val
		}
	default:
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	return result, nil
}
