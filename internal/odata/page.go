package odata

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// parseCount reads a $count body.
func parseCount(body []byte) (int, error) {
	s := strings.TrimSpace(strings.TrimPrefix(string(body), "\ufeff"))
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("odata: invalid count %q", s)
	}
	return int(f), nil
}

// parsePage extracts the entities of one page. Verbose v2
// ({"d":{"results":[]}}), v1 ({"d":[]}), v4 ({"value":[]}) and bare
// arrays are accepted.
func parsePage(body []byte) ([]interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("odata: invalid page: %w", err)
	}
	switch t := v.(type) {
	case []interface{}:
		return t, nil
	case map[string]interface{}:
		if d, ok := t["d"]; ok {
			switch dt := d.(type) {
			case []interface{}:
				return dt, nil
			case map[string]interface{}:
				if results, ok := dt["results"].([]interface{}); ok {
					return results, nil
				}
			}
		}
		if value, ok := t["value"].([]interface{}); ok {
			return value, nil
		}
		if results, ok := t["results"].([]interface{}); ok {
			return results, nil
		}
	}
	return nil, fmt.Errorf("odata: page without results")
}
