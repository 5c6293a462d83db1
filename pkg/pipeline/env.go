package pipeline

import (
	"runtime"
	"sort"
	"strings"
)

// Environ merges base (usually os.Environ()) with the given overrides. Later overrides win.
// Variable names are case-insensitive on Windows.
func Environ(base []string, overrides ...map[string]string) []string {
	values := map[string]string{}
	order := []string{}
	set := func(key, value string) {
		if runtime.GOOS == "windows" {
			key = strings.ToUpper(key)
		}

		if _, ok := values[key]; !ok {
			order = append(order, key)
		}
		values[key] = value
	}

	for _, item := range base {
		parts := strings.SplitN(item, "=", 2)
		// Windows has a few entries like "=C:=C:\" which we have to skip
		if len(parts) < 2 || parts[0] == "" {
			continue
		}
		set(parts[0], parts[1])
	}

	for _, group := range overrides {
		keys := make([]string, 0, len(group))
		for key := range group {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			set(key, group[key])
		}
	}

	result := make([]string, len(order))
	for idx, key := range order {
		result[idx] = key + "=" + values[key]
	}
	return result
}
