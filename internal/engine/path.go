package engine

import (
	"strings"

	"github.com/oliveagle/jsonpath"
)

// ResolvePath возвращает значение по пути в контексте.
//
// Путь записывается через точку, как в описаниях дочерних workflow:
// "endUser.id", "stakeholders[0].name". Допускается и JSONPath с "$.".
// Если путь пустой или значение отсутствует, возвращается (nil, false).
func ResolvePath(ctx map[string]any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" || ctx == nil {
		return nil, false
	}

	value, err := jsonpath.JsonPathLookup(ctx, toJSONPath(path))
	if err != nil || value == nil {
		return nil, false
	}
	return value, true
}

// LastSegment возвращает последний сегмент пути ("endUser.id" → "id").
func LastSegment(path string) string {
	path = strings.TrimPrefix(strings.TrimSpace(path), "$.")
	if i := strings.LastIndex(path, "."); i >= 0 {
		path = path[i+1:]
	}
	if i := strings.Index(path, "["); i >= 0 {
		path = path[:i]
	}
	return path
}

// toJSONPath приводит точечный путь к виду "$.a.b".
func toJSONPath(path string) string {
	if strings.HasPrefix(path, "$") {
		return path
	}
	return "$." + path
}
