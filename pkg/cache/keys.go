package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// digestLen is the number of hex characters kept from the hashed argument
// list. 16 chars (64 bits) keeps keys short while making collisions
// negligible for realistic key populations.
const digestLen = 16

// GenerateKey builds a deterministic cache key from a namespace and an
// argument list. Named arguments are sorted by name, so logically equal
// calls produce the same key regardless of map ordering. Values implementing
// Identifiable render as "TypeName:id"; everything else uses its printed
// form.
func GenerateKey(namespace string, args []any, named map[string]any) string {
	parts := make([]string, 0, len(args)+len(named))
	for _, a := range args {
		parts = append(parts, stringifyArg(a))
	}

	names := make([]string, 0, len(named))
	for n := range named {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		parts = append(parts, n+"="+stringifyArg(named[n]))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return namespace + ":" + hex.EncodeToString(sum[:])[:digestLen]
}

func stringifyArg(v any) string {
	if id, ok := v.(Identifiable); ok {
		return typeName(v) + ":" + id.CacheID()
	}
	return fmt.Sprintf("%v", v)
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}
