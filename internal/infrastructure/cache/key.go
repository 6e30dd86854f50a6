package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Key construye la clave {resource}:{hash} a partir de los parámetros de consulta
// normalizados: nombres ordenados y, dentro de cada nombre, valores ordenados.
// Dos peticiones que solo difieren en el orden de sus parámetros comparten clave.
func Key(resource string, params url.Values) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		values := append([]string(nil), params[name]...)
		sort.Strings(values)
		for _, v := range values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(name))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return fmt.Sprintf("%s:%016x", resource, xxhash.Sum64String(b.String()))
}
