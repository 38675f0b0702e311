package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/entitydb/internal/entity"
	"github.com/roach88/entitydb/internal/entitydb"
	"github.com/roach88/entitydb/internal/value"
)

// entityObject renders e with its identity field.
func entityObject(t *entitydb.Table, e *entity.Entity) value.Object {
	obj := e.Values()
	obj[t.IdentityField()] = e.ID().Value()
	return obj
}

// entityJSON renders e as canonical JSON.
func entityJSON(t *entitydb.Table, e *entity.Entity) (json.RawMessage, error) {
	data, err := value.MarshalCanonical(entityObject(t, e))
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s %s: %w", t.Name(), e.ID(), err)
	}
	return data, nil
}

// writeEntityText writes e on one line: identity first, then fields in
// declaration order. Null fields are omitted.
func writeEntityText(w io.Writer, t *entitydb.Table, e *entity.Entity) {
	parts := []string{t.IdentityField() + "=" + e.ID().String()}
	for _, f := range t.Schema().Fields() {
		v := e.Get(f.Name)
		if value.IsNull(v) {
			continue
		}
		parts = append(parts, f.Name+"="+quoteText(v))
	}
	fmt.Fprintln(w, strings.Join(parts, " "))
}

func quoteText(v value.Value) string {
	s := value.String(v)
	if _, ok := v.(value.Text); ok && (s == "" || strings.ContainsAny(s, " \t\n\"=")) {
		return fmt.Sprintf("%q", s)
	}
	return s
}
