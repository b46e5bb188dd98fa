package logging

import (
	"log/slog"
	"slices"
)

// scope is the WithAttrs/WithGroup state shared by the journal and buffer
// handlers. Bound attributes keep the group path that was open when they
// were bound.
type scope struct {
	bound  []boundAttr
	groups []string
}

type boundAttr struct {
	path []string
	attr slog.Attr
}

func (s scope) withAttrs(attrs []slog.Attr) scope {
	bound := make([]boundAttr, len(s.bound), len(s.bound)+len(attrs))
	copy(bound, s.bound)
	for _, a := range attrs {
		bound = append(bound, boundAttr{path: s.groups, attr: a})
	}
	return scope{bound: bound, groups: s.groups}
}

func (s scope) withGroup(name string) scope {
	if name == "" {
		return s
	}
	return scope{bound: s.bound, groups: append(slices.Clone(s.groups), name)}
}

// walk calls leaf for every non-group attribute of r, bound ones first.
// Top-level "module" and "session" attributes identify the record and are
// returned instead of being passed to leaf.
func (s scope) walk(r slog.Record, leaf func(path []string, v slog.Value)) (module, session string) {
	var visit func(path []string, a slog.Attr)
	visit = func(path []string, a slog.Attr) {
		a.Value = a.Value.Resolve()
		if a.Equal(slog.Attr{}) {
			return
		}

		if len(path) == 0 {
			switch a.Key {
			case "module":
				module = a.Value.String()
				return
			case "session":
				session = a.Value.String()
				return
			}
		}

		if a.Value.Kind() == slog.KindGroup {
			inner := path
			if a.Key != "" {
				inner = append(slices.Clone(path), a.Key)
			}
			for _, ga := range a.Value.Group() {
				visit(inner, ga)
			}
			return
		}
		leaf(append(slices.Clone(path), a.Key), a.Value)
	}

	for _, b := range s.bound {
		visit(b.path, b.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		visit(s.groups, a)
		return true
	})
	return module, session
}

// levelName is the lowercase level used in log entries and the API.
func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
