// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"reflect"
	"sort"
)

// ChangeSummary describes the result of comparing two AppConfigs.
type ChangeSummary struct {
	ChangedFields []string // field paths that changed
	RestartFields []string // changed fields that cannot be applied at runtime
}

// RestartRequired reports whether any changed field is outside the
// hot-reload allowlist.
func (s ChangeSummary) RestartRequired() bool {
	return len(s.RestartFields) > 0
}

// hotReloadAllowlist names the fields that may change without a process
// restart. Everything else is captured by its consumer at startup
// (listen sockets, the database handle, the lock service, the engine),
// so a changed value could never take effect anyway.
var hotReloadAllowlist = map[string]struct{}{
	"Version":   {},
	"LogLevel":  {},
	"LogPretty": {},
}

// Diff compares two configurations field by field and returns a summary
// of the changes.
func Diff(old, next AppConfig) ChangeSummary {
	var summary ChangeSummary
	summary.compareStruct("", reflect.ValueOf(old), reflect.ValueOf(next))
	return summary
}

func (s *ChangeSummary) compareStruct(prefix string, oldVal, nextVal reflect.Value) {
	t := oldVal.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		fieldPath := f.Name
		if prefix != "" {
			fieldPath = prefix + "." + f.Name
		}

		ov := oldVal.Field(i)
		nv := nextVal.Field(i)

		if ov.Kind() == reflect.Struct && !isLeafType(ov.Type()) {
			s.compareStruct(fieldPath, ov, nv)
			continue
		}

		if !reflect.DeepEqual(normalizeValue(ov), normalizeValue(nv)) {
			s.recordChange(fieldPath)
		}
	}
}

func (s *ChangeSummary) recordChange(fieldPath string) {
	s.ChangedFields = append(s.ChangedFields, fieldPath)
	if _, ok := hotReloadAllowlist[fieldPath]; !ok {
		s.RestartFields = append(s.RestartFields, fieldPath)
	}
}

// isLeafType marks struct types that are compared as a whole rather
// than walked field by field (e.g. time.Time).
func isLeafType(t reflect.Type) bool {
	return t.PkgPath() == "time" && t.Name() == "Time"
}

// normalizeValue returns a canonical representation for comparison:
// string slices are sorted and nil is folded into empty, so list order
// and absent-vs-empty do not register as changes.
func normalizeValue(v reflect.Value) any {
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.String {
		if v.Len() == 0 {
			return []string{}
		}
		raw := v.Interface().([]string)
		sorted := make([]string, len(raw))
		copy(sorted, raw)
		sort.Strings(sorted)
		return sorted
	}
	return v.Interface()
}
