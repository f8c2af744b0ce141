package logging

import (
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
)

type infoField struct {
	label string
	value string
}

// infoHighlightKeys are listed first on info lines, in this order.
var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	"state",
	"from",
	"to",
	"frames",
	"frame",
	"jobs",
	"evictions",
	"max_bytes",
	"current_bytes",
	"bytes_per_second",
	FieldErrorHint,
	FieldImpact,
	"error",
}

// selectInfoFields returns formatted info-level fields, highlighted keys first.
func selectInfoFields(attrs []kv) []infoField {
	if len(attrs) == 0 {
		return nil
	}
	used := make(map[string]bool, len(attrs))
	result := make([]infoField, 0, len(attrs))
	for _, key := range infoHighlightKeys {
		for _, attr := range attrs {
			if attr.key != key || used[key] {
				continue
			}
			used[key] = true
			if val := formatValueForKey(attr.key, attr.value); val != "" {
				result = append(result, infoField{label: displayLabel(attr.key), value: val})
			}
		}
	}
	for _, attr := range attrs {
		if used[attr.key] || skipInfoKey(attr.key) {
			continue
		}
		used[attr.key] = true
		if val := formatValueForKey(attr.key, attr.value); val != "" {
			result = append(result, infoField{label: displayLabel(attr.key), value: val})
		}
	}
	return result
}

// formatValueForKey applies formatting based on the key name.
func formatValueForKey(key string, v slog.Value) string {
	v = v.Resolve()
	if isByteSizeKey(key) {
		switch v.Kind() {
		case slog.KindInt64:
			if n := v.Int64(); n >= 0 {
				return humanize.IBytes(uint64(n))
			}
		case slog.KindUint64:
			return humanize.IBytes(v.Uint64())
		case slog.KindFloat64:
			if f := v.Float64(); f >= 0 {
				return humanize.IBytes(uint64(f)) + "/s"
			}
		}
	}
	if v.Kind() == slog.KindBool {
		if v.Bool() {
			return "yes"
		}
		return "no"
	}
	value := formatValue(v)
	if key == "error" {
		value = truncateErrorValue(value)
	}
	return value
}

func isByteSizeKey(key string) bool {
	return strings.HasSuffix(key, "_bytes") ||
		key == "bytes" ||
		key == "bytes_per_second"
}

func truncateErrorValue(value string) string {
	value = strings.TrimSpace(value)
	const maxLen = 200
	if len(value) > maxLen {
		value = value[:maxLen] + "…"
	}
	return value
}

func skipInfoKey(key string) bool {
	switch key {
	case "", FieldItemID, FieldWorker, FieldComponent, FieldSessionID:
		return true
	default:
		return false
	}
}

func displayLabel(key string) string {
	switch key {
	case FieldEventType:
		return "Event"
	case FieldErrorHint:
		return "Hint"
	case "bytes_per_second":
		return "Rate"
	}
	return titleizeKey(key)
}

func titleizeKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '.' })
	for i, part := range parts {
		parts[i] = capitalizeASCII(part)
	}
	return strings.Join(parts, " ")
}

func capitalizeASCII(value string) string {
	if value == "" {
		return value
	}
	first := value[0]
	if first >= 'a' && first <= 'z' {
		first -= 'a' - 'A'
	}
	return string(first) + value[1:]
}
