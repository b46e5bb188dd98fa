package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/framerec/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every `env` tag when looking up environment overrides.
const EnvPrefix = "FRAMEREC_"

var durationType = reflect.TypeOf(time.Duration(0))

// binding ties one options field to its CLI flag, TOML key and env variable.
type binding struct {
	field reflect.Value
	flag  string
	key   string // dotted TOML path, "" when the field has no toml tag
	env   string // without EnvPrefix
}

// LoadConfig fills opts, a pointer to a flat options struct, from the TOML
// file named by its Config field and from FRAMEREC_* environment variables.
// Precedence is CLI > env > TOML: flags the user set on cmd are left alone.
// Values that do not parse are logged and skipped.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("options must be a pointer to a struct, got %T", opts)
	}
	v = v.Elem()

	var path string
	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String {
		path = f.String()
	}
	file, err := readTOML(path)
	if err != nil {
		return err
	}

	changed := changedFlags(cmd)
	logger := logging.GetLogger("config")

	for _, b := range bindings(v) {
		if changed[b.flag] {
			continue
		}
		if b.key != "" {
			if raw, ok := lookup(file, b.key); ok {
				if err := assign(b.field, raw); err != nil {
					logger.Warn("Ignoring config file value", "key", b.key, "error", err)
				}
			}
		}
		if b.env == "" {
			continue
		}
		if s := os.Getenv(EnvPrefix + b.env); s != "" {
			if err := assignString(b.field, s); err != nil {
				logger.Warn("Ignoring environment value", "variable", EnvPrefix+b.env, "error", err)
			}
		}
	}
	return nil
}

func bindings(v reflect.Value) []binding {
	t := v.Type()
	out := make([]binding, 0, t.NumField())
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		out = append(out, binding{
			field: v.Field(i),
			flag:  flagName(sf.Name),
			key:   sf.Tag.Get("toml"),
			env:   sf.Tag.Get("env"),
		})
	}
	return out
}

func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := map[string]bool{}
	if cmd == nil {
		return changed
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = true
	})
	return changed
}

// readTOML returns nil for an empty path or a file that does not exist.
func readTOML(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// flagName is the kebab-case flag humacli derives from a field name:
// "LoggingLevel" -> "logging-level", "HTTPPort" -> "http-port".
func flagName(field string) string {
	runes := []rune(field)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			afterLower := unicode.IsLower(runes[i-1])
			beforeLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if afterLower || beforeLower {
				b.WriteByte('-')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// lookup walks a dotted path through nested TOML tables.
func lookup(table map[string]any, path string) (any, bool) {
	keys := strings.Split(path, ".")
	for _, k := range keys[:len(keys)-1] {
		next, ok := table[k].(map[string]any)
		if !ok {
			return nil, false
		}
		table = next
	}
	v, ok := table[keys[len(keys)-1]]
	return v, ok
}

// assign stores a decoded TOML value. Strings go through assignString so
// durations and comma lists read the same from a file as from the env.
func assign(field reflect.Value, raw any) error {
	if s, ok := raw.(string); ok {
		return assignString(field, s)
	}

	mismatch := fmt.Errorf("cannot use %T as %s", raw, field.Type())
	switch field.Kind() {
	case reflect.Bool:
		b, ok := raw.(bool)
		if !ok {
			return mismatch
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := raw.(int64)
		if !ok || field.Type() == durationType {
			return mismatch
		}
		if field.OverflowInt(n) {
			return fmt.Errorf("%d overflows %s", n, field.Type())
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		switch n := raw.(type) {
		case float64:
			field.SetFloat(n)
		case int64:
			field.SetFloat(float64(n))
		default:
			return mismatch
		}
	case reflect.Slice:
		items, ok := raw.([]any)
		if !ok || field.Type().Elem().Kind() != reflect.String {
			return mismatch
		}
		list := make([]string, 0, len(items))
		for _, item := range items {
			s, isStr := item.(string)
			if !isStr {
				return fmt.Errorf("list item %v is not a string", item)
			}
			list = append(list, s)
		}
		field.Set(reflect.ValueOf(list))
	default:
		return mismatch
	}
	return nil
}

// assignString parses s into the field's type. Lists are comma separated.
func assignString(field reflect.Value, s string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported list type %s", field.Type())
		}
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported type %s", field.Type())
	}
	return nil
}

// ReadLoggingConfig reads the [logging] table. Module levels may be flat
// keys (pipeline = "debug") or live under [logging.modules]. Unknown level
// names are errors, and errors are returned rather than defaulted so a
// half-written file keeps the levels already in effect.
func ReadLoggingConfig(path string) (logging.Config, error) {
	cfg := logging.Config{Level: "info", Format: "text", Modules: map[string]string{}}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	var doc struct {
		Logging map[string]any `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	for key, raw := range doc.Logging {
		switch value := raw.(type) {
		case map[string]any:
			if key != "modules" {
				continue
			}
			for module, level := range value {
				if s, ok := level.(string); ok {
					cfg.Modules[module] = s
				}
			}
		case string:
			switch key {
			case "level":
				cfg.Level = value
			case "format":
				cfg.Format = value
			default:
				cfg.Modules[key] = value
			}
		}
	}

	if !logging.ValidLevel(cfg.Level) {
		return cfg, fmt.Errorf("logging.level: unknown level %q", cfg.Level)
	}
	for module, level := range cfg.Modules {
		if !logging.ValidLevel(level) {
			return cfg, fmt.Errorf("logging.%s: unknown level %q", module, level)
		}
	}
	return cfg, nil
}
