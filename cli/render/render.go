// Package render writes command results for the mobius CLI as json, yaml
// or an aligned table.
//
// Without --format, a terminal gets a table and anything else gets json.
// --no-color only changes table headers; the TUI keeps its own styling.
//
// Tables are deterministic: map keys and map-derived columns are sorted.
package render

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/cite-sa/MobiusCore/cli/tui"
)

var headerStyle = lipgloss.NewStyle().Bold(true)

// Format is an output format name.
type Format string

const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat maps a --format value to a Format. The empty string is
// returned unchanged so the caller can pick a default.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	switch f {
	case "", FormatJSON, FormatTable, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
}

// Table is implemented by views that know their own columns. Anything
// else is laid out by reflecting over its fields.
type Table interface {
	Columns() []string
	TableRows() [][]string
}

// Renderer writes values in one format.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer reads --format and --no-color from c and writes to stdout.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = FormatJSON
		if isTTY(os.Stdout) {
			format = FormatTable
		}
	}
	return NewRendererWithWriter(format, c.Bool("no-color"), os.Stdout), nil
}

// NewRendererWithWriter returns a renderer writing to out.
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{format: format, noColor: noColor, out: out}
}

// Render writes data in the renderer's format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable:
		return r.renderTable(data)
	}
	return fmt.Errorf("unknown format: %s", r.format)
}

// RenderTUI hands data to the interactive view registered for viewType.
func (r *Renderer) RenderTUI(viewType string, data any) error {
	if !tui.IsTUISupported(viewType) {
		return fmt.Errorf("--tui is not supported for %s", viewType)
	}
	return tui.Run(viewType, data)
}

func (r *Renderer) renderTable(data any) error {
	if t, ok := data.(Table); ok {
		return r.writeRows(t.Columns(), t.TableRows())
	}

	v := indirect(reflect.ValueOf(data))
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		if v.Len() == 0 {
			fmt.Fprintln(r.out, "(no results)")
			return nil
		}
		cols := columnsOf(v)
		rows := make([][]string, v.Len())
		for i := range rows {
			rows[i] = rowOf(v.Index(i), cols)
		}
		return r.writeRows(cols, rows)
	}

	fields := fieldsOf(v)
	if len(fields) == 0 {
		fmt.Fprintln(r.out, cell(v))
		return nil
	}
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for _, f := range fields {
		fmt.Fprintf(w, "%s:\t%s\n", f.name, cell(f.value))
	}
	return w.Flush()
}

func (r *Renderer) writeRows(cols []string, rows [][]string) error {
	if len(rows) == 0 {
		fmt.Fprintln(r.out, "(no results)")
		return nil
	}
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	header := cols
	if !r.noColor {
		// Each cell is styled on its own: rendering a joined line would
		// turn the tabs into spaces and break alignment.
		header = make([]string, len(cols))
		for i, c := range cols {
			header[i] = headerStyle.Render(c)
		}
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

type field struct {
	name  string
	value reflect.Value
}

// fieldsOf lists a struct's exported fields by json name, or a map's
// entries by sorted key.
func fieldsOf(v reflect.Value) []field {
	var out []field
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			if name, ok := fieldName(t.Field(i)); ok {
				out = append(out, field{name, v.Field(i)})
			}
		}
	case reflect.Map:
		for _, k := range sortedKeys(v) {
			out = append(out, field{fmt.Sprint(k.Interface()), v.MapIndex(k)})
		}
	}
	return out
}

// columnsOf derives columns from the first element of a slice of structs,
// or from the union of keys of a slice of maps. Scalars get one column.
func columnsOf(v reflect.Value) []string {
	first := indirect(v.Index(0))
	switch first.Kind() {
	case reflect.Struct:
		var cols []string
		for _, f := range fieldsOf(first) {
			cols = append(cols, f.name)
		}
		return cols
	case reflect.Map:
	default:
		return []string{"value"}
	}
	seen := map[string]bool{}
	for i := range v.Len() {
		for _, f := range fieldsOf(indirect(v.Index(i))) {
			seen[f.name] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	slices.Sort(cols)
	return cols
}

func rowOf(v reflect.Value, cols []string) []string {
	v = indirect(v)
	row := make([]string, len(cols))
	switch v.Kind() {
	case reflect.Struct, reflect.Map:
		byName := make(map[string]reflect.Value)
		for _, f := range fieldsOf(v) {
			byName[f.name] = f.value
		}
		for i, c := range cols {
			row[i] = cell(byName[c])
		}
	default:
		if len(row) > 0 {
			row[0] = cell(v)
		}
	}
	return row
}

// fieldName prefers the json tag; fields tagged "-" are skipped.
func fieldName(f reflect.StructField) (string, bool) {
	if !f.IsExported() {
		return "", false
	}
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return "", false
	case "":
		return strings.ToLower(f.Name), true
	}
	return name, true
}

// cell formats one value for a table cell. Nested collections are
// summarized rather than expanded.
func cell(v reflect.Value) string {
	v = indirect(v)
	if !v.IsValid() {
		return ""
	}
	switch x := v.Interface().(type) {
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case []byte:
		return "0x" + hex.EncodeToString(x)
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		return "{...}"
	}
	return fmt.Sprint(v.Interface())
}

// indirect follows pointers and interfaces; nil yields the zero Value.
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func sortedKeys(v reflect.Value) []reflect.Value {
	keys := v.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		return strings.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
	})
	return keys
}

func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
