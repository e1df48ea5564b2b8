package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"gopkg.in/yaml.v2"

	"github.com/devpayr/devpayr-go/pkg/devpayr"
)

// formatOutput writes data as json or yaml. It reports false for table
// output, which each command renders itself.
func formatOutput(w io.Writer, format string, data interface{}) (bool, error) {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return true, encoder.Encode(data)
	case "yaml":
		out, err := yaml.Marshal(data)
		if err != nil {
			return true, err
		}
		_, err = w.Write(out)
		return true, err
	case "table", "":
		return false, nil
	default:
		return true, fmt.Errorf("unknown output format: %s", format)
	}
}

// rows returns the records of a list response: data itself when it is a
// list, or data.data for paginated payloads.
func rows(resp devpayr.Response) []map[string]interface{} {
	var list []interface{}
	switch data := resp["data"].(type) {
	case []interface{}:
		list = data
	case map[string]interface{}:
		list, _ = data["data"].([]interface{})
		if list == nil {
			return []map[string]interface{}{data}
		}
	}

	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

// renderResponse prints resp in the requested format, using columns for
// table output.
func renderResponse(w io.Writer, format string, resp devpayr.Response, columns ...string) error {
	if handled, err := formatOutput(w, format, resp); handled {
		return err
	}

	records := rows(resp)
	if len(records) == 0 {
		fmt.Fprintln(w, infoFmt("No results"))
		return nil
	}
	if len(columns) == 0 {
		columns = keys(records[0])
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, col := range columns {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, upper(col))
	}
	fmt.Fprintln(tw)
	for _, rec := range records {
		for i, col := range columns {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			if v, ok := rec[col]; ok && v != nil {
				fmt.Fprint(tw, v)
			}
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func keys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
