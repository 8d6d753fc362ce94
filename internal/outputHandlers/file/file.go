package file

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/AlfredBerg/scrapecrawl/internal/crawl"
	"gopkg.in/yaml.v3"
)

// Write serializes root to w as "json" or "yaml".
func Write(w io.Writer, format string, root *crawl.Node) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(root)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(root); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// WriteFile writes root to path, or to stdout when path is "-" or empty.
func WriteFile(path, format string, root *crawl.Node) error {
	if path == "" || path == "-" {
		return Write(os.Stdout, format, root)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, format, root); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
