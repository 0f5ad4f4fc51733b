package telegram

import (
	"fmt"
	"sort"
	"strings"

	"invoice-extractor/api/internal/extract"
	"invoice-extractor/api/internal/pipeline"
)

// FormatDocument renders the fields that were found, schema fields first, then the image check.
func FormatDocument(doc pipeline.Document) string {
	var b strings.Builder
	found := 0
	write := func(k string, v extract.Value) {
		if v == nil {
			return
		}
		found++
		fmt.Fprintf(&b, "%s: %s\n", k, *v)
	}
	if doc.Known != nil {
		doc.Known.Each(write)
	}
	if doc.Extra != nil {
		keys := doc.Extra.Keys()
		sort.Strings(keys)
		for _, k := range keys {
			v, _ := doc.Extra.Get(k)
			write(k, v)
		}
	}
	if found == 0 {
		b.WriteString("No fields found.\n")
	}
	fmt.Fprintf(&b, "\nImage: %dx%d, brightness %.1f, clarity %s",
		doc.Clarity.Width, doc.Clarity.Height, doc.Clarity.Brightness, doc.Clarity.Feedback)
	return b.String()
}
