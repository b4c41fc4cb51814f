package essay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgallion1/essayist/internal/dom"
)

// serialize appends the record payload script to the body and renders the
// document.
func (t *Transformer) serialize(_ context.Context, doc *document) error {
	payload, err := json.MarshalIndent(doc.records.Sorted(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	script := dom.Element("script", "type", "application/javascript", "data-ve-tags", "")
	script.AppendChild(dom.Text("\nwindow.data = " + string(payload) + "\n"))
	dom.Find(doc.root, "body").AppendChild(script)

	out, err := render(doc.root)
	if err != nil {
		return fmt.Errorf("render document: %w", err)
	}
	doc.out = out
	return nil
}
