package transform

import (
	"time"

	"github.com/dop251/goja"
	"github.com/pkg/errors"

	"github.com/folioglyph/folioglyph/pkg/ir"
)

// Script is a caller-supplied transform hosted in a sandboxed JavaScript
// runtime, in the same spirit as the plugin hooks other parts of this
// ecosystem use for user-extensible conversion steps. The script must
// define a top-level function `transform(doc)` that receives a JSON-ish
// projection of the Document's metadata and chapter text, mutates it, and
// returns the replacement.
type Script struct {
	ScriptName string
	Source     string
	Timeout    time.Duration
}

func (s Script) Name() string {
	if s.ScriptName != "" {
		return s.ScriptName
	}
	return "Script"
}

// the script exposes a plain-text projection of the Document: full
// ContentNode fidelity is not round-tripped through JavaScript, only
// chapter bodies flattened to text and scalar metadata, which covers the
// common case of title/author rewrites and prose find-and-replace.
func (s Script) Apply(doc *ir.Document) (*ir.Document, error) {
	clone := doc.Clone()

	vm := goja.New()
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt("transform script timed out")
	})
	defer timer.Stop()

	if _, err := vm.RunString(s.Source); err != nil {
		return nil, errors.Wrap(err, "transform script compile/eval failed")
	}

	transformVal := vm.Get("transform")
	if transformVal == nil || goja.IsUndefined(transformVal) {
		return nil, errors.New("transform script does not define a top-level `transform` function")
	}
	fn, ok := goja.AssertFunction(transformVal)
	if !ok {
		return nil, errors.New("transform is not a function")
	}

	docObj := vm.NewObject()
	docObj.Set("title", clone.Metadata.Title)           //nolint:errcheck
	docObj.Set("description", clone.Metadata.Description) //nolint:errcheck
	var authorNames []string
	for _, a := range clone.Metadata.Authors {
		authorNames = append(authorNames, a.Name)
	}
	docObj.Set("authors", authorNames) //nolint:errcheck
	var chapterTexts []string
	for i := range clone.Chapters {
		chapterTexts = append(chapterTexts, chapterPlainText(&clone.Chapters[i]))
	}
	docObj.Set("chapters", chapterTexts) //nolint:errcheck

	result, err := fn(goja.Undefined(), docObj)
	if err != nil {
		return nil, errors.Wrap(err, "transform script execution failed")
	}
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, errors.New("transform script returned no result")
	}
	resultObj := result.ToObject(vm)

	clone.Metadata.Title = resultObj.Get("title").String()
	clone.Metadata.Description = resultObj.Get("description").String()

	if authorsVal := resultObj.Get("authors"); authorsVal != nil && !goja.IsUndefined(authorsVal) {
		var names []string
		if err := vm.ExportTo(authorsVal, &names); err == nil && len(names) > 0 {
			authors := make([]ir.Author, len(names))
			for i, name := range names {
				authors[i] = ir.Author{Name: name}
			}
			clone.Metadata.Authors = authors
		}
	}

	if chaptersVal := resultObj.Get("chapters"); chaptersVal != nil && !goja.IsUndefined(chaptersVal) {
		var texts []string
		if err := vm.ExportTo(chaptersVal, &texts); err == nil {
			for i := range clone.Chapters {
				if i < len(texts) {
					replaceChapterPlainText(&clone.Chapters[i], texts[i])
				}
			}
		}
	}

	return clone, nil
}

func chapterPlainText(ch *ir.Chapter) string {
	var out string
	for _, n := range ch.Content {
		if p, ok := n.(ir.Paragraph); ok {
			out += flattenPlainInlines(p.Inlines) + "\n\n"
		}
	}
	return out
}

func flattenPlainInlines(inlines []ir.InlineNode) string {
	var out string
	for _, n := range inlines {
		switch v := n.(type) {
		case ir.Text:
			out += v.Value
		case ir.Emphasis:
			out += flattenPlainInlines(v.Children)
		case ir.Strong:
			out += flattenPlainInlines(v.Children)
		}
	}
	return out
}

// replaceChapterPlainText only rewrites the first Paragraph's text; richer
// structural edits are out of scope for the JS escape hatch by design.
func replaceChapterPlainText(ch *ir.Chapter, text string) {
	for i, n := range ch.Content {
		if _, ok := n.(ir.Paragraph); ok {
			ch.Content[i] = ir.Paragraph{Inlines: []ir.InlineNode{ir.Text{Value: text}}}
			return
		}
	}
}
