package transform

import (
	"github.com/folioglyph/folioglyph/pkg/encoding"
	"github.com/folioglyph/folioglyph/pkg/ir"
)

// StripImages removes every Image content node and clears the resource map
// of image-media-type resources, plus the cover reference if it pointed at
// one of them.
func StripImages() Transform {
	return Func{FuncName: "StripImages", Fn: func(doc *ir.Document) (*ir.Document, error) {
		clone := doc.Clone()
		removed := map[string]bool{}
		for id, r := range clone.Resources {
			if isImageMediaType(r.MediaType) {
				removed[id] = true
				delete(clone.Resources, id)
			}
		}
		if removed[clone.Metadata.CoverImageID] {
			clone.Metadata.CoverImageID = ""
		}
		for i := range clone.Chapters {
			clone.Chapters[i].Content = filterImages(clone.Chapters[i].Content)
		}
		return clone, nil
	}}
}

func isImageMediaType(mt string) bool {
	return len(mt) >= 6 && mt[:6] == "image/"
}

func filterImages(nodes []ir.ContentNode) []ir.ContentNode {
	out := nodes[:0:0]
	for _, n := range nodes {
		switch v := n.(type) {
		case ir.Image:
			continue
		case ir.List:
			for i := range v.Items {
				v.Items[i] = filterImages(v.Items[i])
			}
			out = append(out, v)
		case ir.BlockQuote:
			v.Children = filterImages(v.Children)
			out = append(out, v)
		default:
			out = append(out, n)
		}
	}
	return out
}

// StripStyles removes any resource whose media type is text/css. Chapter
// content is not touched: a RawPassthrough node carrying a style element
// stays in place.
func StripStyles() Transform {
	return Func{FuncName: "StripStyles", Fn: func(doc *ir.Document) (*ir.Document, error) {
		clone := doc.Clone()
		for id, r := range clone.Resources {
			if r.MediaType == "text/css" {
				delete(clone.Resources, id)
			}
		}
		return clone, nil
	}}
}

// InjectWatermark appends a Paragraph whose single inline is an Emphasis
// carrying text to the end of every chapter.
func InjectWatermark(text string) Transform {
	return Func{FuncName: "InjectWatermark", Fn: func(doc *ir.Document) (*ir.Document, error) {
		clone := doc.Clone()
		mark := ir.Paragraph{Inlines: []ir.InlineNode{ir.Emphasis{Children: []ir.InlineNode{ir.Text{Value: text}}}}}
		for i := range clone.Chapters {
			clone.Chapters[i].Content = append(clone.Chapters[i].Content, mark)
		}
		return clone, nil
	}}
}

// ReplaceFont records a font-family override in the Document's metadata
// overflow map under "font-family-override". The EPUB writer emits it as an
// OPF <meta> entry like any other overflow key; no CSS is generated or
// rewritten from it. The font resources themselves are left untouched here — embedding or
// dropping them is the Optimizer's and Writer's concern.
func ReplaceFont(family string) Transform {
	return Func{FuncName: "ReplaceFont", Fn: func(doc *ir.Document) (*ir.Document, error) {
		clone := doc.Clone()
		if clone.Metadata.Overflow == nil {
			clone.Metadata.Overflow = map[string]string{}
		}
		clone.Metadata.Overflow["font-family-override"] = family
		return clone, nil
	}}
}

// NormalizeUnicode re-normalises to the given form the Text leaves of
// paragraphs and headings, including inside emphasis, strong and links,
// and through lists and block quotes. Table cells and superscript,
// subscript and ruby text are left as they are.
func NormalizeUnicode(form encoding.Form) Transform {
	return Func{FuncName: "NormalizeUnicode", Fn: func(doc *ir.Document) (*ir.Document, error) {
		clone := doc.Clone()
		opts := encoding.Options{Form: form}
		for i := range clone.Chapters {
			walkNormalize(clone.Chapters[i].Content, opts)
		}
		return clone, nil
	}}
}

// SmartQuotes converts straight ASCII quotes to typographic quotes when on
// is true, or is a no-op transform when false (present so callers can
// always include it in an ordered list without a conditional).
func SmartQuotes(on bool) Transform {
	return Func{FuncName: "SmartQuotes", Fn: func(doc *ir.Document) (*ir.Document, error) {
		if !on {
			return doc.Clone(), nil
		}
		clone := doc.Clone()
		opts := encoding.Options{Form: encoding.NFC, SmartQuotes: true}
		for i := range clone.Chapters {
			walkNormalize(clone.Chapters[i].Content, opts)
		}
		return clone, nil
	}}
}

func walkNormalize(nodes []ir.ContentNode, opts encoding.Options) {
	for i, n := range nodes {
		nodes[i] = normalizeContentNode(n, opts)
	}
}

func normalizeContentNode(n ir.ContentNode, opts encoding.Options) ir.ContentNode {
	switch v := n.(type) {
	case ir.Paragraph:
		v.Inlines = normalizeInlines(v.Inlines, opts)
		return v
	case ir.Heading:
		v.Inlines = normalizeInlines(v.Inlines, opts)
		return v
	case ir.List:
		for i := range v.Items {
			walkNormalize(v.Items[i], opts)
		}
		return v
	case ir.BlockQuote:
		walkNormalize(v.Children, opts)
		return v
	default:
		return n
	}
}

func normalizeInlines(inlines []ir.InlineNode, opts encoding.Options) []ir.InlineNode {
	for i, n := range inlines {
		inlines[i] = normalizeInline(n, opts)
	}
	return inlines
}

func normalizeInline(n ir.InlineNode, opts encoding.Options) ir.InlineNode {
	switch v := n.(type) {
	case ir.Text:
		v.Value = encoding.Normalize(v.Value, opts)
		return v
	case ir.Emphasis:
		v.Children = normalizeInlines(v.Children, opts)
		return v
	case ir.Strong:
		v.Children = normalizeInlines(v.Children, opts)
		return v
	case ir.Link:
		v.Children = normalizeInlines(v.Children, opts)
		return v
	default:
		return n
	}
}
