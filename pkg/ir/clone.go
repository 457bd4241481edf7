package ir

// Clone returns a deep copy of the Document suitable for speculative
// mutation: the caller can discard the clone on failure and the original is
// left untouched. Resource bytes are shared (resources are immutable once
// loaded per spec); everything else is copied.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}

	clone := &Document{
		Metadata:  d.Metadata.clone(),
		Toc:       cloneTocEntries(d.Toc),
		Chapters:  make([]Chapter, len(d.Chapters)),
		Resources: make(ResourceMap, len(d.Resources)),
		Origin:    d.Origin,
	}

	for i, ch := range d.Chapters {
		clone.Chapters[i] = ch.clone()
	}

	// Resource bytes are copy-on-write: the slice header is copied into the
	// new map entry but the backing array is shared.
	for id, r := range d.Resources {
		clone.Resources[id] = r
	}

	return clone
}

func (m Metadata) clone() Metadata {
	clone := m
	clone.Authors = append([]Author(nil), m.Authors...)
	clone.Subjects = append([]string(nil), m.Subjects...)
	if m.Series != nil {
		s := *m.Series
		clone.Series = &s
	}
	if m.Overflow != nil {
		clone.Overflow = make(map[string]string, len(m.Overflow))
		for k, v := range m.Overflow {
			clone.Overflow[k] = v
		}
	}
	return clone
}

func (c Chapter) clone() Chapter {
	clone := c
	clone.Content = cloneContentNodes(c.Content)
	return clone
}

func cloneTocEntries(entries []TocEntry) []TocEntry {
	if entries == nil {
		return nil
	}
	clone := make([]TocEntry, len(entries))
	for i, e := range entries {
		clone[i] = TocEntry{
			Title:    e.Title,
			Href:     e.Href,
			Children: cloneTocEntries(e.Children),
		}
	}
	return clone
}

func cloneContentNodes(nodes []ContentNode) []ContentNode {
	if nodes == nil {
		return nil
	}
	clone := make([]ContentNode, len(nodes))
	for i, n := range nodes {
		clone[i] = cloneContentNode(n)
	}
	return clone
}

func cloneContentNode(n ContentNode) ContentNode {
	switch v := n.(type) {
	case Paragraph:
		return Paragraph{Inlines: cloneInlineNodes(v.Inlines)}
	case Heading:
		return Heading{Level: v.Level, Inlines: cloneInlineNodes(v.Inlines)}
	case List:
		items := make([][]ContentNode, len(v.Items))
		for i, item := range v.Items {
			items[i] = cloneContentNodes(item)
		}
		return List{Ordered: v.Ordered, Items: items}
	case Table:
		rows := make([][][]InlineNode, len(v.Rows))
		for i, row := range v.Rows {
			rows[i] = cloneInlineRows(row)
		}
		header := cloneInlineRows(v.Header)
		return Table{Header: header, Rows: rows}
	case BlockQuote:
		return BlockQuote{Children: cloneContentNodes(v.Children)}
	case CodeBlock:
		return v
	case Image:
		return v
	case HorizontalRule:
		return v
	case RawPassthrough:
		return v
	default:
		return n
	}
}

func cloneInlineRows(rows [][]InlineNode) [][]InlineNode {
	if rows == nil {
		return nil
	}
	clone := make([][]InlineNode, len(rows))
	for i, r := range rows {
		clone[i] = cloneInlineNodes(r)
	}
	return clone
}

func cloneInlineNodes(nodes []InlineNode) []InlineNode {
	if nodes == nil {
		return nil
	}
	clone := make([]InlineNode, len(nodes))
	for i, n := range nodes {
		clone[i] = cloneInlineNode(n)
	}
	return clone
}

func cloneInlineNode(n InlineNode) InlineNode {
	switch v := n.(type) {
	case Text:
		return v
	case Emphasis:
		return Emphasis{Children: cloneInlineNodes(v.Children)}
	case Strong:
		return Strong{Children: cloneInlineNodes(v.Children)}
	case Code:
		return v
	case Link:
		return Link{Href: v.Href, Children: cloneInlineNodes(v.Children)}
	case Superscript:
		return Superscript{Children: cloneInlineNodes(v.Children)}
	case Subscript:
		return Subscript{Children: cloneInlineNodes(v.Children)}
	case Ruby:
		return v
	case LineBreak:
		return v
	default:
		return n
	}
}
