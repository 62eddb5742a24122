package product

// MetadataAttribute is a named text value of a metadata element.
type MetadataAttribute struct {
	Name  string
	Value string
}

// MetadataElement is a node of the product metadata tree.
type MetadataElement struct {
	Name       string
	Attributes []MetadataAttribute
	Elements   []*MetadataElement
}

// NewElement creates an empty element.
func NewElement(name string) *MetadataElement {
	return &MetadataElement{Name: name}
}

// AddElement appends a child element and returns it.
func (e *MetadataElement) AddElement(child *MetadataElement) *MetadataElement {
	e.Elements = append(e.Elements, child)
	return child
}

// AddAttribute appends an attribute.
func (e *MetadataElement) AddAttribute(name, value string) {
	e.Attributes = append(e.Attributes, MetadataAttribute{Name: name, Value: value})
}

// Element returns the first child with the given name.
func (e *MetadataElement) Element(name string) *MetadataElement {
	for _, c := range e.Elements {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Attribute returns the value of the first attribute with the given name.
func (e *MetadataElement) Attribute(name string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Walk visits the element and its descendants depth-first. The path passed
// to fn is slash separated, starting with the element's own name.
func (e *MetadataElement) Walk(fn func(path string, el *MetadataElement)) {
	e.walk(e.Name, fn)
}

func (e *MetadataElement) walk(path string, fn func(string, *MetadataElement)) {
	fn(path, e)
	for _, c := range e.Elements {
		c.walk(path+"/"+c.Name, fn)
	}
}
