package catalog

// Entity is a snapshot of one catalog entity as read at the start of a pass.
type Entity struct {
	Identifier string              `json:"identifier"`
	Title      string              `json:"title,omitempty"`
	Properties map[string]any      `json:"properties,omitempty"`
	Relations  map[string][]string `json:"relations,omitempty"`
}

// Relation returns the identifiers referenced through the named relation.
// A missing relation yields nil.
func (e Entity) Relation(name string) []string {
	if e.Relations == nil {
		return nil
	}
	return e.Relations[name]
}

// StringProperty returns the named property if it is present and a string.
func (e Entity) StringProperty(name string) (string, bool) {
	if e.Properties == nil {
		return "", false
	}
	s, ok := e.Properties[name].(string)
	return s, ok
}
