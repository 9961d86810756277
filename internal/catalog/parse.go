package catalog

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// parseEntities decodes a list response. The catalog returns either a bare
// array of entities or an object carrying them under "entities".
func parseEntities(data []byte) ([]Entity, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("response is not valid JSON")
	}

	list := gjson.ParseBytes(data)
	if list.IsObject() {
		list = list.Get("entities")
	}
	if !list.IsArray() {
		return nil, errors.New("response does not contain an entity list")
	}

	items := list.Array()
	entities := make([]Entity, 0, len(items))
	for i, item := range items {
		entity, err := parseEntity(item)
		if err != nil {
			return nil, fmt.Errorf("entity at index %d: %w", i, err)
		}
		entities = append(entities, entity)
	}

	return entities, nil
}

func parseEntity(item gjson.Result) (Entity, error) {
	if !item.IsObject() {
		return Entity{}, errors.New("not an object")
	}

	id := item.Get("identifier")
	if id.Type != gjson.String || id.String() == "" {
		return Entity{}, errors.New("missing identifier")
	}

	entity := Entity{
		Identifier: id.String(),
		Title:      item.Get("title").String(),
	}

	if props := item.Get("properties"); props.IsObject() {
		if m, ok := props.Value().(map[string]any); ok {
			entity.Properties = m
		}
	}

	if rels := item.Get("relations"); rels.IsObject() {
		entity.Relations = make(map[string][]string)
		rels.ForEach(func(key, value gjson.Result) bool {
			entity.Relations[key.String()] = relationTargets(value)
			return true
		})
	}

	return entity, nil
}

// relationTargets normalizes a relation value to a list of identifiers.
// Single-valued relations arrive as a string, unset ones as null.
func relationTargets(value gjson.Result) []string {
	switch {
	case value.Type == gjson.String:
		return []string{value.String()}
	case value.IsArray():
		var targets []string
		value.ForEach(func(_, target gjson.Result) bool {
			if target.Type == gjson.String {
				targets = append(targets, target.String())
			}
			return true
		})
		return targets
	default:
		return nil
	}
}
