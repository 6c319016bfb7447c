package scraper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// JSONKind is the variant of a JSONNode
type JSONKind int

const (
	JSONNull JSONKind = iota
	JSONBool
	JSONNumber
	JSONString
	JSONArray
	JSONObject
)

// JSONField is one member of an object, in document order
type JSONField struct {
	Key   string
	Value *JSONNode
}

// JSONNode is a decoded JSON value that keeps object members in document order.
type JSONNode struct {
	Kind   JSONKind
	Bool   bool
	Number json.Number
	String string
	Items  []*JSONNode
	Fields []JSONField
}

// Get returns the first member with the given key
func (n *JSONNode) Get(key string) (*JSONNode, bool) {
	if n == nil || n.Kind != JSONObject {
		return nil, false
	}
	for _, f := range n.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// DecodeJSONTree parses a JSON document into a JSONNode tree
func DecodeJSONTree(data []byte) (*JSONNode, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	node, err := decodeNode(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return node, nil
}

func decodeNode(dec *json.Decoder) (*JSONNode, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			node := &JSONNode{Kind: JSONObject}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T, not string", keyTok)
				}
				value, err := decodeNode(dec)
				if err != nil {
					return nil, err
				}
				node.Fields = append(node.Fields, JSONField{Key: key, Value: value})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return node, nil
		case '[':
			node := &JSONNode{Kind: JSONArray}
			for dec.More() {
				item, err := decodeNode(dec)
				if err != nil {
					return nil, err
				}
				node.Items = append(node.Items, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return node, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", v)
	case string:
		return &JSONNode{Kind: JSONString, String: v}, nil
	case json.Number:
		return &JSONNode{Kind: JSONNumber, Number: v}, nil
	case bool:
		return &JSONNode{Kind: JSONBool, Bool: v}, nil
	case nil:
		return &JSONNode{Kind: JSONNull}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}
