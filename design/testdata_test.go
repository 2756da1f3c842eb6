package design

import (
	"encoding/json"
	"testing"
)

// landingFile is a trimmed design document: one page with two top-level
// frames, one of which nests a frame of its own.
const landingFile = `{
  "name": "Marketing",
  "document": {
    "id": "0:0", "name": "Document", "type": "DOCUMENT",
    "children": [{
      "id": "0:1", "name": "Page 1", "type": "CANVAS",
      "children": [
        {
          "id": "1:1", "name": "Landing", "type": "FRAME",
          "children": [
            {
              "id": "1:2", "name": "Title", "type": "TEXT",
              "characters": "Welcome to our site",
              "style": {"fontFamily": "Inter", "fontSize": 48, "fontWeight": 700, "lineHeightPx": 56},
              "fills": [
                {"type": "SOLID", "color": {"r": 1, "g": 0, "b": 0, "a": 1}},
                {"type": "SOLID", "color": {"r": 0, "g": 0, "b": 1, "a": 1}}
              ]
            },
            {
              "id": "1:3", "name": "Card", "type": "RECTANGLE",
              "absoluteBoundingBox": {"x": 0, "y": 0, "width": 320, "height": 200},
              "cornerRadius": 12,
              "children": [
                {
                  "id": "1:4", "name": "Caption", "type": "TEXT",
                  "characters": "Pricing",
                  "style": {"fontFamily": "Roboto", "fontSize": 14, "fontWeight": 400, "lineHeightPercentFontSize": 150}
                }
              ]
            },
            {
              "id": "1:5", "name": "Group", "type": "GROUP",
              "children": [
                {"id": "1:6", "name": "Divider", "type": "RECTANGLE"},
                {"id": "1:7", "name": "Icon", "type": "VECTOR"}
              ]
            },
            {
              "id": "1:8", "name": "Nested", "type": "FRAME",
              "children": [
                {
                  "id": "1:9", "name": "Footer", "type": "TEXT",
                  "characters": "Contact us",
                  "style": {"fontFamily": "Inter", "fontSize": 12, "fontWeight": 400},
                  "fills": [{"type": "SOLID", "color": {"r": 0, "g": 0, "b": 0, "a": 0.5}}]
                }
              ]
            }
          ]
        },
        {"id": "2:1", "name": "Checkout", "type": "FRAME", "children": []}
      ]
    }]
  }
}`

func loadFile(t *testing.T) *File {
	t.Helper()
	var f File
	if err := json.Unmarshal([]byte(landingFile), &f); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	return &f
}
