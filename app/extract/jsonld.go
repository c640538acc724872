package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ducksgather/harvester/app/event"
	"github.com/ducksgather/harvester/app/fetch"
	"github.com/ducksgather/harvester/app/source"
)

const jsonLDSelector = `script[type="application/ld+json"]`

// JSONLD reads schema.org Event nodes from the JSON-LD blocks of an HTML page.
type JSONLD struct {
	fields source.FieldMapping
}

func NewJSONLD(fields source.FieldMapping) *JSONLD {
	return &JSONLD{fields: fields}
}

func (x *JSONLD) Extract(page fetch.RawListingPage) iter.Seq2[event.CandidateEvent, error] {
	return func(yield func(event.CandidateEvent, error) bool) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
		if err != nil {
			yield(event.CandidateEvent{}, &ExtractionError{PageURL: page.URL, Err: fmt.Errorf("failed to parse HTML: %w", err)})
			return
		}

		var blocks []string
		doc.Find(jsonLDSelector).Each(func(_ int, s *goquery.Selection) {
			blocks = append(blocks, s.Text())
		})

		index := 0
		for i, block := range blocks {
			nodes, err := decodeBlock(block)
			if err != nil {
				if !yield(event.CandidateEvent{}, &ExtractionError{PageURL: page.URL, Index: i, Err: err}) {
					return
				}
				continue
			}

			for _, node := range nodes {
				candidate := mapFields(x.fields, page, index, func(path string) string {
					return stringify(lookupPath(node, path))
				})
				index++
				if !yield(candidate, nil) {
					return
				}
			}
		}
	}
}

func decodeBlock(block string) ([]map[string]any, error) {
	block = strings.TrimSpace(block)
	block = strings.TrimSuffix(strings.TrimPrefix(block, "<!--"), "-->")

	dec := json.NewDecoder(strings.NewReader(block))
	dec.UseNumber()

	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode JSON-LD: %w", err)
	}

	var nodes []map[string]any
	collectEvents(data, &nodes)
	return nodes, nil
}

func collectEvents(data any, out *[]map[string]any) {
	switch v := data.(type) {
	case []any:
		for _, item := range v {
			collectEvents(item, out)
		}
	case map[string]any:
		if isEventNode(v) {
			*out = append(*out, v)
			return
		}
		if graph, ok := v["@graph"]; ok {
			collectEvents(graph, out)
		}
		if list, ok := v["itemListElement"].([]any); ok {
			for _, el := range list {
				if m, ok := el.(map[string]any); ok {
					if item, ok := m["item"]; ok {
						collectEvents(item, out)
						continue
					}
				}
				collectEvents(el, out)
			}
		}
	}
}

func isEventNode(node map[string]any) bool {
	var types []string
	switch t := node["@type"].(type) {
	case string:
		types = []string{t}
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				types = append(types, s)
			}
		}
	}

	for _, t := range types {
		if strings.HasSuffix(t, "Event") {
			return true
		}
	}
	return false
}

// lookupPath follows a dotted key path. Arrays along the way resolve to
// their first element. A plain string standing where an object is expected
// is taken as that object's name.
func lookupPath(node any, path string) any {
	current := node
	for _, key := range strings.Split(path, ".") {
		if arr, ok := current.([]any); ok {
			if len(arr) == 0 {
				return nil
			}
			current = arr[0]
		}
		switch v := current.(type) {
		case map[string]any:
			current = v[key]
		case string:
			if key == "name" {
				return v
			}
			return nil
		default:
			return nil
		}
	}
	return current
}

var addressParts = []string{"streetAddress", "addressLocality", "addressRegion", "postalCode"}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []any:
		for _, item := range val {
			if s := stringify(item); s != "" {
				return s
			}
		}
		return ""
	case map[string]any:
		var parts []string
		for _, key := range addressParts {
			if s := stringify(val[key]); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, ", ")
		}
		for _, key := range []string{"name", "url", "contentUrl", "@id"} {
			if s := stringify(val[key]); s != "" {
				return s
			}
		}
		return ""
	default:
		return ""
	}
}
