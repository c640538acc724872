package extract

import (
	"bytes"
	"cmp"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/ducksgather/harvester/app/event"
	"github.com/ducksgather/harvester/app/fetch"
	"github.com/ducksgather/harvester/app/source"
)

// RSS reads items from an RSS or Atom feed. Event times usually come from
// the RSS event module (ev:startdate, ev:enddate).
type RSS struct {
	fields source.FieldMapping
	parser *gofeed.Parser
}

func NewRSS(fields source.FieldMapping) *RSS {
	return &RSS{
		fields: fields,
		parser: gofeed.NewParser(),
	}
}

func (x *RSS) Extract(page fetch.RawListingPage) iter.Seq2[event.CandidateEvent, error] {
	return func(yield func(event.CandidateEvent, error) bool) {
		feed, err := x.parser.Parse(bytes.NewReader(page.Body))
		if err != nil {
			yield(event.CandidateEvent{}, &ExtractionError{PageURL: page.URL, Err: fmt.Errorf("failed to parse feed: %w", err)})
			return
		}

		for i, item := range feed.Items {
			if item == nil {
				continue
			}
			candidate := mapFields(x.fields, page, i, func(path string) string {
				return itemField(item, path)
			})
			if !yield(candidate, nil) {
				return
			}
		}
	}
}

// itemField reads a standard item field by name, or a namespaced extension
// element written as "prefix:name".
func itemField(item *gofeed.Item, path string) string {
	if prefix, name, ok := strings.Cut(path, ":"); ok {
		return extensionValue(item, prefix, name)
	}

	switch strings.ToLower(path) {
	case "title":
		return item.Title
	case "description":
		return item.Description
	case "content":
		return cmp.Or(item.Content, item.Description)
	case "link":
		return cmp.Or(item.Link, firstLink(item.Links))
	case "guid":
		return item.GUID
	case "image":
		if item.Image != nil && item.Image.URL != "" {
			return item.Image.URL
		}
		for _, enc := range item.Enclosures {
			if enc != nil && strings.HasPrefix(enc.Type, "image/") {
				return enc.URL
			}
		}
	case "category", "categories":
		if len(item.Categories) > 0 {
			return item.Categories[0]
		}
	case "author":
		for _, a := range item.Authors {
			if a != nil && a.Name != "" {
				return a.Name
			}
		}
		if item.Author != nil {
			return cmp.Or(item.Author.Name, item.Author.Email)
		}
	case "published":
		if item.PublishedParsed != nil {
			return item.PublishedParsed.Format(time.RFC3339)
		}
		return item.Published
	case "updated":
		if item.UpdatedParsed != nil {
			return item.UpdatedParsed.Format(time.RFC3339)
		}
		return item.Updated
	}
	return ""
}

func extensionValue(item *gofeed.Item, prefix, name string) string {
	elements := item.Extensions[prefix][name]
	for _, el := range elements {
		if v := strings.TrimSpace(el.Value); v != "" {
			return v
		}
	}
	return ""
}

func firstLink(links []string) string {
	if len(links) > 0 {
		return links[0]
	}
	return ""
}
