package common

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"audiostream/metasearch/internal/domain"
)

var bookLikeTypes = map[string]struct{}{
	"book":         {},
	"audiobook":    {},
	"creativework": {},
	"product":      {},
}

type jsonLDNode struct {
	Type          any             `json:"@type"`
	Name          string          `json:"name"`
	Headline      string          `json:"headline"`
	Description   string          `json:"description"`
	Image         json.RawMessage `json:"image"`
	DatePublished string          `json:"datePublished"`
	InLanguage    string          `json:"inLanguage"`
	Publisher     json.RawMessage `json:"publisher"`
	Author        json.RawMessage `json:"author"`
	ReadBy        json.RawMessage `json:"readBy"`
	ISBN          string          `json:"isbn"`
}

// ExtractJSONLD returns the first book-like JSON-LD block on the page, mapped
// onto a metadata record. ok is false when the page has none.
func ExtractJSONLD(doc *goquery.Document) (domain.BookMetadata, bool) {
	var (
		found domain.BookMetadata
		ok    bool
	)
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		for _, node := range decodeJSONLD(sel.Text()) {
			if !node.isBookLike() {
				continue
			}
			title := strings.TrimSpace(node.Name)
			if strings.EqualFold(title, "About the Author") || (title != "" && len(title) < 5) {
				continue
			}
			found = domain.BookMetadata{
				Title:       title,
				Description: CleanHTMLText(FirstNonEmpty(node.Headline, node.Description)),
				ImageURL:    CleanImageURL(firstString(node.Image)),
				PublishYear: ExtractYear(node.DatePublished),
				Language:    CleanLanguage(node.InLanguage),
				Publisher:   objectName(node.Publisher),
				Authors:     names(node.Author),
				Narrators:   names(node.ReadBy),
				ISBN:        strings.TrimSpace(node.ISBN),
			}
			ok = true
			return false
		}
		return true
	})
	return found, ok
}

func decodeJSONLD(raw string) []jsonLDNode {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}
	if strings.HasPrefix(text, "[") {
		var nodes []jsonLDNode
		if err := json.Unmarshal([]byte(text), &nodes); err != nil {
			return nil
		}
		return nodes
	}
	var node jsonLDNode
	if err := json.Unmarshal([]byte(text), &node); err != nil {
		return nil
	}
	return []jsonLDNode{node}
}

func (n jsonLDNode) isBookLike() bool {
	hasCredit := len(n.Author) > 0 || n.ISBN != ""
	typeName, _ := n.Type.(string)
	if typeName == "" {
		return hasCredit
	}
	_, known := bookLikeTypes[strings.ToLower(typeName)]
	return known || hasCredit
}

// names accepts a string, an object with a name, or an array of either.
func names(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var single string
	if json.Unmarshal(raw, &single) == nil {
		return SplitNames(single)
	}
	if name := objectName(raw); name != "" {
		return []string{name}
	}
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if json.Unmarshal(item, &single) == nil && strings.TrimSpace(single) != "" {
			out = append(out, strings.TrimSpace(single))
			continue
		}
		if name := objectName(item); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func objectName(raw json.RawMessage) string {
	var obj struct {
		Name string `json:"name"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &obj) != nil {
		return ""
	}
	return strings.TrimSpace(obj.Name)
}

func firstString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if json.Unmarshal(raw, &single) == nil {
		return single
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}
