package archive

import (
	"bytes"
	"dataweb-backend/internal/components/htmlutil"
	"dataweb-backend/internal/normalize"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// parseLegacyPage reads the html group page: channel ids are the header links, the status and
// text of each channel are the first and third cells of the second table's rows.
func parseLegacyPage(body []byte) (normalize.Batch, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var ids []string
	doc.Find("tr th a").Each(func(_ int, s *goquery.Selection) {
		for _, node := range s.Nodes {
			ids = append(ids, htmlutil.CleanText(htmlutil.GetText(node)))
		}
	})

	var statuses, texts []string
	tables := doc.Find("table")
	if tables.Length() >= 2 {
		tables.Eq(1).Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.ChildrenFiltered("td")
			if cells.Length() < 3 {
				return
			}
			// a disconnected channel's status is wrapped in a <font> and so reads as empty
			statuses = append(statuses, htmlutil.OwnText(cells.Eq(0)))
			texts = append(texts, htmlutil.OwnText(cells.Eq(2)))
		})
	}

	if len(ids) != len(statuses) || len(ids) != len(texts) {
		return nil, fmt.Errorf(
			"page has %d channel ids but %d status and %d value cells",
			len(ids), len(statuses), len(texts),
		)
	}

	out := make(normalize.Batch, len(ids))
	for i := range ids {
		out[i] = normalize.RawChannel{
			Format: normalize.FormatLegacy,
			ID:     ids[i],
			Status: statuses[i],
			Text:   texts[i],
		}
	}
	return out, nil
}
