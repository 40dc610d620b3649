package indexer

import (
	"context"
	"fmt"

	"github.com/amaumene/fetcharr/internal/ranker"
)

// Candidate is the normalized search result handed to the ranker.
// It is an alias so callers rank results without re-mapping.
type Candidate = ranker.Candidate

// SearchAll queries the aggregator and converts the results. Candidates
// below minSeeders are dropped here so pagination-free indexers do not
// flood the ranker with dead releases.
func (c *Client) SearchAll(ctx context.Context, query string, minSeeders int) ([]Candidate, error) {
	items, err := c.search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return c.convertResults(items, minSeeders), nil
}

// convertResults converts RSS items to ranker candidates
func (c *Client) convertResults(items []Item, minSeeders int) []Candidate {
	results := make([]Candidate, 0, len(items))

	for _, item := range items {
		size := GetAttributeInt64(item, "size")
		if size == 0 {
			size = item.Enclosure.Length
		}
		seeders := GetAttributeInt(item, "seeders")
		if seeders < minSeeders {
			continue
		}

		results = append(results, Candidate{
			Title:   item.Title,
			Size:    size,
			Seeders: seeders,
			Attributes: map[string]string{
				"link": item.Enclosure.URL,
				"guid": item.GUID,
			},
		})
	}

	return results
}

// DownloadURL returns the release download link carried on a candidate
func DownloadURL(c Candidate) string {
	return c.Attributes["link"]
}
