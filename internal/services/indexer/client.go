// Package indexer talks to a newznab/torznab search aggregator. The
// aggregator normalizes the individual indexers; this client only issues
// free-text queries and converts the RSS payload into ranker candidates.
package indexer

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/fetcharr/internal/config"
)

// Response represents the XML RSS response from the aggregator
type Response struct {
	XMLName xml.Name `xml:"rss"`
	Channel Channel  `xml:"channel"`
}

// Channel represents the channel element in RSS
type Channel struct {
	Title string `xml:"title"`
	Items []Item `xml:"item"`
}

// Item represents a single search result
type Item struct {
	Title      string      `xml:"title"`
	Link       string      `xml:"link"`
	GUID       string      `xml:"guid"`
	PubDate    string      `xml:"pubDate"`
	Enclosure  Enclosure   `xml:"enclosure"`
	Attributes []Attribute `xml:"attr"`
}

// Enclosure carries the actual download URL and reported size
type Enclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

// Attribute represents a torznab attribute (e.g. size, seeders)
type Attribute struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Client wraps direct aggregator HTTP calls
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new aggregator client
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	if cfg.IndexerURL == "" {
		return nil, fmt.Errorf("indexer URL is required")
	}
	if cfg.IndexerKey == "" {
		return nil, fmt.Errorf("indexer API key is required")
	}

	return &Client{
		baseURL: cfg.IndexerURL,
		apiKey:  cfg.IndexerKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}, nil
}

// search performs a free-text aggregator search
func (c *Client) search(ctx context.Context, query string) ([]Item, error) {
	apiURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid indexer URL: %w", err)
	}
	if apiURL.Path == "" || apiURL.Path == "/" {
		apiURL.Path = "/api"
	}

	params := url.Values{}
	params.Add("t", "search")
	params.Add("apikey", c.apiKey)
	params.Add("q", query)
	apiURL.RawQuery = params.Encode()

	c.logger.WithFields(logrus.Fields{
		"url":   apiURL.String(),
		"query": query,
	}).Debug("Performing indexer search")

	req, err := http.NewRequestWithContext(ctx, "GET", apiURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "fetcharr/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indexer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"body":        string(body),
		}).Error("Indexer returned non-OK status")
		return nil, fmt.Errorf("indexer returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed Response
	decoder := xml.NewDecoder(resp.Body)
	if err := decoder.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse XML response: %w", err)
	}

	c.logger.WithField("count", len(parsed.Channel.Items)).Debug("Indexer search completed")
	return parsed.Channel.Items, nil
}

// GetAttributeValue extracts an attribute value by name from an Item
func GetAttributeValue(item Item, attrName string) string {
	for _, attr := range item.Attributes {
		if attr.Name == attrName {
			return attr.Value
		}
	}
	return ""
}

// GetAttributeInt extracts an attribute value as integer, 0 when absent
func GetAttributeInt(item Item, attrName string) int {
	value := GetAttributeValue(item, attrName)
	if value == "" {
		return 0
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return intVal
}

// GetAttributeInt64 extracts an attribute value as int64, 0 when absent
func GetAttributeInt64(item Item, attrName string) int64 {
	value := GetAttributeValue(item, attrName)
	if value == "" {
		return 0
	}
	intVal, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return intVal
}
