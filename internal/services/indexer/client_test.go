package indexer

import (
	"encoding/xml"
	"testing"

	"github.com/sirupsen/logrus"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom" xmlns:torznab="http://torznab.com/schemas/2015/feed">
  <channel>
    <title>Test Aggregator</title>
    <item>
      <title>Test Movie 2024 1080p BluRay x264</title>
      <link>https://example.com/details/12345</link>
      <guid>https://example.com/details/12345</guid>
      <pubDate>Mon, 01 Jan 2024 12:00:00 +0000</pubDate>
      <enclosure url="https://example.com/download/12345" length="8589934592" type="application/x-nzb"/>
      <torznab:attr name="size" value="8589934592"/>
      <torznab:attr name="seeders" value="42"/>
    </item>
    <item>
      <title>Test Show S01E01 1080p WEB-DL</title>
      <link>https://example.com/details/12346</link>
      <guid>https://example.com/details/12346</guid>
      <pubDate>Tue, 02 Jan 2024 12:00:00 +0000</pubDate>
      <enclosure url="https://example.com/download/12346" length="0" type="application/x-nzb"/>
      <torznab:attr name="size" value="2147483648"/>
      <torznab:attr name="seeders" value="3"/>
    </item>
    <item>
      <title>Test Show S02 1080p WEB-DL Season Pack</title>
      <link>https://example.com/details/12347</link>
      <guid>https://example.com/details/12347</guid>
      <pubDate>Wed, 03 Jan 2024 12:00:00 +0000</pubDate>
      <enclosure url="https://example.com/download/12347" length="21474836480" type="application/x-nzb"/>
      <torznab:attr name="seeders" value="17"/>
    </item>
  </channel>
</rss>`

func TestXMLParsing(t *testing.T) {
	var response Response
	if err := xml.Unmarshal([]byte(sampleFeed), &response); err != nil {
		t.Fatalf("Failed to parse XML: %v", err)
	}

	if response.Channel.Title != "Test Aggregator" {
		t.Errorf("Expected channel title 'Test Aggregator', got '%s'", response.Channel.Title)
	}
	if len(response.Channel.Items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(response.Channel.Items))
	}

	movie := response.Channel.Items[0]
	if GetAttributeInt64(movie, "size") != 8589934592 {
		t.Errorf("Movie size mismatch")
	}
	if GetAttributeInt(movie, "seeders") != 42 {
		t.Errorf("Movie seeders mismatch")
	}
	if movie.Enclosure.URL != "https://example.com/download/12345" {
		t.Errorf("Movie enclosure URL mismatch: %s", movie.Enclosure.URL)
	}

	// Item without a size attribute still carries the enclosure length
	pack := response.Channel.Items[2]
	if GetAttributeInt64(pack, "size") != 0 {
		t.Errorf("Pack should have no size attribute")
	}
	if pack.Enclosure.Length != 21474836480 {
		t.Errorf("Pack enclosure length mismatch: %d", pack.Enclosure.Length)
	}
}

func TestConvertResults(t *testing.T) {
	var response Response
	if err := xml.Unmarshal([]byte(sampleFeed), &response); err != nil {
		t.Fatalf("Failed to parse XML: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	client := &Client{logger: logger}

	results := client.convertResults(response.Channel.Items, 0)
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}

	if results[0].Size != 8589934592 || results[0].Seeders != 42 {
		t.Errorf("Movie candidate mismatch: %+v", results[0])
	}
	if DownloadURL(results[0]) != "https://example.com/download/12345" {
		t.Errorf("Movie download URL mismatch")
	}

	// Size attribute missing: fall back to enclosure length
	if results[2].Size != 21474836480 {
		t.Errorf("Pack size fallback mismatch: %d", results[2].Size)
	}

	// Seeder floor applies during conversion
	filtered := client.convertResults(response.Channel.Items, 10)
	if len(filtered) != 2 {
		t.Fatalf("Expected 2 results above 10 seeders, got %d", len(filtered))
	}
	for _, r := range filtered {
		if r.Seeders < 10 {
			t.Errorf("candidate below seeder floor survived: %+v", r)
		}
	}
}
