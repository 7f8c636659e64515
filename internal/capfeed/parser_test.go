package capfeed

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"
)

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel>
  <title>Test Feed</title>
  <item>
    <title>Flood Warning</title>
    <link>https://example.com/FetchXMLFile?identifier=1001</link>
    <guid>1001</guid>
  </item>
</channel></rss>`

const sampleCAPDetail = `<?xml version="1.0"?>
<alert>
  <identifier>1001</identifier>
  <sender>nws@example.com</sender>
  <sent>2024-01-01T00:00:00-00:00</sent>
  <status>Actual</status>
  <msgType>Alert</msgType>
  <scope>Public</scope>
  <info>
    <event>Flood Warning</event>
    <urgency>Immediate</urgency>
    <severity>Severe</severity>
    <certainty>Observed</certainty>
    <effective>2024-01-01T00:00:00-00:00</effective>
    <expires>2024-01-01T06:00:00-00:00</expires>
    <area>
      <areaDesc>Test County</areaDesc>
      <polygon>10,20 10,30 20,30 20,20</polygon>
    </area>
  </info>
</alert>`

// routedClient dispatches by an exact match against the request URL, so
// one mock can stand in for both the index fetch and the detail fetch.
type routedClient struct {
	routes map[string]string
	status map[string]int
	calls  map[string]int
}

func newRoutedClient() *routedClient {
	return &routedClient{routes: map[string]string{}, status: map[string]int{}, calls: map[string]int{}}
}

func (c *routedClient) Do(req *http.Request) (*http.Response, error) {
	url := req.URL.String()
	if body, ok := c.routes[url]; ok {
		c.calls[url]++
		status := c.status[url]
		if status == 0 {
			status = http.StatusOK
		}
		return &http.Response{
			StatusCode: status,
			Header:     http.Header{},
			Body:       io.NopCloser(bytes.NewBufferString(body)),
		}, nil
	}
	return &http.Response{StatusCode: http.StatusNotFound, Header: http.Header{}, Body: io.NopCloser(bytes.NewBufferString(""))}, nil
}

func TestFetchAlertsHappyPath(t *testing.T) {
	client := newRoutedClient()
	client.routes["https://example.com/feed.xml"] = sampleRSS
	client.routes["https://example.com/feed.xml1001"] = sampleCAPDetail

	p := New(client, nil)
	alerts, err := p.FetchAlerts(context.Background(), "src-1", "https://example.com/feed.xml")
	if err != nil {
		t.Fatalf("fetch alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Identifier != "1001" {
		t.Errorf("identifier = %q, want 1001", alerts[0].Identifier)
	}
	if alerts[0].SourceID != "src-1" {
		t.Errorf("sourceId = %q, want src-1", alerts[0].SourceID)
	}

	stats := p.Stats()
	if stats.SuccessfulFetch != 1 {
		t.Errorf("successfulFetch = %d, want 1", stats.SuccessfulFetch)
	}
}

func TestFetchAlertsSkipsUnidentifiableItems(t *testing.T) {
	const noIDRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel>
  <title>Test Feed</title>
  <item>
    <title>Untitled Notice</title>
    <link>https://example.com/notice</link>
    <guid>not-numeric</guid>
  </item>
</channel></rss>`

	client := newRoutedClient()
	client.routes["https://example.com/feed.xml"] = noIDRSS

	p := New(client, nil)
	alerts, err := p.FetchAlerts(context.Background(), "src-1", "https://example.com/feed.xml")
	if err != nil {
		t.Fatalf("fetch alerts: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("expected no alerts for an unidentifiable item, got %d", len(alerts))
	}
	if p.Stats().IdentifierMisses != 1 {
		t.Errorf("identifierMisses = %d, want 1", p.Stats().IdentifierMisses)
	}
}

func TestFetchAlertsDetailFetchFailureIsNonFatal(t *testing.T) {
	client := newRoutedClient()
	client.routes["https://example.com/feed.xml"] = sampleRSS
	// No route for "1001"'s detail URL beyond the default 404, and the
	// human fallback page (same URL pattern) also won't resolve to
	// anything usable, so this item fails without failing the batch.

	p := New(client, nil)
	alerts, err := p.FetchAlerts(context.Background(), "src-1", "https://example.com/feed.xml")
	if err != nil {
		t.Fatalf("fetch alerts should not fail the whole batch: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("expected 0 alerts, got %d", len(alerts))
	}
	if p.Stats().FailedFetch != 1 {
		t.Errorf("failedFetch = %d, want 1", p.Stats().FailedFetch)
	}
}

func TestFetchAlertsReturnsErrorWhenIndexUnreachable(t *testing.T) {
	client := newRoutedClient() // no routes at all -> every request 404s
	p := New(client, nil)

	_, err := p.FetchAlerts(context.Background(), "src-1", "https://example.com/feed.xml")
	if err == nil {
		t.Fatal("expected an error when the index feed cannot be fetched")
	}
}
