package capfeed

import (
	"strings"
	"testing"
)

const namespacedCAP = `<?xml version="1.0" encoding="UTF-8"?>
<cap:alert xmlns:cap="urn:oasis:names:tc:emergency:cap:1.2">
  <cap:identifier>EXAMPLE-1</cap:identifier>
  <cap:sender>nws@example.com</cap:sender>
  <cap:sent>2024-01-01T00:00:00-00:00</cap:sent>
  <cap:status>Actual</cap:status>
  <cap:msgType>Alert</cap:msgType>
  <cap:scope>Public</cap:scope>
  <cap:info>
    <cap:category>Met</cap:category>
    <cap:event>Flood Warning</cap:event>
    <cap:urgency>Immediate</cap:urgency>
    <cap:severity>Severe</cap:severity>
    <cap:certainty>Observed</cap:certainty>
    <cap:effective>2024-01-01T00:00:00-00:00</cap:effective>
    <cap:expires>2024-01-01T06:00:00-00:00</cap:expires>
    <cap:area>
      <cap:areaDesc>Test County</cap:areaDesc>
      <cap:polygon>10,20 10,30 20,30 20,20</cap:polygon>
    </cap:area>
  </cap:info>
</cap:alert>`

const bareCAP = `<?xml version="1.0" encoding="UTF-8"?>
<alert>
  <identifier>EXAMPLE-2</identifier>
  <sender>nws@example.com</sender>
  <sent>2024-01-01T00:00:00-00:00</sent>
  <status>Actual</status>
  <msgType>Alert</msgType>
  <scope>Public</scope>
  <info>
    <event>Tornado Warning</event>
    <urgency>Immediate</urgency>
    <severity>Extreme</severity>
    <certainty>Observed</certainty>
  </info>
</alert>`

func TestDecodeCAPXMLNamespacedAndBareAreEquivalent(t *testing.T) {
	nsAlert, err := decodeCAPXML(strings.NewReader(namespacedCAP))
	if err != nil {
		t.Fatalf("decode namespaced: %v", err)
	}
	if nsAlert.Identifier != "EXAMPLE-1" {
		t.Errorf("identifier = %q, want EXAMPLE-1", nsAlert.Identifier)
	}
	if len(nsAlert.Info) != 1 || nsAlert.Info[0].Event != "Flood Warning" {
		t.Fatalf("info not decoded correctly: %+v", nsAlert.Info)
	}
	if len(nsAlert.Info[0].Area) != 1 || nsAlert.Info[0].Area[0].Polygon[0] != "10,20 10,30 20,30 20,20" {
		t.Errorf("area/polygon not decoded correctly: %+v", nsAlert.Info[0].Area)
	}

	bareAlert, err := decodeCAPXML(strings.NewReader(bareCAP))
	if err != nil {
		t.Fatalf("decode bare: %v", err)
	}
	if bareAlert.Identifier != "EXAMPLE-2" {
		t.Errorf("identifier = %q, want EXAMPLE-2", bareAlert.Identifier)
	}
	if bareAlert.Info[0].Severity != "Extreme" {
		t.Errorf("severity = %q, want Extreme", bareAlert.Info[0].Severity)
	}
}
