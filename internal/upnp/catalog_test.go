package upnp

import (
	"strings"
	"testing"
	"time"
)

func TestServiceID(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{AVTransportPath, "AVTransport"},
		{RenderingControlPath, "RenderingControl"},
		{ContentDirectoryPath, "ContentDirectory"},
		{ZoneGroupTopologyPath, "ZoneGroupTopology"},
		{"/Single", "Single"},
	}
	for _, tt := range tests {
		if got := ServiceID(tt.path); got != tt.want {
			t.Errorf("ServiceID(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestCatalogDeclaresEveryService(t *testing.T) {
	for path, actions := range catalog {
		if len(actions) == 0 {
			t.Errorf("%s declares no actions", path)
		}
		for name, s := range actions {
			for _, arg := range append(append([]string{}, s.In...), s.Out...) {
				if arg == "" {
					t.Errorf("%s.%s has an empty argument name", path, name)
				}
			}
		}
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	s, err := Lookup(AVTransportPath, "Seek")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	s.In[0] = "Tampered"

	again, err := Lookup(AVTransportPath, "Seek")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if again.In[0] != "InstanceID" {
		t.Errorf("catalog changed through Lookup result: %v", again.In)
	}
}

func TestBuildEnvelope(t *testing.T) {
	body := BuildEnvelope(ServiceURN("AVTransport"), "Seek", []string{"InstanceID", "Unit", "Target"}, Args{
		"InstanceID": 0,
		"Unit":       "REL_TIME",
		"Target":     "0:01:02",
	})

	want := `<u:Seek xmlns:u="urn:schemas-upnp-org:service:AVTransport:1">` +
		`<InstanceID>0</InstanceID><Unit>REL_TIME</Unit><Target>0:01:02</Target></u:Seek>`
	if !strings.Contains(body, want) {
		t.Errorf("envelope %q does not contain %q", body, want)
	}
	if !strings.HasPrefix(body, `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"`) {
		t.Errorf("envelope has wrong root: %q", body)
	}
}

func TestParseFault(t *testing.T) {
	body := []byte(`<s:Envelope><s:Body><s:Fault><detail><UPnPError><errorCode> 701 </errorCode></UPnPError></detail></s:Fault></s:Body></s:Envelope>`)

	f := parseFault(body, 500, "ContentDirectory", "Browse")
	if f.Code != "701" || f.Message != "No such object" {
		t.Errorf("fault = %+v", f)
	}

	f = parseFault([]byte("garbage"), 500, "AVTransport", "Play")
	if f.Code != "" || f.Message != "Unknown error" {
		t.Errorf("fault without code = %+v", f)
	}
}

func TestParseTrackTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"0:03:25", 3*time.Minute + 25*time.Second, false},
		{"00:00:05", 5 * time.Second, false},
		{"1:00:00", time.Hour, false},
		{"0:00:01.500", 1500 * time.Millisecond, false},
		{"NOT_IMPLEMENTED", 0, false},
		{"", 0, false},
		{"5", 0, true},
		{"0:61:00", 0, true},
		{"a:b:c", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTrackTime(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTrackTime(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTrackTime(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatTrackTime(t *testing.T) {
	if got := FormatTrackTime(3*time.Minute + 25*time.Second); got != "0:03:25" {
		t.Errorf("got %q", got)
	}
	if got := FormatTrackTime(time.Hour + 2*time.Second + 900*time.Millisecond); got != "1:00:02" {
		t.Errorf("got %q", got)
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{"192.168.1.20", "http://192.168.1.20:1400", false},
		{"192.168.1.20:1400", "http://192.168.1.20:1400", false},
		{"http://192.168.1.20:1400/xml/device_description.xml", "http://192.168.1.20:1400", false},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAddress(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAddress(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
