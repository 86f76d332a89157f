package device

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
)

func TestWifiScan(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/wifi/scan" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[{"ssid":"home","bssid":"AA:BB:CC:DD:EE:FF","ch":6,"rssi":-60,"secure":true,"enc":4}]`))
	})

	nets, err := c.WifiScan(context.Background())
	if err != nil {
		t.Fatalf("WifiScan() error = %v", err)
	}
	if len(nets) != 1 || nets[0].Channel != 6 || nets[0].RSSI != -60 || !nets[0].Secure {
		t.Errorf("WifiScan() = %+v", nets)
	}
}

func TestWifiScanEmptyBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	nets, err := c.WifiScan(context.Background())
	if err != nil || len(nets) != 0 {
		t.Errorf("WifiScan() = %v, %v", nets, err)
	}
}

func TestWifiConnect(t *testing.T) {
	var got ConnectRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true,"started":true,"connecting":true}`))
	})

	req := ConnectRequest{SSID: "home", Password: "secret", Channel: 6, BSSID: "AA", Simple: true}
	resp, err := c.WifiConnect(context.Background(), req)
	if err != nil {
		t.Fatalf("WifiConnect() error = %v", err)
	}
	if got != req {
		t.Errorf("request body = %+v, want %+v", got, req)
	}
	if !resp.Started || !resp.Connecting {
		t.Errorf("WifiConnect() = %+v", resp)
	}
}

func TestWifiStatusConnected(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{`{"staStatusCode":3,"staIp":"10.0.0.5"}`, true},
		{`{"staStatusCode":3,"staIp":""}`, false},
		{`{"staStatusCode":6,"staIp":"10.0.0.5"}`, false},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(tt.body))
		})
		st, err := c.WifiStatus(context.Background())
		if err != nil {
			t.Fatalf("WifiStatus() error = %v", err)
		}
		if st.Connected() != tt.want {
			t.Errorf("%s: Connected() = %v, want %v", tt.body, st.Connected(), tt.want)
		}
	}
}

func TestWifiLog(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["line one","line two"]`))
	})
	log, err := c.WifiLog(context.Background())
	if err != nil {
		t.Fatalf("WifiLog() error = %v", err)
	}
	if _, ok := log["log"]; !ok {
		t.Errorf("non-object log should be wrapped, got %v", log)
	}
}

func TestWifiSave(t *testing.T) {
	var got SaveRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/wifi/save" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true,"saved":2}`))
	})

	resp, err := c.WifiSave(context.Background(), SaveRequest{SSID: "home", Password: "pw", MakeLast: true})
	if err != nil {
		t.Fatalf("WifiSave() error = %v", err)
	}
	if !resp.OK || resp.Raw["saved"] != float64(2) {
		t.Errorf("WifiSave() = %+v", resp)
	}
	if !got.MakeLast || got.Connect {
		t.Errorf("request body = %+v", got)
	}
}
