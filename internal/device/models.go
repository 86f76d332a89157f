package device

// DiscoverRequest asks the device to build a manifest URL from the
// caller's address.
type DiscoverRequest struct {
	Port int    `json:"port"`
	Path string `json:"path"`
}

type discoverResponse struct {
	OK          bool   `json:"ok"`
	ManifestURL string `json:"manifestUrl"`
}

type configUpdate struct {
	OTA otaConfigUpdate `json:"ota"`
}

type otaConfigUpdate struct {
	ManifestURL string `json:"manifestUrl"`
}

// CheckResult is the answer to an update check. The device answers 503
// with the same shape when the check itself failed.
type CheckResult struct {
	OK               bool   `json:"ok"`
	Available        bool   `json:"available"`
	AvailableVersion string `json:"availableVersion"`
	Message          string `json:"message"`
}

// OTAConfig is the persisted updater configuration.
type OTAConfig struct {
	ManifestURL string `json:"manifestUrl"`
	Auto        bool   `json:"auto"`
	CheckHours  int    `json:"checkHours"`
}

// OTAState is the updater's runtime state.
type OTAState struct {
	LastCheckUtc     int64  `json:"lastCheckUtc"`
	LastAttemptUtc   int64  `json:"lastAttemptUtc"`
	Available        bool   `json:"available"`
	AvailableVersion string `json:"availableVersion"`
	Notes            string `json:"notes"`
	Error            string `json:"error"`
}

// StatusSnapshot is a single read of /api/ota/status. It is never cached.
type StatusSnapshot struct {
	OK                bool      `json:"ok"`
	CurrentVersion    string    `json:"currentVersion"`
	Config            OTAConfig `json:"config"`
	TimeValid         bool      `json:"timeValid"`
	WifiConnected     bool      `json:"wifiConnected"`
	BlockedByHolyTime bool      `json:"blockedByHolyTime"`
	State             OTAState  `json:"state"`

	// Raw holds the full decoded document, including fields not modelled above.
	Raw map[string]any `json:"-"`
}

// Network is one access point from a Wi-Fi scan.
type Network struct {
	SSID    string `json:"ssid"`
	BSSID   string `json:"bssid"`
	Channel int    `json:"ch"`
	RSSI    int    `json:"rssi"`
	Secure  bool   `json:"secure"`
	Enc     int    `json:"enc"`
}

// ConnectRequest starts a station connection. Channel and BSSID are scan
// hints that spare the device a blocking scan; zero values mean unknown.
type ConnectRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
	Channel  int    `json:"channel"`
	BSSID    string `json:"bssid"`
	Simple   bool   `json:"simple"`
}

// ConnectResponse is the device's immediate answer to a connect request.
type ConnectResponse struct {
	OK         bool   `json:"ok"`
	Started    bool   `json:"started"`
	Connected  bool   `json:"connected"`
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	Connecting bool   `json:"connecting"`
	TargetSSID string `json:"targetSsid"`
	SSID       string `json:"ssid"`
	IP         string `json:"ip"`
	RSSI       int    `json:"rssi"`
}

// SaveRequest stores station credentials on the device.
type SaveRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
	MakeLast bool   `json:"makeLast"`
	Connect  bool   `json:"connect"`
	Simple   bool   `json:"simple"`
}

// SaveResponse is the answer to a save request.
type SaveResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`

	Raw map[string]any `json:"-"`
}

// WifiStatus is a single read of /api/wifi/status.
type WifiStatus struct {
	OK               bool   `json:"ok"`
	APMode           bool   `json:"apMode"`
	APSSID           string `json:"apSsid"`
	APIP             string `json:"apIp"`
	APChannel        int    `json:"apChannel"`
	ConnectStage     string `json:"connectStage"`
	TargetSSID       string `json:"targetSsid"`
	TargetChannel    int    `json:"targetChannel"`
	STASSID          string `json:"staSsid"`
	STAIP            string `json:"staIp"`
	STAStatus        string `json:"staStatus"`
	STAStatusCode    int    `json:"staStatusCode"`
	RSSI             int    `json:"rssi"`
	Connecting       bool   `json:"connecting"`
	DiscReason       int    `json:"discReason"`
	DiscReasonRaw    int    `json:"discReasonRaw"`
	DiscExpected     bool   `json:"discExpected"`
	SDKStaStatus     int    `json:"sdkStaStatus"`
	SDKStaStatusText string `json:"sdkStaStatusText"`
	LastFailCode     int    `json:"lastFailCode"`
}

// STAConnected is the station status code for an established link.
const STAConnected = 3

// Connected reports an established link with an assigned address.
func (s *WifiStatus) Connected() bool {
	return s.STAStatusCode == STAConnected && s.STAIP != ""
}
