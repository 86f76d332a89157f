package wifi

import "fmt"

// reasonNames covers the station disconnect reasons the firmware reports.
var reasonNames = map[int]string{
	0:   "UNSPECIFIED/UNKNOWN",
	1:   "UNSPECIFIED",
	2:   "AUTH_EXPIRE",
	3:   "AUTH_LEAVE",
	4:   "ASSOC_EXPIRE",
	5:   "ASSOC_TOOMANY",
	6:   "NOT_AUTHED",
	7:   "NOT_ASSOCED",
	8:   "ASSOC_LEAVE",
	9:   "ASSOC_NOT_AUTHED",
	13:  "MIC_FAILURE",
	14:  "4WAY_HANDSHAKE_TIMEOUT",
	15:  "GROUP_KEY_UPDATE_TIMEOUT",
	18:  "PAIRWISE_CIPHER_INVALID",
	19:  "AKMP_INVALID",
	20:  "UNSUPP_RSN_IE_VERSION",
	21:  "INVALID_RSN_IE_CAP",
	22:  "802_1X_AUTH_FAILED",
	23:  "CIPHER_SUITE_REJECTED",
	24:  "BEACON_TIMEOUT",
	200: "NO_AP_FOUND",
	201: "AUTH_FAIL",
	202: "ASSOC_FAIL",
	203: "HANDSHAKE_TIMEOUT",
}

// ReasonName returns the symbolic name of a disconnect reason code.
func ReasonName(code int) string {
	if name, ok := reasonNames[code]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_%d", code)
}
