// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espat

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/esslink/pkg/radio"
)

// Terminal control
const (
	CRLF = "\r\n"
)

// Final result lines
const (
	FinalOK          = "OK"
	FinalError       = "ERROR"
	FinalFail        = "FAIL"
	FinalSendOK      = "SEND OK"
	FinalSendFail    = "SEND FAIL"
	FinalAlreadyConn = "ALREADY CONNECTED"
	FinalNoChange    = "no change"
	finalBusyPrefix  = "busy "
)

// Unsolicited result codes
const (
	URCReady            = "ready"
	URCWifiConnected    = "WIFI CONNECTED"
	URCWifiGotIP        = "WIFI GOT IP"
	URCWifiDisconnect   = "WIFI DISCONNECT"
	URCStaConnected     = "+STA_CONNECTED:"
	URCStaDisconnected  = "+STA_DISCONNECTED:"
	URCDistStaIP        = "+DIST_STA_IP:"
	urcLinkConnect      = ",CONNECT"
	urcLinkClosed       = ",CLOSED"
	ipdPrefix           = "+IPD,"
	joinErrPrefix       = "+CWJAP:"
	linkInvalid         = "link is not valid"
	linkFull            = "link is full"
	pingTimeout         = "+PING:TIMEOUT"
	versionPrefix       = "AT version:"
	minSupportedVersion = 1
)

// LineKind classifies one line of module output
type LineKind int

const (
	LineData LineKind = iota
	LineFinal
	LineURC
	LineIPD
	LineCommand // written by us, reported to the tap only
)

func (k LineKind) String() string {
	switch k {
	case LineData:
		return "DATA"
	case LineFinal:
		return "FINAL"
	case LineURC:
		return "URC"
	case LineIPD:
		return "IPD"
	case LineCommand:
		return "CMD"
	default:
		return "UNKNOWN"
	}
}

// Line is one classified unit of AT traffic
type Line struct {
	Kind LineKind
	Text string
	At   time.Time
}

// Classify sorts a CRLF-stripped module line
func Classify(line string) LineKind {
	switch line {
	case FinalOK, FinalError, FinalFail, FinalSendOK, FinalSendFail, FinalAlreadyConn, FinalNoChange:
		return LineFinal
	case URCReady, URCWifiConnected, URCWifiGotIP, URCWifiDisconnect:
		return LineURC
	}
	if strings.HasPrefix(line, finalBusyPrefix) {
		return LineFinal
	}
	if strings.HasPrefix(line, URCStaConnected) ||
		strings.HasPrefix(line, URCStaDisconnected) ||
		strings.HasPrefix(line, URCDistStaIP) {
		return LineURC
	}
	if strings.HasPrefix(line, ipdPrefix) {
		return LineIPD
	}
	if _, ok := linkURC(line); ok {
		return LineURC
	}
	return LineData
}

// linkURC parses "<id>,CONNECT" and "<id>,CLOSED"
func linkURC(line string) (int, bool) {
	var rest string
	switch {
	case strings.HasSuffix(line, urcLinkConnect):
		rest = strings.TrimSuffix(line, urcLinkConnect)
	case strings.HasSuffix(line, urcLinkClosed):
		rest = strings.TrimSuffix(line, urcLinkClosed)
	default:
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// finalOutcome maps the final line of a command, looking back over the
// data lines for the detail the module prints before ERROR or FAIL
func finalOutcome(final string, lines []string) radio.Outcome {
	switch {
	case final == FinalOK, final == FinalSendOK, final == FinalAlreadyConn, final == FinalNoChange:
		return radio.OutcomeOK
	case strings.HasPrefix(final, finalBusyPrefix):
		return radio.OutcomeBusy
	case final == FinalSendFail:
		return radio.OutcomeFail
	}

	for _, l := range lines {
		switch {
		case strings.HasPrefix(l, joinErrPrefix):
			if n, err := strconv.Atoi(strings.TrimPrefix(l, joinErrPrefix)); err == nil {
				return joinOutcome(n)
			}
		case l == linkInvalid:
			return radio.OutcomeClosed
		case l == linkFull:
			return radio.OutcomeLinkLimit
		case l == pingTimeout:
			return radio.OutcomeTimeout
		case l == "no ip":
			return radio.OutcomeNoIP
		}
	}
	if final == FinalFail {
		return radio.OutcomeFail
	}
	return radio.OutcomeError
}

// joinOutcome maps the +CWJAP:<n> error code
func joinOutcome(code int) radio.Outcome {
	switch code {
	case 1:
		return radio.OutcomeTimeout
	case 2:
		return radio.OutcomeWrongPassword
	case 3:
		return radio.OutcomeNoAP
	case 4:
		return radio.OutcomeConnFail
	default:
		return radio.OutcomeFail
	}
}

// parseIPD parses the "+IPD,<id>,<len>[,...]:" header
func parseIPD(header string) (id, n int, err error) {
	h := strings.TrimSuffix(strings.TrimPrefix(header, ipdPrefix), ":")
	parts := strings.Split(h, ",")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("short +IPD header %q", header)
	}
	if id, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, fmt.Errorf("bad link id in %q", header)
	}
	if n, err = strconv.Atoi(parts[1]); err != nil || n < 0 {
		return 0, 0, fmt.Errorf("bad length in %q", header)
	}
	return id, n, nil
}

// splitFields splits a comma separated AT parameter list, keeping quoted
// strings intact and unescaping them
func splitFields(s string) []string {
	var fields []string
	var cur strings.Builder
	quoted, escaped := false, false
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quoted:
			escaped = true
		case r == '"':
			quoted = !quoted
		case r == ',' && !quoted:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(fields, cur.String())
}

// quote escapes a string argument the way the AT parser expects
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `,`, `\,`)
	return `"` + r.Replace(s) + `"`
}

// parseAccessPoint parses one +CWLAP:(ecn,"ssid",rssi,"mac",channel,...) line
func parseAccessPoint(line string) (radio.AccessPoint, bool) {
	body, ok := strings.CutPrefix(line, "+CWLAP:")
	if !ok {
		return radio.AccessPoint{}, false
	}
	body = strings.TrimSuffix(strings.TrimPrefix(body, "("), ")")
	f := splitFields(body)
	if len(f) < 5 {
		return radio.AccessPoint{}, false
	}
	ecn, _ := strconv.Atoi(f[0])
	rssi, _ := strconv.Atoi(f[2])
	ch, _ := strconv.Atoi(f[4])
	return radio.AccessPoint{
		SSID:       f[1],
		RSSI:       rssi,
		BSSID:      f[3],
		Channel:    ch,
		Encryption: radio.Encryption(ecn),
	}, true
}

// parseStation parses a CWLIF line, "ip,mac" or "+CWLIF:ip,mac"
func parseStation(line string) (radio.StationInfo, bool) {
	line = strings.TrimPrefix(line, "+CWLIF:")
	f := splitFields(line)
	if len(f) < 2 {
		return radio.StationInfo{}, false
	}
	ip := parseIP(f[0])
	if ip == nil {
		return radio.StationInfo{}, false
	}
	return radio.StationInfo{IP: ip, MAC: f[1]}, true
}

// parseVersion extracts the major AT firmware version
func parseVersion(line string) (int, bool) {
	v, ok := strings.CutPrefix(line, versionPrefix)
	if !ok {
		return 0, false
	}
	major, _, _ := strings.Cut(v, ".")
	n, err := strconv.Atoi(strings.TrimSpace(major))
	if err != nil {
		return 0, false
	}
	return n, true
}
