// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espat

import (
	"strings"
	"testing"

	"github.com/Thermoquad/esslink/pkg/radio"
)

// ============================================================
// Classification
// ============================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		want LineKind
	}{
		{"OK", LineFinal},
		{"ERROR", LineFinal},
		{"FAIL", LineFinal},
		{"SEND OK", LineFinal},
		{"ALREADY CONNECTED", LineFinal},
		{"busy p...", LineFinal},
		{"ready", LineURC},
		{"WIFI GOT IP", LineURC},
		{`+STA_CONNECTED:"aa:bb:cc:dd:ee:ff"`, LineURC},
		{`+DIST_STA_IP:"aa:bb:cc:dd:ee:ff","192.168.4.2"`, LineURC},
		{"0,CONNECT", LineURC},
		{"4,CLOSED", LineURC},
		{"+IPD,0,5", LineIPD},
		{"+CWJAP:2", LineData},
		{`+CWLAP:(3,"x",-50,"aa",1)`, LineData},
		{"x,CONNECT", LineData},
		{"AT version:2.2.0.0", LineData},
	}
	for _, tt := range tests {
		if got := Classify(tt.line); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestFinalOutcome(t *testing.T) {
	tests := []struct {
		final string
		lines []string
		want  radio.Outcome
	}{
		{"OK", nil, radio.OutcomeOK},
		{"no change", nil, radio.OutcomeOK},
		{"busy s...", nil, radio.OutcomeBusy},
		{"ERROR", nil, radio.OutcomeError},
		{"FAIL", nil, radio.OutcomeFail},
		{"SEND FAIL", nil, radio.OutcomeFail},
		{"FAIL", []string{"+CWJAP:1"}, radio.OutcomeTimeout},
		{"FAIL", []string{"+CWJAP:2"}, radio.OutcomeWrongPassword},
		{"FAIL", []string{"+CWJAP:3"}, radio.OutcomeNoAP},
		{"FAIL", []string{"+CWJAP:4"}, radio.OutcomeConnFail},
		{"ERROR", []string{"link is not valid"}, radio.OutcomeClosed},
		{"ERROR", []string{"link is full"}, radio.OutcomeLinkLimit},
		{"ERROR", []string{"+PING:TIMEOUT"}, radio.OutcomeTimeout},
		{"ERROR", []string{"no ip"}, radio.OutcomeNoIP},
	}
	for _, tt := range tests {
		if got := finalOutcome(tt.final, tt.lines); got != tt.want {
			t.Errorf("finalOutcome(%q, %q) = %v, want %v", tt.final, tt.lines, got, tt.want)
		}
	}
}

// ============================================================
// Parsing helpers
// ============================================================

func TestParseIPD(t *testing.T) {
	id, n, err := parseIPD("+IPD,3,128:")
	if err != nil || id != 3 || n != 128 {
		t.Errorf("parseIPD = %d, %d, %v", id, n, err)
	}
	id, n, err = parseIPD(`+IPD,1,4,"192.168.4.2",50000:`)
	if err != nil || id != 1 || n != 4 {
		t.Errorf("parseIPD with remote info = %d, %d, %v", id, n, err)
	}
	for _, bad := range []string{"+IPD,5:", "+IPD,a,5:", "+IPD,0,-1:"} {
		if _, _, err := parseIPD(bad); err == nil {
			t.Errorf("parseIPD(%q) should fail", bad)
		}
	}
}

func TestSplitFieldsAndQuote(t *testing.T) {
	f := splitFields(`3,"a\"b\,c",-50`)
	if len(f) != 3 || f[1] != `a"b,c` {
		t.Errorf("splitFields = %q", f)
	}

	q := quote(`we"ird,pass\`)
	if q != `"we\"ird\,pass\\"` {
		t.Errorf("quote = %s", q)
	}
	back := splitFields(q)
	if len(back) != 1 || back[0] != `we"ird,pass\` {
		t.Errorf("round trip = %q", back)
	}
}

func TestParseStation(t *testing.T) {
	for _, line := range []string{"192.168.4.2,aa:bb:cc:dd:ee:ff", "+CWLIF:192.168.4.2,aa:bb:cc:dd:ee:ff"} {
		s, ok := parseStation(line)
		if !ok || s.IP.String() != "192.168.4.2" || s.MAC != "aa:bb:cc:dd:ee:ff" {
			t.Errorf("parseStation(%q) = %+v, %v", line, s, ok)
		}
	}
	if _, ok := parseStation("OK"); ok {
		t.Error("parseStation accepted a non-station line")
	}
}

func TestParseVersion(t *testing.T) {
	if v, ok := parseVersion("AT version:2.2.0.0(b097cdf)"); !ok || v != 2 {
		t.Errorf("parseVersion = %d, %v", v, ok)
	}
	if _, ok := parseVersion("SDK version:v3.4"); ok {
		t.Error("SDK line is not an AT version")
	}
}

func TestRedact(t *testing.T) {
	if got := redact(`AT+CWJAP="net","secret"`); strings.Contains(got, "secret") {
		t.Errorf("redact leaked secret: %s", got)
	}
	if got := redact("AT+CWLAP"); got != "AT+CWLAP" {
		t.Errorf("redact changed a plain command: %s", got)
	}
}
