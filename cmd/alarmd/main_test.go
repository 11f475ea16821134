package main

import (
	"bytes"
	"testing"

	"classalarm/internal/alarm"
)

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, alarm.Report{})
	if got := buf.String(); got != "No alarm notifications to send\n" {
		t.Fatalf("empty report = %q", got)
	}

	buf.Reset()
	printReport(&buf, alarm.Report{Fired: []alarm.FiredAlarm{
		{User: "a@example.com", Subject: "SE221", LeadMinutes: 20},
		{User: "user#4", Subject: "CS221", LeadMinutes: 5},
	}})
	want := "Sent 2 alarm notifications\n  - a@example.com: SE221 (20m)\n  - user#4: CS221 (5m)\n"
	if got := buf.String(); got != want {
		t.Fatalf("report = %q, want %q", got, want)
	}
}
