package wifi

import (
	"context"
	"testing"
	"time"
)

func TestSaveWithoutConnect(t *testing.T) {
	f := &fakeRadio{t: t}
	w, _ := newWatcher(t, f)

	res, err := w.Save(context.Background(), SaveRequest{SSID: "home", Password: "pw", MakeLast: true})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if res.Outcome.ExitCode() != 0 {
		t.Errorf("Outcome = %v, want exit 0", res.Outcome)
	}
	if f.polls != 0 {
		t.Error("status should not be polled without connect")
	}
	if f.save["makeLast"] != true || f.save["connect"] != false {
		t.Errorf("save body = %v", f.save)
	}
}

func TestSaveAndConnect(t *testing.T) {
	f := &fakeRadio{t: t, statuses: []string{connecting, connected}}
	w, _ := newWatcher(t, f)

	res, err := w.Save(context.Background(), SaveRequest{SSID: "home", Connect: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeConnected {
		t.Fatalf("Outcome = %v", res.Outcome)
	}
	if res.Status == nil || res.Status.STAIP != "10.0.0.7" {
		t.Errorf("Status = %+v", res.Status)
	}
}

func TestSaveAndConnectStopped(t *testing.T) {
	f := &fakeRadio{t: t, statuses: []string{gaveUp}}
	w, _ := newWatcher(t, f)

	res, err := w.Save(context.Background(), SaveRequest{SSID: "home", Connect: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeStopped {
		t.Fatalf("Outcome = %v", res.Outcome)
	}
	if f.logCalls != 0 {
		t.Error("save does not fetch the wifi log")
	}
}

func TestSaveAndConnectTimeout(t *testing.T) {
	f := &fakeRadio{t: t, statuses: []string{connecting}}
	w, _ := newWatcher(t, f)
	w.Deadline = 40 * time.Millisecond

	res, err := w.Save(context.Background(), SaveRequest{SSID: "home", Connect: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeTimeout {
		t.Fatalf("Outcome = %v", res.Outcome)
	}
}
