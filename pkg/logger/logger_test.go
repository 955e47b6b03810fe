package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew_JSONCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New("pricefeed", Options{Level: "debug", Format: "json", Output: &buf})

	log.WithField("feed", "ETHUSD").WithError(errors.New("boom")).Warn("update failed")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["component"] != "pricefeed" {
		t.Fatalf("component = %v", entry["component"])
	}
	if entry["feed"] != "ETHUSD" || entry["error"] != "boom" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNamed(t *testing.T) {
	var buf bytes.Buffer
	log := New("engine", Options{Output: &buf}).Named("refresher")
	if log.Component() != "engine.refresher" {
		t.Fatalf("component = %s", log.Component())
	}
	log.Info("tick")
	if !strings.Contains(buf.String(), "component=engine.refresher") {
		t.Fatalf("missing component in %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("warn") != logrus.WarnLevel {
		t.Fatal("expected warn level")
	}
	if ParseLevel("nonsense") != logrus.InfoLevel {
		t.Fatal("expected info fallback")
	}
}
