package otel

import (
	"context"
	"testing"
)

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for missing service name")
	}
}

func TestInitWithoutExporters(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "synapsed-test"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = secret , malformed ,team=obs")
	if len(headers) != 2 {
		t.Fatalf("expected two headers, got %v", headers)
	}
	if headers["api-key"] != "secret" || headers["team"] != "obs" {
		t.Fatalf("unexpected headers: %v", headers)
	}
}
