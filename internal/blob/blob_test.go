package blob

import (
	"context"
	"errors"
	"testing"
)

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Region: "us-east-1"})
	if !errors.Is(err, ErrBucketRequired) {
		t.Errorf("expected ErrBucketRequired, got %v", err)
	}
}

func TestNew_StaticCredentials(t *testing.T) {
	c, err := New(context.Background(), Config{
		Endpoint:       "localhost:9000",
		Region:         "us-east-1",
		Bucket:         "parity",
		AccessKey:      "minio",
		SecretKey:      "minio123",
		ForcePathStyle: true,
		Prefix:         "/exports/",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Bucket() != "parity" {
		t.Errorf("expected bucket parity, got %s", c.Bucket())
	}
	if got := c.Key("dashboard-spread-2024-04-30.csv"); got != "exports/dashboard-spread-2024-04-30.csv" {
		t.Errorf("unexpected key %s", got)
	}
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, name, want string
	}{
		{"", "a.csv", "a.csv"},
		{"exports", "a.csv", "exports/a.csv"},
		{"/exports/", "/hotel-aurora/a.csv", "exports/hotel-aurora/a.csv"},
	}
	for _, tt := range tests {
		if got := objectKey(tt.prefix, tt.name); got != tt.want {
			t.Errorf("objectKey(%q, %q) = %q, want %q", tt.prefix, tt.name, got, tt.want)
		}
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := map[string]string{
		"localhost:9000":            "https://localhost:9000",
		"http://minio:9000":         "http://minio:9000",
		"https://r2.example.com":    "https://r2.example.com",
		"s3.eu-central-1.wasabi.io": "https://s3.eu-central-1.wasabi.io",
	}
	for in, want := range tests {
		if got := normaliseEndpoint(in); got != want {
			t.Errorf("normaliseEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}
