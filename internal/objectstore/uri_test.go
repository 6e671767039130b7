package objectstore

import "testing"

func TestParseURI_Valid(t *testing.T) {
	u, err := ParseURI("s3://datasets-bucket/raw/flowers.zip")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Scheme != "s3" || u.Bucket != "datasets-bucket" || u.Path != "raw/flowers.zip" {
		t.Fatalf("unexpected parse result: %+v", u)
	}
}

func TestParseURI_RejectsMissingScheme(t *testing.T) {
	if _, err := ParseURI("datasets-bucket/raw/flowers.zip"); err == nil {
		t.Fatal("expected error for missing scheme")
	}
}

func TestParseURI_RejectsMissingPath(t *testing.T) {
	if _, err := ParseURI("s3://datasets-bucket/"); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestParseURI_RejectsTraversal(t *testing.T) {
	cases := []string{
		"s3://datasets-bucket/../secrets.txt",
		"s3://datasets-bucket/raw/../../secrets.txt",
		"s3://datasets-bucket/a/../../b",
	}
	for _, c := range cases {
		if _, err := ParseURI(c); err == nil {
			t.Fatalf("expected traversal rejection for %q", c)
		}
	}
}

func TestAllowedBucket(t *testing.T) {
	allow := []string{"datasets-bucket", "models-bucket"}
	if !AllowedBucket("datasets-bucket", allow) {
		t.Fatal("expected datasets-bucket to be allowed")
	}
	if AllowedBucket("evil-bucket", allow) {
		t.Fatal("expected evil-bucket to be rejected")
	}
}
