package storage

import "testing"

func TestS3Archive_URL(t *testing.T) {
	cases := []struct {
		cfg  S3Config
		want string
	}{
		{S3Config{Bucket: "digests", Region: "us-east-1"}, "https://digests.s3.us-east-1.amazonaws.com/a/b.html"},
		{S3Config{Bucket: "digests", Endpoint: "https://nyc3.digitaloceanspaces.com"}, "https://digests.nyc3.digitaloceanspaces.com/a/b.html"},
		{S3Config{Bucket: "digests", Endpoint: "http://localhost:9000/"}, "http://localhost:9000/digests/a/b.html"},
	}

	for _, tc := range cases {
		a := &S3Archive{cfg: tc.cfg}
		if got := a.URL("a/b.html"); got != tc.want {
			t.Fatalf("expected %s, got %s", tc.want, got)
		}
	}
}
