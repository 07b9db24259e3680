package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// isolateAWS points the shared config files at temp files and clears the
// credential environment so tests never read the real user setup.
func isolateAWS(t *testing.T, credentials string) {
	t.Helper()
	dir := t.TempDir()
	creds := filepath.Join(dir, "credentials")
	if err := os.WriteFile(creds, []byte(credentials), 0o600); err != nil {
		t.Fatal(err)
	}
	conf := filepath.Join(dir, "config")
	if err := os.WriteFile(conf, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", creds)
	t.Setenv("AWS_CONFIG_FILE", conf)
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	for _, k := range []string{
		"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_SESSION_TOKEN",
		"AWS_PROFILE", "AWS_REGION", "AWS_DEFAULT_REGION",
		"AWS_ENDPOINT_URL", "AWS_ENDPOINT_URL_S3",
		"AWS_CONTAINER_CREDENTIALS_RELATIVE_URI", "AWS_CONTAINER_CREDENTIALS_FULL_URI",
		"AWS_WEB_IDENTITY_TOKEN_FILE", "AWS_ROLE_ARN",
	} {
		t.Setenv(k, "")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewS3ClientEnvironment(t *testing.T) {
	isolateAWS(t, "")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDENV")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AWS_ENDPOINT_URL_S3", "http://localhost:9000")

	ctx := context.Background()
	c, err := NewS3Client(ctx, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	o := c.Options()
	if o.Region != "eu-west-1" {
		t.Errorf("Region = %q", o.Region)
	}
	if o.BaseEndpoint == nil || *o.BaseEndpoint != "http://localhost:9000" || !o.UsePathStyle {
		t.Errorf("endpoint = %v, path style = %v", o.BaseEndpoint, o.UsePathStyle)
	}
	creds, err := o.Credentials.Retrieve(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if creds.AccessKeyID != "AKIDENV" {
		t.Errorf("AccessKeyID = %q", creds.AccessKeyID)
	}
}

func TestNewS3ClientSharedProfile(t *testing.T) {
	isolateAWS(t, "[default]\naws_access_key_id = AKIDDEFAULT\naws_secret_access_key = s1\n\n[songs]\naws_access_key_id = AKIDPROFILE\naws_secret_access_key = s2\n")
	t.Setenv("AWS_PROFILE", "songs")

	ctx := context.Background()
	c, err := NewS3Client(ctx, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	o := c.Options()
	if o.Region != "us-east-1" {
		t.Errorf("Region = %q, want us-east-1 default", o.Region)
	}
	if o.UsePathStyle {
		t.Error("path style enabled without a custom endpoint")
	}
	creds, err := o.Credentials.Retrieve(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if creds.AccessKeyID != "AKIDPROFILE" {
		t.Errorf("AccessKeyID = %q, want the profile's key", creds.AccessKeyID)
	}
}

func TestNewS3ClientAnonymous(t *testing.T) {
	isolateAWS(t, "")

	c, err := NewS3Client(context.Background(), discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if !aws.IsCredentialsProvider(c.Options().Credentials, aws.AnonymousCredentials{}) {
		t.Errorf("Credentials = %T, want anonymous", c.Options().Credentials)
	}
}
