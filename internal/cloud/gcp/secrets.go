// Package gcp wraps the Google Cloud services statusnotify can use: Secret
// Manager for credentials and Cloud Logging for run logs.
package gcp

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/compute/metadata"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// SecretFetcher reads secret payloads. *SecretManagerClient implements it.
type SecretFetcher interface {
	FetchSecret(ctx context.Context, secretPath string) (string, error)
	Close() error
}

// SecretManagerClient reads secrets from Secret Manager.
type SecretManagerClient struct {
	client    *secretmanager.Client
	projectID string
}

// NewSecretManagerClient connects to Secret Manager. Bare secret names are
// looked up in projectID; when it is empty the project comes from the
// environment or the metadata server, and only fully qualified paths work
// if neither knows it.
func NewSecretManagerClient(ctx context.Context, projectID string, opts ...option.ClientOption) (*SecretManagerClient, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}

	if projectID == "" {
		if projectID, err = getProjectID(); err != nil {
			projectID = "-"
		}
	}

	return &SecretManagerClient{client: client, projectID: projectID}, nil
}

var projectEnvVars = []string{"GOOGLE_CLOUD_PROJECT", "GCP_PROJECT", "GCLOUD_PROJECT"}

func getProjectID() (string, error) {
	for _, name := range projectEnvVars {
		if id := os.Getenv(name); id != "" {
			return id, nil
		}
	}
	return getProjectIDFromMetadata()
}

// metadataClient honours GCE_METADATA_HOST, which tests point at httptest.
var metadataClient = metadata.NewClient(&http.Client{Timeout: 2 * time.Second})

func getProjectIDFromMetadata() (string, error) {
	id, err := metadataClient.Get("project/project-id")
	if err != nil {
		return "", fmt.Errorf("failed to read project ID from metadata server: %w", err)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("metadata server returned an empty project ID")
	}
	return id, nil
}

// FetchSecret returns the payload of a secret version. secretPath is either
// a bare name (latest version in the client's project), a secret resource
// name (latest version), or a full version resource name.
func (c *SecretManagerClient) FetchSecret(ctx context.Context, secretPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	name := versionName(c.projectID, secretPath)
	result, err := c.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("failed to access %s: %w", name, err)
	}

	return string(result.Payload.Data), nil
}

// versionName expands secretPath to a secret version resource name.
func versionName(projectID, secretPath string) string {
	if strings.HasPrefix(secretPath, "projects/") {
		if strings.Contains(secretPath, "/versions/") {
			return secretPath
		}
		if strings.Contains(secretPath, "/secrets/") {
			return secretPath + "/versions/latest"
		}
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, path.Base(secretPath))
}

// Close releases the underlying connection.
func (c *SecretManagerClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ResolveSecret returns value when it is set, otherwise the trimmed content
// of the secret at secretPath. An empty result with no error means neither
// was configured.
func ResolveSecret(ctx context.Context, fetcher SecretFetcher, value, secretPath string) (string, error) {
	if value != "" {
		return value, nil
	}
	if secretPath == "" {
		return "", nil
	}
	if fetcher == nil {
		return "", fmt.Errorf("secret %s configured but Secret Manager is unavailable", secretPath)
	}
	secret, err := fetcher.FetchSecret(ctx, secretPath)
	if err != nil {
		return "", fmt.Errorf("failed to fetch secret %s: %w", secretPath, err)
	}
	return strings.TrimSpace(secret), nil
}
