package classify

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartwatch/cartwatch-go/internal/conf"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(conf.ClassifierSettings{
		Endpoint: "https://classifier.test/v1/classify",
		APIKey:   "test-key",
		Model:    "grocery-vision-lite",
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)

	httpmock.ActivateNonDefault(client.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func writeTestImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not a real jpeg"), 0o644))
	return path
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	_, err := NewClient(conf.ClassifierSettings{})
	assert.Error(t, err)
}

func TestClientClose(t *testing.T) {
	client, err := NewClient(conf.ClassifierSettings{Endpoint: "https://classifier.test/v1/classify"})
	require.NoError(t, err)
	assert.NotPanics(t, client.Close)
}

func TestClassifyParsesObjectResponse(t *testing.T) {
	client := testClient(t)
	httpmock.RegisterResponder(http.MethodPost, "https://classifier.test/v1/classify",
		httpmock.NewStringResponder(200,
			`{"object_name": "Coca-Cola Can", "brand": "Coca-Cola", "category": "beverage", "confidence": 0.95}`))

	results, err := client.Classify(context.Background(), writeTestImage(t))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Coca-Cola Can", results[0].ObjectName)
	assert.InDelta(t, 0.95, results[0].Confidence, 1e-9)
}

func TestClassifyToleratesFencedAndMalformedPayloads(t *testing.T) {
	client := testClient(t)
	image := writeTestImage(t)

	httpmock.RegisterResponder(http.MethodPost, "https://classifier.test/v1/classify",
		httpmock.NewStringResponder(200,
			"```json\n{\"object_name\": \"Pringles Original\", \"brand\": \"Pringles\", \"category\": \"snack\", \"confidence\": 0.93}\n```"))
	results, err := client.Classify(context.Background(), image)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Pringles Original", results[0].ObjectName)

	// Non-JSON prose falls back to the Unknown record instead of erroring.
	httpmock.RegisterResponder(http.MethodPost, "https://classifier.test/v1/classify",
		httpmock.NewStringResponder(200, "this is not json"))
	results, err = client.Classify(context.Background(), image)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Unknown", results[0].ObjectName)
}

func TestClassifyReturnsErrorOnServerFailure(t *testing.T) {
	client := testClient(t)
	httpmock.RegisterResponder(http.MethodPost, "https://classifier.test/v1/classify",
		httpmock.NewStringResponder(503, "overloaded"))

	_, err := client.Classify(context.Background(), writeTestImage(t))
	assert.Error(t, err)
}

func TestClassifyReturnsErrorOnMissingImage(t *testing.T) {
	client := testClient(t)
	_, err := client.Classify(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}
