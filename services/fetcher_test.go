package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memMediaStore struct {
	persisted map[string][]byte
}

func newMemMediaStore() *memMediaStore {
	return &memMediaStore{persisted: map[string][]byte{}}
}

func (m *memMediaStore) InitPresignClient(ctx context.Context) error { return nil }

func (m *memMediaStore) Persist(ctx context.Context, fileKey string, content []byte) (string, error) {
	m.persisted[fileKey] = content
	return fileKey, nil
}

func (m *memMediaStore) PresignLink(ctx context.Context, bucketName string, fileName string) (string, error) {
	return "https://fake/" + fileName, nil
}

func (m *memMediaStore) UploadToPresignedURL(ctx context.Context, bucketName, url string, fileContent []byte) (string, int, error) {
	return url, 204, nil
}

func (m *memMediaStore) GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error) {
	return "https://fake/" + fileKey, nil
}

func testFetcher(media MediaStoreProvider) *ResultFetcher {
	fetcher := NewResultFetcher(media)
	fetcher.Policy.InitialDelay = time.Millisecond
	return fetcher
}

func TestFetcherPerAttemptTimeoutFitsMaterializeWindow(t *testing.T) {
	fetcher := NewResultFetcher(newMemMediaStore())
	assert.LessOrEqual(t, fetcher.HTTPClient.Timeout, 10*time.Second)
}

// scriptedServer answers with the given statuses in order, then keeps
// repeating the last one. 2xx responses carry the payload.
func scriptedServer(t *testing.T, statuses []int, payload []byte, seen *[]*http.Request) *httptest.Server {
	call := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = append(*seen, r.Clone(context.Background()))
		}
		status := statuses[len(statuses)-1]
		if call < len(statuses) {
			status = statuses[call]
		}
		call++
		w.WriteHeader(status)
		if status >= 200 && status <= 299 {
			w.Write(payload)
		}
	}))
}

func TestMaterializeInlinePersistsDirectly(t *testing.T) {
	media := newMemMediaStore()
	fetcher := testFetcher(media)

	result, err := fetcher.Materialize(context.Background(),
		&GenerationResult{InlineData: []byte("png-bytes"), MIMEType: "image/png"}, "key", "mirror/1/result/2")
	require.NoError(t, err)
	assert.Equal(t, "mirror/1/result/2", result.Address)
	assert.False(t, result.Degraded)
	assert.Equal(t, []byte("png-bytes"), media.persisted["mirror/1/result/2"])
}

func TestMaterializeRetriesUntilSuccess(t *testing.T) {
	payload := []byte("downloaded-image")
	server := scriptedServer(t, []int{404, 404, 200}, payload, nil)
	defer server.Close()

	media := newMemMediaStore()
	fetcher := testFetcher(media)

	result, err := fetcher.Materialize(context.Background(),
		&GenerationResult{RemoteURL: server.URL}, "key", "mirror/1/result/3")
	require.NoError(t, err)
	assert.False(t, result.Degraded)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, payload, media.persisted["mirror/1/result/3"])
}

func TestMaterializeDegradesToRemoteURL(t *testing.T) {
	server := scriptedServer(t, []int{500}, nil, nil)
	defer server.Close()

	media := newMemMediaStore()
	fetcher := testFetcher(media)

	result, err := fetcher.Materialize(context.Background(),
		&GenerationResult{RemoteURL: server.URL}, "key", "mirror/1/result/4")
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Equal(t, server.URL, result.Address)
	assert.Equal(t, fetcher.Policy.MaxAttempts, result.Attempts)
	assert.Empty(t, media.persisted)
}

func TestMaterializeNoPayloadAtAll(t *testing.T) {
	fetcher := testFetcher(newMemMediaStore())

	_, err := fetcher.Materialize(context.Background(), &GenerationResult{}, "key", "mirror/1/result/5")
	assert.True(t, IsKind(err, ErrUnrecognizedResponseShape))
}

func TestDownloadSendsCredentialHeaders(t *testing.T) {
	var seen []*http.Request
	server := scriptedServer(t, []int{200}, []byte("ok"), &seen)
	defer server.Close()

	fetcher := testFetcher(newMemMediaStore())
	_, err := fetcher.Materialize(context.Background(),
		&GenerationResult{RemoteURL: server.URL}, "secret-key", "mirror/1/result/6")
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, fmt.Sprintf("Bearer %s", "secret-key"), seen[0].Header.Get("Authorization"))
	assert.Equal(t, "secret-key", seen[0].Header.Get("X-Goog-Api-Key"))
}

func TestDownloadStopsOnCancelledContext(t *testing.T) {
	server := scriptedServer(t, []int{500}, nil, nil)
	defer server.Close()

	fetcher := testFetcher(newMemMediaStore())
	fetcher.Policy.InitialDelay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, attempts, err := fetcher.download(ctx, server.URL, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, attempts, fetcher.Policy.MaxAttempts)
}
