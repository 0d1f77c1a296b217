package httpcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/A6-9V/sw-proxy/internal/cache"
)

type HTTPCache struct {
	cache cache.GenericCache
}

func New(cache cache.GenericCache) *HTTPCache {
	return &HTTPCache{
		cache: cache,
	}
}

// Cacheable reports whether a request can be stored or matched.
// Only GET requests have a cache identity.
func Cacheable(request *http.Request) bool {
	return request.Method == "" || request.Method == http.MethodGet
}

// Generates a unique key to store a value, based on the request method and URL.
// The key keeps the escaped path as is: a trailing slash, an encoded slash or a
// dot segment each give a different key.
func GenerateKey(request *http.Request) (string, error) {
	if request.URL == nil || request.URL.Host == "" {
		return "", fmt.Errorf("request URL must be absolute")
	}

	method := request.Method
	if method == "" {
		method = http.MethodGet
	}

	// Build path: [scheme_]host/segments/METHOD[_queryhash].bin
	host := strings.ToLower(request.URL.Host)
	if request.URL.Scheme == "http" {
		host = strings.TrimSuffix(host, ":80")
	}
	if request.URL.Scheme == "https" {
		host = strings.TrimSuffix(host, ":443")
	}
	host = strings.ReplaceAll(host, ":", "_")
	if scheme := strings.ToLower(request.URL.Scheme); scheme != "" && scheme != "http" {
		host = scheme + "_" + host
	}
	pathParts := []string{host}

	if escaped := request.URL.EscapedPath(); escaped != "" && escaped != "/" {
		for _, segment := range strings.Split(strings.TrimPrefix(escaped, "/"), "/") {
			pathParts = append(pathParts, keySegment(segment))
		}
	}

	filename := method
	if request.URL.RawQuery != "" || request.URL.ForceQuery {
		// Hash query parameters
		hash := sha256.Sum256([]byte(request.URL.RawQuery))
		filename += "_q" + hex.EncodeToString(hash[:])
	}
	filename += ".bin"

	pathParts = append(pathParts, filename)

	return strings.Join(pathParts, "/"), nil
}

// keySegment maps one escaped path segment to a storable name. An escaped
// segment only holds '%' ahead of two hex digits, so the marked forms below
// never collide with a plain segment.
func keySegment(segment string) string {
	switch {
	case segment == "":
		return "%"
	case segment == ".":
		return "%."
	case segment == "..":
		return "%.."
	case strings.HasSuffix(segment, ".bin"):
		// keeps the segment apart from the METHOD.bin file of its parent
		return segment + "%"
	default:
		return segment
	}
}

func (d *HTTPCache) SetReq(request *http.Request, resp *http.Response) error {
	if !Cacheable(request) {
		return fmt.Errorf("cannot cache %s request", request.Method)
	}

	cacheKey, err := GenerateKey(request)
	if err != nil {
		return fmt.Errorf("failed to generate cache key: %w", err)
	}

	return d.SetKey(cacheKey, resp)
}

func (d *HTTPCache) SetKey(requestKey string, resp *http.Response) error {
	data, err := Serialize(resp)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	return d.SetRaw(requestKey, data)
}

// SetRaw stores an already serialized response
func (d *HTTPCache) SetRaw(requestKey string, data []byte) error {
	if err := d.cache.Set(requestKey, data); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

func (d *HTTPCache) GetReq(req *http.Request) (*http.Response, error) {
	if !Cacheable(req) {
		return nil, nil
	}

	requestKey, err := GenerateKey(req)
	if err != nil {
		return nil, fmt.Errorf("failed to generate cache key: %w", err)
	}

	resp, err := d.GetKey(requestKey)
	if err != nil {
		return nil, err
	}
	// Handle no cache hit
	if resp == nil {
		return nil, nil
	}

	// Associate the original request with the response
	resp.Request = req
	return resp, nil
}

func (d *HTTPCache) GetKey(requestKey string) (*http.Response, error) {
	data, err := d.cache.Get(requestKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}
	if data == nil {
		return nil, nil // Cache miss
	}

	resp, err := Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize response: %w", err)
	}
	return resp, nil
}

// Match looks the request up in every partition, in creation order,
// and returns the first stored response.
func Match(storage cache.Storage, req *http.Request) (*http.Response, error) {
	if !Cacheable(req) {
		return nil, nil
	}

	names, err := storage.Names()
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}

	for _, name := range names {
		partition, err := storage.Get(name)
		if err != nil {
			return nil, fmt.Errorf("failed to open partition %s: %w", name, err)
		}
		if partition == nil {
			continue
		}
		resp, err := New(partition).GetReq(req)
		if err != nil {
			return nil, fmt.Errorf("partition %s: %w", name, err)
		}
		if resp != nil {
			return resp, nil
		}
	}
	return nil, nil
}
