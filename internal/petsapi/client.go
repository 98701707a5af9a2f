// Package petsapi provides the HTTP client for the remote pets API.
package petsapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/petfolio/shelterq/internal/queue"
)

// Client is a pets API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a pets API client for the given base URL and bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewWithHTTPClient creates a client with a custom *http.Client (for testing).
func NewWithHTTPClient(baseURL, token string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// doJSON performs a request with a JSON body and classifies failures:
// transport errors become *ConnectivityError, non-2xx responses become
// *APIError.
func (c *Client) doJSON(method, path string, payload interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnectivityError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp)
	}

	io.Copy(io.Discard, resp.Body)
	return nil
}

// createPetRequest is the body of POST /pets: the pet fields plus the
// shelter context the record is created under.
type createPetRequest struct {
	queue.PetRecord
	ShelterOwner string `json:"shelterOwner,omitempty"`
}

// CreatePet creates a pet record.
func (c *Client) CreatePet(pet queue.PetRecord, shelterOwner string) error {
	return c.doJSON(http.MethodPost, "/pets", createPetRequest{
		PetRecord:    pet,
		ShelterOwner: shelterOwner,
	})
}

// UpdatePet edits the fields of an existing pet record. Status is not part
// of this call; see UpdatePetStatus.
func (c *Client) UpdatePet(id string, fields queue.PetRecord) error {
	return c.doJSON(http.MethodPatch, "/pets/"+url.PathEscape(id), fields)
}

// UpdatePetStatus transitions the status of a pet record. The server may run
// workflows (e.g. adoption approval) off this call, so it is independent of
// field edits.
func (c *Client) UpdatePetStatus(id, status string) error {
	return c.doJSON(http.MethodPatch, "/pets/"+url.PathEscape(id)+"/status", map[string]string{
		"status": status,
	})
}

// uploadResponse is the body returned by POST /pets/upload-image.
type uploadResponse struct {
	URL string `json:"url"`
}

// UploadImage uploads one image file and returns the durable reference
// (absolute URL or server-relative path) assigned by the server.
func (c *Client) UploadImage(filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/pets/upload-image", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ConnectivityError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", newAPIError(resp)
	}

	var ur uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if ur.URL == "" {
		return "", fmt.Errorf("upload response missing url")
	}

	return ur.URL, nil
}

// Reachable reports whether the API host accepts TCP connections. The sync
// engine reads this once per pass; it is a point-in-time probe, not a live
// subscription.
func (c *Client) Reachable(timeout time.Duration) bool {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}

	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https":
			host = net.JoinHostPort(u.Hostname(), "443")
		default:
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	conn, err := net.DialTimeout("tcp", host, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
