package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com"
	defaultAPIVersion   = "v21.0"
	defaultHTTPTimeout  = 10 * time.Second
)

// ClientConfig configures the Cloud API client.
type ClientConfig struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
	APIVersion    string
	// MediaBaseURL, when set, turns relative image paths into public links
	// instead of uploading the file.
	MediaBaseURL string
	HTTPClient   *http.Client
}

// Client sends messages through the WhatsApp Cloud API. It implements
// conversation.Messenger.
type Client struct {
	accessToken   string
	phoneNumberID string
	baseURL       string
	mediaBaseURL  string
	httpClient    *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultGraphAPIBase
	}
	version := cfg.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		baseURL:       base + "/" + version,
		mediaBaseURL:  strings.TrimRight(cfg.MediaBaseURL, "/"),
		httpClient:    httpClient,
	}
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	_, err := c.send(ctx, SendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &TextBody{Body: body},
	})
	return err
}

// SendImage sends an image. path may be an http(s) URL, a path relative to
// the media base URL, or a local file that is uploaded first.
func (c *Client) SendImage(ctx context.Context, to, path, caption string) error {
	media := &MediaObject{Caption: caption}
	switch {
	case strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://"):
		media.Link = path
	case c.mediaBaseURL != "":
		media.Link = c.mediaBaseURL + "/" + strings.TrimLeft(path, "/")
	default:
		id, err := c.uploadMedia(ctx, path)
		if err != nil {
			return err
		}
		media.ID = id
	}
	_, err := c.send(ctx, SendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "image",
		Image:            media,
	})
	return err
}

// MarkAsRead sends a read receipt for an inbound message.
func (c *Client) MarkAsRead(ctx context.Context, messageID string) error {
	_, err := c.send(ctx, SendRequest{
		MessagingProduct: "whatsapp",
		Status:           "read",
		MessageID:        messageID,
	})
	return err
}

func (c *Client) send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: marshal send request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+c.phoneNumberID+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq)
}

func (c *Client) uploadMedia(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("whatsapp: read media %s: %w", path, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	_ = form.WriteField("messaging_product", "whatsapp")
	_ = form.WriteField("type", contentType)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filepath.Base(path)))
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("whatsapp: build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("whatsapp: build upload: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("whatsapp: build upload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+c.phoneNumberID+"/media", &buf)
	if err != nil {
		return "", fmt.Errorf("whatsapp: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := c.do(httpReq)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("whatsapp: media upload returned no id")
	}
	return resp.ID, nil
}

func (c *Client) do(httpReq *http.Request) (*SendResponse, error) {
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: send: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: read response: %w", err)
	}

	var out SendResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("whatsapp: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	if out.Error != nil {
		return &out, fmt.Errorf("whatsapp: API error %d: %s", out.Error.Code, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return &out, fmt.Errorf("whatsapp: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return &out, nil
}
