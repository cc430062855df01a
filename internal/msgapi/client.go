package msgapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"chatsync/internal/entity"
)

// Client talks to the message endpoints over HTTP. It implements the
// session engine's MessageAPI for engines running outside the backend
// process.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) SendMessage(ctx context.Context, receiverId, text string, attachments []entity.Attachment) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("receiverId", receiverId); err != nil {
		return err
	}
	if err := writer.WriteField("messageText", text); err != nil {
		return err
	}
	if err := writer.WriteField("type", "direct"); err != nil {
		return err
	}
	for _, attachment := range attachments {
		part, err := writer.CreatePart(fileHeader(attachment.Name, attachment.ContentType))
		if err != nil {
			return err
		}
		if _, err := part.Write(attachment.Data); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req)
}

func (c *Client) EditMessage(ctx context.Context, messageId, text string) error {
	payload, err := json.Marshal(map[string]string{"messageText": text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+"/messages/"+messageId, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) DeleteMessage(ctx context.Context, messageId string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/messages/"+messageId, nil)
	if err != nil {
		return err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var envelope struct {
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &envelope) == nil && envelope.Message != "" {
			return fmt.Errorf("message api: %s (status %d)", envelope.Message, resp.StatusCode)
		}
		return fmt.Errorf("message api: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func fileHeader(name, contentType string) textproto.MIMEHeader {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	return header
}
