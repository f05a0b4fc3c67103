// internal/provider/whatsapp.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Sender sends one templated message and returns the provider-assigned
// message id. The batch sender depends on this, not on the concrete client.
type Sender interface {
	SendTemplate(ctx context.Context, to string, msg TemplateMessage) (string, error)
}

// TemplateMessage is a Cloud API template send: the template name, its
// language tag and the ordered body parameter values (recipient name first,
// then the campaign's static variables).
type TemplateMessage struct {
	Name       string
	Language   string
	Parameters []string
}

// Client talks to the WhatsApp Cloud API.
type Client struct {
	baseURL       string
	phoneNumberID string
	accessToken   string
	http          *http.Client
}

func NewClient(baseURL, phoneNumberID, accessToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:       baseURL,
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
		http:          &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Template         templateBody `json:"template"`
}

type templateBody struct {
	Name       string          `json:"name"`
	Language   language        `json:"language"`
	Components []bodyComponent `json:"components,omitempty"`
}

type language struct {
	Code string `json:"code"`
}

type bodyComponent struct {
	Type       string      `json:"type"`
	Parameters []parameter `json:"parameters"`
}

type parameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *APIError `json:"error"`
}

// SendTemplate posts one templated message. On a provider rejection the
// returned error is an *APIError carrying the numeric code for the failure
// table; transport-level errors come back as-is and are retryable.
func (c *Client) SendTemplate(ctx context.Context, to string, msg TemplateMessage) (string, error) {
	body := sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: templateBody{
			Name:     msg.Name,
			Language: language{Code: msg.Language},
		},
	}
	if len(msg.Parameters) > 0 {
		comp := bodyComponent{Type: "body"}
		for _, p := range msg.Parameters {
			comp.Parameters = append(comp.Parameters, parameter{Type: "text", Text: p})
		}
		body.Template.Components = []bodyComponent{comp}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp send: %w", err)
	}
	defer resp.Body.Close()

	var parsed sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("whatsapp send: decode response: %w", err)
	}

	if parsed.Error != nil {
		return "", parsed.Error
	}
	if resp.StatusCode >= 300 || len(parsed.Messages) == 0 {
		return "", fmt.Errorf("whatsapp send: unexpected response status %d", resp.StatusCode)
	}
	return parsed.Messages[0].ID, nil
}

var _ Sender = (*Client)(nil)
