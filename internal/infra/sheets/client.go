package sheets

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	DefaultBaseURL    = "https://sheets.googleapis.com"
	defaultTimeout    = 30 * time.Second
	spreadsheetsScope = "https://www.googleapis.com/auth/spreadsheets"
)

// ValueRange mirrors the Sheets API values resource.
type ValueRange struct {
	Range          string  `json:"range"`
	MajorDimension string  `json:"majorDimension,omitempty"`
	Values         [][]any `json:"values"`
}

type batchUpdateRequest struct {
	ValueInputOption string       `json:"valueInputOption"`
	Data             []ValueRange `json:"data"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Client is a minimal Sheets v4 values client.
type Client struct {
	http          *resty.Client
	spreadsheetID string
}

// NewServiceAccountClient authenticates with a service-account JSON key file.
func NewServiceAccountClient(ctx context.Context, credentialsFile, spreadsheetID, baseURL string) (*Client, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheets credentials: %w", err)
	}

	creds, err := google.CredentialsFromJSON(ctx, data, spreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sheets credentials: %w", err)
	}

	httpClient := oauth2.NewClient(ctx, creds.TokenSource)
	httpClient.Timeout = defaultTimeout

	return NewClient(resty.NewWithClient(httpClient), spreadsheetID, baseURL)
}

func NewClient(client *resty.Client, spreadsheetID, baseURL string) (*Client, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid sheets base url: %w", err)
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultTimeout)
	}
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetRetryCount(0)

	return &Client{
		http:          client,
		spreadsheetID: spreadsheetID,
	}, nil
}

// Get reads a range (A1 notation) as rows of formatted strings.
func (c *Client) Get(ctx context.Context, a1Range string) ([][]string, error) {
	var result ValueRange
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"id":    c.spreadsheetID,
			"range": a1Range,
		}).
		SetQueryParams(map[string]string{
			"majorDimension":    "ROWS",
			"valueRenderOption": "FORMATTED_VALUE",
		}).
		SetResult(&result).
		SetError(&apiError{}).
		Get("/v4/spreadsheets/{id}/values/{range}")
	if err != nil {
		return nil, fmt.Errorf("sheets get %s: %w", a1Range, err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, fmt.Errorf("sheets get %s: %w", a1Range, err)
	}

	rows := make([][]string, 0, len(result.Values))
	for _, raw := range result.Values {
		row := make([]string, len(raw))
		for i, cell := range raw {
			row[i] = cellString(cell)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// BatchUpdate writes each range in one API call.
func (c *Client) BatchUpdate(ctx context.Context, data []ValueRange) error {
	if len(data) == 0 {
		return nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", c.spreadsheetID).
		SetHeader("Content-Type", "application/json").
		SetBody(batchUpdateRequest{ValueInputOption: "RAW", Data: data}).
		SetError(&apiError{}).
		Post("/v4/spreadsheets/{id}/values:batchUpdate")
	if err != nil {
		return fmt.Errorf("sheets batch update: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("sheets batch update: %w", err)
	}
	return nil
}

func checkResponse(resp *resty.Response) error {
	if resp == nil {
		return fmt.Errorf("empty response")
	}
	status := resp.StatusCode()
	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		return nil
	}
	if apiErr, ok := resp.Error().(*apiError); ok && apiErr.Error.Message != "" {
		return fmt.Errorf("status %d: %s", status, apiErr.Error.Message)
	}
	return fmt.Errorf("status %d: %s", status, strings.TrimSpace(resp.String()))
}

func cellString(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}

// QuoteTab returns a sheet name usable in A1 notation.
func QuoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

// ColumnLetter converts a zero-based column index to A1 letters.
func ColumnLetter(index int) string {
	if index < 0 {
		return ""
	}
	letters := ""
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		letters = string(rune('A'+(n-1)%26)) + letters
	}
	return letters
}
