// Package gaso checks GASO credit lines through the Power BI dataset that
// the gas distributor publishes. Authentication uses Azure AD client credentials.
package gaso

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/wolfman30/creditsales-ai-platform/internal/eligibility"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

const (
	providerName = "gaso"
	defaultScope = "https://analysis.windows.net/powerbi/api/.default"
	defaultTable = "Clientes"
)

var dniPattern = regexp.MustCompile(`^\d{8}$`)

// Config controls the Power BI client.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	// DatasetURL is the dataset root, e.g. https://api.powerbi.com/v1.0/myorg/datasets/{id}
	DatasetURL string
	Table      string
	Segment    string
	Timeout    time.Duration
	// HTTPClient is used for token and query calls; tests point it at httptest.
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client implements eligibility.Provider.
type Client struct {
	http       *http.Client
	datasetURL string
	table      string
	segment    string
	logger     *logging.Logger
}

// New creates a Power BI backed provider.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.DatasetURL) == "" {
		return nil, errors.New("gaso: dataset URL is required")
	}
	if cfg.TokenURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("gaso: client credentials are required")
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{defaultScope}
	}
	base := cfg.HTTPClient
	if base == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		base = &http.Client{Timeout: timeout}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ccfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       scopes,
	}
	// The token source caches and refreshes tokens; the base client is used
	// for both the token endpoint and the dataset.
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, base)
	httpClient := ccfg.Client(tokenCtx)
	httpClient.Timeout = base.Timeout

	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = defaultTable
	}
	segment := strings.TrimSpace(cfg.Segment)
	if segment == "" {
		segment = providerName
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		http:       httpClient,
		datasetURL: strings.TrimRight(cfg.DatasetURL, "/"),
		table:      table,
		segment:    segment,
		logger:     logger,
	}, nil
}

func (c *Client) Name() string { return providerName }

type executeQueriesRequest struct {
	Queries            []daxQuery         `json:"queries"`
	SerializerSettings serializerSettings `json:"serializerSettings"`
}

type daxQuery struct {
	Query string `json:"query"`
}

type serializerSettings struct {
	IncludeNulls bool `json:"includeNulls"`
}

type executeQueriesResponse struct {
	Results []struct {
		Tables []struct {
			Rows []map[string]any `json:"rows"`
		} `json:"tables"`
	} `json:"results"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Query runs a DAX filter for dni against the customer table.
func (c *Client) Query(ctx context.Context, dni string) (eligibility.Result, error) {
	if !dniPattern.MatchString(dni) {
		// DAX is built by string formatting; never send anything but digits.
		return eligibility.NotEligible(providerName), nil
	}
	body, err := json.Marshal(executeQueriesRequest{
		Queries:            []daxQuery{{Query: c.buildDAX(dni)}},
		SerializerSettings: serializerSettings{IncludeNulls: true},
	})
	if err != nil {
		return eligibility.Result{}, fmt.Errorf("gaso: marshal query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.datasetURL+"/executeQueries", bytes.NewReader(body))
	if err != nil {
		return eligibility.Result{}, fmt.Errorf("gaso: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eligibility.Result{}, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eligibility.Result{}, eligibility.NewProviderError(providerName, eligibility.CategoryUnavailable, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return eligibility.Result{}, eligibility.NewProviderError(providerName, eligibility.CategoryForStatus(resp.StatusCode), resp.StatusCode, fmt.Errorf("executeQueries: %s", truncate(string(data), 200)))
	}

	var parsed executeQueriesResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return eligibility.Result{}, eligibility.NewProviderError(providerName, eligibility.CategoryInvalidResponse, resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return eligibility.Result{}, eligibility.NewProviderError(providerName, eligibility.CategoryInvalidResponse, resp.StatusCode, fmt.Errorf("%s: %s", parsed.Error.Code, parsed.Error.Message))
	}
	if len(parsed.Results) == 0 || len(parsed.Results[0].Tables) == 0 || len(parsed.Results[0].Tables[0].Rows) == 0 {
		return eligibility.NotEligible(providerName), nil
	}
	row := parsed.Results[0].Tables[0].Rows[0]
	credit := numberColumn(row, c.column("LineaCredito"))
	if credit <= 0 {
		return eligibility.NotEligible(providerName), nil
	}
	return eligibility.Result{
		Status:   eligibility.StatusEligible,
		Segment:  c.segment,
		Credit:   credit,
		Name:     strings.TrimSpace(stringColumn(row, c.column("Nombre"))),
		NSE:      strings.TrimSpace(stringColumn(row, c.column("NSE"))),
		Provider: providerName,
	}, nil
}

func (c *Client) buildDAX(dni string) string {
	return fmt.Sprintf(`EVALUATE FILTER('%s', '%s'[DNI] = "%s")`, c.table, c.table, dni)
}

func (c *Client) column(name string) string {
	return c.table + "[" + name + "]"
}

func classifyTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return eligibility.NewProviderError(providerName, eligibility.CategoryTimeout, 0, ctx.Err())
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		status := 0
		if rerr.Response != nil {
			status = rerr.Response.StatusCode
		}
		return eligibility.NewProviderError(providerName, eligibility.CategoryAuth, status, err)
	}
	return eligibility.NewProviderError(providerName, eligibility.CategoryUnavailable, 0, err)
}

func numberColumn(row map[string]any, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}

func stringColumn(row map[string]any, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
