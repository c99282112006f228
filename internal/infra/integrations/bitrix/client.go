package bitrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"zpbitrix/internal/ports"
	"zpbitrix/platform/logger"

	"github.com/cenkalti/backoff/v4"
)

// Client implements the PortalClient interface against the Bitrix24 REST API.
// One client is bound to a single (domain, access token) pair.
type Client struct {
	httpClient  *http.Client
	logger      *logger.Logger
	domain      string
	accessToken string
}

// NewClient creates a new Bitrix24 REST client
func NewClient(domain, accessToken string, logger *logger.Logger) *Client {
	return &Client{
		domain:      domain,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// ============================================================================
// CONNECTOR OPERATIONS
// ============================================================================

// RegisterConnector registers a messaging connector in the contact center
func (c *Client) RegisterConnector(ctx context.Context, req ports.RegisterConnectorRequest) error {
	params := map[string]interface{}{
		"ID":   req.ID,
		"NAME": req.Name,
		"ICON": map[string]interface{}{
			"DATA_IMAGE": req.Icon,
		},
		"PLACEMENT_HANDLER": req.PlacementHandler,
	}

	err := c.makeRequest(ctx, "imconnector.register", params, nil)
	if err != nil {
		return fmt.Errorf("failed to register connector: %w", err)
	}

	return nil
}

// UnregisterConnector removes a connector from the contact center
func (c *Client) UnregisterConnector(ctx context.Context, connectorID string) error {
	params := map[string]interface{}{
		"ID": connectorID,
	}

	err := c.makeRequest(ctx, "imconnector.unregister", params, nil)
	if err != nil {
		return fmt.Errorf("failed to unregister connector: %w", err)
	}

	return nil
}

// ListConnectors lists the custom connectors registered on the portal.
// Bitrix answers with an id-to-name map.
func (c *Client) ListConnectors(ctx context.Context) ([]ports.PortalConnector, error) {
	var response map[string]string

	err := c.makeReadRequest(ctx, "imconnector.list", nil, &response)
	if err != nil {
		return nil, fmt.Errorf("failed to list connectors: %w", err)
	}

	connectors := make([]ports.PortalConnector, 0, len(response))
	for id, name := range response {
		connectors = append(connectors, ports.PortalConnector{ID: id, Name: name})
	}

	return connectors, nil
}

// ActivateConnector switches a connector on or off for one open line
func (c *Client) ActivateConnector(ctx context.Context, connectorID, lineID string, active bool) error {
	activeFlag := 0
	if active {
		activeFlag = 1
	}
	params := map[string]interface{}{
		"CONNECTOR": connectorID,
		"LINE":      lineID,
		"ACTIVE":    activeFlag,
	}

	err := c.makeRequest(ctx, "imconnector.activate", params, nil)
	if err != nil {
		return fmt.Errorf("failed to activate connector: %w", err)
	}

	return nil
}

// ConnectorStatus reads the live status of a connector, optionally scoped to
// one open line
func (c *Client) ConnectorStatus(ctx context.Context, connectorID, lineID string) (*ports.PortalConnectorStatus, error) {
	params := map[string]interface{}{
		"CONNECTOR": connectorID,
	}
	if lineID != "" {
		params["LINE"] = lineID
	}

	var response struct {
		Status     interface{} `json:"STATUS"`
		Configured interface{} `json:"CONFIGURED"`
		Error      string      `json:"ERROR"`
	}

	err := c.makeReadRequest(ctx, "imconnector.status", params, &response)
	if err != nil {
		return nil, fmt.Errorf("failed to get connector status: %w", err)
	}

	return &ports.PortalConnectorStatus{
		Registered: true,
		Connection: asBool(response.Configured),
		Active:     asBool(response.Status),
		Error:      response.Error,
	}, nil
}

// ============================================================================
// OPEN LINE OPERATIONS
// ============================================================================

// ListLines lists the portal's open line configurations
func (c *Client) ListLines(ctx context.Context) ([]ports.PortalLine, error) {
	var response []struct {
		ID       interface{} `json:"ID"`
		LineName string      `json:"LINE_NAME"`
		Active   string      `json:"ACTIVE"`
	}

	err := c.makeReadRequest(ctx, "imopenlines.config.list.get", nil, &response)
	if err != nil {
		return nil, fmt.Errorf("failed to list open lines: %w", err)
	}

	lines := make([]ports.PortalLine, 0, len(response))
	for _, l := range response {
		lines = append(lines, ports.PortalLine{
			ID:     asString(l.ID),
			Name:   l.LineName,
			Active: l.Active == "Y",
		})
	}

	return lines, nil
}

// CreateLine creates a new open line and returns it
func (c *Client) CreateLine(ctx context.Context, name string) (*ports.PortalLine, error) {
	params := map[string]interface{}{
		"PARAMS": map[string]interface{}{
			"LINE_NAME": name,
		},
	}

	var lineID interface{}
	err := c.makeRequest(ctx, "imopenlines.config.add", params, &lineID)
	if err != nil {
		return nil, fmt.Errorf("failed to create open line: %w", err)
	}

	return &ports.PortalLine{ID: asString(lineID), Name: name, Active: true}, nil
}

// ============================================================================
// BOT OPERATIONS
// ============================================================================

// RegisterBot registers a chat bot and returns the portal-assigned bot id
func (c *Client) RegisterBot(ctx context.Context, req ports.RegisterBotRequest) (string, error) {
	params := map[string]interface{}{
		"CODE": req.Code,
		"TYPE": "O",
		"PROPERTIES": map[string]interface{}{
			"NAME":            req.Name,
			"WORK_POSITION":   "WhatsApp",
			"COLOR":           "GREEN",
			"WELCOME_MESSAGE": req.WelcomeMessage,
		},
		"EVENT_MESSAGE_ADD":     req.HandlerURL,
		"EVENT_WELCOME_MESSAGE": req.HandlerURL,
		"EVENT_BOT_DELETE":      req.HandlerURL,
	}

	var botID interface{}
	err := c.makeRequest(ctx, "imbot.register", params, &botID)
	if err != nil {
		return "", fmt.Errorf("failed to register bot: %w", err)
	}

	return asString(botID), nil
}

// UnregisterBot removes a chat bot
func (c *Client) UnregisterBot(ctx context.Context, botID string) error {
	params := map[string]interface{}{
		"BOT_ID": botID,
	}

	err := c.makeRequest(ctx, "imbot.unregister", params, nil)
	if err != nil {
		return fmt.Errorf("failed to unregister bot: %w", err)
	}

	return nil
}

// ============================================================================
// AUTOMATION RULE OPERATIONS
// ============================================================================

// RegisterRobot adds an automation rule handler usable in portal workflows
func (c *Client) RegisterRobot(ctx context.Context, req ports.RegisterRobotRequest) error {
	params := map[string]interface{}{
		"CODE":    req.Code,
		"HANDLER": req.HandlerURL,
		"NAME":    req.Name,
		"PROPERTIES": map[string]interface{}{
			"phone": map[string]interface{}{
				"Name":     "Telefone",
				"Type":     "string",
				"Required": "Y",
			},
			"message": map[string]interface{}{
				"Name":     "Mensagem",
				"Type":     "text",
				"Required": "Y",
			},
		},
	}

	err := c.makeRequest(ctx, "bizproc.robot.add", params, nil)
	if err != nil {
		return fmt.Errorf("failed to register robot: %w", err)
	}

	return nil
}

// UnregisterRobot removes an automation rule handler
func (c *Client) UnregisterRobot(ctx context.Context, code string) error {
	params := map[string]interface{}{
		"CODE": code,
	}

	err := c.makeRequest(ctx, "bizproc.robot.delete", params, nil)
	if err != nil {
		return fmt.Errorf("failed to unregister robot: %w", err)
	}

	return nil
}

// ============================================================================
// SMS PROVIDER OPERATIONS
// ============================================================================

// RegisterSMSProvider registers the integration as a message sender for CRM
func (c *Client) RegisterSMSProvider(ctx context.Context, req ports.RegisterSMSProviderRequest) error {
	params := map[string]interface{}{
		"CODE":    req.Code,
		"NAME":    req.Name,
		"TYPE":    "SMS",
		"HANDLER": req.HandlerURL,
	}

	err := c.makeRequest(ctx, "messageservice.sender.add", params, nil)
	if err != nil {
		return fmt.Errorf("failed to register sms provider: %w", err)
	}

	return nil
}

// ============================================================================
// PLACEMENT DIAGNOSTICS
// ============================================================================

// FirePlacement posts a synthetic placement event at a handler URL the way
// the portal would, reporting what came back
func (c *Client) FirePlacement(ctx context.Context, handlerURL string, options map[string]string) (*ports.PlacementResponse, error) {
	form := url.Values{}
	for k, v := range options {
		form.Set(k, v)
	}
	form.Set("AUTH_ID", c.accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, handlerURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create placement request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return &ports.PlacementResponse{
			Reachable: false,
			Elapsed:   elapsed,
			ElapsedMS: elapsed.Milliseconds(),
		}, nil
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	return &ports.PlacementResponse{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Reachable:  resp.StatusCode >= 200 && resp.StatusCode < 400,
		Elapsed:    elapsed,
		ElapsedMS:  elapsed.Milliseconds(),
	}, nil
}

// ============================================================================
// TRANSPORT
// ============================================================================

// envelope is the standard Bitrix REST response wrapper
type envelope struct {
	Result           json.RawMessage `json:"result"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// makeRequest calls one REST method on the portal
func (c *Client) makeRequest(ctx context.Context, method string, params map[string]interface{}, result interface{}) error {
	endpoint := fmt.Sprintf("https://%s/rest/%s?auth=%s", c.domain, method, url.QueryEscape(c.accessToken))

	var body io.Reader
	if params != nil {
		jsonData, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode %s response (status %d): %w", method, resp.StatusCode, err)
	}

	if env.Error != "" {
		c.logger.WarnWithFields("Portal returned an error", map[string]interface{}{
			"domain": c.domain,
			"method": method,
			"code":   env.Error,
		})
		return &ports.PortalError{
			Code:        env.Error,
			Description: env.ErrorDescription,
			HTTPStatus:  resp.StatusCode,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ports.PortalError{
			Code:       fmt.Sprintf("http_%d", resp.StatusCode),
			HTTPStatus: resp.StatusCode,
		}
	}

	if result != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}

	return nil
}

// makeReadRequest is makeRequest with bounded retry. Only read-only methods
// go through it: a retried write could double-register on the portal, while a
// retried read at worst costs a round trip.
func (c *Client) makeReadRequest(ctx context.Context, method string, params map[string]interface{}, result interface{}) error {
	operation := func() error {
		err := c.makeRequest(ctx, method, params, result)
		if err == nil {
			return nil
		}
		if pe, ok := ports.AsPortalError(err); ok && pe.HTTPStatus < 500 {
			// The portal answered; asking again gets the same answer.
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(operation, policy)
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	case json.Number:
		return t.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "Y" || t == "true" || t == "1"
	case float64:
		return t != 0
	default:
		return false
	}
}
