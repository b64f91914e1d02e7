package jira

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/worklogs/worklogs/internal/utils"
	"github.com/worklogs/worklogs/pkg/tracker"
	"github.com/worklogs/worklogs/pkg/whttp"
	"github.com/worklogs/worklogs/pkg/worklog"
)

const (
	DEFAULT_PAGE_SIZE     = 100
	AVAILABILITY_TIMEOUT  = 10 * time.Second
	MAX_ERROR_BODY_LENGTH = 500
)

var searchFields = []string{"summary", "issuetype", "status", "issuelinks"}

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// StatusError is returned for any non-200 response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == 404
	case ErrUnauthorized:
		return e.StatusCode == 401 || e.StatusCode == 403
	}
	return false
}

// Fields names the custom fields holding per-issue metadata.
type Fields struct {
	EpicLink    string
	ProductItem string
	Team        string
}

var DefaultFields = Fields{
	EpicLink:    "customfield_10014",
	ProductItem: "customfield_11440",
	Team:        "customfield_10076",
}

type Config struct {
	BaseURL string
	Token   string
	// Email switches authentication from a bearer token to basic auth
	// (Jira Cloud API tokens).
	Email    string
	Project  string
	PageSize int
	Fields   Fields
	HTTP     *whttp.Client
	Log      utils.Logger
}

// Client talks to the Jira REST API v2.
type Client struct {
	baseURL  string
	auth     string
	project  string
	pageSize int
	fields   Fields
	http     *whttp.Client
	log      utils.Logger

	mu      sync.Mutex
	queries []string
}

var _ tracker.Client = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("jira: base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("jira: invalid base URL: %w", err)
	}

	httpClient := cfg.HTTP
	if httpClient == nil {
		var err error
		httpClient, err = whttp.NewClient(whttp.ClientOptions{Log: cfg.Log})
		if err != nil {
			return nil, err
		}
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DEFAULT_PAGE_SIZE
	}

	fields := cfg.Fields
	if fields.EpicLink == "" {
		fields.EpicLink = DefaultFields.EpicLink
	}
	if fields.ProductItem == "" {
		fields.ProductItem = DefaultFields.ProductItem
	}
	if fields.Team == "" {
		fields.Team = DefaultFields.Team
	}

	auth := "Bearer " + cfg.Token
	if cfg.Email != "" {
		auth = "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.Email+":"+cfg.Token))
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		auth:     auth,
		project:  cfg.Project,
		pageSize: pageSize,
		fields:   fields,
		http:     httpClient,
		log:      utils.OrNop(cfg.Log),
	}, nil
}

// BrowseURL returns the web URL of an issue.
func (c *Client) BrowseURL(key string) string {
	return c.baseURL + "/browse/" + key
}

// Queries returns the distinct JQL queries issued so far, in first-use order.
func (c *Client) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

func (c *Client) trackQuery(jql string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range c.queries {
		if q == jql {
			return
		}
	}
	c.queries = append(c.queries, jql)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, timeout time.Duration) (string, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	c.log.Debugf("API Call: GET %s", u)
	res, err := c.http.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		Method: "GET",
		URL:    u,
		Headers: []whttp.WHTTPHeader{
			{Name: "Accept", Value: "application/json"},
			{Name: "Authorization", Value: c.auth},
		},
		Timeout: timeout,
	})
	if err != nil {
		return "", err
	}
	c.log.Debugf("Response Status: %d", res.StatusCode)

	if res.StatusCode != 200 {
		body := res.BodyString
		if len(body) > MAX_ERROR_BODY_LENGTH {
			body = body[:MAX_ERROR_BODY_LENGTH]
		}
		return "", &StatusError{Method: "GET", URL: u, StatusCode: res.StatusCode, Body: body}
	}
	if !gjson.Valid(res.BodyString) {
		return "", fmt.Errorf("GET %s: invalid JSON response", u)
	}
	return res.BodyString, nil
}

// Search runs a JQL query, following pages until the reported total is reached.
func (c *Client) Search(ctx context.Context, jql string) ([]tracker.Item, error) {
	c.trackQuery(jql)

	var items []tracker.Item
	startAt := 0
	for {
		params := url.Values{
			"jql":        {jql},
			"startAt":    {strconv.Itoa(startAt)},
			"maxResults": {strconv.Itoa(c.pageSize)},
			"fields":     {strings.Join(searchFields, ",")},
		}
		body, err := c.get(ctx, "/rest/api/2/search", params, 0)
		if err != nil {
			return nil, fmt.Errorf("searching %q: %w", jql, err)
		}

		issues := gjson.Get(body, "issues").Array()
		for _, issue := range issues {
			items = append(items, tracker.Item{
				Key:  issue.Get("key").String(),
				Kind: tracker.ItemKind(issue.Get("fields.issuetype.name").String()),
			})
		}

		total := int(gjson.Get(body, "total").Int())
		c.log.Debugf("Fetching issues: %d/%d", len(items), total)

		if len(issues) == 0 || len(items) >= total {
			break
		}
		startAt += len(issues)
	}
	return items, nil
}

func (c *Client) EpicChildren(ctx context.Context, epicKey string) ([]tracker.Item, error) {
	jql := fmt.Sprintf(`project = %s AND "Epic Link" = %s`, c.project, epicKey)
	if c.project == "" {
		jql = fmt.Sprintf(`"Epic Link" = %s`, epicKey)
	}
	return c.Search(ctx, jql)
}

func (c *Client) issue(ctx context.Context, key string, fields ...string) (string, error) {
	params := url.Values{"fields": {strings.Join(fields, ",")}}
	body, err := c.get(ctx, "/rest/api/2/issue/"+url.PathEscape(key), params, 0)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", key, err)
	}
	return body, nil
}

func (c *Client) Links(ctx context.Context, key string) ([]string, error) {
	body, err := c.issue(ctx, key, "issuelinks")
	if err != nil {
		return nil, err
	}

	var linked []string
	for _, link := range gjson.Get(body, "fields.issuelinks").Array() {
		if k := link.Get("outwardIssue.key").String(); k != "" {
			linked = append(linked, k)
		}
		if k := link.Get("inwardIssue.key").String(); k != "" {
			linked = append(linked, k)
		}
	}
	if len(linked) > 0 {
		c.log.Debugf("Found %d linked issues for %s: %s", len(linked), key, strings.Join(linked, ", "))
	}
	return linked, nil
}

func (c *Client) Subtasks(ctx context.Context, key string) ([]string, error) {
	body, err := c.issue(ctx, key, "subtasks")
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, st := range gjson.Get(body, "fields.subtasks").Array() {
		if k := st.Get("key").String(); k != "" {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Worklogs returns every worklog of an issue, following pages.
func (c *Client) Worklogs(ctx context.Context, key string) ([]worklog.Worklog, error) {
	var out []worklog.Worklog
	startAt := 0
	for {
		params := url.Values{
			"startAt":    {strconv.Itoa(startAt)},
			"maxResults": {strconv.Itoa(c.pageSize)},
		}
		body, err := c.get(ctx, "/rest/api/2/issue/"+url.PathEscape(key)+"/worklog", params, 0)
		if err != nil {
			return nil, fmt.Errorf("fetching worklogs of %s: %w", key, err)
		}

		page := gjson.Get(body, "worklogs").Array()
		for _, w := range page {
			out = append(out, parseWorklog(w))
		}

		total := int(gjson.Get(body, "total").Int())
		if len(page) == 0 || len(out) >= total {
			break
		}
		startAt += len(page)
	}

	if len(out) > 0 {
		c.log.Debugf("Found %d worklog(s) for %s", len(out), key)
	}
	return out, nil
}

func parseWorklog(w gjson.Result) worklog.Worklog {
	return worklog.Worklog{
		ID:               w.Get("id").String(),
		Author:           w.Get("author.displayName").String(),
		AuthorEmail:      w.Get("author.emailAddress").String(),
		TimeSpent:        w.Get("timeSpent").String(),
		TimeSpentSeconds: w.Get("timeSpentSeconds").Int(),
		Started:          w.Get("started").String(),
		Comment:          worklog.ParseComment([]byte(w.Get("comment").Raw)),
	}
}

func (c *Client) Metadata(ctx context.Context, key string) (worklog.Metadata, error) {
	body, err := c.issue(ctx, key, "issuetype", c.fields.EpicLink, "summary", "components", "labels", c.fields.ProductItem, c.fields.Team)
	if err != nil {
		return worklog.Metadata{}, err
	}

	fields := gjson.Get(body, "fields")

	var components []string
	for _, comp := range fields.Get("components").Array() {
		if name := comp.Get("name").String(); name != "" {
			components = append(components, name)
		}
	}

	var labels []string
	for _, l := range fields.Get("labels").Array() {
		labels = append(labels, l.String())
	}

	md := worklog.Metadata{
		IssueType:   fields.Get("issuetype.name").String(),
		EpicLink:    fields.Get(c.fields.EpicLink).String(),
		Summary:     fields.Get("summary").String(),
		Components:  components,
		Labels:      labels,
		ProductItem: optionValue(fields.Get(c.fields.ProductItem), "value", "name"),
		Team:        optionValue(fields.Get(c.fields.Team), "name", "value"),
	}
	return md.WithDefaults(), nil
}

// optionValue reads a custom field that is either a plain value or an
// option object, preferring the given properties in order.
func optionValue(v gjson.Result, props ...string) string {
	if !v.IsObject() {
		return v.String()
	}
	for _, p := range props {
		if s := v.Get(p).String(); s != "" {
			return s
		}
	}
	return ""
}

// Check verifies the instance is reachable and the credentials are valid,
// returning the authenticated user's display name.
func (c *Client) Check(ctx context.Context) (string, error) {
	if _, err := c.get(ctx, "/rest/api/2/serverInfo", nil, AVAILABILITY_TIMEOUT); err != nil {
		return "", fmt.Errorf("jira instance not reachable: %w", err)
	}
	body, err := c.get(ctx, "/rest/api/2/myself", nil, AVAILABILITY_TIMEOUT)
	if err != nil {
		return "", fmt.Errorf("jira credentials rejected: %w", err)
	}
	return gjson.Get(body, "displayName").String(), nil
}
