package cmd

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/worklogs/worklogs/internal/utils"
	"github.com/worklogs/worklogs/pkg/cache"
	"github.com/worklogs/worklogs/pkg/tracker"
	"github.com/worklogs/worklogs/pkg/tracker/dev"
	"github.com/worklogs/worklogs/pkg/tracker/jira"
	"github.com/worklogs/worklogs/pkg/whttp"
)

// runConfig is the resolved configuration of one command invocation.
type runConfig struct {
	JiraURL      string
	Token        string
	Email        string
	Project      string
	ERPActivity  string
	JQL          string
	CacheEnabled bool
	CacheDir     string
	CacheTTL     time.Duration
	Workers      int
	Fields       jira.Fields
	Proxy        string
}

func loadRunConfig(cmd *cobra.Command) runConfig {
	proxy, _ := cmd.Flags().GetString("proxy")
	return runConfig{
		JiraURL:      viper.GetString("jira.url"),
		Token:        viper.GetString("jira.token"),
		Email:        viper.GetString("jira.email"),
		Project:      viper.GetString("project"),
		ERPActivity:  viper.GetString("erp_activity"),
		JQL:          viper.GetString("jql"),
		CacheEnabled: viper.GetBool("cache.enabled"),
		CacheDir:     viper.GetString("cache.dir"),
		CacheTTL:     time.Duration(viper.GetInt("cache.ttl")) * time.Second,
		Workers:      viper.GetInt("workers"),
		Fields: jira.Fields{
			EpicLink:    viper.GetString("fields.epic_link"),
			ProductItem: viper.GetString("fields.product_item"),
			Team:        viper.GetString("fields.team"),
		},
		Proxy: proxy,
	}
}

// Query returns the seed JQL: the configured override, or the project's
// ERP activity filter.
func (c runConfig) Query() string {
	if c.JQL != "" {
		return c.JQL
	}
	return fmt.Sprintf(`project = %s AND "ERP Activity" ~ "%s"`, c.Project, c.ERPActivity)
}

// configCheck holds the settings validated before a run. The key tag names
// the config key reported back to the user.
type configCheck struct {
	Dev     bool
	Project string `key:"project" validate:"required"`
	JiraURL string `key:"jira.url" validate:"required_unless=Dev true"`
	Token   string `key:"jira.token" validate:"required_unless=Dev true"`
	Workers int    `key:"workers" validate:"min=0,max=100"`
	TTL     int    `key:"cache.ttl" validate:"min=1"`
}

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if key := f.Tag.Get("key"); key != "" {
			return key
		}
		return f.Name
	})
	return v
}

func (c runConfig) validate(devMode bool) error {
	check := configCheck{
		Dev:     devMode,
		Project: c.Project,
		JiraURL: c.JiraURL,
		Token:   c.Token,
		Workers: c.Workers,
		TTL:     int(c.CacheTTL / time.Second),
	}
	if err := configValidator.Struct(check); err != nil {
		return formatConfigError(err)
	}
	if !devMode && c.JQL == "" && c.ERPActivity == "" {
		return errors.New("no search filter configured (set 'erp_activity' or 'jql')")
	}
	return nil
}

func formatConfigError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return fmt.Errorf("invalid configuration: %s (see ~/.worklogs.yaml)", strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_unless":
		return fmt.Sprintf("%s is required", e.Field())
	case "min":
		if e.Field() == "cache.ttl" {
			return fmt.Sprintf("%s must be at least %s second(s)", e.Field(), e.Param())
		}
		return fmt.Sprintf("%s must be at least %s", e.Field(), e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", e.Field(), e.Param())
	default:
		return fmt.Sprintf("%s is invalid", e.Field())
	}
}

func (c runConfig) newJiraClient() (*jira.Client, error) {
	httpClient, err := whttp.NewClient(whttp.ClientOptions{Proxy: c.Proxy, Log: utils.Log})
	if err != nil {
		return nil, err
	}
	return jira.New(jira.Config{
		BaseURL: c.JiraURL,
		Token:   c.Token,
		Email:   c.Email,
		Project: c.Project,
		Fields:  c.Fields,
		HTTP:    httpClient,
		Log:     utils.Log,
	})
}

// newTracker returns the Jira client, or the built-in sample tracker in dev
// mode. The second value is nil in dev mode.
func (c runConfig) newTracker(devMode bool) (tracker.Client, *jira.Client, error) {
	if devMode {
		utils.Log.Info("Using the built-in sample dataset (--dev)")
		return dev.Sample(c.Project), nil, nil
	}
	jc, err := c.newJiraClient()
	if err != nil {
		return nil, nil, err
	}
	return jc, jc, nil
}

func (c runConfig) newCache() (*cache.Cache, error) {
	return cache.New(cache.Options{
		Dir:      c.CacheDir,
		TTL:      c.CacheTTL,
		Disabled: !c.CacheEnabled,
		Log:      utils.Log,
	})
}
