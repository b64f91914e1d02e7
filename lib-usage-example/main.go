package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/worklogs/worklogs/pkg/collector"
	"github.com/worklogs/worklogs/pkg/extract"
	"github.com/worklogs/worklogs/pkg/report"
	"github.com/worklogs/worklogs/pkg/tracker"
	"github.com/worklogs/worklogs/pkg/tracker/dev"
	"github.com/worklogs/worklogs/pkg/tracker/jira"
)

func main() {
	// Usage: go run *.go -url "https://jira.example.com" -token "your_token" -project ZYN
	// Without -url the built-in sample dataset is used.

	urlFlag := flag.String("url", "", "Jira base URL")
	tokenFlag := flag.String("token", "", "Jira API token")
	projectFlag := flag.String("project", "ZYN", "Jira project key")
	jqlFlag := flag.String("jql", "", "Seed JQL (default: every issue of the project)")

	// Parse the command-line flags
	flag.Parse()

	jql := *jqlFlag
	if jql == "" {
		jql = "project = " + *projectFlag
	}

	var client tracker.Client = dev.Sample(*projectFlag)
	if *urlFlag != "" {
		if *tokenFlag == "" {
			fmt.Println("Token is required. Please provide the token using -token flag.")
			return
		}
		jc, err := jira.New(jira.Config{BaseURL: *urlFlag, Token: *tokenFlag, Project: *projectFlag})
		if err != nil {
			fmt.Println(err)
			return
		}
		client = jc
	}

	ctx := context.Background()
	collected, err := collector.New(client, collector.Config{Project: *projectFlag, JQL: jql}).Collect(ctx)
	if err != nil {
		fmt.Println(err)
		return
	}

	ex, err := extract.New(extract.Config{Client: client})
	if err != nil {
		fmt.Println(err)
		return
	}
	res := ex.Extract(ctx, collected.Keys)

	for _, e := range res.Entries {
		fmt.Println(e.ItemKey, e.Author, e.DurationText, e.StartedAt)
	}
	for _, f := range res.Failures {
		fmt.Fprintln(os.Stderr, "failed:", f.Error())
	}
	report.WriteSummary(os.Stdout, report.Summarize(res.Entries))
}
