package dispatch_test

import (
	"testing"

	"github.com/AmosPulse/proof-stamp/internal/dispatch"
	"github.com/AmosPulse/proof-stamp/internal/types"
)

func TestAgentFor(t *testing.T) {
	tests := []struct {
		name        string
		title       string
		description string
		want        string
	}{
		{name: "database work", title: "Design database schema", want: "architect"},
		{name: "dashboard work", title: "Build the metrics dashboard", want: "dashboard-smith"},
		{name: "stuck detection", title: "Add stuck-guard timeout checks", want: "stuck-guard"},
		{name: "cost tracking", title: "Track cost against the budget", want: "cost-governor"},
		{name: "release work", title: "Wire the deployment pipeline", want: "release-bot"},
		{name: "notifications", title: "Route alert emails", want: "notification-agent"},
		{name: "extension work", title: "Package the browser bundle", want: "extension-builder"},
		{name: "crawling", title: "Tune the crawler politeness", want: "crawler-bot"},
		{name: "watermarking", title: "Stamp uploads with a watermark", want: "watermark-guru"},
		{name: "similarity", title: "Improve similarity scoring", want: "similarity-brain"},
		{name: "qa work", title: "Harden the testing suite", want: "qa-bot"},
		{name: "scheduling", title: "Rework task scheduling", want: "architect"},
		{name: "no keyword falls back", title: "Paint the fence", want: dispatch.DefaultAgent},
		{
			name:        "description matches too",
			title:       "Phase two work",
			description: "Tighten the budget governor rules",
			want:        "cost-governor",
		},
		{
			name:  "earlier rule wins",
			title: "Monitoring dashboard for crawl jobs",
			want:  "dashboard-smith",
		},
		{name: "case insensitive", title: "DASHBOARD polish", want: "dashboard-smith"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &types.Task{Title: tt.title, Description: tt.description}
			if got := dispatch.AgentFor(task); got != tt.want {
				t.Errorf("AgentFor(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}
