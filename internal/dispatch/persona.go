package dispatch

import (
	"fmt"
	"strings"

	"github.com/AmosPulse/proof-stamp/internal/types"
)

// DefaultAgent is assigned when no keyword rule matches.
const DefaultAgent = "architect"

// personaRule maps content keywords to the agent persona that owns them.
// Rules are evaluated in order and the first hit wins, so the dashboard
// rule sits above the broader monitoring rule.
type personaRule struct {
	keywords []string
	agent    string
}

var personaRules = []personaRule{
	{keywords: []string{"database", "schema", "migration", "backup", "restore"}, agent: "architect"},
	{keywords: []string{"dashboard"}, agent: "dashboard-smith"},
	{keywords: []string{"stuck-guard", "timeout", "monitoring"}, agent: "stuck-guard"},
	{keywords: []string{"cost", "budget", "governor"}, agent: "cost-governor"},
	{keywords: []string{"github", "workflow", "deployment", "pipeline", "project board"}, agent: "release-bot"},
	{keywords: []string{"notification", "email", "alert", "routing"}, agent: "notification-agent"},
	{keywords: []string{"extension", "browser", "web", "scraping"}, agent: "extension-builder"},
	{keywords: []string{"crawler", "crawling", "extraction"}, agent: "crawler-bot"},
	{keywords: []string{"watermark", "content", "proof", "stamp"}, agent: "watermark-guru"},
	{keywords: []string{"similarity", "detection", "duplicate", "ml", "model"}, agent: "similarity-brain"},
	{keywords: []string{"test", "testing", "validation", "qa", "quality"}, agent: "qa-bot"},
	{keywords: []string{"orchestrator", "dependency", "scheduling", "resource"}, agent: "architect"},
}

// AgentFor picks the persona for a task from its title and description.
// Matching is plain substring search over the lowercased text.
func AgentFor(t *types.Task) string {
	text := strings.ToLower(t.Title + " " + t.Description)
	for _, rule := range personaRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.agent
			}
		}
	}
	return DefaultAgent
}

// assignmentComment is posted on freshly created issues.
func assignmentComment(agent string) string {
	return fmt.Sprintf("**Auto-assigned to agent:** `%s`\n\nAssigned automatically from the task content.", agent)
}
