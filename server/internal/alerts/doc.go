// Package alerts implements the rule evaluation engine and webhook delivery
// for dashboard alerting. Rules are evaluated against every rendered metrics
// snapshot; webhooks are delivered to Teams, Slack, or generic HTTP targets.
package alerts
