package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OAuth Flow Metrics
var (
	// OAuthCallbacksTotal tracks OAuth callback outcomes by platform and flow
	OAuthCallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oauth_callbacks_total",
			Help: "Total OAuth callbacks by platform, flow, and outcome",
		},
		[]string{"platform", "flow", "outcome"},
	)

	// OAuthFlowsStarted tracks authorization redirects issued by platform and flow
	OAuthFlowsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oauth_flows_started_total",
			Help: "Total OAuth flows started by platform and flow",
		},
		[]string{"platform", "flow"},
	)
)

// Token Lifecycle Metrics
var (
	// TokenRefreshesTotal tracks provider token refreshes by platform, trigger, and outcome
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refreshes_total",
			Help: "Total provider token refreshes by platform, trigger (session/middleware), and outcome",
		},
		[]string{"platform", "trigger", "outcome"},
	)

	// TokenRevocationsTotal tracks logout-time provider token revocations by result
	TokenRevocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_revocations_total",
			Help: "Total provider token revocations by platform and result",
		},
		[]string{"platform", "result"},
	)
)

// HTTP Error Metrics
// Note: http_errors_total{type} is provided by internal/apperrors package
