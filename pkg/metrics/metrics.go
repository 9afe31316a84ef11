package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_store_commits_total",
			Help: "Total number of committed write transactions.",
		},
	)
	CommitFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_store_commit_failures_total",
			Help: "Total number of write transactions aborted by an error.",
		},
	)
	NotificationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_store_notifications_total",
			Help: "Total number of change notifications delivered to subscribers.",
		},
	)
	DiffResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_diff_resets_total",
			Help: "Total number of edit scripts that failed replay validation and fell back to a reset.",
		},
	)
	SendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_sends_total",
			Help: "Total number of outbound send requests by outcome.",
		},
		[]string{"outcome"},
	)
	SendRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_send_retries_total",
			Help: "Total number of send request retries.",
		},
	)
	DeleteRollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_delete_rollbacks_total",
			Help: "Total number of pending deletes rolled back after a remote failure.",
		},
	)
	RemoteEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_remote_events_total",
			Help: "Total number of remote-origin events applied by kind.",
		},
		[]string{"kind"},
	)
	PendingMessages = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatsync_pending_messages",
			Help: "Messages currently in a pending state.",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(
		CommitsTotal,
		CommitFailuresTotal,
		NotificationsTotal,
		DiffResetsTotal,
		SendsTotal,
		SendRetriesTotal,
		DeleteRollbacksTotal,
		RemoteEventsTotal,
		PendingMessages,
	)
}
