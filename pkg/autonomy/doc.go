// Package autonomy implements the parts of the engine that act without a
// human or another task prompting them: scheduled cron jobs, reactive
// watch rules, and the inter-agent messaging channel they (and ordinary
// task execution) use to coordinate.
package autonomy
