// Package autostart starts routine sessions on a schedule.
//
// Each routine definition may carry a schedule spec, either a plain
// "HH:MM" for a daily start or a five-field cron expression. When a
// schedule fires, the service computes the remaining time budget until
// the configured end-of-day and asks the session service to start.
package autostart
