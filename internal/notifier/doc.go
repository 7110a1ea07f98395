// Package notifier formats the new-notice digest and delivers it.
//
// Email delivery does not trust the configured SMTP settings to be exactly
// right. It walks an ordered list of connection profiles, login usernames and
// password variants built from the configuration plus small per-provider
// tables, and stops at the first combination that gets the message accepted.
// Authentication rejections are reported separately from connection failures
// so an exhausted search can point at the likely misconfiguration.
package notifier
