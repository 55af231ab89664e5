// Package alerts evaluates threshold rules against every poll frame and
// delivers webhook notifications when a rule fires or resolves.
package alerts
